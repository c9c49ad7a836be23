// Package monitor records training metrics as JSON lines.
package monitor

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// A Monitor owns a directory of metric series for one
// training run.
type Monitor struct {
	Dir   string
	RunID string
}

// New creates the directory if needed and assigns the run
// a fresh ID.
func New(dir string) (*Monitor, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create monitor dir: %w", err)
	}
	return &Monitor{Dir: dir, RunID: uuid.NewString()}, nil
}

// A Record is one line of a series file.
type Record struct {
	Run   string    `json:"run"`
	Index int       `json:"index"`
	Value float64   `json:"value"`
	Time  time.Time `json:"time"`
}

// A Series averages values over an interval and appends
// the averages to "<name>.series.jsonl".
type Series struct {
	Name     string
	Interval int

	mon    *Monitor
	mu     sync.Mutex
	values []float64
}

// Series creates a series in the monitor.
// An interval below 1 is treated as 1.
func (m *Monitor) Series(name string, interval int) *Series {
	if interval < 1 {
		interval = 1
	}
	return &Series{Name: name, Interval: interval, mon: m}
}

// Path returns the file the series writes to.
func (s *Series) Path() string {
	return filepath.Join(s.mon.Dir, s.Name+".series.jsonl")
}

// Add records a value.
// Every Interval values, their mean is written with the
// index of the last one.
func (s *Series) Add(index int, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = append(s.values, value)
	if len(s.values) < s.Interval {
		return nil
	}
	var sum float64
	for _, v := range s.values {
		sum += v
	}
	mean := sum / float64(len(s.values))
	s.values = s.values[:0]
	return s.write(Record{
		Run:   s.mon.RunID,
		Index: index,
		Value: mean,
		Time:  time.Now(),
	})
}

func (s *Series) write(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("write series %s: %w", s.Name, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write series %s: %w", s.Name, err)
	}
	return nil
}

// TimeElapsed records the wall time since it was created,
// in seconds.
type TimeElapsed struct {
	series *Series
	start  time.Time
	now    func() time.Time
}

// TimeElapsed creates an elapsed-time series.
func (m *Monitor) TimeElapsed(name string, interval int) *TimeElapsed {
	return &TimeElapsed{
		series: m.Series(name, interval),
		start:  time.Now(),
		now:    time.Now,
	}
}

// Add records the elapsed time at an index.
func (t *TimeElapsed) Add(index int) error {
	return t.series.Add(index, t.now().Sub(t.start).Seconds())
}

// Path returns the file the series writes to.
func (t *TimeElapsed) Path() string {
	return t.series.Path()
}

// ReadSeries reads every record of a series file.
func ReadSeries(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var res []Record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("read series %s: %w", path, err)
		}
		res = append(res, r)
	}
	return res, scanner.Err()
}
