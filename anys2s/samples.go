package anys2s

import (
	"crypto/md5"
	"encoding/binary"
	"sort"

	"github.com/satopirka/anylm/anysgd"
)

// A Sample is an input sequence of token IDs with a
// corresponding desired output sequence.
//
// For language modeling, Output is Input shifted by one
// token, so both sequences have the same length.
type Sample struct {
	Input  []int
	Output []int
}

// A SampleList is an anysgd.SampleList that produces
// sequence-to-sequence samples.
type SampleList interface {
	anysgd.SampleList

	GetSample(idx int) (*Sample, error)
}

// A SortableSampleList is a SampleList with an extra
// LenAt method for efficiently getting the length of an
// input sequence.
type SortableSampleList interface {
	SampleList

	LenAt(idx int) int
}

// SliceSampleList is an in-memory SampleList.
//
// It implements SortableSampleList and anysgd.Hasher.
type SliceSampleList []*Sample

// Len returns the number of samples.
func (s SliceSampleList) Len() int {
	return len(s)
}

// Swap swaps two samples.
func (s SliceSampleList) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Slice copies a sub-range of the list.
func (s SliceSampleList) Slice(i, j int) anysgd.SampleList {
	return append(SliceSampleList{}, s[i:j]...)
}

// GetSample returns the sample at the index.
func (s SliceSampleList) GetSample(idx int) (*Sample, error) {
	return s[idx], nil
}

// LenAt returns the input length of a sample.
func (s SliceSampleList) LenAt(idx int) int {
	return len(s[idx].Input)
}

// Hash hashes the input and output of a sample.
func (s SliceSampleList) Hash(idx int) []byte {
	h := md5.New()
	buf := make([]byte, 8)
	for _, seq := range [][]int{s[idx].Input, s[idx].Output} {
		binary.LittleEndian.PutUint64(buf, uint64(len(seq)))
		h.Write(buf)
		for _, id := range seq {
			binary.LittleEndian.PutUint64(buf, uint64(id))
			h.Write(buf)
		}
	}
	return h.Sum(nil)
}

// A SortSampleList wraps a SortableSampleList and sorts
// samples by length within chunks after every shuffle.
//
// When ChunkSize is a multiple of the mini-batch size,
// each mini-batch then holds sequences of similar length,
// which reduces the padding in every Batch.
type SortSampleList struct {
	SortableSampleList

	// ChunkSize is the size of the chunks that should be
	// sorted.
	ChunkSize int
}

// Slice produces a subset of the SortSampleList.
func (s *SortSampleList) Slice(i, j int) anysgd.SampleList {
	sliced := s.SortableSampleList.Slice(i, j)
	return &SortSampleList{
		SortableSampleList: sliced.(SortableSampleList),
		ChunkSize:          s.ChunkSize,
	}
}

// PostShuffle sorts chunks of sequences.
func (s *SortSampleList) PostShuffle() {
	if p, ok := s.SortableSampleList.(anysgd.PostShuffler); ok {
		p.PostShuffle()
	}
	if s.ChunkSize <= 0 {
		return
	}
	for i := 0; i < s.Len(); i += s.ChunkSize {
		bs := s.ChunkSize
		if bs > s.Len()-i {
			bs = s.Len() - i
		}
		s := &sorter{S: s.SortableSampleList, Start: i, End: i + bs}
		sort.Sort(s)
	}
}

type sorter struct {
	S     SortableSampleList
	Start int
	End   int
}

func (s *sorter) Len() int {
	return s.End - s.Start
}

func (s *sorter) Swap(i, j int) {
	s.S.Swap(i+s.Start, j+s.Start)
}

func (s *sorter) Less(i, j int) bool {
	return s.S.LenAt(i+s.Start) < s.S.LenAt(j+s.Start)
}
