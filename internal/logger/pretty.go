package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorCyan   = "\033[36m"
)

// PrettyHandler is a slog.Handler that writes compact,
// colored lines for terminals.
//
//     [15:04:05] INFO  epoch done epoch=3 train_ppl=151.2
type PrettyHandler struct {
	opts  slog.HandlerOptions
	w     io.Writer
	mu    *sync.Mutex
	group string
	attrs []slog.Attr
}

// NewPrettyHandler creates a PrettyHandler.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{opts: *opts, w: w, mu: &sync.Mutex{}}
}

// Enabled reports whether the handler handles records at
// the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

// Handle writes a single record.
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(colorGray + "[" + r.Time.Format(time.TimeOnly) + "]" + colorReset + " ")
	b.WriteString(levelColor(r.Level) + fmt.Sprintf("%-5s", r.Level.String()) + colorReset + " ")
	b.WriteString(r.Message)

	attrs := append([]slog.Attr{}, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		attrs = append(attrs, a)
		return true
	})
	if len(attrs) > 0 {
		b.WriteString(colorCyan)
		for _, a := range attrs {
			b.WriteByte(' ')
			writeAttr(&b, a)
		}
		b.WriteString(colorReset)
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

// WithAttrs returns a handler with additional attributes.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	res := *h
	res.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		res.attrs = append(res.attrs, a)
	}
	return &res
}

// WithGroup returns a handler that prefixes later keys.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	res := *h
	if h.group != "" {
		res.group = h.group + "." + name
	} else {
		res.group = name
	}
	return &res
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

func writeAttr(b *strings.Builder, a slog.Attr) {
	b.WriteString(a.Key)
	b.WriteByte('=')
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t\n\"") {
			s = fmt.Sprintf("%q", s)
		}
		b.WriteString(s)
	case slog.KindFloat64:
		fmt.Fprintf(b, "%.4g", v.Float64())
	case slog.KindDuration:
		b.WriteString(v.Duration().Round(time.Millisecond).String())
	case slog.KindGroup:
		b.WriteByte('{')
		for i, sub := range v.Group() {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeAttr(b, sub)
		}
		b.WriteByte('}')
	default:
		b.WriteString(fmt.Sprint(v.Any()))
	}
}
