package handler

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kartikbazzad/logdb/internal/record"
)

// SlogHandler adapts a Handler to log/slog so the standard logging framework
// can drive the sink directly. Attribute keys matching a declared additional
// field are routed to that column; everything else lands in the extra JSON
// column. Error-typed attribute values become the record's exception payload.
type SlogHandler struct {
	h          *Handler
	loggerName string
	minLevel   slog.Level
	attrs      []slog.Attr
	groups     []string
}

// Slog returns a slog.Handler emitting into h under the given logger name.
func (h *Handler) Slog(loggerName string, minLevel slog.Level) *SlogHandler {
	return &SlogHandler{
		h:          h,
		loggerName: loggerName,
		minLevel:   minLevel,
	}
}

func (s *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= s.minLevel
}

func (s *SlogHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := record.New(record.FromSlogLevel(r.Level), s.loggerName, r.Message)
	if !r.Time.IsZero() {
		rec.CreatedAt = r.Time
	}
	rec.ProcessID = os.Getpid()
	rec.ProcessName = filepath.Base(os.Args[0])
	rec.ThreadName = "goroutine"

	if r.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{r.PC})
		f, _ := fs.Next()
		rec.Filename = f.File
		rec.FunctionName = f.Function
		rec.LineNumber = f.Line
	}

	declared := make(map[string]bool, len(s.h.schema.AdditionalFields()))
	for _, f := range s.h.schema.AdditionalFields() {
		declared[f.Name] = true
	}

	put := func(key string, v slog.Value) {
		val := v.Resolve().Any()
		if err, ok := val.(error); ok && rec.Exc == nil {
			rec.Exc = record.Exception(err)
			return
		}
		if declared[key] {
			if rec.Fields == nil {
				rec.Fields = make(map[string]any)
			}
			rec.Fields[key] = val
			return
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]any)
		}
		rec.Extra[key] = val
	}

	// Stored attrs were qualified when WithAttrs ran, under the groups open
	// at that time. Record attrs take the current group prefix.
	for _, a := range s.attrs {
		put(a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		put(s.key(a.Key), a.Value)
		return true
	})

	return s.h.Emit(ctx, rec)
}

func (s *SlogHandler) key(k string) string {
	if len(s.groups) == 0 {
		return k
	}
	return strings.Join(s.groups, ".") + "." + k
}

func (s *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	s2 := *s
	s2.attrs = append([]slog.Attr{}, s.attrs...)
	for _, a := range attrs {
		a.Key = s.key(a.Key)
		s2.attrs = append(s2.attrs, a)
	}
	return &s2
}

func (s *SlogHandler) WithGroup(name string) slog.Handler {
	s2 := *s
	s2.groups = append(append([]string{}, s.groups...), name)
	return &s2
}
