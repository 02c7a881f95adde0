package telemetry

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// LogFilter drops diagnostic lines that contain any configured pattern and
// forwards the rest to its sink. It is scoped to the accumulator that owns
// it; other loggers in the process are unaffected.
type LogFilter struct {
	sink     Logger
	suppress []string
	dropped  atomic.Int64
}

// NewLogFilter wraps sink. Empty patterns are ignored.
func NewLogFilter(sink Logger, suppress ...string) *LogFilter {
	f := &LogFilter{sink: sink}
	for _, p := range suppress {
		if p = strings.TrimSpace(p); p != "" {
			f.suppress = append(f.suppress, p)
		}
	}
	return f
}

// Printf formats the line and forwards it unless it is suppressed.
func (f *LogFilter) Printf(format string, args ...any) {
	if f == nil || f.sink == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	for _, p := range f.suppress {
		if strings.Contains(line, p) {
			f.dropped.Add(1)
			return
		}
	}
	f.sink.Printf("%s", line)
}

// Dropped returns how many lines were suppressed.
func (f *LogFilter) Dropped() int64 {
	if f == nil {
		return 0
	}
	return f.dropped.Load()
}
