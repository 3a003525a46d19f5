package statsd

import (
	"strconv"
	"sync"
	"time"
)

// Recorder is an in-memory Sink that keeps every emitted line. Tests of metric
// emitters use it instead of a UDP listener.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

var _ Sink = (*Recorder)(nil)

// Count records a counter line.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(FormatLine("", name, strconv.FormatInt(value, 10), "c", nil, tags))
}

// Gauge records a gauge line.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(FormatLine("", name, formatFloat(value), "g", nil, tags))
}

// Timing records a timing line in milliseconds.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(FormatLine("", name, formatFloat(float64(value)/float64(time.Millisecond)), "ms", nil, tags))
}

// Lines returns a copy of the recorded lines in emission order.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Reset drops every recorded line.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = nil
}

func (r *Recorder) add(line string) {
	if line == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}
