package logging

import (
	"strings"
	"sync"
)

// RingWriter is a thread-safe writer that keeps the most recent log
// lines in memory.
type RingWriter struct {
	mu    sync.RWMutex
	lines []string
	start int
	count int
}

// GlobalLogRing captures INFO+ server log lines for the admin log
// endpoint.
var GlobalLogRing = NewRingWriter(500)

// NewRingWriter creates a ring buffer holding up to capacity lines.
func NewRingWriter(capacity int) *RingWriter {
	if capacity <= 0 {
		capacity = 500
	}
	return &RingWriter{lines: make([]string, capacity)}
}

// Write implements io.Writer. Each non-empty line of p becomes one
// buffered entry; the oldest entries fall off.
func (w *RingWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			w.push(line)
		}
	}
	return len(p), nil
}

func (w *RingWriter) push(line string) {
	if w.count < len(w.lines) {
		w.lines[(w.start+w.count)%len(w.lines)] = line
		w.count++
		return
	}
	w.lines[w.start] = line
	w.start = (w.start + 1) % len(w.lines)
}

// Lines returns up to limit of the most recent lines, oldest first.
// A non-positive limit returns everything buffered.
func (w *RingWriter) Lines(limit int) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := w.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, n)
	skip := w.count - n
	for i := 0; i < n; i++ {
		out[i] = w.lines[(w.start+skip+i)%len(w.lines)]
	}
	return out
}
