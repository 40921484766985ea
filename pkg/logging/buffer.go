package logging

import (
	"strings"
	"sync"
)

// DefaultCaptureSize is the number of recent lines kept by the global captures.
const DefaultCaptureSize = 50

// LogCaptureWriter is a thread-safe writer that keeps the most recent lines.
type LogCaptureWriter struct {
	mu    sync.RWMutex
	lines []string
	next  int
	full  bool
}

// NewLogCaptureWriter creates a writer keeping up to size lines.
func NewLogCaptureWriter(size int) *LogCaptureWriter {
	if size < 1 {
		size = 1
	}
	return &LogCaptureWriter{lines: make([]string, size)}
}

// GlobalLogCapture captures the server log for /api/log/latest.
var GlobalLogCapture = NewLogCaptureWriter(DefaultCaptureSize)

// GlobalEventCapture captures mission events.
var GlobalEventCapture = NewLogCaptureWriter(DefaultCaptureSize)

// Write implements io.Writer. Each call is stored as one line.
func (w *LogCaptureWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimRight(string(p), "\n")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines[w.next] = line
	w.next = (w.next + 1) % len(w.lines)
	if w.next == 0 {
		w.full = true
	}
	return len(p), nil
}

// GetLastLine returns the most recent line.
func (w *LogCaptureWriter) GetLastLine() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.full && w.next == 0 {
		return ""
	}
	return w.lines[(w.next-1+len(w.lines))%len(w.lines)]
}

// Lines returns up to n recent lines, oldest first. n <= 0 returns all.
func (w *LogCaptureWriter) Lines(n int) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var all []string
	if w.full {
		all = append(all, w.lines[w.next:]...)
	}
	all = append(all, w.lines[:w.next]...)
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}
