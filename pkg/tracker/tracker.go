// Package tracker counts what happens to sensor samples on their way into the engine.
package tracker

import (
	"sync"
	"sync/atomic"
)

// Stream names used by the engine.
const (
	StreamPosition    = "position"
	StreamOrientation = "orientation"
)

// Tracker tracks sample statistics per stream.
type Tracker struct {
	mu    sync.RWMutex
	stats map[string]*StreamStats
}

// StreamStats holds counters for one sensor stream.
// Fields are accessed atomically.
type StreamStats struct {
	Accepted  int64
	Throttled int64
	Duplicate int64
	Invalid   int64
	Errors    int64
}

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		stats: make(map[string]*StreamStats),
	}
}

// getStats returns the stats object for a stream, creating it if needed.
func (t *Tracker) getStats(stream string) *StreamStats {
	t.mu.RLock()
	s, ok := t.stats[stream]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[stream]; ok {
		return s
	}
	s = &StreamStats{}
	t.stats[stream] = s
	return s
}

// TrackAccepted counts a sample that reached the engine.
func (t *Tracker) TrackAccepted(stream string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(stream).Accepted, 1)
}

// TrackThrottled counts a sample dropped inside the throttle window.
func (t *Tracker) TrackThrottled(stream string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(stream).Throttled, 1)
}

// TrackDuplicate counts a sample identical to the previous one.
func (t *Tracker) TrackDuplicate(stream string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(stream).Duplicate, 1)
}

// TrackInvalid counts a NaN or out-of-range sample.
func (t *Tracker) TrackInvalid(stream string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(stream).Invalid, 1)
}

// TrackError counts an error reported by the source.
func (t *Tracker) TrackError(stream string) {
	if t == nil {
		return
	}
	atomic.AddInt64(&t.getStats(stream).Errors, 1)
}

// Snapshot returns a copy of the current stats.
func (t *Tracker) Snapshot() map[string]StreamStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]StreamStats, len(t.stats))
	for k, v := range t.stats {
		result[k] = StreamStats{
			Accepted:  atomic.LoadInt64(&v.Accepted),
			Throttled: atomic.LoadInt64(&v.Throttled),
			Duplicate: atomic.LoadInt64(&v.Duplicate),
			Invalid:   atomic.LoadInt64(&v.Invalid),
			Errors:    atomic.LoadInt64(&v.Errors),
		}
	}
	return result
}

// Reset zeroes all counters but keeps the known streams.
func (t *Tracker) Reset() {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, v := range t.stats {
		atomic.StoreInt64(&v.Accepted, 0)
		atomic.StoreInt64(&v.Throttled, 0)
		atomic.StoreInt64(&v.Duplicate, 0)
		atomic.StoreInt64(&v.Invalid, 0)
		atomic.StoreInt64(&v.Errors, 0)
	}
}
