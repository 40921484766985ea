package geo

import "sync"

// TrackBuffer maintains a rolling window of positions and derives the ground track from it.
// The course is only reported once the window spans at least minSpan meters, so jitter
// around a stationary fix never produces a heading.
type TrackBuffer struct {
	mu         sync.RWMutex
	samples    []Point
	windowSize int
	minSpan    float64
}

// NewTrackBuffer creates a new buffer with the specified sample window size and minimum span in meters.
func NewTrackBuffer(windowSize int, minSpan float64) *TrackBuffer {
	if windowSize < 2 {
		windowSize = 2
	}
	if minSpan < 0 {
		minSpan = 0
	}
	return &TrackBuffer{
		windowSize: windowSize,
		minSpan:    minSpan,
	}
}

// Push adds a new point to the buffer and returns the current ground track (bearing).
// ok is false while the buffer holds fewer than 2 points or spans less than minSpan.
func (b *TrackBuffer) Push(p Point) (course float64, ok bool) {
	if !p.Valid() {
		return 0, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, p)
	if len(b.samples) > b.windowSize {
		b.samples = b.samples[1:]
	}

	if len(b.samples) < 2 {
		return 0, false
	}

	oldest, newest := b.samples[0], b.samples[len(b.samples)-1]
	if Distance(oldest, newest) < b.minSpan {
		return 0, false
	}

	// Bearing from oldest to newest point in window
	return Bearing(oldest, newest), true
}

// Len returns the number of buffered samples.
func (b *TrackBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples)
}

// Reset clears the buffer history.
func (b *TrackBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = nil
}
