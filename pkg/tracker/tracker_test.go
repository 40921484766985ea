package tracker

import (
	"sync"
	"testing"
)

func TestTracker(t *testing.T) {
	tr := New()
	stream := StreamPosition

	// Test Initial State
	stats := tr.Snapshot()
	if len(stats) != 0 {
		t.Errorf("Expected empty stats, got %d", len(stats))
	}

	// Test Tracking
	tr.TrackAccepted(stream)
	tr.TrackThrottled(stream)
	tr.TrackDuplicate(stream)
	tr.TrackInvalid(stream)
	tr.TrackError(stream)

	// Verify Snapshot
	stats = tr.Snapshot()
	s, ok := stats[stream]
	if !ok {
		t.Fatalf("Expected stats for stream %s", stream)
	}

	if s.Accepted != 1 {
		t.Errorf("Expected 1 Accepted, got %d", s.Accepted)
	}
	if s.Throttled != 1 {
		t.Errorf("Expected 1 Throttled, got %d", s.Throttled)
	}
	if s.Duplicate != 1 {
		t.Errorf("Expected 1 Duplicate, got %d", s.Duplicate)
	}
	if s.Invalid != 1 {
		t.Errorf("Expected 1 Invalid, got %d", s.Invalid)
	}
	if s.Errors != 1 {
		t.Errorf("Expected 1 Errors, got %d", s.Errors)
	}
}

func TestResetKeepsStreams(t *testing.T) {
	tr := New()
	tr.TrackAccepted(StreamOrientation)
	tr.Reset()

	stats := tr.Snapshot()
	s, ok := stats[StreamOrientation]
	if !ok {
		t.Fatal("Post-Reset: stream should still exist in map")
	}
	if s.Accepted != 0 {
		t.Errorf("Post-Reset: Accepted should be 0, got %d", s.Accepted)
	}
}

func TestNilTrackerIsNoop(t *testing.T) {
	var tr *Tracker
	tr.TrackAccepted(StreamPosition)
	tr.TrackInvalid(StreamPosition)
}

func TestConcurrentTracking(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.TrackAccepted(StreamPosition)
			}
		}()
	}
	wg.Wait()

	if got := tr.Snapshot()[StreamPosition].Accepted; got != 800 {
		t.Errorf("Expected 800 Accepted, got %d", got)
	}
}
