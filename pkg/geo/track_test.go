package geo

import (
	"math"
	"testing"
)

func TestTrackBuffer(t *testing.T) {
	// Table-driven test for rolling track calculation
	tests := []struct {
		name       string
		windowSize int
		minSpan    float64
		points     []Point
		wantTracks []float64 // Expected track after EACH push, NaN = not available
	}{
		{
			name:       "Standard 3-Sample Window",
			windowSize: 3,
			points: []Point{
				{Lat: 10, Lon: 20}, // 1st: no course yet
				{Lat: 11, Lon: 20}, // 2nd: North (0)
				{Lat: 11, Lon: 21}, // 3rd: NE based on 10,20 -> 11,21 (approx 45)
				{Lat: 10, Lon: 21}, // 4th: SE based on 11,20 -> 10,21 (approx 135)
			},
			wantTracks: []float64{math.NaN(), 0, 45, 135},
		},
		{
			name:       "Jitter Below Span",
			windowSize: 4,
			minSpan:    10,
			points: []Point{
				{Lat: 47.0, Lon: 8.0},
				{Lat: 47.00001, Lon: 8.0}, // ~1m
				{Lat: 47.00002, Lon: 8.0}, // ~2m
				{Lat: 47.0002, Lon: 8.0},  // ~22m north
			},
			wantTracks: []float64{math.NaN(), math.NaN(), math.NaN(), 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewTrackBuffer(tt.windowSize, tt.minSpan)
			for i, p := range tt.points {
				got, ok := b.Push(p)
				want := tt.wantTracks[i]
				if math.IsNaN(want) {
					if ok {
						t.Errorf("Step %d: Push() = %v, want no course", i, got)
					}
					continue
				}
				// We use approx comparison for Bearing since math is complex
				if !ok || math.Abs(got-want) > 1.0 {
					t.Errorf("Step %d: Push() = %v (ok=%v), want approx %v", i, got, ok, want)
				}
			}
		})
	}
}

func TestTrackBuffer_Reset(t *testing.T) {
	b := NewTrackBuffer(5, 0)
	b.Push(Point{10, 20})
	b.Push(Point{11, 20})

	if b.Len() != 2 {
		t.Errorf("Expected 2 samples, got %d", b.Len())
	}

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Expected 0 samples after reset, got %d", b.Len())
	}
}

func TestTrackBuffer_RejectsInvalid(t *testing.T) {
	b := NewTrackBuffer(3, 0)
	if _, ok := b.Push(Point{Lat: math.NaN(), Lon: 0}); ok {
		t.Error("expected invalid point to be rejected")
	}
	if b.Len() != 0 {
		t.Errorf("invalid point should not be buffered, got %d", b.Len())
	}
}
