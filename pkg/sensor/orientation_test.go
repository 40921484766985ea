package sensor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrientation(t *testing.T) {
	tests := []struct {
		name        string
		ev          RawOrientationEvent
		wantOK      bool
		wantHeading float64
		wantPitch   float64
		wantRoll    float64
	}{
		{
			name:        "Webkit",
			ev:          WebkitEvent{CompassHeading: 42, Beta: 10, Gamma: -5},
			wantOK:      true,
			wantHeading: 42,
			wantPitch:   10,
			wantRoll:    -5,
		},
		{
			name:        "WebkitPointer",
			ev:          &WebkitEvent{CompassHeading: 370},
			wantOK:      true,
			wantHeading: 10,
		},
		{
			name:   "WebkitNaN",
			ev:     WebkitEvent{CompassHeading: math.NaN()},
			wantOK: false,
		},
		{
			name:        "StandardCounterClockwise",
			ev:          StandardEvent{Alpha: Float(90), Beta: Float(3), Gamma: Float(4), Absolute: true},
			wantOK:      true,
			wantHeading: 270,
			wantPitch:   3,
			wantRoll:    4,
		},
		{
			name:        "StandardNorth",
			ev:          StandardEvent{Alpha: Float(0), Absolute: true},
			wantOK:      true,
			wantHeading: 0,
		},
		{
			name:   "StandardMissingAlpha",
			ev:     StandardEvent{Beta: Float(3)},
			wantOK: false,
		},
		{
			name:   "NilPointer",
			ev:     (*StandardEvent)(nil),
			wantOK: false,
		},
		{
			name:   "NilInterface",
			ev:     nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := NormalizeOrientation(tt.ev)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.InDelta(t, tt.wantHeading, s.HeadingDeg, 1e-9)
			assert.InDelta(t, tt.wantPitch, s.PitchDeg, 1e-9)
			assert.InDelta(t, tt.wantRoll, s.RollDeg, 1e-9)
			assert.Equal(t, SourceMagnetometer, s.Source)
		})
	}
}
