package sensor

import (
	"math"

	"fieldnav/pkg/geo"
)

// OrientationSample is a normalized orientation reading.
type OrientationSample struct {
	HeadingDeg float64       `json:"heading_deg"` // [0, 360)
	PitchDeg   float64       `json:"pitch_deg"`
	RollDeg    float64       `json:"roll_deg"`
	Source     HeadingSource `json:"source"`
}

// RawOrientationEvent is a platform orientation payload. The set of variants is closed:
// WebkitEvent and StandardEvent.
type RawOrientationEvent interface {
	isRawOrientationEvent()
}

// WebkitEvent carries a compass heading already measured clockwise from north.
type WebkitEvent struct {
	CompassHeading float64
	Beta           float64 // front-back tilt
	Gamma          float64 // left-right tilt
}

// StandardEvent carries the W3C device-orientation angles. Alpha grows counter-clockwise.
// Absolute is false when alpha is relative to an arbitrary start frame.
type StandardEvent struct {
	Alpha    *float64
	Beta     *float64
	Gamma    *float64
	Absolute bool
}

func (WebkitEvent) isRawOrientationEvent()   {}
func (StandardEvent) isRawOrientationEvent() {}

// NormalizeOrientation converts any raw event variant into an OrientationSample.
// ok is false when the event carries no usable heading.
func NormalizeOrientation(ev RawOrientationEvent) (s OrientationSample, ok bool) {
	s.Source = SourceMagnetometer

	switch e := ev.(type) {
	case WebkitEvent:
		if !finite(e.CompassHeading) {
			return s, false
		}
		s.HeadingDeg = geo.Wrap360(e.CompassHeading)
		s.PitchDeg = finiteOr(e.Beta)
		s.RollDeg = finiteOr(e.Gamma)
		return s, true
	case *WebkitEvent:
		if e == nil {
			return s, false
		}
		return NormalizeOrientation(*e)
	case StandardEvent:
		alpha, ok := optional(e.Alpha)
		if !ok {
			return s, false
		}
		s.HeadingDeg = geo.Wrap360(360 - alpha)
		beta, _ := optional(e.Beta)
		gamma, _ := optional(e.Gamma)
		s.PitchDeg = beta
		s.RollDeg = gamma
		return s, true
	case *StandardEvent:
		if e == nil {
			return s, false
		}
		return NormalizeOrientation(*e)
	default:
		return s, false
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOr(v float64) float64 {
	if finite(v) {
		return v
	}
	return 0
}
