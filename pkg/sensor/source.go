package sensor

import (
	"context"
	"errors"
	"math"
	"time"

	"fieldnav/pkg/geo"
)

var (
	// ErrSensorUnavailable is returned when the platform has no such sensor. Permanent.
	ErrSensorUnavailable = errors.New("sensor unavailable")
	// ErrPermissionDenied is returned when the user declined access. Recoverable only by a new user gesture.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPositionUnavailable is returned when the platform cannot determine a position.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrSignalTimeout is transient and must not clear the last known good state.
	ErrSignalTimeout = errors.New("signal timeout")
	// ErrInvalidSample marks a NaN or out-of-range sample. Dropped silently, counted.
	ErrInvalidSample = errors.New("invalid sample")
)

// Unsubscribe detaches a watch from its source. Implementations must tolerate repeated calls.
type Unsubscribe func()

// PositionSource is a continuous stream of location fixes.
type PositionSource interface {
	// Watch starts delivering fixes to onPosition and failures to onError until the
	// returned Unsubscribe is called.
	Watch(onPosition func(Position), onError func(error)) (Unsubscribe, error)
}

// OrientationSource is a continuous stream of raw device-orientation events.
type OrientationSource interface {
	Watch(onEvent func(RawOrientationEvent), onError func(error)) (Unsubscribe, error)
}

// Permission is the outcome of an explicit permission request.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// PermissionRequester is implemented by sources that sit behind a user-gesture permission gate.
// Sources that do not implement it are treated as pre-granted.
type PermissionRequester interface {
	RequestPermission(ctx context.Context) (Permission, error)
}

// Position is an immutable snapshot of one location fix.
type Position struct {
	Latitude  float64   `json:"latitude"`           // Degrees
	Longitude float64   `json:"longitude"`          // Degrees
	Accuracy  *float64  `json:"accuracy,omitempty"` // Meters
	Altitude  *float64  `json:"altitude,omitempty"` // Meters
	Speed     *float64  `json:"speed,omitempty"`    // m/s
	Heading   *float64  `json:"heading,omitempty"`  // Degrees true, course over ground
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the fix carries finite, in-range coordinates.
func (p *Position) Valid() bool {
	return p.Point().Valid()
}

// Point returns the horizontal coordinate.
func (p *Position) Point() geo.Point {
	return geo.Point{Lat: p.Latitude, Lon: p.Longitude}
}

// SpeedMps returns the reported speed, or ok=false when the platform did not report one.
func (p *Position) SpeedMps() (v float64, ok bool) {
	return optional(p.Speed)
}

// CourseDeg returns the reported course over ground, or ok=false when absent.
func (p *Position) CourseDeg() (v float64, ok bool) {
	return optional(p.Heading)
}

// AltitudeMeters returns the reported altitude, or ok=false when absent.
func (p *Position) AltitudeMeters() (v float64, ok bool) {
	return optional(p.Altitude)
}

// SameReading reports whether two fixes are equal in latitude, longitude, heading and speed.
func (p *Position) SameReading(o *Position) bool {
	return p.Latitude == o.Latitude &&
		p.Longitude == o.Longitude &&
		sameOptional(p.Heading, o.Heading) &&
		sameOptional(p.Speed, o.Speed)
}

// Float returns a pointer to v, for building optional fields.
func Float(v float64) *float64 {
	return &v
}

func optional(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	return *v, true
}

func sameOptional(a, b *float64) bool {
	av, aok := optional(a)
	bv, bok := optional(b)
	if aok != bok {
		return false
	}
	return av == bv
}
