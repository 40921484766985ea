// Package sensor defines the platform sensor collaborators of the navigation engine:
// the position and orientation streams, their payloads and their failure taxonomy.
package sensor

import "errors"

// Failure is a terminal sensor failure, surfaced to the user.
type Failure string

const (
	// FailureNone indicates the stream is healthy or still acquiring.
	FailureNone Failure = ""
	// FailurePermissionDenied indicates the user declined access.
	FailurePermissionDenied Failure = "permission_denied"
	// FailurePositionUnavailable indicates the platform cannot produce a fix.
	FailurePositionUnavailable Failure = "position_unavailable"
	// FailureUnsupported indicates the sensor API is absent on this platform.
	FailureUnsupported Failure = "unsupported"
)

// Terminal reports whether a new user action is needed before the stream can recover.
func (f Failure) Terminal() bool {
	return f != FailureNone
}

// ClassifyError maps a source error onto the failure taxonomy.
// Transient errors (timeouts) and unknown errors map to FailureNone.
func ClassifyError(err error) Failure {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrPermissionDenied):
		return FailurePermissionDenied
	case errors.Is(err, ErrPositionUnavailable):
		return FailurePositionUnavailable
	case errors.Is(err, ErrSensorUnavailable):
		return FailureUnsupported
	default:
		return FailureNone
	}
}

// HeadingSource identifies which sensor currently drives the heading.
type HeadingSource string

const (
	// SourceMagnetometer is the device compass; required while stationary.
	SourceMagnetometer HeadingSource = "magnetometer"
	// SourceGPSCourse is the course over ground; preferred while moving.
	SourceGPSCourse HeadingSource = "gps_course"
)
