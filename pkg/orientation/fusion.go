// Package orientation fuses compass and course-over-ground readings into a damped heading.
package orientation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldnav/pkg/geo"
	"fieldnav/pkg/logging"
	"fieldnav/pkg/sensor"
	"fieldnav/pkg/tracker"
)

// Status is the state of the orientation stream.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusPending     Status = "pending"
	StatusActive      Status = "active"
	StatusDenied      Status = "denied"
	StatusUnsupported Status = "unsupported"
)

// Terminal reports whether a new Enable call is required to recover.
func (s Status) Terminal() bool {
	return s == StatusDenied || s == StatusUnsupported
}

// Config holds the fusion tuning.
type Config struct {
	Gain                  float64
	Epsilon               float64
	CourseSpeedThreshold  float64 // m/s
	CourseWhileStationary bool
	TrackWindow           int
	TrackMinSpan          float64 // meters
	FrameInterval         time.Duration
	IdleInterval          time.Duration
	HiddenInterval        time.Duration
}

// DefaultConfig returns the default fusion tuning.
func DefaultConfig() Config {
	return Config{
		Gain:                 0.15,
		Epsilon:              0.05,
		CourseSpeedThreshold: 1.0,
		TrackWindow:          5,
		TrackMinSpan:         5,
		FrameInterval:        16 * time.Millisecond,
		IdleInterval:         250 * time.Millisecond,
		HiddenInterval:       time.Second,
	}
}

// Snapshot is a read-only view of the fused orientation.
// TrueHeading is always the latest magnetometer reading. Course is the GPS course or ground
// track while it drives the heading.
type Snapshot struct {
	TrueHeading   float64              `json:"true_heading"`
	Course        float64              `json:"course"`
	HasCourse     bool                 `json:"has_course"`
	VisualHeading float64              `json:"visual_heading"`
	Target        float64              `json:"target"`
	Current       float64              `json:"current"`
	Pitch         float64              `json:"pitch"`
	Roll          float64              `json:"roll"`
	Source        sensor.HeadingSource `json:"source"`
	Status        Status               `json:"status"`
	Error         string               `json:"error,omitempty"`
	HasHeading    bool                 `json:"has_heading"`
	Animating     bool                 `json:"animating"`
}

// Fusion owns the heading state and arbitrates between magnetometer and GPS course.
type Fusion struct {
	cfg    Config
	tr     *tracker.Tracker
	logger *slog.Logger

	mu        sync.Mutex
	heading   HeadingState
	pitch     Axis
	roll      Axis
	seeded    bool
	mag       float64
	hasMag    bool
	course    float64
	hasCourse bool
	source    sensor.HeadingSource
	status    Status
	lastErr   error
	animating bool
	unsub     sensor.Unsubscribe
	track     *geo.TrackBuffer

	updates chan struct{}
}

// New creates a Fusion. tr may be nil.
func New(cfg Config, tr *tracker.Tracker) *Fusion {
	if cfg.Gain <= 0 || cfg.Gain > 1 {
		cfg.Gain = DefaultConfig().Gain
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = DefaultConfig().Epsilon
	}
	return &Fusion{
		cfg:     cfg,
		tr:      tr,
		logger:  slog.With("component", "orientation"),
		source:  sensor.SourceMagnetometer,
		status:  StatusIdle,
		track:   geo.NewTrackBuffer(cfg.TrackWindow, cfg.TrackMinSpan),
		updates: make(chan struct{}, 1),
	}
}

// Enable passes the permission gate of src, if any, and subscribes to it.
// Calling Enable while active or while a request is in flight is a no-op.
func (f *Fusion) Enable(ctx context.Context, src sensor.OrientationSource) error {
	f.mu.Lock()
	if f.status == StatusActive || f.status == StatusPending {
		f.mu.Unlock()
		return nil
	}
	if src == nil {
		f.setTerminalLocked(StatusUnsupported, sensor.ErrSensorUnavailable)
		f.mu.Unlock()
		return sensor.ErrSensorUnavailable
	}
	stale := f.unsub
	f.unsub = nil
	f.status = StatusPending
	f.lastErr = nil
	f.mu.Unlock()

	if stale != nil {
		stale()
	}

	if gate, ok := src.(sensor.PermissionRequester); ok {
		perm, err := gate.RequestPermission(ctx)
		if err == nil && perm != sensor.PermissionGranted {
			err = sensor.ErrPermissionDenied
		}
		if err != nil {
			f.failEnable(err)
			return fmt.Errorf("orientation permission: %w", err)
		}
	}

	unsub, err := src.Watch(f.HandleEvent, f.HandleError)
	if err != nil {
		f.failEnable(err)
		return fmt.Errorf("watch orientation: %w", err)
	}

	f.mu.Lock()
	if f.status != StatusPending {
		// Disabled or failed while the request was in flight.
		f.mu.Unlock()
		unsub()
		return nil
	}
	f.unsub = unsub
	f.status = StatusActive
	f.mu.Unlock()

	f.logger.Info("Orientation stream enabled")
	return nil
}

func (f *Fusion) failEnable(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case errors.Is(err, sensor.ErrSensorUnavailable):
		f.setTerminalLocked(StatusUnsupported, err)
	case errors.Is(err, sensor.ErrPermissionDenied):
		f.setTerminalLocked(StatusDenied, err)
	default:
		f.status = StatusIdle
		f.lastErr = err
	}
}

func (f *Fusion) setTerminalLocked(st Status, err error) {
	if f.status != st {
		f.logger.Warn("Orientation stream unavailable", "status", st, "error", err)
	}
	f.status = st
	f.lastErr = err
}

// Disable unsubscribes from the source. Safe to call repeatedly.
func (f *Fusion) Disable() {
	f.mu.Lock()
	unsub := f.unsub
	f.unsub = nil
	if !f.status.Terminal() {
		f.status = StatusIdle
	}
	f.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// HandleEvent absorbs one raw orientation event.
func (f *Fusion) HandleEvent(ev sensor.RawOrientationEvent) {
	s, ok := sensor.NormalizeOrientation(ev)
	if !ok {
		f.tr.TrackInvalid(tracker.StreamOrientation)
		return
	}
	f.tr.TrackAccepted(tracker.StreamOrientation)

	f.mu.Lock()
	f.mag = geo.Wrap360(s.HeadingDeg)
	f.hasMag = true
	f.pitch.Set(s.PitchDeg)
	f.roll.Set(s.RollDeg)
	if f.source == sensor.SourceMagnetometer {
		f.absorbLocked(s.HeadingDeg)
	}
	f.animating = true
	f.mu.Unlock()

	logging.Trace(f.logger, "Orientation sample", "heading", s.HeadingDeg, "pitch", s.PitchDeg, "roll", s.RollDeg)
	f.notify()
}

// HandleError records an orientation stream failure. Transient errors are counted only.
func (f *Fusion) HandleError(err error) {
	if err == nil {
		return
	}
	f.tr.TrackError(tracker.StreamOrientation)

	switch sensor.ClassifyError(err) {
	case sensor.FailurePermissionDenied:
		f.mu.Lock()
		f.setTerminalLocked(StatusDenied, err)
		f.mu.Unlock()
	case sensor.FailureUnsupported, sensor.FailurePositionUnavailable:
		f.mu.Lock()
		f.setTerminalLocked(StatusUnsupported, err)
		f.mu.Unlock()
	default:
		f.mu.Lock()
		f.lastErr = err
		f.mu.Unlock()
	}
}

// HandlePosition arbitrates the heading source from a sampled fix.
// Above the speed threshold the platform course wins; without a platform course the
// ground track is used once it spans enough distance. Otherwise the magnetometer drives.
func (f *Fusion) HandlePosition(p sensor.Position) {
	if !p.Valid() {
		return
	}
	speed, hasSpeed := p.SpeedMps()
	course, hasCourse := p.CourseDeg()
	moving := hasSpeed && speed > f.cfg.CourseSpeedThreshold

	ground, hasGround := f.track.Push(p.Point())

	var (
		useCourse bool
		value     float64
	)
	switch {
	case hasCourse && (moving || f.cfg.CourseWhileStationary):
		useCourse, value = true, course
	case moving && hasGround:
		useCourse, value = true, ground
	}

	f.mu.Lock()
	prev := f.source
	f.course, f.hasCourse = 0, useCourse
	if useCourse {
		f.source = sensor.SourceGPSCourse
		f.course = geo.Wrap360(value)
		f.absorbLocked(value)
	} else {
		f.source = sensor.SourceMagnetometer
		if prev != f.source && f.hasMag {
			f.absorbLocked(f.mag)
		}
	}
	cur := f.source
	f.animating = true
	f.mu.Unlock()

	if prev != cur {
		f.logger.Debug("Heading source changed", "from", prev, "to", cur, "speed", speed)
	}
	f.notify()
}

func (f *Fusion) absorbLocked(raw float64) {
	if !f.seeded {
		f.heading.Seed(raw)
		f.seeded = true
	} else {
		f.heading.Absorb(raw)
	}
}

func (f *Fusion) notify() {
	select {
	case f.updates <- struct{}{}:
	default:
	}
}

// Step advances the damped heading, pitch and roll by one tick.
// It reports whether any of them is still moving.
func (f *Fusion) Step() (animating bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hs := f.heading.Step(f.cfg.Gain, f.cfg.Epsilon)
	ps := f.pitch.Step(f.cfg.Gain, f.cfg.Epsilon)
	rs := f.roll.Step(f.cfg.Gain, f.cfg.Epsilon)
	f.animating = !(hs && ps && rs)
	return f.animating
}

// TickInterval returns how long the render loop may sleep before the next Step.
func (f *Fusion) TickInterval(hidden bool) time.Duration {
	if hidden {
		return f.cfg.HiddenInterval
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.animating {
		return f.cfg.FrameInterval
	}
	return f.cfg.IdleInterval
}

// Updates signals every new sample so a backed-off loop can resume at once.
func (f *Fusion) Updates() <-chan struct{} {
	return f.updates
}

// Snapshot returns the current fused orientation.
func (f *Fusion) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		TrueHeading:   f.mag,
		Course:        f.course,
		HasCourse:     f.hasCourse,
		VisualHeading: f.heading.Display(),
		Target:        f.heading.Target,
		Current:       f.heading.Current,
		Pitch:         f.pitch.Display(),
		Roll:          f.roll.Display(),
		Source:        f.source,
		Status:        f.status,
		HasHeading:    f.seeded,
		Animating:     f.animating,
	}
	if f.lastErr != nil {
		s.Error = f.lastErr.Error()
	}
	return s
}
