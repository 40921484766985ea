// Package trail keeps the two breadcrumb buffers of a session: the bounded visual trail
// drawn on the radar and the unbounded mission log captured while recording.
package trail

import (
	"log/slog"
	"sync"
	"time"

	"fieldnav/pkg/geo"
	"fieldnav/pkg/sensor"
)

// TrackPoint is one stored breadcrumb. It is never modified after being appended.
type TrackPoint struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Altitude  *float64  `json:"altitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Point returns the horizontal coordinate.
func (p TrackPoint) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lng}
}

// TimeResolution is the precision kept for point times. GPX stores whole seconds.
const TimeResolution = time.Second

// FromPosition builds a TrackPoint from a fix.
func FromPosition(p sensor.Position) TrackPoint {
	tp := TrackPoint{Lat: p.Latitude, Lng: p.Longitude, Timestamp: p.Timestamp.Truncate(TimeResolution)}
	if alt, ok := p.AltitudeMeters(); ok {
		tp.Altitude = sensor.Float(alt)
	}
	return tp
}

// Points returns the horizontal coordinates of a sequence of track points.
func Points(pts []TrackPoint) []geo.Point {
	out := make([]geo.Point, len(pts))
	for i, p := range pts {
		out[i] = p.Point()
	}
	return out
}

// State is the recording state.
type State string

const (
	StateIdle        State = "idle"
	StateRecording   State = "recording"
	StateSavePending State = "save_pending"
)

// Config holds the decimation settings.
type Config struct {
	MaxPoints          int
	MinDistance        float64 // meters, visual trail
	MissionMinDistance float64 // meters, mission log
}

// DefaultConfig returns the default decimation settings.
func DefaultConfig() Config {
	return Config{
		MaxPoints:          100,
		MinDistance:        5,
		MissionMinDistance: 5,
	}
}

// Stats summarizes both buffers.
type Stats struct {
	State            State     `json:"state"`
	VisualPoints     int       `json:"visual_points"`
	VisualDistance   float64   `json:"visual_distance_m"`
	MissionPoints    int       `json:"mission_points"`
	MissionDistance  float64   `json:"mission_distance_m"`
	RecordingStarted time.Time `json:"recording_started,omitzero"`
	RecordingStopped time.Time `json:"recording_stopped,omitzero"`
}

// Recorder owns the visual trail and the mission log.
type Recorder struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	visual    []TrackPoint
	mission   []TrackPoint
	state     State
	version   uint64
	last      *TrackPoint
	startedAt time.Time
	stoppedAt time.Time
	recording uint64 // bumped by every StartRecording
}

// NewRecorder creates an idle recorder.
func NewRecorder(cfg Config) *Recorder {
	if cfg.MaxPoints < 1 {
		cfg.MaxPoints = DefaultConfig().MaxPoints
	}
	return &Recorder{
		cfg:    cfg,
		logger: slog.With("component", "trail"),
		state:  StateIdle,
	}
}

// Update feeds one sampled fix into both buffers.
func (r *Recorder) Update(p sensor.Position) (visualAdded, missionAdded bool) {
	if !p.Valid() {
		return false, false
	}
	tp := FromPosition(p)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.last = &tp

	if n := len(r.visual); n == 0 || geo.Distance(r.visual[n-1].Point(), tp.Point()) >= r.cfg.MinDistance {
		r.visual = append(r.visual, tp)
		if over := len(r.visual) - r.cfg.MaxPoints; over > 0 {
			r.visual = append(r.visual[:0:0], r.visual[over:]...)
		}
		r.version++
		visualAdded = true
	}

	if r.state == StateRecording {
		if n := len(r.mission); n == 0 || geo.Distance(r.mission[n-1].Point(), tp.Point()) >= r.cfg.MissionMinDistance {
			r.mission = append(r.mission, tp)
			missionAdded = true
		}
	}
	return visualAdded, missionAdded
}

// StartRecording clears the mission log and starts recording.
// An unsaved log from a previous recording is discarded; its size is returned.
func (r *Recorder) StartRecording() (discarded int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == StateRecording {
		return 0
	}
	if r.state == StateSavePending {
		discarded = len(r.mission)
		r.logger.Warn("Discarding unsaved mission", "points", discarded)
	}
	r.mission = nil
	r.state = StateRecording
	r.recording++
	r.startedAt = time.Now()
	r.stoppedAt = time.Time{}
	return discarded
}

// StopRecording freezes the mission log. It reports whether a non-empty log is ready for
// export. Calling it when not recording is a no-op.
func (r *Recorder) StopRecording() (ready bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return false
	}
	r.stoppedAt = time.Now()
	if len(r.mission) == 0 {
		r.state = StateIdle
		return false
	}
	r.state = StateSavePending
	return true
}

// TakeMission hands out the frozen log exactly once and returns the recorder to idle.
func (r *Recorder) TakeMission() ([]TrackPoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateSavePending || len(r.mission) == 0 {
		return nil, false
	}
	pts := r.mission
	r.mission = nil
	r.state = StateIdle
	return pts, true
}

// PeekMission returns a copy of the frozen log without consuming it, with the
// generation of the recording it belongs to. Pass gen to TakeMissionIf.
func (r *Recorder) PeekMission() (pts []TrackPoint, gen uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != StateSavePending || len(r.mission) == 0 {
		return nil, 0, false
	}
	return append([]TrackPoint(nil), r.mission...), r.recording, true
}

// TakeMissionIf consumes the frozen log only if it still belongs to recording gen.
// A log from a newer recording is left pending.
func (r *Recorder) TakeMissionIf(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSavePending || len(r.mission) == 0 || r.recording != gen {
		return false
	}
	r.mission = nil
	r.state = StateIdle
	return true
}

// DiscardMission drops a pending log.
func (r *Recorder) DiscardMission() (discarded int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateSavePending {
		return 0
	}
	discarded = len(r.mission)
	r.mission = nil
	r.state = StateIdle
	return discarded
}

// ResetVisualTrail collapses the visual trail to the latest fix, or empties it before the first fix.
func (r *Recorder) ResetVisualTrail() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		r.visual = nil
	} else {
		r.visual = []TrackPoint{*r.last}
	}
	r.version++
}

// VisualTrail returns a copy of the visual trail.
func (r *Recorder) VisualTrail() []TrackPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TrackPoint(nil), r.visual...)
}

// VisualSnapshot returns a copy of the visual trail together with its version.
func (r *Recorder) VisualSnapshot() ([]TrackPoint, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TrackPoint(nil), r.visual...), r.version
}

// MissionLog returns a copy of the mission log.
func (r *Recorder) MissionLog() []TrackPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]TrackPoint(nil), r.mission...)
}

// Version changes whenever the visual trail changes.
func (r *Recorder) Version() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// State returns the recording state.
func (r *Recorder) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Stats summarizes both buffers.
func (r *Recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		State:            r.state,
		VisualPoints:     len(r.visual),
		VisualDistance:   geo.PathDistance(Points(r.visual)),
		MissionPoints:    len(r.mission),
		MissionDistance:  geo.PathDistance(Points(r.mission)),
		RecordingStarted: r.startedAt,
		RecordingStopped: r.stoppedAt,
	}
}
