// Package engine owns one navigation instance: the position sampler, heading fusion, trail
// recorder and radar projector, their subscriptions and the render loop that ties them together.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fieldnav/pkg/geo"
	"fieldnav/pkg/gpx"
	"fieldnav/pkg/logging"
	"fieldnav/pkg/model"
	"fieldnav/pkg/orientation"
	"fieldnav/pkg/radar"
	"fieldnav/pkg/sampler"
	"fieldnav/pkg/sensor"
	"fieldnav/pkg/tracker"
	"fieldnav/pkg/trail"
)

var (
	// ErrNothingToExport is returned by ExportMission when no stopped recording is pending.
	ErrNothingToExport = errors.New("nothing to export")
	// ErrDisposed is returned by operations on an engine after Dispose.
	ErrDisposed = errors.New("engine disposed")
	// ErrNoFix is returned when an operation needs a position and none has arrived yet.
	ErrNoFix = errors.New("no position fix")
)

// Preference keys in the state store.
const (
	prefRadarMode = "radar_mode"
	prefRadarZoom = "radar_zoom"
)

// Frame is everything a renderer needs for one tick.
type Frame struct {
	Timestamp   time.Time             `json:"timestamp"`
	Position    *sensor.Position      `json:"position,omitempty"`
	Sampler     sampler.Status        `json:"sampler"`
	Orientation orientation.Snapshot  `json:"orientation"`
	Radar       radar.Frame           `json:"radar"`
	Imagery     *radar.ImageryRequest `json:"imagery,omitempty"`
	Trail       trail.Stats           `json:"trail"`
}

// FrameSink receives every frame produced by Step.
type FrameSink interface {
	UpdateFrame(f *Frame)
}

// MissionSink archives exported missions.
type MissionSink interface {
	SaveMission(ctx context.Context, m *model.Mission) error
}

// Preferences persists display settings across restarts.
type Preferences interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracker shares a counter set with the API.
func WithTracker(tr *tracker.Tracker) Option {
	return func(e *Engine) { e.tr = tr }
}

// WithMissionSink hands exported missions to an archive.
func WithMissionSink(s MissionSink) Option {
	return func(e *Engine) { e.missions = s }
}

// WithPreferences restores and persists the radar mode and zoom.
func WithPreferences(p Preferences) Option {
	return func(e *Engine) { e.prefs = p }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine is one navigation instance. Create it with New, start it with Init and tear it
// down with Dispose.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	tr     *tracker.Tracker

	posSrc   sensor.PositionSource
	oriSrc   sensor.OrientationSource
	missions MissionSink
	prefs    Preferences

	sampler *sampler.Sampler
	fusion  *orientation.Fusion
	trail   *trail.Recorder
	radar   *radar.Projector

	// mu serializes position handling and Step.
	mu          sync.Mutex
	lastPos     *sensor.Position
	last        Frame
	lastFailure sensor.Failure

	sinksMu sync.RWMutex
	sinks   []FrameSink

	// exportMu makes ExportMission one-at-a-time.
	exportMu sync.Mutex

	hidden atomic.Bool
	wake   chan struct{}
	done   chan struct{}

	initOnce    sync.Once
	disposeOnce sync.Once
	initErr     error
	cancelSub   func()
}

// New creates an engine over the given sources. ori may be nil on platforms without a compass.
func New(cfg Config, pos sensor.PositionSource, ori sensor.OrientationSource, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.Orientation.FrameInterval <= 0 {
		cfg.Orientation.FrameInterval = def.Orientation.FrameInterval
	}
	if cfg.Orientation.IdleInterval <= 0 {
		cfg.Orientation.IdleInterval = def.Orientation.IdleInterval
	}
	if cfg.Orientation.HiddenInterval <= 0 {
		cfg.Orientation.HiddenInterval = def.Orientation.HiddenInterval
	}
	if cfg.Creator == "" {
		cfg.Creator = def.Creator
	}

	e := &Engine{
		cfg:    cfg,
		logger: slog.With("component", "engine"),
		now:    time.Now,
		posSrc: pos,
		oriSrc: ori,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(e)
	}
	if e.tr == nil {
		e.tr = tracker.New()
	}

	e.sampler = sampler.New(cfg.Sampler, e.tr, sampler.WithClock(e.now))
	e.fusion = orientation.New(cfg.Orientation, e.tr)
	e.trail = trail.NewRecorder(cfg.Trail)
	e.radar = radar.New(cfg.Radar)
	return e
}

// Init restores preferences and subscribes to both sensor streams. It runs exactly once;
// later calls return the first result. A compass behind a permission gate is left idle
// until EnableCompass is called from a user action.
func (e *Engine) Init(ctx context.Context) error {
	e.initOnce.Do(func() {
		if e.isDisposed() {
			e.initErr = ErrDisposed
			return
		}
		e.restorePreferences(ctx)
		e.cancelSub = e.sampler.Subscribe(e.handlePosition)

		if e.posSrc == nil {
			e.sampler.HandleError(sensor.ErrSensorUnavailable)
			e.initErr = fmt.Errorf("watch position: %w", sensor.ErrSensorUnavailable)
		} else if err := e.sampler.Start(e.posSrc); err != nil {
			e.initErr = err
		}
		if e.initErr != nil {
			e.logger.Error("Position stream failed", "error", e.initErr)
		}

		if _, gated := e.oriSrc.(sensor.PermissionRequester); gated {
			e.logger.Info("Compass waits for permission")
			return
		}
		if err := e.fusion.Enable(ctx, e.oriSrc); err != nil {
			e.logger.Warn("Compass unavailable", "error", err)
		}
	})
	return e.initErr
}

// EnableCompass passes the compass permission gate. Call it from a user action; it may be
// retried after a denial.
func (e *Engine) EnableCompass(ctx context.Context) error {
	if e.isDisposed() {
		return ErrDisposed
	}
	err := e.fusion.Enable(ctx, e.oriSrc)
	e.poke()
	return err
}

// Dispose unsubscribes both streams and stops Run. Safe to call repeatedly.
func (e *Engine) Dispose() {
	e.disposeOnce.Do(func() {
		close(e.done)
		e.sampler.Stop()
		e.fusion.Disable()
		if e.cancelSub != nil {
			e.cancelSub()
		}
		e.logger.Info("Engine disposed")
	})
}

func (e *Engine) isDisposed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Run drives Step until ctx is cancelled or the engine is disposed. The loop sleeps for
// the fusion's tick interval and wakes early on any new sample.
func (e *Engine) Run(ctx context.Context) error {
	if e.isDisposed() {
		return ErrDisposed
	}
	timer := time.NewTimer(0)
	defer timer.Stop()

	e.logger.Info("Render loop started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Render loop stopped")
			return nil
		case <-e.done:
			return nil
		case <-e.fusion.Updates():
		case <-e.wake:
		case <-timer.C:
		}
		e.Step(e.now())
		timer.Reset(e.fusion.TickInterval(e.hidden.Load()))
	}
}

// Step advances the heading animation by one tick, projects the radar and publishes the frame.
func (e *Engine) Step(now time.Time) Frame {
	e.mu.Lock()
	e.fusion.Step()
	ori := e.fusion.Snapshot()
	pts, version := e.trail.VisualSnapshot()

	f := Frame{
		Timestamp:   now,
		Sampler:     e.sampler.Status(),
		Orientation: ori,
		Trail:       e.trail.Stats(),
	}
	var at geo.Point
	if e.lastPos != nil {
		p := *e.lastPos
		f.Position = &p
		at = p.Point()
	}
	f.Radar = e.radar.Project(pts, version, at, ori.Current)
	if req, ok := e.radar.ImageryRequest(); ok {
		f.Imagery = &req
	}

	failure := f.Sampler.Failure
	changed := failure != e.lastFailure
	e.lastFailure = failure
	e.last = f
	e.mu.Unlock()

	if changed && failure.Terminal() {
		logging.LogEvent(&model.MissionEvent{
			Type:      model.EventSensorFailure,
			Title:     "Position stream failed",
			Summary:   string(failure),
			Timestamp: now,
		})
	}
	e.publish(&f)
	return f
}

func (e *Engine) handlePosition(p sensor.Position) {
	e.mu.Lock()
	fix := p
	e.lastPos = &fix
	e.trail.Update(p)
	if e.radar.Track(p.Point()) && e.cfg.ResetOnReanchor {
		e.trail.ResetVisualTrail()
	}
	e.fusion.HandlePosition(p)
	e.mu.Unlock()
}

// AddSink registers a frame receiver.
func (e *Engine) AddSink(s FrameSink) {
	e.sinksMu.Lock()
	e.sinks = append(e.sinks, s)
	e.sinksMu.Unlock()
}

func (e *Engine) publish(f *Frame) {
	e.sinksMu.RLock()
	sinks := e.sinks
	e.sinksMu.RUnlock()
	for _, s := range sinks {
		s.UpdateFrame(f)
	}
}

// poke wakes Run so state changes from control calls render without waiting for the timer.
func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Snapshot returns the most recent frame.
func (e *Engine) Snapshot() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// SetHidden switches the loop to the hidden-view interval.
func (e *Engine) SetHidden(hidden bool) {
	if e.hidden.Swap(hidden) != hidden && !hidden {
		e.poke()
	}
}

// Hidden reports whether the view is hidden.
func (e *Engine) Hidden() bool {
	return e.hidden.Load()
}

// Tracker returns the sample counters.
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tr
}

// VisualTrail returns a copy of the breadcrumb trail.
func (e *Engine) VisualTrail() []trail.TrackPoint {
	return e.trail.VisualTrail()
}

// Orientation returns the fused orientation without advancing the animation.
func (e *Engine) Orientation() orientation.Snapshot {
	return e.fusion.Snapshot()
}

// MissionLog returns a copy of the mission log.
func (e *Engine) MissionLog() []trail.TrackPoint {
	return e.trail.MissionLog()
}

// TrailStats summarizes the trail and mission buffers.
func (e *Engine) TrailStats() trail.Stats {
	return e.trail.Stats()
}

// StartRecording begins a new mission. An unsaved previous mission is discarded.
func (e *Engine) StartRecording() (discarded int) {
	discarded = e.trail.StartRecording()
	summary := ""
	if discarded > 0 {
		summary = fmt.Sprintf("discarded %d unsaved points", discarded)
	}
	logging.LogEvent(&model.MissionEvent{
		Type:      model.EventRecordingStarted,
		Title:     "Recording started",
		Summary:   summary,
		Timestamp: e.now(),
	})
	e.logger.Info("Recording started", "discarded", discarded)
	e.poke()
	return discarded
}

// StopRecording freezes the mission. ready reports whether there is anything to export.
func (e *Engine) StopRecording() (ready bool) {
	if e.trail.State() != trail.StateRecording {
		return false
	}
	ready = e.trail.StopRecording()
	st := e.trail.Stats()
	logging.LogEvent(&model.MissionEvent{
		Type:      model.EventRecordingStopped,
		Title:     "Recording stopped",
		Summary:   fmt.Sprintf("%d points, %.0f m", st.MissionPoints, st.MissionDistance),
		Timestamp: e.now(),
	})
	e.logger.Info("Recording stopped", "points", st.MissionPoints, "ready", ready)
	e.poke()
	return ready
}

// ExportMission serializes the stopped recording to GPX, hands it to the mission sink and
// clears it. With nothing pending it returns ErrNothingToExport and changes nothing.
// When the sink fails the mission stays pending so the export can be retried.
// A recording started while the sink is busy is not consumed by this export.
func (e *Engine) ExportMission(ctx context.Context) (*model.Mission, error) {
	e.exportMu.Lock()
	defer e.exportMu.Unlock()

	pts, gen, ok := e.trail.PeekMission()
	if !ok {
		return nil, ErrNothingToExport
	}

	now := e.now()
	started := pts[0].Timestamp
	if started.IsZero() {
		started = now
	}
	m := &model.Mission{
		ID:             uuid.NewString(),
		Name:           "Mission " + started.Local().Format("2006-01-02 15:04"),
		Points:         len(pts),
		DistanceMeters: geo.PathDistance(trail.Points(pts)),
		StartedAt:      started,
		EndedAt:        pts[len(pts)-1].Timestamp,
		CreatedAt:      now,
	}

	data, err := gpx.Encode(pts, gpx.Options{
		Creator: e.cfg.Creator,
		Name:    m.Name,
		Time:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("encode mission: %w", err)
	}
	m.GPX = data

	if e.missions != nil {
		if err := e.missions.SaveMission(ctx, m); err != nil {
			return nil, fmt.Errorf("save mission: %w", err)
		}
	}
	if e.cfg.ExportDir != "" {
		if err := writeExport(e.cfg.ExportDir, m); err != nil {
			e.logger.Warn("Failed to write GPX export", "dir", e.cfg.ExportDir, "error", err)
		}
	}

	if !e.trail.TakeMissionIf(gen) {
		e.logger.Info("Newer recording left pending", "exported", m.ID)
	}
	logging.LogEvent(&model.MissionEvent{
		Type:      model.EventMissionExported,
		Title:     m.Name,
		Summary:   fmt.Sprintf("%d points, %.0f m", m.Points, m.DistanceMeters),
		MissionID: m.ID,
		Timestamp: now,
	})
	e.logger.Info("Mission exported", "id", m.ID, "points", m.Points, "bytes", len(data))
	e.poke()
	return m, nil
}

// ExportFileName returns the file name used for a mission's GPX document.
func ExportFileName(m *model.Mission) string {
	return "mission-" + m.StartedAt.UTC().Format("20060102-150405") + "-" + m.ID[:8] + ".gpx"
}

func writeExport(dir string, m *model.Mission) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ExportFileName(m)), m.GPX, 0o644)
}

// DiscardMission drops a stopped, unexported recording.
func (e *Engine) DiscardMission() (discarded int) {
	discarded = e.trail.DiscardMission()
	if discarded > 0 {
		logging.LogEvent(&model.MissionEvent{
			Type:      model.EventMissionDiscarded,
			Title:     "Mission discarded",
			Summary:   fmt.Sprintf("%d points", discarded),
			Timestamp: e.now(),
		})
		e.poke()
	}
	return discarded
}

// ResetTrail collapses the breadcrumb trail to the current fix.
func (e *Engine) ResetTrail() {
	e.mu.Lock()
	e.trail.ResetVisualTrail()
	e.mu.Unlock()
	e.poke()
}

// Recenter moves the radar anchor to the current fix and starts a fresh breadcrumb trail.
func (e *Engine) Recenter() error {
	e.mu.Lock()
	if e.lastPos == nil {
		e.mu.Unlock()
		return ErrNoFix
	}
	e.radar.Recenter(e.lastPos.Point())
	e.trail.ResetVisualTrail()
	e.mu.Unlock()
	e.poke()
	return nil
}

// Mode returns the radar display mode.
func (e *Engine) Mode() radar.Mode {
	return e.radar.Mode()
}

// SetMode switches the radar display mode.
func (e *Engine) SetMode(ctx context.Context, m radar.Mode) error {
	if err := e.radar.SetMode(m); err != nil {
		return err
	}
	e.savePreference(ctx, prefRadarMode, string(m))
	e.poke()
	return nil
}

// ToggleMode flips between heading-up and north-up.
func (e *Engine) ToggleMode(ctx context.Context) radar.Mode {
	m := e.radar.ToggleMode()
	e.savePreference(ctx, prefRadarMode, string(m))
	e.poke()
	return m
}

// Zoom returns the radar zoom level.
func (e *Engine) Zoom() float64 {
	return e.radar.Zoom()
}

// SetZoom sets the radar zoom and returns the clamped value.
func (e *Engine) SetZoom(ctx context.Context, z float64) float64 {
	applied := e.radar.SetZoom(z)
	e.savePreference(ctx, prefRadarZoom, strconv.FormatFloat(applied, 'f', -1, 64))
	e.poke()
	return applied
}

func (e *Engine) restorePreferences(ctx context.Context) {
	if e.prefs == nil {
		return
	}
	if v, ok := e.prefs.GetState(ctx, prefRadarMode); ok {
		if m, err := radar.ParseMode(v); err == nil {
			_ = e.radar.SetMode(m)
		}
	}
	if v, ok := e.prefs.GetState(ctx, prefRadarZoom); ok {
		if z, err := strconv.ParseFloat(v, 64); err == nil {
			e.radar.SetZoom(z)
		}
	}
	e.logger.Debug("Restored display preferences", "mode", e.radar.Mode(), "zoom", e.radar.Zoom())
}

func (e *Engine) savePreference(ctx context.Context, key, val string) {
	if e.prefs == nil {
		return
	}
	if err := e.prefs.SetState(ctx, key, val); err != nil {
		e.logger.Warn("Failed to save preference", "key", key, "error", err)
	}
}
