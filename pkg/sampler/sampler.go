// Package sampler throttles and coalesces the raw position stream before it reaches the engine.
package sampler

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldnav/pkg/logging"
	"fieldnav/pkg/sensor"
	"fieldnav/pkg/tracker"
)

// DefaultMinInterval is the default throttle window.
const DefaultMinInterval = 250 * time.Millisecond

// Config holds the sampler settings.
type Config struct {
	MinInterval time.Duration
}

// DefaultConfig returns the default sampler settings.
func DefaultConfig() Config {
	return Config{MinInterval: DefaultMinInterval}
}

// State is the lifecycle state of the position stream.
type State string

const (
	StateIdle      State = "idle"
	StateAcquiring State = "acquiring"
	StateTracking  State = "tracking"
	StateFailed    State = "failed"
)

// Status is a read-only snapshot of the sampler.
type Status struct {
	State     State            `json:"state"`
	Failure   sensor.Failure   `json:"failure,omitempty"`
	LastError string           `json:"last_error,omitempty"`
	Last      *sensor.Position `json:"last,omitempty"`
	Emitted   int64            `json:"emitted"`
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithClock overrides the clock used for samples without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// Sampler wraps a PositionSource. It emits at most one fix per MinInterval and only when
// the fix differs from the previously emitted one.
type Sampler struct {
	cfg    Config
	tr     *tracker.Tracker
	logger *slog.Logger
	now    func() time.Time

	// emitMu serializes Offer so subscribers observe fixes in arrival order.
	emitMu sync.Mutex

	mu       sync.Mutex
	unsub    sensor.Unsubscribe
	started  bool
	state    State
	failure  sensor.Failure
	lastErr  error
	last     *sensor.Position
	lastEmit time.Time
	emitted  int64
	subs     map[int]func(sensor.Position)
	nextSub  int
}

// New creates a sampler. tr may be nil.
func New(cfg Config, tr *tracker.Tracker, opts ...Option) *Sampler {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	s := &Sampler{
		cfg:    cfg,
		tr:     tr,
		logger: slog.With("component", "sampler"),
		now:    time.Now,
		state:  StateIdle,
		subs:   make(map[int]func(sensor.Position)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start subscribes to src. Calling Start while already started is a no-op.
// A terminal failure from a previous run is cleared; the last known fix is kept.
func (s *Sampler) Start(src sensor.PositionSource) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.state = StateAcquiring
	s.failure = sensor.FailureNone
	s.lastErr = nil
	s.mu.Unlock()

	unsub, err := src.Watch(func(p sensor.Position) { s.Offer(p) }, s.HandleError)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		s.HandleError(err)
		return fmt.Errorf("watch position: %w", err)
	}

	s.mu.Lock()
	s.unsub = unsub
	s.mu.Unlock()
	s.logger.Debug("Position watch started")
	return nil
}

// Stop unsubscribes from the source. Safe to call repeatedly.
func (s *Sampler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	unsub := s.unsub
	s.unsub = nil
	s.started = false
	if s.state != StateFailed {
		s.state = StateIdle
	}
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	s.logger.Debug("Position watch stopped")
}

// Offer feeds one raw fix through the filter. It reports whether the fix was emitted.
func (s *Sampler) Offer(p sensor.Position) bool {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if !p.Valid() {
		s.tr.TrackInvalid(tracker.StreamPosition)
		logging.Trace(s.logger, "Dropped invalid fix", "lat", p.Latitude, "lon", p.Longitude)
		return false
	}

	s.mu.Lock()
	if s.state == StateFailed {
		s.mu.Unlock()
		return false
	}

	at := p.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	if s.last != nil {
		if elapsed := at.Sub(s.lastEmit); elapsed >= 0 && elapsed < s.cfg.MinInterval {
			s.mu.Unlock()
			s.tr.TrackThrottled(tracker.StreamPosition)
			return false
		}
		if s.last.SameReading(&p) {
			s.mu.Unlock()
			s.tr.TrackDuplicate(tracker.StreamPosition)
			return false
		}
	}

	fix := p
	s.last = &fix
	s.lastEmit = at
	s.state = StateTracking
	s.lastErr = nil
	s.emitted++
	subs := make([]func(sensor.Position), 0, len(s.subs))
	for id := 0; id < s.nextSub; id++ {
		if fn, ok := s.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	s.tr.TrackAccepted(tracker.StreamPosition)
	for _, fn := range subs {
		fn(fix)
	}
	return true
}

// HandleError records a source failure.
// Timeouts keep the last fix and fall back to acquiring; the rest are terminal.
func (s *Sampler) HandleError(err error) {
	if err == nil {
		return
	}
	s.tr.TrackError(tracker.StreamPosition)

	failure := sensor.ClassifyError(err)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
	if failure.Terminal() {
		if s.state != StateFailed {
			s.logger.Warn("Position stream failed", "failure", failure, "error", err)
		}
		s.state = StateFailed
		s.failure = failure
		return
	}
	if s.state != StateFailed {
		s.state = StateAcquiring
	}
	s.logger.Debug("Position stream degraded", "error", err)
}

// Subscribe registers fn for every emitted fix. The returned func removes it.
func (s *Sampler) Subscribe(fn func(sensor.Position)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Status returns a snapshot of the sampler state.
func (s *Sampler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:   s.state,
		Failure: s.failure,
		Emitted: s.emitted,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.last != nil {
		last := *s.last
		st.Last = &last
	}
	return st
}

// Last returns the last emitted fix.
func (s *Sampler) Last() (sensor.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return sensor.Position{}, false
	}
	return *s.last, true
}
