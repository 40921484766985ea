// Package mocksensor simulates a walking user: a GPS position stream and a noisy compass.
package mocksensor

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"fieldnav/pkg/config"
	"fieldnav/pkg/geo"
	"fieldnav/pkg/sensor"
)

const (
	StageParked  = "PARKED"
	StageWalking = "WALKING"

	// turnEvery is how long the walker holds a turn direction before picking a new one.
	turnEvery = 15 * time.Second
)

// Config holds the simulation parameters.
type Config struct {
	StartLat       float64
	StartLon       float64
	StartAlt       float64
	StartHeading   float64
	Speed          float64 // m/s while walking
	TurnRate       float64 // deg/s while turning
	Interval       time.Duration
	DurationParked time.Duration
	OmitCourse     bool

	CompassInterval   time.Duration
	CompassNoise      float64
	RequirePermission bool
	DenyPermission    bool

	Seed int64
}

// ConfigFrom maps the YAML sensor section onto a simulation config.
func ConfigFrom(c *config.MockSensorConfig) Config {
	return Config{
		StartLat:          c.StartLat,
		StartLon:          c.StartLon,
		StartAlt:          c.StartAlt,
		StartHeading:      c.StartHeading,
		Speed:             c.Speed,
		TurnRate:          c.TurnRate,
		Interval:          c.Interval.Std(),
		DurationParked:    c.DurationParked.Std(),
		OmitCourse:        c.OmitCourse,
		CompassInterval:   c.CompassInterval.Std(),
		CompassNoise:      c.CompassNoise,
		RequirePermission: c.RequirePermission,
	}
}

type positionWatcher struct {
	onPosition func(sensor.Position)
	onError    func(error)
}

// Walker implements sensor.PositionSource. It starts parked, then walks at a
// constant speed, drifting left and right.
type Walker struct {
	mu         sync.Mutex
	cfg        Config
	rng        *rand.Rand
	stage      string
	stageStart time.Time
	lastTick   time.Time
	lastTurn   time.Time
	pos        geo.Point
	alt        float64
	heading    float64
	speed      float64
	turnDir    float64

	watchers map[int]positionWatcher
	nextID   int

	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	startOnce sync.Once
}

// NewWalker creates a walker at the configured start point. The simulation loop
// starts with the first Watch.
func NewWalker(cfg Config) *Walker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Walker{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(seed)),
		stage:    StageParked,
		pos:      geo.Point{Lat: cfg.StartLat, Lon: cfg.StartLon},
		alt:      cfg.StartAlt,
		heading:  geo.Wrap360(cfg.StartHeading),
		watchers: make(map[int]positionWatcher),
		stopCh:   make(chan struct{}),
	}
}

// Watch implements sensor.PositionSource.
func (w *Walker) Watch(onPosition func(sensor.Position), onError func(error)) (sensor.Unsubscribe, error) {
	select {
	case <-w.stopCh:
		return nil, sensor.ErrPositionUnavailable
	default:
	}

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.watchers[id] = positionWatcher{onPosition: onPosition, onError: onError}
	w.mu.Unlock()

	w.startOnce.Do(func() {
		w.wg.Add(1)
		go w.loop()
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.watchers, id)
			w.mu.Unlock()
		})
	}, nil
}

// Close stops the simulation loop. Safe to call more than once.
func (w *Walker) Close() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
	w.wg.Wait()
}

// Stage returns the current simulation stage.
func (w *Walker) Stage() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// Heading returns the direction the walker is facing.
func (w *Walker) Heading() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.heading
}

func (w *Walker) loop() {
	defer w.wg.Done()
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.emit(w.tick(time.Now()))
	for {
		select {
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			w.emit(w.tick(now))
		}
	}
}

// tick advances the simulation to now and returns the fix for that instant.
func (w *Walker) tick(now time.Time) sensor.Position {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stageStart.IsZero() {
		w.stageStart = now
		w.lastTick = now
		w.lastTurn = now
	}
	dt := now.Sub(w.lastTick).Seconds()
	w.lastTick = now

	switch w.stage {
	case StageParked:
		w.speed = 0
		if now.Sub(w.stageStart) >= w.cfg.DurationParked {
			w.stage = StageWalking
			w.stageStart = now
			w.lastTurn = now
		}
	case StageWalking:
		w.speed = w.cfg.Speed
		if now.Sub(w.lastTurn) >= turnEvery {
			w.turnDir = float64(w.rng.Intn(3) - 1)
			w.lastTurn = now
		}
		w.heading = geo.Wrap360(w.heading + w.turnDir*w.cfg.TurnRate*dt)
		if dt > 0 && w.speed > 0 {
			w.pos = geo.DestinationPoint(w.pos, w.speed*dt, w.heading)
			w.alt += math.Sin(float64(now.Unix())/60.0) * 0.1 * dt
		}
	}

	p := sensor.Position{
		Latitude:  w.pos.Lat,
		Longitude: w.pos.Lon,
		Accuracy:  sensor.Float(5),
		Altitude:  sensor.Float(w.alt),
		Speed:     sensor.Float(w.speed),
		Timestamp: now,
	}
	if !w.cfg.OmitCourse && w.speed > 0 {
		p.Heading = sensor.Float(w.heading)
	}
	return p
}

func (w *Walker) emit(p sensor.Position) {
	w.mu.Lock()
	targets := make([]positionWatcher, 0, len(w.watchers))
	for _, wt := range w.watchers {
		targets = append(targets, wt)
	}
	w.mu.Unlock()

	for _, wt := range targets {
		if wt.onPosition != nil {
			wt.onPosition(p)
		}
	}
}
