// Package replay plays a recorded GPX track back as a live position stream.
package replay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fieldnav/pkg/geo"
	"fieldnav/pkg/gpx"
	"fieldnav/pkg/sensor"
	"fieldnav/pkg/trail"
)

// defaultStep is the gap used between points that carry no usable timestamps.
const defaultStep = time.Second

// Step is one fix of the playback schedule and the wait before it.
type Step struct {
	Delay    time.Duration
	Position sensor.Position
}

// Schedule converts a recorded track into playback steps. Speed and course are
// derived from consecutive points. The first step has no delay.
func Schedule(pts []trail.TrackPoint) []Step {
	steps := make([]Step, 0, len(pts))
	for i, p := range pts {
		pos := sensor.Position{
			Latitude:  p.Lat,
			Longitude: p.Lng,
			Accuracy:  sensor.Float(5),
		}
		if p.Altitude != nil {
			pos.Altitude = sensor.Float(*p.Altitude)
		}

		var delay time.Duration
		if i > 0 {
			prev := pts[i-1]
			delay = p.Timestamp.Sub(prev.Timestamp)
			if prev.Timestamp.IsZero() || p.Timestamp.IsZero() || delay <= 0 {
				delay = defaultStep
			}
			dist := geo.Distance(prev.Point(), p.Point())
			pos.Speed = sensor.Float(dist / delay.Seconds())
			if dist > 0 {
				pos.Heading = sensor.Float(geo.Bearing(prev.Point(), p.Point()))
			}
		} else {
			pos.Speed = sensor.Float(0)
		}
		steps = append(steps, Step{Delay: delay, Position: pos})
	}
	return steps
}

// Config controls playback.
type Config struct {
	Path  string
	Speed float64 // multiplier; values <= 0 mean real time
	Loop  bool
}

type watcher struct {
	onPosition func(sensor.Position)
	onError    func(error)
}

// Player implements sensor.PositionSource over a fixed schedule.
type Player struct {
	steps []Step
	speed float64
	loop  bool
	now   func() time.Time

	mu       sync.Mutex
	watchers map[int]watcher
	nextID   int
	running  bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open loads the GPX file at cfg.Path.
func Open(cfg Config) (*Player, error) {
	pts, err := gpx.DecodeFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load replay track: %w", err)
	}
	return New(pts, cfg.Speed, cfg.Loop)
}

// New creates a player for an in-memory track.
func New(pts []trail.TrackPoint, speed float64, loop bool) (*Player, error) {
	if len(pts) == 0 {
		return nil, gpx.ErrEmptyTrack
	}
	if speed <= 0 {
		speed = 1
	}
	return &Player{
		steps:    Schedule(pts),
		speed:    speed,
		loop:     loop,
		now:      time.Now,
		watchers: make(map[int]watcher),
		stopCh:   make(chan struct{}),
	}, nil
}

// Len returns the number of fixes per pass.
func (p *Player) Len() int {
	return len(p.steps)
}

// Watch implements sensor.PositionSource. Playback starts with the first watcher.
func (p *Player) Watch(onPosition func(sensor.Position), onError func(error)) (sensor.Unsubscribe, error) {
	select {
	case <-p.stopCh:
		return nil, sensor.ErrPositionUnavailable
	default:
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.watchers[id] = watcher{onPosition: onPosition, onError: onError}
	if !p.running {
		p.running = true
		p.wg.Add(1)
		go p.play()
	}
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			p.mu.Unlock()
		})
	}, nil
}

// Close stops playback.
func (p *Player) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

func (p *Player) play() {
	defer p.wg.Done()

	for pass := 0; ; pass++ {
		for i, st := range p.steps {
			delay := time.Duration(float64(st.Delay) / p.speed)
			if i == 0 && pass > 0 {
				delay = time.Duration(float64(defaultStep) / p.speed)
			}
			if delay > 0 {
				t := time.NewTimer(delay)
				select {
				case <-p.stopCh:
					t.Stop()
					return
				case <-t.C:
				}
			} else {
				select {
				case <-p.stopCh:
					return
				default:
				}
			}

			pos := st.Position
			pos.Timestamp = p.now()
			if i == 0 && pass > 0 {
				// The jump back to the start is not a real movement.
				pos.Heading = nil
			}
			p.broadcast(func(w watcher) {
				if w.onPosition != nil {
					w.onPosition(pos)
				}
			})
		}
		if !p.loop {
			slog.Debug("Replay finished", "fixes", len(p.steps))
			p.broadcast(func(w watcher) {
				if w.onError != nil {
					w.onError(sensor.ErrSignalTimeout)
				}
			})
			return
		}
	}
}

func (p *Player) broadcast(fn func(watcher)) {
	p.mu.Lock()
	targets := make([]watcher, 0, len(p.watchers))
	for _, w := range p.watchers {
		targets = append(targets, w)
	}
	p.mu.Unlock()
	for _, w := range targets {
		fn(w)
	}
}
