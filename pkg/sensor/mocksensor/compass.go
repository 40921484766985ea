package mocksensor

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"fieldnav/pkg/sensor"
)

// Compass implements sensor.OrientationSource on top of a Walker. It reports the
// walker's facing plus uniform jitter as a webkit-style compass heading.
type Compass struct {
	walker *Walker
	noise  float64
	every  time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	watchers map[int]func(sensor.RawOrientationEvent)
	nextID   int
	running  bool

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// GatedCompass is a Compass behind a permission prompt. Watch fails until
// RequestPermission has granted access.
type GatedCompass struct {
	*Compass
	deny    bool
	granted bool
}

// NewCompass returns the compass for cfg. With RequirePermission set the result
// also implements sensor.PermissionRequester.
func NewCompass(w *Walker, cfg Config) sensor.OrientationSource {
	c := newCompass(w, cfg)
	if cfg.RequirePermission {
		return &GatedCompass{Compass: c, deny: cfg.DenyPermission}
	}
	return c
}

func newCompass(w *Walker, cfg Config) *Compass {
	every := cfg.CompassInterval
	if every <= 0 {
		every = 100 * time.Millisecond
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Compass{
		walker:   w,
		noise:    cfg.CompassNoise,
		every:    every,
		rng:      rand.New(rand.NewSource(seed + 1)),
		watchers: make(map[int]func(sensor.RawOrientationEvent)),
		stopCh:   make(chan struct{}),
	}
}

// Watch implements sensor.OrientationSource.
func (c *Compass) Watch(onEvent func(sensor.RawOrientationEvent), onError func(error)) (sensor.Unsubscribe, error) {
	if c.walker == nil {
		return nil, sensor.ErrSensorUnavailable
	}
	select {
	case <-c.stopCh:
		return nil, sensor.ErrSensorUnavailable
	default:
	}

	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = onEvent
	if !c.running {
		c.running = true
		c.wg.Add(1)
		go c.loop()
	}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, id)
			c.mu.Unlock()
		})
	}, nil
}

// Close stops the event loop.
func (c *Compass) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// Reading returns one compass event for the walker's current facing.
func (c *Compass) Reading() sensor.WebkitEvent {
	h := c.walker.Heading()
	c.mu.Lock()
	jitter := (c.rng.Float64()*2 - 1) * c.noise
	c.mu.Unlock()
	return sensor.WebkitEvent{CompassHeading: h + jitter}
}

func (c *Compass) loop() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.every)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			ev := c.Reading()
			c.mu.Lock()
			targets := make([]func(sensor.RawOrientationEvent), 0, len(c.watchers))
			for _, fn := range c.watchers {
				targets = append(targets, fn)
			}
			c.mu.Unlock()
			for _, fn := range targets {
				if fn != nil {
					fn(ev)
				}
			}
		}
	}
}

// RequestPermission implements sensor.PermissionRequester.
func (g *GatedCompass) RequestPermission(ctx context.Context) (sensor.Permission, error) {
	if err := ctx.Err(); err != nil {
		return sensor.PermissionDenied, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deny {
		return sensor.PermissionDenied, nil
	}
	g.granted = true
	return sensor.PermissionGranted, nil
}

// Watch fails with sensor.ErrPermissionDenied until permission was granted.
func (g *GatedCompass) Watch(onEvent func(sensor.RawOrientationEvent), onError func(error)) (sensor.Unsubscribe, error) {
	g.mu.Lock()
	granted := g.granted
	g.mu.Unlock()
	if !granted {
		return nil, sensor.ErrPermissionDenied
	}
	return g.Compass.Watch(onEvent, onError)
}
