package mocksensor

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldnav/pkg/config"
	"fieldnav/pkg/geo"
	"fieldnav/pkg/sensor"
)

func testConfig() Config {
	return Config{
		StartLat:       46.5,
		StartLon:       7.9,
		StartAlt:       1000,
		StartHeading:   90,
		Speed:          2,
		Interval:       time.Hour,
		DurationParked: 10 * time.Second,
		Seed:           42,
	}
}

func TestWalker_StageSequence(t *testing.T) {
	w := NewWalker(testConfig())
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	p := w.tick(t0)
	assert.Equal(t, StageParked, w.Stage())
	assert.Equal(t, 0.0, *p.Speed)
	assert.Nil(t, p.Heading, "parked fix carries no course")

	p = w.tick(t0.Add(5 * time.Second))
	assert.Equal(t, StageParked, w.Stage())
	assert.Equal(t, 46.5, p.Latitude)

	w.tick(t0.Add(10 * time.Second))
	assert.Equal(t, StageWalking, w.Stage())

	p = w.tick(t0.Add(20 * time.Second))
	require.NotNil(t, p.Heading)
	assert.InDelta(t, 90, *p.Heading, 1e-9)
	assert.Equal(t, 2.0, *p.Speed)
	moved := geo.Distance(geo.Point{Lat: 46.5, Lon: 7.9}, p.Point())
	assert.InDelta(t, 20, moved, 0.1)
	assert.True(t, p.Valid())
}

func TestWalker_OmitCourse(t *testing.T) {
	cfg := testConfig()
	cfg.DurationParked = 0
	cfg.OmitCourse = true
	w := NewWalker(cfg)
	t0 := time.Now()
	w.tick(t0)
	p := w.tick(t0.Add(time.Second))
	assert.Nil(t, p.Heading)
	assert.Equal(t, 2.0, *p.Speed)
}

func TestWalker_WatchAndClose(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 10 * time.Millisecond
	w := NewWalker(cfg)

	var mu sync.Mutex
	var got []sensor.Position
	unsub, err := w.Watch(func(p sensor.Position) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) >= 3
	}, time.Second, 5*time.Millisecond)

	unsub()
	unsub()
	w.Close()
	w.Close()

	_, err = w.Watch(func(sensor.Position) {}, nil)
	assert.ErrorIs(t, err, sensor.ErrPositionUnavailable)
}

func TestCompass_Noise(t *testing.T) {
	cfg := testConfig()
	cfg.CompassNoise = 2
	w := NewWalker(cfg)
	c := newCompass(w, cfg)
	for range 50 {
		ev := c.Reading()
		assert.LessOrEqual(t, math.Abs(ev.CompassHeading-90), 2.0)
	}
}

func TestCompass_Gate(t *testing.T) {
	tests := []struct {
		name    string
		deny    bool
		want    sensor.Permission
		watchOK bool
	}{
		{name: "granted", want: sensor.PermissionGranted, watchOK: true},
		{name: "denied", deny: true, want: sensor.PermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.RequirePermission = true
			cfg.DenyPermission = tt.deny
			w := NewWalker(cfg)
			src := NewCompass(w, cfg)
			g, ok := src.(*GatedCompass)
			require.True(t, ok)
			defer g.Close()

			_, err := src.Watch(func(sensor.RawOrientationEvent) {}, nil)
			assert.ErrorIs(t, err, sensor.ErrPermissionDenied)

			perm, err := g.RequestPermission(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, perm)

			unsub, err := src.Watch(func(sensor.RawOrientationEvent) {}, nil)
			if tt.watchOK {
				require.NoError(t, err)
				unsub()
			} else {
				assert.ErrorIs(t, err, sensor.ErrPermissionDenied)
			}
		})
	}
}

func TestNewCompass_Ungated(t *testing.T) {
	cfg := testConfig()
	src := NewCompass(NewWalker(cfg), cfg)
	_, gated := src.(sensor.PermissionRequester)
	assert.False(t, gated)
}

func TestConfigFrom(t *testing.T) {
	mc := config.DefaultConfig().Sensor.Mock
	cfg := ConfigFrom(&mc)
	assert.Equal(t, mc.StartLat, cfg.StartLat)
	assert.Equal(t, time.Duration(mc.Interval), cfg.Interval)
	assert.Equal(t, mc.RequirePermission, cfg.RequirePermission)
}
