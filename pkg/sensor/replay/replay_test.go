package replay

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldnav/pkg/geo"
	"fieldnav/pkg/gpx"
	"fieldnav/pkg/sensor"
	"fieldnav/pkg/trail"
)

func track(n int) []trail.TrackPoint {
	t0 := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	start := geo.Point{Lat: 46.5, Lon: 7.9}
	pts := make([]trail.TrackPoint, n)
	for i := range n {
		p := geo.DestinationPoint(start, float64(i)*10, 0)
		pts[i] = trail.TrackPoint{Lat: p.Lat, Lng: p.Lon, Timestamp: t0.Add(time.Duration(i) * 5 * time.Second)}
	}
	return pts
}

func TestSchedule(t *testing.T) {
	steps := Schedule(track(3))
	require.Len(t, steps, 3)

	assert.Zero(t, steps[0].Delay)
	assert.Nil(t, steps[0].Position.Heading)
	assert.Equal(t, 0.0, *steps[0].Position.Speed)

	assert.Equal(t, 5*time.Second, steps[1].Delay)
	assert.InDelta(t, 2.0, *steps[1].Position.Speed, 0.01)
	require.NotNil(t, steps[1].Position.Heading)
	assert.InDelta(t, 0.0, geo.NormalizeAngle(*steps[1].Position.Heading), 0.01)
}

func TestSchedule_MissingTimestamps(t *testing.T) {
	pts := track(2)
	pts[0].Timestamp = time.Time{}
	pts[1].Timestamp = time.Time{}
	steps := Schedule(pts)
	assert.Equal(t, defaultStep, steps[1].Delay)
	assert.InDelta(t, 10.0, *steps[1].Position.Speed, 0.01)
}

func TestNew_Empty(t *testing.T) {
	_, err := New(nil, 1, false)
	assert.ErrorIs(t, err, gpx.ErrEmptyTrack)
}

func TestPlayer_PlaysOnceThenTimesOut(t *testing.T) {
	p, err := New(track(4), 1000, false)
	require.NoError(t, err)
	defer p.Close()

	var mu sync.Mutex
	var fixes []sensor.Position
	var errs []error
	_, err = p.Watch(func(pos sensor.Position) {
		mu.Lock()
		fixes = append(fixes, pos)
		mu.Unlock()
	}, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, fixes, 4)
	assert.ErrorIs(t, errs[0], sensor.ErrSignalTimeout)
	for _, f := range fixes {
		assert.False(t, f.Timestamp.IsZero())
		assert.True(t, f.Valid())
	}
}

func TestPlayer_Loop(t *testing.T) {
	p, err := New(track(2), 1000, true)
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	_, err = p.Watch(func(sensor.Position) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count > 4
	}, 2*time.Second, 5*time.Millisecond)

	p.Close()
	p.Close()
	_, err = p.Watch(func(sensor.Position) {}, nil)
	assert.ErrorIs(t, err, sensor.ErrPositionUnavailable)
}

func TestOpen(t *testing.T) {
	data, err := gpx.Encode(track(3), gpx.Options{Name: "walk"})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "walk.gpx")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	p, err := Open(Config{Path: path, Speed: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())

	_, err = Open(Config{Path: filepath.Join(t.TempDir(), "missing.gpx")})
	assert.Error(t, err)
}
