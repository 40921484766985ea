package api

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fieldnav/pkg/db"
	"fieldnav/pkg/engine"
	"fieldnav/pkg/geo"
	"fieldnav/pkg/sensor"
	"fieldnav/pkg/store"
	"fieldnav/pkg/tracker"
)

var t0 = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// pushSource is a position source the test drives by hand.
type pushSource struct {
	mu sync.Mutex
	fn func(sensor.Position)
}

func (s *pushSource) Watch(onPosition func(sensor.Position), onError func(error)) (sensor.Unsubscribe, error) {
	s.mu.Lock()
	s.fn = onPosition
	s.mu.Unlock()
	return func() {}, nil
}

func (s *pushSource) push(p sensor.Position) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	fn(p)
}

// walkNorth pushes n fixes 10 m and 1 s apart.
func (s *pushSource) walkNorth(n int) {
	start := geo.Point{Lat: 46.5, Lon: 7.9}
	for i := range n {
		p := geo.DestinationPoint(start, float64(i)*10, 0)
		s.push(sensor.Position{
			Latitude:  p.Lat,
			Longitude: p.Lon,
			Speed:     sensor.Float(0.5),
			Timestamp: t0.Add(time.Duration(i) * time.Second),
		})
	}
}

type fixture struct {
	nav   *engine.Engine
	src   *pushSource
	store *store.SQLiteStore
	tr    *tracker.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	d, err := db.Init(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	st := store.NewSQLiteStore(d)
	t.Cleanup(func() { st.Close() })

	tr := tracker.New()
	src := &pushSource{}
	nav := engine.New(engine.DefaultConfig(), src, nil,
		engine.WithTracker(tr),
		engine.WithMissionSink(st),
		engine.WithPreferences(st),
		engine.WithClock(func() time.Time { return t0 }),
	)
	require.NoError(t, nav.Init(context.Background()))
	t.Cleanup(nav.Dispose)

	return &fixture{nav: nav, src: src, store: st, tr: tr}
}
