package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldnav/pkg/engine"
	"fieldnav/pkg/trail"
)

func TestBuildTrailCollection(t *testing.T) {
	visual := []trail.TrackPoint{
		{Lat: 46.5, Lng: 7.9, Timestamp: t0},
		{Lat: 46.5001, Lng: 7.9, Timestamp: t0.Add(time.Second)},
	}

	tests := []struct {
		name      string
		visual    []trail.TrackPoint
		mission   []trail.TrackPoint
		wantKinds []string
	}{
		{name: "empty", wantKinds: nil},
		{name: "single point is no line", visual: visual[:1], wantKinds: nil},
		{name: "visual only", visual: visual, wantKinds: []string{"visual"}},
		{name: "visual and mission", visual: visual, mission: visual, wantKinds: []string{"visual", "mission"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := BuildTrailCollection(tt.visual, tt.mission, engine.Frame{})
			var kinds []string
			for _, f := range fc.Features {
				kinds = append(kinds, f.Properties.MustString("kind"))
			}
			assert.Equal(t, tt.wantKinds, kinds)
		})
	}
}

func TestTrailHandler_GeoJSON(t *testing.T) {
	f := newFixture(t)
	f.src.walkNorth(3)
	f.nav.Step(t0)

	w := httptest.NewRecorder()
	NewTrailHandler(f.nav).HandleGeoJSON(w, httptest.NewRequest(http.MethodGet, "/api/trail.geojson", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	fc, err := geojson.UnmarshalFeatureCollection(w.Body.Bytes())
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	line, ok := fc.Features[0].Geometry.(orb.LineString)
	require.True(t, ok)
	assert.Len(t, line, 3)
	assert.InDelta(t, 7.9, line[0].Lon(), 1e-9, "GeoJSON order is lon, lat")
	assert.InDelta(t, 20, fc.Features[0].Properties.MustFloat64("distance_m"), 0.5)

	_, ok = fc.Features[1].Geometry.(orb.Point)
	assert.True(t, ok)
}
