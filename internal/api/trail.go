package api

import (
	"log/slog"
	"net/http"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fieldnav/pkg/engine"
	"fieldnav/pkg/geo"
	"fieldnav/pkg/trail"
)

// TrailHandler exports the live trail buffers as GeoJSON for map overlays.
type TrailHandler struct {
	nav *engine.Engine
}

func NewTrailHandler(nav *engine.Engine) *TrailHandler {
	return &TrailHandler{nav: nav}
}

// HandleGeoJSON returns a FeatureCollection with the visual trail, the mission log
// (while one exists) and the current position.
// GET /api/trail.geojson
func (h *TrailHandler) HandleGeoJSON(w http.ResponseWriter, r *http.Request) {
	fc := BuildTrailCollection(h.nav.VisualTrail(), h.nav.MissionLog(), h.nav.Snapshot())

	data, err := fc.MarshalJSON()
	if err != nil {
		slog.Error("Failed to encode trail", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write trail response", "error", err)
	}
}

// BuildTrailCollection assembles the trail features. Lines with fewer than two points are omitted.
func BuildTrailCollection(visual, mission []trail.TrackPoint, f engine.Frame) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if feat := lineFeature("visual", visual); feat != nil {
		fc.Append(feat)
	}
	if feat := lineFeature("mission", mission); feat != nil {
		feat.Properties["state"] = string(f.Trail.State)
		fc.Append(feat)
	}
	if f.Position != nil {
		pos := geojson.NewFeature(orb.Point{f.Position.Longitude, f.Position.Latitude})
		pos.Properties["kind"] = "position"
		pos.Properties["heading"] = f.Orientation.VisualHeading
		pos.Properties["source"] = string(f.Orientation.Source)
		fc.Append(pos)
	}
	return fc
}

func lineFeature(kind string, pts []trail.TrackPoint) *geojson.Feature {
	if len(pts) < 2 {
		return nil
	}
	ls := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		ls = append(ls, orb.Point{p.Lng, p.Lat})
	}
	feat := geojson.NewFeature(ls)
	feat.Properties["kind"] = kind
	feat.Properties["points"] = len(pts)
	feat.Properties["distance_m"] = geo.PathDistance(trail.Points(pts))
	return feat
}
