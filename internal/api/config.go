package api

import (
	"net/http"

	"fieldnav/pkg/config"
	"fieldnav/pkg/engine"
	"fieldnav/pkg/version"
)

// ConfigHandler reports the effective configuration a renderer needs.
type ConfigHandler struct {
	appCfg *config.Config
	nav    *engine.Engine
}

// NewConfigHandler creates a new ConfigHandler.
func NewConfigHandler(cfg *config.Config, nav *engine.Engine) *ConfigHandler {
	return &ConfigHandler{appCfg: cfg, nav: nav}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	Version            string  `json:"version"`
	SensorProvider     string  `json:"sensor_provider"`
	SamplerInterval    string  `json:"sampler_interval"`
	OrientationGain    float64 `json:"orientation_gain"`
	OffCenterThreshold string  `json:"off_center_threshold"`
	ReanchorThreshold  string  `json:"reanchor_threshold"`
	RadarMode          string  `json:"radar_mode"`
	RadarZoom          float64 `json:"radar_zoom"`
	RadarWidth         int     `json:"radar_width"`
	RadarHeight        int     `json:"radar_height"`
	TileSize           float64 `json:"tile_size"`
	TrailMaxPoints     int     `json:"trail_max_points"`
	StreamInterval     string  `json:"stream_interval"`
}

// HandleConfig returns the configuration, with the live radar mode and zoom.
// GET /api/config
func (h *ConfigHandler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	c := h.appCfg
	resp := ConfigResponse{
		Version:            version.Version,
		SensorProvider:     c.Sensor.Provider,
		SamplerInterval:    c.Sampler.MinInterval.Std().String(),
		OrientationGain:    c.Orientation.Gain,
		OffCenterThreshold: c.Radar.OffCenterThreshold.String(),
		ReanchorThreshold:  c.Radar.ReanchorThreshold.String(),
		RadarMode:          c.Radar.Mode,
		RadarZoom:          c.Radar.Zoom,
		RadarWidth:         c.Radar.Width,
		RadarHeight:        c.Radar.Height,
		TileSize:           c.Radar.TileSize,
		TrailMaxPoints:     c.Trail.MaxPoints,
		StreamInterval:     c.Server.StreamInterval.Std().String(),
	}
	if h.nav != nil {
		resp.RadarMode = string(h.nav.Mode())
		resp.RadarZoom = h.nav.Zoom()
	}
	writeJSON(w, http.StatusOK, resp)
}
