package engine

import (
	"log/slog"

	"fieldnav/pkg/config"
	"fieldnav/pkg/gpx"
	"fieldnav/pkg/orientation"
	"fieldnav/pkg/radar"
	"fieldnav/pkg/sampler"
	"fieldnav/pkg/trail"
)

// Config bundles the tuning of every component the engine owns.
type Config struct {
	Sampler     sampler.Config
	Orientation orientation.Config
	Trail       trail.Config
	Radar       radar.Config

	// ResetOnReanchor collapses the visual trail whenever the radar anchor moves on its own.
	ResetOnReanchor bool

	Creator   string
	ExportDir string
}

// DefaultConfig returns the component defaults.
func DefaultConfig() Config {
	return Config{
		Sampler:     sampler.DefaultConfig(),
		Orientation: orientation.DefaultConfig(),
		Trail:       trail.DefaultConfig(),
		Radar:       radar.DefaultConfig(),
		Creator:     gpx.DefaultCreator,
	}
}

// ConfigFrom maps the application config onto the engine config.
func ConfigFrom(c *config.Config) Config {
	mode, err := radar.ParseMode(c.Radar.Mode)
	if err != nil {
		slog.Warn("Unknown radar mode, using default", "mode", c.Radar.Mode)
		mode = radar.DefaultConfig().Mode
	}
	creator := c.GPX.Creator
	if creator == "" {
		creator = gpx.DefaultCreator
	}

	return Config{
		Sampler: sampler.Config{
			MinInterval: c.Sampler.MinInterval.Std(),
		},
		Orientation: orientation.Config{
			Gain:                  c.Orientation.Gain,
			Epsilon:               c.Orientation.Epsilon,
			CourseSpeedThreshold:  c.Orientation.CourseSpeedThreshold,
			CourseWhileStationary: c.Orientation.CourseWhileStationary,
			TrackWindow:           c.Orientation.TrackWindow,
			TrackMinSpan:          c.Orientation.TrackMinSpan.Meters(),
			FrameInterval:         c.Orientation.FrameInterval.Std(),
			IdleInterval:          c.Orientation.IdleInterval.Std(),
			HiddenInterval:        c.Orientation.HiddenInterval.Std(),
		},
		Trail: trail.Config{
			MaxPoints:          c.Trail.MaxPoints,
			MinDistance:        c.Trail.MinDistance.Meters(),
			MissionMinDistance: c.Trail.MissionMinDistance.Meters(),
		},
		Radar: radar.Config{
			OffCenterThreshold: c.Radar.OffCenterThreshold.Meters(),
			ReanchorThreshold:  c.Radar.ReanchorThreshold.Meters(),
			Zoom:               c.Radar.Zoom,
			TileSize:           c.Radar.TileSize,
			Width:              c.Radar.Width,
			Height:             c.Radar.Height,
			Mode:               mode,
		},
		ResetOnReanchor: c.Trail.ResetOnReanchor,
		Creator:         creator,
		ExportDir:       c.GPX.ExportDir,
	}
}
