package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the file is read.
const (
	EnvConfigPath = "FIELDNAV_CONFIG"
	EnvAddress    = "FIELDNAV_ADDR"
	EnvSensor     = "FIELDNAV_SENSOR"
)

// Config holds the application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Server      ServerConfig      `yaml:"server"`
	DB          DBConfig          `yaml:"db"`
	Sensor      SensorConfig      `yaml:"sensor"`
	Sampler     SamplerConfig     `yaml:"sampler"`
	Orientation OrientationConfig `yaml:"orientation"`
	Trail       TrailConfig       `yaml:"trail"`
	Radar       RadarConfig       `yaml:"radar"`
	GPX         GPXConfig         `yaml:"gpx"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
	Events   LogSettings `yaml:"events"`
	Trace    bool        `yaml:"trace"` // per-sample debug output
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path             string   `yaml:"path"`
	MissionRetention Duration `yaml:"mission_retention"` // 0 keeps missions forever
	ImportDir        string   `yaml:"import_dir"`        // GPX files here are added to the archive at startup
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	StreamInterval Duration `yaml:"stream_interval"` // minimum gap between frames pushed to a websocket client
}

// SensorConfig selects and configures the position and orientation sources.
type SensorConfig struct {
	Provider string           `yaml:"provider"` // "mock", "replay"
	Mock     MockSensorConfig `yaml:"mock"`
	Replay   ReplayConfig     `yaml:"replay"`
}

// MockSensorConfig drives the simulated walker and compass.
type MockSensorConfig struct {
	StartLat          float64  `yaml:"start_lat"`
	StartLon          float64  `yaml:"start_lon"`
	StartAlt          float64  `yaml:"start_alt"`
	StartHeading      float64  `yaml:"start_heading"`
	Speed             float64  `yaml:"speed"`     // m/s
	TurnRate          float64  `yaml:"turn_rate"` // deg/s
	Interval          Duration `yaml:"interval"`
	CompassInterval   Duration `yaml:"compass_interval"`
	CompassNoise      float64  `yaml:"compass_noise"` // deg, uniform jitter
	DurationParked    Duration `yaml:"duration_parked"`
	RequirePermission bool     `yaml:"require_permission"`
	OmitCourse        bool     `yaml:"omit_course"` // exercise the ground-track fallback
}

// ReplayConfig plays a recorded GPX file back as a position stream.
type ReplayConfig struct {
	Path  string  `yaml:"path"`
	Speed float64 `yaml:"speed"` // playback multiplier
	Loop  bool    `yaml:"loop"`
}

// SamplerConfig holds the position throttle.
type SamplerConfig struct {
	MinInterval Duration `yaml:"min_interval"`
}

// OrientationConfig holds the heading fusion tuning.
type OrientationConfig struct {
	Gain                  float64  `yaml:"gain"`
	Epsilon               float64  `yaml:"epsilon"`
	CourseSpeedThreshold  float64  `yaml:"course_speed_threshold"` // m/s
	CourseWhileStationary bool     `yaml:"course_while_stationary"`
	TrackWindow           int      `yaml:"track_window"`
	TrackMinSpan          Distance `yaml:"track_min_span"`
	FrameInterval         Duration `yaml:"frame_interval"`
	IdleInterval          Duration `yaml:"idle_interval"`
	HiddenInterval        Duration `yaml:"hidden_interval"`
}

// TrailConfig holds the breadcrumb decimation.
type TrailConfig struct {
	MaxPoints          int      `yaml:"max_points"`
	MinDistance        Distance `yaml:"min_distance"`
	MissionMinDistance Distance `yaml:"mission_min_distance"`
	ResetOnReanchor    bool     `yaml:"reset_on_reanchor"`
}

// RadarConfig holds the radar viewport settings.
type RadarConfig struct {
	OffCenterThreshold Distance `yaml:"off_center_threshold"`
	ReanchorThreshold  Distance `yaml:"reanchor_threshold"`
	Zoom               float64  `yaml:"zoom"`
	TileSize           float64  `yaml:"tile_size"`
	Width              int      `yaml:"width"`
	Height             int      `yaml:"height"`
	Mode               string   `yaml:"mode"`
}

// GPXConfig holds export settings.
type GPXConfig struct {
	Creator   string `yaml:"creator"`
	ExportDir string `yaml:"export_dir"` // also write exported missions here; empty disables
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
			Events: LogSettings{
				Path:  "./logs/events.log",
				Level: "INFO",
			},
		},
		Server: ServerConfig{
			Address:        "localhost:1930",
			StreamInterval: Duration(100 * time.Millisecond),
		},
		DB: DBConfig{
			Path:      "./data/fieldnav.db",
			ImportDir: "./data/import",
		},
		Sensor: SensorConfig{
			Provider: "mock",
			Mock: MockSensorConfig{
				StartLat:        46.5581,
				StartLon:        7.9853,
				StartAlt:        1034,
				StartHeading:    0,
				Speed:           1.4,
				TurnRate:        2,
				Interval:        Duration(time.Second),
				CompassInterval: Duration(100 * time.Millisecond),
				CompassNoise:    1.5,
				DurationParked:  Duration(10 * time.Second),
			},
			Replay: ReplayConfig{
				Speed: 1,
			},
		},
		Sampler: SamplerConfig{
			MinInterval: Duration(250 * time.Millisecond),
		},
		Orientation: OrientationConfig{
			Gain:                 0.15,
			Epsilon:              0.05,
			CourseSpeedThreshold: 1.0,
			TrackWindow:          5,
			TrackMinSpan:         Distance(5),
			FrameInterval:        Duration(16 * time.Millisecond),
			IdleInterval:         Duration(250 * time.Millisecond),
			HiddenInterval:       Duration(time.Second),
		},
		Trail: TrailConfig{
			MaxPoints:          100,
			MinDistance:        Distance(5),
			MissionMinDistance: Distance(5),
		},
		Radar: RadarConfig{
			OffCenterThreshold: Distance(30),
			ReanchorThreshold:  Distance(60),
			Zoom:               17,
			TileSize:           256,
			Width:              320,
			Height:             320,
			Mode:               "heading-up",
		},
		GPX: GPXConfig{
			Creator: "fieldnav",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// An existing file is merged over the defaults but never written back, so user comments survive.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides selected values from the environment. Nothing is saved back to disk.
func applyEnv(cfg *Config) {
	if addr := os.Getenv(EnvAddress); addr != "" {
		cfg.Server.Address = addr
	}
	if provider := os.Getenv(EnvSensor); provider != "" {
		cfg.Sensor.Provider = provider
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Sensor.Provider {
	case "mock":
	case "replay":
		if c.Sensor.Replay.Path == "" {
			return fmt.Errorf("sensor.replay.path is required for the replay provider")
		}
	default:
		return fmt.Errorf("unknown sensor provider %q", c.Sensor.Provider)
	}
	if c.Radar.Mode != "heading-up" && c.Radar.Mode != "north-up" {
		return fmt.Errorf("invalid radar.mode %q: must be heading-up or north-up", c.Radar.Mode)
	}
	if c.Radar.ReanchorThreshold < c.Radar.OffCenterThreshold {
		return fmt.Errorf("radar.reanchor_threshold (%v) must not be below radar.off_center_threshold (%v)",
			c.Radar.ReanchorThreshold, c.Radar.OffCenterThreshold)
	}
	if c.Orientation.Gain <= 0 || c.Orientation.Gain > 1 {
		return fmt.Errorf("orientation.gain must be in (0, 1], got %v", c.Orientation.Gain)
	}
	if c.Trail.MaxPoints < 1 {
		return fmt.Errorf("trail.max_points must be positive, got %d", c.Trail.MaxPoints)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# fieldnav Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers), nm (nautical miles), ft (feet)

`)
	data = append(header, data...)

	// Inject comments for enum fields.
	reProvider := regexp.MustCompile(`(?m)^(\s+)provider:`)
	data = reProvider.ReplaceAll(data, []byte("${1}# Options: mock, replay\n${1}provider:"))

	reMode := regexp.MustCompile(`(?m)^(\s+)mode:`)
	data = reMode.ReplaceAll(data, []byte("${1}# Options: heading-up, north-up\n${1}mode:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
