package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fieldnav/pkg/config"
	"fieldnav/pkg/radar"
)

func TestConfigFrom_Defaults(t *testing.T) {
	got := ConfigFrom(config.DefaultConfig())
	want := DefaultConfig()

	// Defaults of the YAML layer and of the components must agree.
	if diff := cmp.Diff(want.Orientation, got.Orientation); diff != "" {
		t.Errorf("orientation mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Trail, got.Trail); diff != "" {
		t.Errorf("trail mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want.Radar, got.Radar); diff != "" {
		t.Errorf("radar mismatch (-want +got):\n%s", diff)
	}
	if got.Sampler.MinInterval != 250*time.Millisecond {
		t.Errorf("sampler interval = %v", got.Sampler.MinInterval)
	}
}

func TestConfigFrom_BadModeFallsBack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Radar.Mode = "upside-down"
	cfg.GPX.Creator = ""
	got := ConfigFrom(cfg)
	if got.Radar.Mode != radar.ModeHeadingUp {
		t.Errorf("mode = %q", got.Radar.Mode)
	}
	if got.Creator != DefaultConfig().Creator {
		t.Errorf("creator = %q", got.Creator)
	}
}
