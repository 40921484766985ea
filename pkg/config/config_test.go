package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "fieldnav.yaml")

	tests := []struct {
		name          string
		setup         func()
		validate      func(*testing.T, *Config)
		checkFile     func(*testing.T)
		expectedError bool
	}{
		{
			name:  "NewFile_Defaults",
			setup: func() {}, // No file
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Sensor.Provider != "mock" {
					t.Errorf("expected default provider 'mock', got '%s'", cfg.Sensor.Provider)
				}
				if cfg.Trail.MaxPoints != 100 {
					t.Errorf("expected MaxPoints default 100, got %d", cfg.Trail.MaxPoints)
				}
				if cfg.Sampler.MinInterval.Std() != 250*time.Millisecond {
					t.Errorf("expected MinInterval 250ms, got %v", cfg.Sampler.MinInterval.Std())
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if !strings.Contains(string(content), "provider: mock") {
					t.Error("config file missing default values")
				}
				if !strings.Contains(string(content), "# Options: heading-up, north-up") {
					t.Error("config file missing mode comment")
				}
				if !strings.Contains(string(content), "reanchor_threshold: 60m") {
					t.Error("config file missing reanchor_threshold default")
				}
			},
		},
		{
			name: "ExistingFile_Override",
			setup: func() {
				err := os.WriteFile(configPath, []byte("radar:\n  mode: north-up\n  reanchor_threshold: 0.08km\ntrail:\n  min_distance: 10\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Radar.Mode != "north-up" {
					t.Errorf("expected mode 'north-up', got '%s'", cfg.Radar.Mode)
				}
				if cfg.Radar.ReanchorThreshold.Meters() != 80 {
					t.Errorf("expected ReanchorThreshold 80, got %v", cfg.Radar.ReanchorThreshold)
				}
				if cfg.Trail.MinDistance.Meters() != 10 {
					t.Errorf("expected MinDistance 10, got %v", cfg.Trail.MinDistance)
				}
				// Untouched sections keep their defaults.
				if cfg.Radar.OffCenterThreshold.Meters() != 30 {
					t.Errorf("expected default OffCenterThreshold 30, got %v", cfg.Radar.OffCenterThreshold)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "provider:") {
					t.Error("existing config file must not be rewritten")
				}
			},
		},
		{
			name: "Env_Override",
			setup: func() {
				t.Setenv(EnvAddress, "0.0.0.0:9999")
				err := os.WriteFile(configPath, []byte("server:\n  address: localhost:1\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			validate: func(t *testing.T, cfg *Config) {
				if cfg.Server.Address != "0.0.0.0:9999" {
					t.Errorf("expected env address, got '%s'", cfg.Server.Address)
				}
			},
			checkFile: func(t *testing.T) {
				content, err := os.ReadFile(configPath)
				if err != nil {
					t.Fatalf("failed to read config file: %v", err)
				}
				if strings.Contains(string(content), "9999") {
					t.Error("env override must not be saved to disk")
				}
			},
		},
		{
			name: "Invalid_Mode",
			setup: func() {
				err := os.WriteFile(configPath, []byte("radar:\n  mode: south-up\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "Replay_Without_Path",
			setup: func() {
				err := os.WriteFile(configPath, []byte("sensor:\n  provider: replay\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
		{
			name: "Malformed_YAML",
			setup: func() {
				err := os.WriteFile(configPath, []byte("radar: [unclosed\n"), 0o644)
				if err != nil {
					t.Fatalf("failed to setup test file: %v", err)
				}
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Remove(configPath)
			tt.setup()

			cfg, err := Load(configPath)
			if tt.expectedError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			if tt.validate != nil {
				tt.validate(t, cfg)
			}
			if tt.checkFile != nil {
				tt.checkFile(t)
			}
		})
	}
}

func TestGenerateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fieldnav.yaml")

	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	// Existing file is left alone.
	if err := os.WriteFile(path, []byte("custom: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := GenerateDefault(path); err != nil {
		t.Fatalf("GenerateDefault failed: %v", err)
	}
	content, _ := os.ReadFile(path)
	if string(content) != "custom: true\n" {
		t.Error("GenerateDefault overwrote an existing file")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
