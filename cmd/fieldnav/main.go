package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"fieldnav/internal/api"
	"fieldnav/pkg/config"
	"fieldnav/pkg/db"
	"fieldnav/pkg/db/maintenance"
	"fieldnav/pkg/engine"
	"fieldnav/pkg/logging"
	"fieldnav/pkg/probe"
	"fieldnav/pkg/sensor"
	"fieldnav/pkg/sensor/mocksensor"
	"fieldnav/pkg/sensor/replay"
	"fieldnav/pkg/store"
	"fieldnav/pkg/tracker"
	"fieldnav/pkg/version"
)

const defaultConfigPath = "configs/fieldnav.yaml"

var (
	configPath = flag.String("config", "", "Path to the config file (default "+defaultConfigPath+")")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
)

func main() {
	flag.Parse()

	// A missing .env is normal.
	_ = godotenv.Load()

	path := resolveConfigPath()

	if *initConfig {
		if err := config.GenerateDefault(path); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", path)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, path); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath prefers the flag, then the environment, then the default.
func resolveConfigPath() string {
	if *configPath != "" {
		return *configPath
	}
	if p := os.Getenv(config.EnvConfigPath); p != "" {
		return p
	}
	return defaultConfigPath
}

func run(ctx context.Context, cfgPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("FieldNav Started", "version", version.Version, "sensor", appCfg.Sensor.Provider)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := probe.AnalyzeResults(probe.Run(ctx, startupProbes(appCfg, dbConn))); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	if err := maintenance.Run(ctx, st, maintenance.Options{
		ImportDir: appCfg.DB.ImportDir,
		Retention: appCfg.DB.MissionRetention.Std(),
	}); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	pos, ori, closeSensors, err := initSensors(appCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize sensors: %w", err)
	}
	defer closeSensors()

	tr := tracker.New()
	nav := engine.New(engine.ConfigFrom(appCfg), pos, ori,
		engine.WithTracker(tr),
		engine.WithMissionSink(st),
		engine.WithPreferences(st),
	)
	if err := nav.Init(ctx); err != nil {
		// The engine stays up in its failed state so the renderer can show it.
		slog.Error("Navigation engine started without sensors", "error", err)
	}
	defer nav.Dispose()

	telH := api.NewTelemetryHandler()
	hub := api.NewStreamHub(appCfg.Server.StreamInterval.Std(), nav)
	defer hub.Close()
	nav.AddSink(telH)
	nav.AddSink(hub)

	metrics, err := api.NewMetrics(prometheus.NewRegistry(), tr, nav, hub)
	if err != nil {
		return err
	}

	go func() {
		if err := nav.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Navigation loop stopped", "error", err)
		}
	}()

	h := api.Handlers{
		Telemetry: telH,
		Control:   api.NewControlHandler(nav),
		Trail:     api.NewTrailHandler(nav),
		Missions:  api.NewMissionHandler(st),
		Stats:     api.NewStatsHandler(tr, nav, hub),
		Config:    api.NewConfigHandler(appCfg, nav),
		Stream:    hub,
		Metrics:   metrics,
	}
	srv := api.NewServer(appCfg.Server.Address, h, cancel)
	return runServerLifecycle(ctx, srv)
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

func startupProbes(appCfg *config.Config, dbConn *db.DB) []probe.Probe {
	probes := []probe.Probe{
		{Name: "Mission Archive", Check: probe.Database(dbConn), Critical: true},
	}
	if appCfg.Sensor.Provider == "replay" {
		probes = append(probes, probe.Probe{
			Name:     "Replay Track",
			Check:    probe.FileReadable(appCfg.Sensor.Replay.Path),
			Critical: true,
		})
	}
	if dir := appCfg.GPX.ExportDir; dir != "" {
		// Exports still reach the archive without it.
		probes = append(probes, probe.Probe{Name: "Export Directory", Check: probe.DirWritable(dir)})
	}
	if dir := appCfg.DB.ImportDir; dir != "" {
		probes = append(probes, probe.Probe{Name: "Import Directory", Check: probe.DirWritable(dir)})
	}
	return probes
}

// initSensors builds the position and orientation sources for the configured provider.
// The replay provider has no compass; heading then comes from course or ground track.
func initSensors(appCfg *config.Config) (sensor.PositionSource, sensor.OrientationSource, func(), error) {
	switch appCfg.Sensor.Provider {
	case "replay":
		rc := appCfg.Sensor.Replay
		p, err := replay.Open(replay.Config{Path: rc.Path, Speed: rc.Speed, Loop: rc.Loop})
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("Replaying recorded track", "path", rc.Path, "points", p.Len(), "speed", rc.Speed, "loop", rc.Loop)
		return p, nil, p.Close, nil
	default:
		mc := mocksensor.ConfigFrom(&appCfg.Sensor.Mock)
		w := mocksensor.NewWalker(mc)
		c := mocksensor.NewCompass(w, mc)
		slog.Info("Using simulated walker", "lat", mc.StartLat, "lon", mc.StartLon, "gated_compass", mc.RequirePermission)
		return w, c, func() {
			if cl, ok := c.(interface{ Close() }); ok {
				cl.Close()
			}
			w.Close()
		}, nil
	}
}

func runServerLifecycle(ctx context.Context, srv *http.Server) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down server...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
