package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fieldnav/pkg/logging"
	"fieldnav/pkg/version"
)

// Handlers groups everything the HTTP server routes to. Missions and Metrics may be nil.
type Handlers struct {
	Telemetry *TelemetryHandler
	Control   *ControlHandler
	Trail     *TrailHandler
	Missions  *MissionHandler
	Stats     *StatsHandler
	Config    *ConfigHandler
	Stream    *StreamHub
	Metrics   *Metrics
}

// NewServer creates and configures the HTTP server.
// shutdown is called from POST /api/shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	mux := http.NewServeMux()

	// 1. Health and version
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /api/version", handleVersion)

	// 2. Navigation state
	mux.HandleFunc("GET /api/telemetry", h.Telemetry.HandleTelemetry)
	mux.HandleFunc("GET /api/imagery", h.Telemetry.HandleImagery)
	mux.HandleFunc("GET /api/trail.geojson", h.Trail.HandleGeoJSON)
	mux.Handle("GET /api/stream", h.Stream)

	// 3. User actions
	mux.HandleFunc("POST /api/recording/start", h.Control.HandleStartRecording)
	mux.HandleFunc("POST /api/recording/stop", h.Control.HandleStopRecording)
	mux.HandleFunc("POST /api/recording/export", h.Control.HandleExport)
	mux.HandleFunc("POST /api/recording/discard", h.Control.HandleDiscard)
	mux.HandleFunc("POST /api/trail/reset", h.Control.HandleResetTrail)
	mux.HandleFunc("POST /api/radar/recenter", h.Control.HandleRecenter)
	mux.HandleFunc("POST /api/radar/mode", h.Control.HandleMode)
	mux.HandleFunc("POST /api/radar/zoom", h.Control.HandleZoom)
	mux.HandleFunc("POST /api/compass/enable", h.Control.HandleEnableCompass)
	mux.HandleFunc("POST /api/view", h.Control.HandleView)

	// 4. Mission archive
	if h.Missions != nil {
		mux.HandleFunc("GET /api/missions", h.Missions.HandleList)
		mux.HandleFunc("GET /api/missions/{id}", h.Missions.HandleGet)
		mux.HandleFunc("GET /api/missions/{id}/gpx", h.Missions.HandleGPX)
		mux.HandleFunc("DELETE /api/missions/{id}", h.Missions.HandleDelete)
	}
	mux.HandleFunc("GET /api/events", handleEvents)

	// 5. Diagnostics
	mux.Handle("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/config", h.Config.HandleConfig)
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/recent", handleRecentLog)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics.Handler())
	}

	// 6. Shutdown
	mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Graceful shutdown initiated via API")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("Shutting down...")); err != nil {
			slog.Error("Failed to write shutdown response", "error", err)
		}
		// Let the response flush first.
		go func() {
			time.Sleep(100 * time.Millisecond)
			shutdown()
		}()
	})

	return &http.Server{
		Addr:        addr,
		Handler:     requestLogger(mux),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/stream holds its connection open.
		IdleTimeout: 60 * time.Second,
	}
}

// requestLogger writes one line per request to the request log.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"duration", time.Since(start),
			)
		}
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}
