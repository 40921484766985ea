package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"fieldnav/pkg/engine"
)

// TelemetryHandler keeps the latest engine frame for polling clients.
type TelemetryHandler struct {
	mu    sync.RWMutex
	frame engine.Frame
	has   bool
}

func NewTelemetryHandler() *TelemetryHandler {
	return &TelemetryHandler{}
}

// UpdateFrame implements engine.FrameSink.
func (h *TelemetryHandler) UpdateFrame(f *engine.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.frame = *f
	h.has = true
}

// Latest returns the last frame and whether one has arrived.
func (h *TelemetryHandler) Latest() (engine.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.frame, h.has
}

// HandleTelemetry returns the latest frame.
// GET /api/telemetry
func (h *TelemetryHandler) HandleTelemetry(w http.ResponseWriter, r *http.Request) {
	f, _ := h.Latest()
	writeJSON(w, http.StatusOK, f)
}

// HandleImagery returns the background imagery parameters, or 204 before the first fix.
// GET /api/imagery
func (h *TelemetryHandler) HandleImagery(w http.ResponseWriter, r *http.Request) {
	f, _ := h.Latest()
	if f.Imagery == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, f.Imagery)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
