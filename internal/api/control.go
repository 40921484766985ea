package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"fieldnav/pkg/engine"
	"fieldnav/pkg/radar"
	"fieldnav/pkg/sensor"
)

// ControlHandler exposes the user actions of the navigation engine.
type ControlHandler struct {
	nav *engine.Engine
}

func NewControlHandler(nav *engine.Engine) *ControlHandler {
	return &ControlHandler{nav: nav}
}

// HandleStartRecording begins a new mission.
// POST /api/recording/start
func (h *ControlHandler) HandleStartRecording(w http.ResponseWriter, r *http.Request) {
	discarded := h.nav.StartRecording()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     h.nav.TrailStats().State,
		"discarded": discarded,
	})
}

// HandleStopRecording freezes the mission.
// POST /api/recording/stop
func (h *ControlHandler) HandleStopRecording(w http.ResponseWriter, r *http.Request) {
	ready := h.nav.StopRecording()
	writeJSON(w, http.StatusOK, map[string]any{
		"state": h.nav.TrailStats().State,
		"ready": ready,
	})
}

// HandleExport exports the stopped mission. With nothing pending it answers 204.
// POST /api/recording/export
func (h *ControlHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	m, err := h.nav.ExportMission(r.Context())
	if errors.Is(err, engine.ErrNothingToExport) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		slog.Error("Mission export failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HandleDiscard drops the stopped mission.
// POST /api/recording/discard
func (h *ControlHandler) HandleDiscard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"discarded": h.nav.DiscardMission()})
}

// HandleResetTrail clears the breadcrumb trail.
// POST /api/trail/reset
func (h *ControlHandler) HandleResetTrail(w http.ResponseWriter, r *http.Request) {
	h.nav.ResetTrail()
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecenter moves the radar anchor to the current fix.
// POST /api/radar/recenter
func (h *ControlHandler) HandleRecenter(w http.ResponseWriter, r *http.Request) {
	if err := h.nav.Recenter(); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// HandleMode sets the radar mode, or toggles it when the body names none.
// POST /api/radar/mode
func (h *ControlHandler) HandleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	if req.Mode == "" {
		m := h.nav.ToggleMode(r.Context())
		writeJSON(w, http.StatusOK, map[string]radar.Mode{"mode": m})
		return
	}
	if err := h.nav.SetMode(r.Context(), radar.Mode(req.Mode)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]radar.Mode{"mode": h.nav.Mode()})
}

type zoomRequest struct {
	Zoom *float64 `json:"zoom"`
}

// HandleZoom sets the radar zoom and returns the clamped value.
// POST /api/radar/zoom
func (h *ControlHandler) HandleZoom(w http.ResponseWriter, r *http.Request) {
	var req zoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Zoom == nil {
		writeError(w, http.StatusBadRequest, errors.New("zoom is required"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"zoom": h.nav.SetZoom(r.Context(), *req.Zoom)})
}

// HandleEnableCompass passes the compass permission gate. The client calls it from a user gesture.
// POST /api/compass/enable
func (h *ControlHandler) HandleEnableCompass(w http.ResponseWriter, r *http.Request) {
	err := h.nav.EnableCompass(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"status": h.nav.Orientation().Status})
	case errors.Is(err, sensor.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, sensor.ErrSensorUnavailable):
		writeError(w, http.StatusNotImplemented, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

type viewRequest struct {
	Hidden bool `json:"hidden"`
}

// HandleView tells the engine whether the view is visible, to slow the loop while hidden.
// POST /api/view
func (h *ControlHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	h.nav.SetHidden(req.Hidden)
	w.WriteHeader(http.StatusNoContent)
}
