package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"fieldnav/pkg/engine"
	"fieldnav/pkg/logging"
	"fieldnav/pkg/model"
	"fieldnav/pkg/store"
)

const defaultMissionLimit = 50

// MissionHandler serves the archive of exported missions.
type MissionHandler struct {
	store store.MissionStore
}

// NewMissionHandler creates a new MissionHandler. Returns nil without a store.
func NewMissionHandler(st store.MissionStore) *MissionHandler {
	if st == nil {
		return nil
	}
	return &MissionHandler{store: st}
}

// HandleList returns the newest missions first.
// GET /api/missions?limit=N
func (h *MissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultMissionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	missions, err := h.store.ListMissions(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list missions", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if missions == nil {
		missions = []*model.Mission{}
	}
	writeJSON(w, http.StatusOK, missions)
}

// HandleGet returns one mission's metadata.
// GET /api/missions/{id}
func (h *MissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// HandleGPX downloads a mission's GPX document.
// GET /api/missions/{id}/gpx
func (h *MissionHandler) HandleGPX(w http.ResponseWriter, r *http.Request) {
	m, ok := h.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="`+engine.ExportFileName(m)+`"`)
	if _, err := w.Write(m.GPX); err != nil {
		slog.Error("Failed to write GPX response", "error", err)
	}
}

// HandleDelete removes a mission from the archive.
// DELETE /api/missions/{id}
func (h *MissionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.store.DeleteMission(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *MissionHandler) load(w http.ResponseWriter, r *http.Request) (*model.Mission, bool) {
	m, err := h.store.GetMission(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return nil, false
	}
	if err != nil {
		slog.Error("Failed to load mission", "id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return m, true
}

// handleEvents returns the recent mission events, oldest first.
// GET /api/events
func handleEvents(w http.ResponseWriter, r *http.Request) {
	lines := logging.GlobalEventCapture.Lines(0)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, lines)
}
