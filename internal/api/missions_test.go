package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldnav/pkg/logging"
	"fieldnav/pkg/model"
)

func exportOne(t *testing.T, f *fixture) *model.Mission {
	t.Helper()
	f.nav.StartRecording()
	f.src.walkNorth(3)
	f.nav.StopRecording()
	m, err := f.nav.ExportMission(t.Context())
	require.NoError(t, err)
	return m
}

func serveMissions(h *MissionHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/missions", h.HandleList)
	mux.HandleFunc("GET /api/missions/{id}", h.HandleGet)
	mux.HandleFunc("GET /api/missions/{id}/gpx", h.HandleGPX)
	mux.HandleFunc("DELETE /api/missions/{id}", h.HandleDelete)
	return mux
}

func TestNewMissionHandler_NilStore(t *testing.T) {
	assert.Nil(t, NewMissionHandler(nil))
}

func TestMissions_ListGetDownloadDelete(t *testing.T) {
	f := newFixture(t)
	m := exportOne(t, f)
	mux := serveMissions(NewMissionHandler(f.store))

	// List
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missions", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Mission
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, m.ID, list[0].ID)

	// Get
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missions/"+m.ID, http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"points":3`)
	assert.NotContains(t, w.Body.String(), "gpx")

	// Download
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missions/"+m.ID+"/gpx", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/gpx+xml", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".gpx")
	assert.Equal(t, 3, strings.Count(w.Body.String(), "<trkpt"))

	// Delete
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/missions/"+m.ID, http.NoBody))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missions/"+m.ID, http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/missions/"+m.ID, http.NoBody))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMissions_ListEmptyAndBadLimit(t *testing.T) {
	f := newFixture(t)
	mux := serveMissions(NewMissionHandler(f.store))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missions", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missions?limit=-1", http.NoBody))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleEvents(t *testing.T) {
	_, _ = logging.GlobalEventCapture.Write([]byte("[2026-06-01 09:00:00] [recording_started] Recording started"))

	w := httptest.NewRecorder()
	handleEvents(w, httptest.NewRequest(http.MethodGet, "/api/events", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var lines []string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&lines))
	require.NotEmpty(t, lines)
	assert.Contains(t, lines[len(lines)-1], "recording_started")
}
