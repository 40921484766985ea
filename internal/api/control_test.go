package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldnav/pkg/gpx"
	"fieldnav/pkg/model"
	"fieldnav/pkg/radar"
	"fieldnav/pkg/trail"
)

func post(t *testing.T, handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, r)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestControl_RecordingFlow(t *testing.T) {
	f := newFixture(t)
	h := NewControlHandler(f.nav)

	w := post(t, h.HandleExport, "/api/recording/export", "")
	assert.Equal(t, http.StatusNoContent, w.Code, "empty export is a guarded no-op")

	w = post(t, h.HandleStartRecording, "/api/recording/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"recording","discarded":0}`, w.Body.String())

	f.src.walkNorth(3)

	w = post(t, h.HandleStopRecording, "/api/recording/stop", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"save_pending","ready":true}`, w.Body.String())

	w = post(t, h.HandleExport, "/api/recording/export", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var m model.Mission
	require.NoError(t, json.NewDecoder(w.Body).Decode(&m))
	assert.Equal(t, 3, m.Points)

	stored, err := f.store.GetMission(t.Context(), m.ID)
	require.NoError(t, err)
	pts, err := gpx.Decode(stored.GPX)
	require.NoError(t, err)
	assert.Len(t, pts, 3)

	assert.Equal(t, trail.StateIdle, f.nav.TrailStats().State)
}

func TestControl_Discard(t *testing.T) {
	f := newFixture(t)
	h := NewControlHandler(f.nav)

	post(t, h.HandleStartRecording, "/api/recording/start", "")
	f.src.walkNorth(2)
	post(t, h.HandleStopRecording, "/api/recording/stop", "")

	w := post(t, h.HandleDiscard, "/api/recording/discard", "")
	assert.JSONEq(t, `{"discarded":2}`, w.Body.String())
}

func TestControl_Recenter(t *testing.T) {
	f := newFixture(t)
	h := NewControlHandler(f.nav)

	w := post(t, h.HandleRecenter, "/api/radar/recenter", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	f.src.walkNorth(2)
	w = post(t, h.HandleRecenter, "/api/radar/recenter", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = post(t, h.HandleResetTrail, "/api/trail/reset", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestControl_Mode(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		wantMode radar.Mode
	}{
		{name: "toggle", body: "", wantCode: http.StatusOK, wantMode: radar.ModeNorthUp},
		{name: "explicit", body: `{"mode":"heading-up"}`, wantCode: http.StatusOK, wantMode: radar.ModeHeadingUp},
		{name: "unknown", body: `{"mode":"sideways"}`, wantCode: http.StatusBadRequest, wantMode: radar.ModeHeadingUp},
		{name: "malformed", body: `{`, wantCode: http.StatusBadRequest, wantMode: radar.ModeHeadingUp},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			h := NewControlHandler(f.nav)
			w := post(t, h.HandleMode, "/api/radar/mode", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantMode, f.nav.Mode())
		})
	}
}

func TestControl_ZoomPersists(t *testing.T) {
	f := newFixture(t)
	h := NewControlHandler(f.nav)

	w := post(t, h.HandleZoom, "/api/radar/zoom", `{"zoom":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"zoom":1}`, w.Body.String())

	v, ok := f.store.GetState(t.Context(), "radar_zoom")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	w = post(t, h.HandleZoom, "/api/radar/zoom", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestControl_CompassUnsupported(t *testing.T) {
	f := newFixture(t)
	h := NewControlHandler(f.nav)
	w := post(t, h.HandleEnableCompass, "/api/compass/enable", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestControl_View(t *testing.T) {
	f := newFixture(t)
	h := NewControlHandler(f.nav)

	w := post(t, h.HandleView, "/api/view", `{"hidden":true}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, f.nav.Hidden())

	w = post(t, h.HandleView, "/api/view", `nope`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
