package api

import (
	"net/http"
	"runtime"
	"sort"
	"time"

	"fieldnav/pkg/engine"
	"fieldnav/pkg/tracker"
	"fieldnav/pkg/trail"
)

// StatsHandler reports sample counters and process diagnostics.
type StatsHandler struct {
	tracker *tracker.Tracker
	nav     *engine.Engine
	hub     *StreamHub
	started time.Time
}

// NewStatsHandler creates a StatsHandler. nav and hub may be nil.
func NewStatsHandler(t *tracker.Tracker, nav *engine.Engine, hub *StreamHub) *StatsHandler {
	return &StatsHandler{
		tracker: t,
		nav:     nav,
		hub:     hub,
		started: time.Now(),
	}
}

type StreamStatsDTO struct {
	Stream     string `json:"stream"`
	Accepted   int64  `json:"accepted"`
	Throttled  int64  `json:"throttled"`
	Duplicate  int64  `json:"duplicate"`
	Invalid    int64  `json:"invalid"`
	Errors     int64  `json:"errors"`
	AcceptRate int64  `json:"accept_rate"` // percent of offered samples
}

type DiagnosticsDTO struct {
	UptimeSec     int64  `json:"uptime_sec"`
	MemoryMB      uint64 `json:"memory_mb"`
	Goroutines    int    `json:"goroutines"`
	StreamClients int    `json:"stream_clients"`
}

type StatsResponse struct {
	Streams     []StreamStatsDTO `json:"streams"`
	Trail       *trail.Stats     `json:"trail,omitempty"`
	Diagnostics DiagnosticsDTO   `json:"diagnostics"`
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	snapshot := h.tracker.Snapshot()

	resp := StatsResponse{
		Streams:     make([]StreamStatsDTO, 0, len(snapshot)),
		Diagnostics: h.gatherDiagnostics(),
	}
	for stream, s := range snapshot {
		offered := s.Accepted + s.Throttled + s.Duplicate + s.Invalid
		rate := int64(0)
		if offered > 0 {
			rate = (s.Accepted * 100) / offered
		}
		resp.Streams = append(resp.Streams, StreamStatsDTO{
			Stream:     stream,
			Accepted:   s.Accepted,
			Throttled:  s.Throttled,
			Duplicate:  s.Duplicate,
			Invalid:    s.Invalid,
			Errors:     s.Errors,
			AcceptRate: rate,
		})
	}
	sort.Slice(resp.Streams, func(i, j int) bool { return resp.Streams[i].Stream < resp.Streams[j].Stream })

	if h.nav != nil {
		st := h.nav.TrailStats()
		resp.Trail = &st
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *StatsHandler) gatherDiagnostics() DiagnosticsDTO {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	d := DiagnosticsDTO{
		UptimeSec:  int64(time.Since(h.started).Seconds()),
		MemoryMB:   bToMb(m.Sys),
		Goroutines: runtime.NumGoroutine(),
	}
	if h.hub != nil {
		d.StreamClients = h.hub.Clients()
	}
	return d
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
