package model

import (
	"time"
)

// Mission is an exported recording, as archived and listed by the API.
type Mission struct {
	ID             string    `json:"id"` // uuid
	Name           string    `json:"name"`
	Points         int       `json:"points"`
	DistanceMeters float64   `json:"distance_m"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	CreatedAt      time.Time `json:"created_at"`

	// GPX holds the serialized document; omitted from listings.
	GPX []byte `json:"-"`
}

// Duration returns the time between the first and last recorded point.
func (m *Mission) Duration() time.Duration {
	if m.StartedAt.IsZero() || m.EndedAt.Before(m.StartedAt) {
		return 0
	}
	return m.EndedAt.Sub(m.StartedAt)
}

// MissionEventType classifies entries of the event log.
type MissionEventType string

const (
	EventRecordingStarted MissionEventType = "recording_started"
	EventRecordingStopped MissionEventType = "recording_stopped"
	EventMissionExported  MissionEventType = "mission_exported"
	EventMissionDiscarded MissionEventType = "mission_discarded"
	EventSensorFailure    MissionEventType = "sensor_failure"
)

// MissionEvent is one entry of the event log.
type MissionEvent struct {
	Type      MissionEventType `json:"type"`
	Title     string           `json:"title"`
	Summary   string           `json:"summary,omitempty"`
	MissionID string           `json:"mission_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
