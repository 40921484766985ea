package store

import (
	"context"
	"errors"
	"time"

	"fieldnav/pkg/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// MissionStore archives exported missions.
type MissionStore interface {
	SaveMission(ctx context.Context, m *model.Mission) error
	// GetMission returns the mission including its GPX document.
	GetMission(ctx context.Context, id string) (*model.Mission, error)
	// ListMissions returns the newest missions first, without GPX documents.
	ListMissions(ctx context.Context, limit int) ([]*model.Mission, error)
	DeleteMission(ctx context.Context, id string) error
	// PruneMissions deletes missions created before the cutoff and returns how many were removed.
	PruneMissions(ctx context.Context, before time.Time) (int64, error)
}

// StateStore handles persistent application state.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, bool)
	SetState(ctx context.Context, key, val string) error
	DeleteState(ctx context.Context, key string) error
}

// Store is the aggregate of all persistence interfaces.
type Store interface {
	MissionStore
	StateStore

	// Close closes the store connection.
	Close() error
}
