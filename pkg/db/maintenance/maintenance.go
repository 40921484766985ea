// Package maintenance keeps the mission archive tidy at startup.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldnav/pkg/geo"
	"fieldnav/pkg/gpx"
	"fieldnav/pkg/model"
	"fieldnav/pkg/store"
	"fieldnav/pkg/trail"
)

const importStatePrefix = "import_mtime:"

// Options selects the maintenance tasks.
type Options struct {
	// ImportDir is scanned for .gpx files that are added to the archive. Empty disables.
	ImportDir string
	// Retention removes missions older than this. Zero keeps everything.
	Retention time.Duration
}

// Run executes all maintenance tasks: import and pruning.
// Failures are logged and never stop startup.
func Run(ctx context.Context, s store.Store, opts Options) error {
	slog.Info("Starting database maintenance...")

	if opts.ImportDir != "" {
		n, err := importDir(ctx, s, opts.ImportDir)
		if err != nil {
			slog.Error("GPX import failed", "error", err)
		} else {
			slog.Info("GPX import check completed", "imported", n)
		}
	}

	if opts.Retention > 0 {
		n, err := s.PruneMissions(ctx, time.Now().Add(-opts.Retention))
		if err != nil {
			slog.Error("Mission pruning failed", "error", err)
		} else {
			slog.Info("Mission pruning completed", "removed", n)
		}
	}

	return nil
}

// importDir archives every GPX file whose modification time differs from the last import.
func importDir(ctx context.Context, s store.Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read import dir: %w", err)
	}

	count := 0
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".gpx") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		imported, err := importFile(ctx, s, path)
		if err != nil {
			slog.Warn("Skipping GPX file", "path", path, "error", err)
			continue
		}
		if imported {
			count++
		}
	}
	return count, nil
}

func importFile(ctx context.Context, s store.Store, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("failed to stat gpx: %w", err)
	}
	fileMTime := info.ModTime().UTC().Format(time.RFC3339)

	key := importStatePrefix + filepath.Base(path)
	if stored, found := s.GetState(ctx, key); found && stored == fileMTime {
		return false, nil // Up to date
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read gpx: %w", err)
	}
	pts, err := gpx.Decode(doc)
	if err != nil {
		return false, err
	}
	if len(pts) == 0 {
		return false, gpx.ErrEmptyTrack
	}

	// The id is derived from the file name so a modified file replaces its earlier import.
	m := &model.Mission{
		ID:             uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.Base(path))).String(),
		Name:           strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Points:         len(pts),
		DistanceMeters: geo.PathDistance(trail.Points(pts)),
		StartedAt:      pts[0].Timestamp,
		EndedAt:        pts[len(pts)-1].Timestamp,
		CreatedAt:      time.Now(),
		GPX:            doc,
	}
	if err := s.SaveMission(ctx, m); err != nil {
		return false, err
	}
	slog.Info("Imported GPX file", "path", path, "mission", m.ID, "points", m.Points)

	if err := s.SetState(ctx, key, fileMTime); err != nil {
		return true, fmt.Errorf("failed to update state: %w", err)
	}
	return true, nil
}
