package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"fieldnav/pkg/db"
	"fieldnav/pkg/model"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Missions ---

func (s *SQLiteStore) SaveMission(ctx context.Context, m *model.Mission) error {
	if m.ID == "" {
		return fmt.Errorf("save mission: empty id")
	}
	doc, err := compress(m.GPX)
	if err != nil {
		return fmt.Errorf("save mission %s: %w", m.ID, err)
	}
	created := m.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	query := `INSERT OR REPLACE INTO missions (id, name, points, distance_m, started_at, ended_at, created_at, gpx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Points, m.DistanceMeters,
		toMillis(m.StartedAt), toMillis(m.EndedAt), toMillis(created), doc)
	if err != nil {
		return fmt.Errorf("save mission %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMission(ctx context.Context, id string) (*model.Mission, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, points, distance_m, started_at, ended_at, created_at, gpx FROM missions WHERE id = ?`, id)

	var (
		m                       model.Mission
		started, ended, created int64
		doc                     []byte
	)
	err := row.Scan(&m.ID, &m.Name, &m.Points, &m.DistanceMeters, &started, &ended, &created, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mission %s: %w", id, err)
	}
	m.StartedAt, m.EndedAt, m.CreatedAt = fromMillis(started), fromMillis(ended), fromMillis(created)

	m.GPX, err = decompress(doc)
	if err != nil {
		return nil, fmt.Errorf("get mission %s: %w", id, err)
	}
	return &m, nil
}

func (s *SQLiteStore) ListMissions(ctx context.Context, limit int) ([]*model.Mission, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, points, distance_m, started_at, ended_at, created_at
		FROM missions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list missions: %w", err)
	}
	defer rows.Close()

	var out []*model.Mission
	for rows.Next() {
		var (
			m                       model.Mission
			started, ended, created int64
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Points, &m.DistanceMeters, &started, &ended, &created); err != nil {
			return nil, fmt.Errorf("list missions: %w", err)
		}
		m.StartedAt, m.EndedAt, m.CreatedAt = fromMillis(started), fromMillis(ended), fromMillis(created)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM missions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete mission %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) PruneMissions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM missions WHERE created_at < ?", toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("prune missions: %w", err)
	}
	return res.RowsAffected()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// --- Compression Pooling ---

var (
	// Pool for gzip writers to reuse flate state
	gzipWriterPool = sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	// Pool for generic byte buffers
	bufferPool = sync.Pool{
		New: func() interface{} {
			return new(bytes.Buffer)
		},
	}
)

// compress gzips a GPX document; GPX is verbose XML and shrinks well.
func compress(data []byte) ([]byte, error) {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufferPool.Put(buf)

	w := gzipWriterPool.Get().(*gzip.Writer)
	defer gzipWriterPool.Put(w)
	w.Reset(buf)

	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	// Must copy because buf is returned to pool
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// decompress reverses compress. Data without a gzip header is returned as is.
func decompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now().UTC().Format("2006-01-02 15:04:05"))
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}
