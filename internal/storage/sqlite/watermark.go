package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"kindle_digest/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS watermarks (
	name         TEXT PRIMARY KEY,
	watermark_ns INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);`

// Open connects to the database file at path and creates the schema.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create directory: %v", domain.ErrStoreUnavailable, err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", domain.ErrStoreUnavailable, err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create schema: %v", domain.ErrStoreUnavailable, err)
	}
	return db, nil
}

// WatermarkStore keeps named watermarks as unix nanoseconds, which compare
// correctly regardless of the zone they were recorded in.
type WatermarkStore struct {
	db   *sqlx.DB
	name string
}

func NewWatermarkStore(db *sqlx.DB, name string) *WatermarkStore {
	return &WatermarkStore{db: db, name: name}
}

func (s *WatermarkStore) Read(ctx context.Context) (time.Time, error) {
	var ns int64
	err := s.db.GetContext(ctx, &ns, `SELECT watermark_ns FROM watermarks WHERE name = ?`, s.name)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return time.Unix(0, ns), nil
}

func (s *WatermarkStore) Advance(ctx context.Context, t time.Time) error {
	query := `
		INSERT INTO watermarks (name, watermark_ns, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			watermark_ns = MAX(watermarks.watermark_ns, excluded.watermark_ns),
			updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, s.name, t.UnixNano(), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
