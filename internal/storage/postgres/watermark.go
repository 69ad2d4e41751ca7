package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"kindle_digest/internal/domain"
)

type WatermarkStore struct {
	db   *sqlx.DB
	name string
}

func NewWatermarkStore(db *sqlx.DB, name string) *WatermarkStore {
	return &WatermarkStore{db: db, name: name}
}

func (s *WatermarkStore) Read(ctx context.Context) (time.Time, error) {
	var wm time.Time
	err := s.db.GetContext(ctx, &wm, `SELECT watermark FROM watermarks WHERE name = $1`, s.name)
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing recorded yet
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return wm, nil
}

func (s *WatermarkStore) Advance(ctx context.Context, t time.Time) error {
	query := `
		INSERT INTO watermarks (name, watermark, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			watermark = GREATEST(watermarks.watermark, EXCLUDED.watermark),
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, s.name, t); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
