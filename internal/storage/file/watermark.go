package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"kindle_digest/internal/domain"
)

// WatermarkStore keeps the watermark in the modification time of a file.
type WatermarkStore struct {
	path string
}

func NewWatermarkStore(path string) *WatermarkStore {
	return &WatermarkStore{path: path}
}

// Read returns the file's mtime. A missing file is the bootstrap case and
// yields the zero time.
func (s *WatermarkStore) Read(_ context.Context) (time.Time, error) {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: stat %s: %v", domain.ErrStoreUnavailable, s.path, err)
	}
	if !info.Mode().IsRegular() {
		return time.Time{}, fmt.Errorf("%w: %s is not a regular file", domain.ErrStoreUnavailable, s.path)
	}
	return info.ModTime(), nil
}

// Advance sets the file's mtime to t, creating the file when needed. Values
// not after the current watermark are ignored.
func (s *WatermarkStore) Advance(ctx context.Context, t time.Time) error {
	current, err := s.Read(ctx)
	if err != nil {
		return err
	}
	if !current.IsZero() && !t.After(current) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: create directory: %v", domain.ErrStoreUnavailable, err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", domain.ErrStoreUnavailable, s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrStoreUnavailable, s.path, err)
	}

	if err := os.Chtimes(s.path, t, t); err != nil {
		return fmt.Errorf("%w: set mtime: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}
