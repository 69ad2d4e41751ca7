package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
)

type WatermarkStoreSuite struct {
	suite.Suite
	ctx  context.Context
	path string
	db   *sqlx.DB
}

func (s *WatermarkStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.path = filepath.Join(s.T().TempDir(), "state", "digest.db")

	db, err := Open(s.ctx, s.path)
	s.Require().NoError(err)
	s.db = db
}

func (s *WatermarkStoreSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func TestWatermarkStoreSuite(t *testing.T) {
	suite.Run(t, new(WatermarkStoreSuite))
}

func (s *WatermarkStoreSuite) TestRead_Empty() {
	wm, err := NewWatermarkStore(s.db, "default").Read(s.ctx)

	s.NoError(err)
	s.True(wm.IsZero())
}

func (s *WatermarkStoreSuite) TestAdvance_PersistsAcrossReopen() {
	at := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	s.Require().NoError(NewWatermarkStore(s.db, "default").Advance(s.ctx, at))
	s.Require().NoError(s.db.Close())

	db, err := Open(s.ctx, s.path)
	s.Require().NoError(err)
	s.db = db

	wm, err := NewWatermarkStore(s.db, "default").Read(s.ctx)
	s.NoError(err)
	s.True(wm.Equal(at))
}

func (s *WatermarkStoreSuite) TestAdvance_Monotonic() {
	store := NewWatermarkStore(s.db, "default")
	at := time.Date(2026, 3, 10, 6, 0, 0, 0, time.FixedZone("CET", 3600))

	s.NoError(store.Advance(s.ctx, at))
	s.NoError(store.Advance(s.ctx, at))
	s.NoError(store.Advance(s.ctx, at.Add(-time.Minute)))

	wm, err := store.Read(s.ctx)
	s.NoError(err)
	s.True(wm.Equal(at))

	later := at.Add(time.Hour)
	s.NoError(store.Advance(s.ctx, later))

	wm, err = store.Read(s.ctx)
	s.NoError(err)
	s.True(wm.Equal(later))
}

func (s *WatermarkStoreSuite) TestNamesAreIndependent() {
	s.NoError(NewWatermarkStore(s.db, "a").Advance(s.ctx, time.Now()))

	wm, err := NewWatermarkStore(s.db, "b").Read(s.ctx)
	s.NoError(err)
	s.True(wm.IsZero())
}
