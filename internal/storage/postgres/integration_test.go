//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	version, dirty, err := RunMigrations(s.db)
	s.Require().NoError(err)
	s.False(dirty)
	s.Equal(uint(1), version)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM watermarks")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestRunMigrations_Idempotent() {
	version, _, err := RunMigrations(s.db)
	s.NoError(err)
	s.Equal(uint(1), version)
}

func (s *PostgresIntegrationSuite) TestWatermarkStore_Read_Empty() {
	store := NewWatermarkStore(s.db, "default")

	wm, err := store.Read(s.ctx)
	s.NoError(err)
	s.True(wm.IsZero())
}

func (s *PostgresIntegrationSuite) TestWatermarkStore_Advance() {
	store := NewWatermarkStore(s.db, "default")
	at := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

	s.NoError(store.Advance(s.ctx, at))

	wm, err := store.Read(s.ctx)
	s.NoError(err)
	s.True(wm.Equal(at))
}

func (s *PostgresIntegrationSuite) TestWatermarkStore_Advance_NeverMovesBackwards() {
	store := NewWatermarkStore(s.db, "default")
	at := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

	s.NoError(store.Advance(s.ctx, at))
	s.NoError(store.Advance(s.ctx, at.Add(-time.Hour)))

	wm, err := store.Read(s.ctx)
	s.NoError(err)
	s.True(wm.Equal(at))

	later := at.Add(24 * time.Hour)
	s.NoError(store.Advance(s.ctx, later))

	wm, err = store.Read(s.ctx)
	s.NoError(err)
	s.True(wm.Equal(later))
}

func (s *PostgresIntegrationSuite) TestWatermarkStore_NamesAreIndependent() {
	morning := NewWatermarkStore(s.db, "morning")
	evening := NewWatermarkStore(s.db, "evening")
	at := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)

	s.NoError(morning.Advance(s.ctx, at))

	wm, err := evening.Read(s.ctx)
	s.NoError(err)
	s.True(wm.IsZero())
}
