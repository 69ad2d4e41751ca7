package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"kindle_digest/internal/domain"
)

// WatermarkStore persists the instant up to which posts were delivered. A
// zero time from Read means nothing was delivered yet.
type WatermarkStore interface {
	Read(ctx context.Context) (time.Time, error)
	Advance(ctx context.Context, t time.Time) error
}

type FeedList interface {
	Load(ctx context.Context) ([]domain.FeedSource, error)
}

type Collector interface {
	Collect(ctx context.Context, sources []domain.FeedSource, window domain.Window) []domain.FeedResult
}

type Packager interface {
	Package(ctx context.Context, issue domain.Issue) (*domain.Artifact, error)
	Cleanup(artifact *domain.Artifact) error
}

type Deliverer interface {
	Deliver(ctx context.Context, issue domain.Issue, artifact *domain.Artifact) error
}

type Publisher interface {
	PublishIssue(ctx context.Context, stats *domain.RoundStats) error
	Close() error
}
