package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kindle_digest/internal/domain"
)

const (
	defaultNotifyTimeout = 10 * time.Second
	advanceTimeout       = 30 * time.Second
)

type RoundConfig struct {
	Title    string
	Lookback time.Duration

	// Location is the zone the issue is dated in.
	Location *time.Location

	// AbortWhenAllFeedsFail fails the round instead of advancing past an
	// empty window in which no feed could be fetched.
	AbortWhenAllFeedsFail bool
	NotifyTimeout         time.Duration
}

// RoundService runs one collection round: compute the window, fetch, package,
// deliver and advance the watermark.
type RoundService struct {
	watermarks WatermarkStore
	feeds      FeedList
	collector  Collector
	packager   Packager
	deliverer  Deliverer
	publisher  Publisher
	logger     *slog.Logger
	config     RoundConfig

	now   func() time.Time
	newID func() string
}

// NewRoundService wires a round. publisher may be nil.
func NewRoundService(
	watermarks WatermarkStore,
	feeds FeedList,
	collector Collector,
	packager Packager,
	deliverer Deliverer,
	publisher Publisher,
	logger *slog.Logger,
	cfg RoundConfig,
) *RoundService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	return &RoundService{
		watermarks: watermarks,
		feeds:      feeds,
		collector:  collector,
		packager:   packager,
		deliverer:  deliverer,
		publisher:  publisher,
		logger:     logger,
		config:     cfg,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Run executes a round. The watermark only moves when the round found
// nothing new or its issue was delivered; on every other outcome it is left
// untouched so the next round retries the same posts. Once an issue has been
// delivered the advance no longer depends on ctx being live.
func (s *RoundService) Run(ctx context.Context) (*domain.RoundStats, error) {
	started := time.Now()
	roundStart := s.now().In(s.config.Location)

	stats := &domain.RoundStats{RoundID: s.newID()}
	logger := s.logger.With("round_id", stats.RoundID)

	watermark, err := s.watermarks.Read(ctx)
	if err != nil {
		return stats, fmt.Errorf("read watermark: %w", err)
	}

	window := domain.NewWindow(watermark, s.config.Lookback, roundStart)
	stats.Window = window

	logger.Info("starting round",
		"watermark", watermark,
		"bootstrap", watermark.IsZero(),
		"window_start", window.Start,
		"window_end", window.End,
	)

	sources, err := s.feeds.Load(ctx)
	if err != nil {
		return stats, fmt.Errorf("load feed list: %w", err)
	}
	stats.Feeds = len(sources)

	results := s.collector.Collect(ctx, sources, window)
	for _, r := range results {
		if !r.OK() {
			stats.Failures = append(stats.Failures, domain.FeedFailure{Source: r.Source, Reason: r.Err.Error()})
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("round interrupted: %w", err)
	}
	if s.config.AbortWhenAllFeedsFail && len(sources) > 0 && stats.FailedFeeds() == len(sources) {
		return stats, fmt.Errorf("%w: %d of %d", domain.ErrAllFeedsFailed, stats.FailedFeeds(), len(sources))
	}

	posts := domain.MergePosts(results)
	domain.SortPosts(posts)
	stats.Posts = len(posts)

	logger.Info("collected posts",
		"feeds", stats.Feeds,
		"failed_feeds", stats.FailedFeeds(),
		"posts", stats.Posts,
	)

	if len(posts) == 0 {
		logger.Info("no new posts, skipping issue")
	} else {
		issue := domain.Issue{Title: s.config.Title, Date: roundStart, Posts: posts}
		if err := s.deliverIssue(ctx, logger, issue, stats); err != nil {
			return stats, err
		}
	}

	if err := s.advance(ctx, roundStart); err != nil {
		return stats, fmt.Errorf("advance watermark: %w", err)
	}

	if stats.Delivered {
		s.notify(ctx, logger, stats)
	}

	stats.Duration = time.Since(started)

	logger.Info("round completed",
		"posts", stats.Posts,
		"delivered", stats.Delivered,
		"failed_feeds", stats.FailedFeeds(),
		"watermark", roundStart,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *RoundService) deliverIssue(ctx context.Context, logger *slog.Logger, issue domain.Issue, stats *domain.RoundStats) error {
	logger.Info("compiling issue", "title", issue.Title, "posts", len(issue.Posts))

	artifact, err := s.packager.Package(ctx, issue)
	if err != nil {
		return wrapSentinel(domain.ErrPackaging, "package issue", err)
	}
	defer func() {
		if err := s.packager.Cleanup(artifact); err != nil {
			logger.Warn("failed to clean up issue files", "error", err)
		}
	}()

	stats.Title = issue.Title
	stats.Artifact = artifact.Path

	if err := s.deliverer.Deliver(ctx, issue, artifact); err != nil {
		return wrapSentinel(domain.ErrDelivery, "deliver issue", err)
	}
	stats.Delivered = true
	return nil
}

func (s *RoundService) advance(ctx context.Context, roundStart time.Time) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), advanceTimeout)
	defer cancel()

	return s.watermarks.Advance(ctx, roundStart)
}

// notify announces a delivered issue. Failures are logged only.
func (s *RoundService) notify(ctx context.Context, logger *slog.Logger, stats *domain.RoundStats) {
	if s.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.NotifyTimeout)
	defer cancel()

	if err := s.publisher.PublishIssue(ctx, stats); err != nil {
		logger.Warn("failed to publish issue event", "error", err)
	}
}

func wrapSentinel(sentinel error, op string, err error) error {
	if errors.Is(err, sentinel) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel, err)
}
