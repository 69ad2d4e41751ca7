package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"kindle_digest/internal/domain"
)

// Fetcher retrieves the posts of one feed published inside a window.
type Fetcher interface {
	Fetch(ctx context.Context, src domain.FeedSource, window domain.Window) ([]domain.Post, error)
}

// Collector fans a window out over every feed with a bounded pool of
// workers and joins the results.
type Collector struct {
	fetcher Fetcher
	workers int
	logger  *slog.Logger
}

func New(fetcher Fetcher, workers int, logger *slog.Logger) *Collector {
	return &Collector{
		fetcher: fetcher,
		workers: max(workers, 1),
		logger:  logger.With("component", "collector"),
	}
}

type job struct {
	index  int
	source domain.FeedSource
	window domain.Window
}

type result struct {
	index int
	domain.FeedResult
}

// Collect returns one result per source, in source order, after every fetch
// has finished. A failing feed yields a result carrying its error and never
// affects the others.
func (c *Collector) Collect(ctx context.Context, sources []domain.FeedSource, window domain.Window) []domain.FeedResult {
	if len(sources) == 0 {
		return nil
	}

	jobs := make(chan job, len(sources))
	results := make(chan result, len(sources))

	workers := min(c.workers, len(sources))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- c.fetchOne(ctx, j)
			}
		}()
	}

	for i, src := range sources {
		jobs <- job{index: i, source: src, window: window}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]domain.FeedResult, len(sources))
	for r := range results {
		collected[r.index] = r.FeedResult

		if r.Err != nil {
			c.logger.Warn("feed failed", "feed", r.Source, "error", r.Err)
			continue
		}
		c.logger.Debug("feed collected", "feed", r.Source, "posts", len(r.Posts))
	}

	return collected
}

func (c *Collector) fetchOne(ctx context.Context, j job) (r result) {
	r.index = j.index
	r.Source = j.source

	defer func() {
		if p := recover(); p != nil {
			r.Posts = nil
			r.Err = &domain.FeedError{Source: j.source, Err: panicError{value: p}}
		}
	}()

	posts, err := c.fetcher.Fetch(ctx, j.source, j.window)
	if err != nil {
		var fe *domain.FeedError
		if !errors.As(err, &fe) {
			err = &domain.FeedError{Source: j.source, Err: err}
		}
		r.Err = err
		return r
	}
	r.Posts = posts
	return r
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("fetch panicked: %v", e.value)
}
