package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"kindle_digest/internal/domain"
)

// Config holds feed fetching configuration.
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration

	// FullText fetches the linked page for posts whose feed body is only a
	// short summary and keeps the extracted article instead.
	FullText bool
}

// Source fetches and parses RSS/Atom feeds.
type Source struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	timeout        time.Duration
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	fullText       bool
	logger         *slog.Logger
}

// New creates a new feed source. A zero RequestsPerSecond disables pacing.
func New(cfg Config, logger *slog.Logger) *Source {
	s := &Source{
		httpClient:     &http.Client{},
		timeout:        cfg.Timeout,
		userAgent:      cfg.UserAgent,
		maxAttempts:    max(cfg.MaxAttempts, 1),
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		fullText:       cfg.FullText,
		logger:         logger.With("component", "rss"),
	}
	if cfg.RequestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return s
}

// Fetch returns the posts of one feed published inside window, in the order
// the feed lists them. Any failure is returned as a *domain.FeedError.
func (s *Source) Fetch(ctx context.Context, src domain.FeedSource, window domain.Window) ([]domain.Post, error) {
	feed, err := s.fetchWithRetry(ctx, string(src))
	if err != nil {
		return nil, &domain.FeedError{Source: src, Err: err}
	}

	posts := toPosts(feed, src, window)
	if s.fullText {
		s.gatherFullText(ctx, posts)
	}

	s.logger.Debug("fetched feed",
		"feed", src,
		"items", len(feed.Items),
		"in_window", len(posts),
	)

	return posts, nil
}

func (s *Source) fetchWithRetry(ctx context.Context, url string) (*gofeed.Feed, error) {
	var feed *gofeed.Feed
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		feed, err = s.doRequest(ctx, url)
		if err == nil {
			return feed, nil
		}

		if attempt == s.maxAttempts || !isRetryable(err) {
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("request failed, retrying",
			"feed", url,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, err
}

func (s *Source) doRequest(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	resp, err := s.get(ctx, url, "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	return feed, nil
}

// requestContext applies the per-request timeout.
func (s *Source) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// get waits for the rate limiter and issues a GET. Any status but 200 is a
// *statusError; on success the caller owns resp.Body.
func (s *Source) get(ctx context.Context, url, accept string) (*http.Response, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &statusError{code: resp.StatusCode}
	}
	return resp, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if s.maxBackoff > 0 && backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.code)
}

// isRetryable reports whether err is worth another attempt: network
// failures, 5xx and 429 responses.
func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)
}

func toPosts(feed *gofeed.Feed, src domain.FeedSource, window domain.Window) []domain.Post {
	blog := strings.TrimSpace(feed.Title)
	if blog == "" {
		blog = string(src)
	}

	var posts []domain.Post
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		publishedAt := itemPublishedTime(item)
		if publishedAt.IsZero() || !window.Contains(publishedAt) {
			continue
		}

		posts = append(posts, domain.Post{
			Source:      src,
			PublishedAt: publishedAt,
			Title:       strings.TrimSpace(item.Title),
			Author:      itemAuthor(item, feed),
			Blog:        blog,
			Link:        item.Link,
			Body:        itemBody(item),
		})
	}
	return posts
}

func itemPublishedTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Time{}
}

func itemAuthor(item *gofeed.Item, feed *gofeed.Feed) string {
	if name := joinPeople(item.Authors); name != "" {
		return name
	}
	if name := joinPeople(feed.Authors); name != "" {
		return name
	}
	return "Unknown"
}

func joinPeople(people []*gofeed.Person) string {
	var names []string
	for _, p := range people {
		if p == nil {
			continue
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = strings.TrimSpace(p.Email)
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

func itemBody(item *gofeed.Item) string {
	if strings.TrimSpace(item.Content) != "" {
		return item.Content
	}
	return item.Description
}
