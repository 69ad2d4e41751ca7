package domain

import "time"

// FeedFailure records why one feed contributed nothing to a round.
type FeedFailure struct {
	Source FeedSource
	Reason string
}

// RoundStats holds statistics about one collection round.
type RoundStats struct {
	RoundID   string
	Title     string // book title of the issue, empty until packaged
	Window    Window
	Feeds     int
	Failures  []FeedFailure
	Posts     int
	Artifact  string
	Delivered bool
	Duration  time.Duration
}

func (s *RoundStats) FailedFeeds() int {
	return len(s.Failures)
}
