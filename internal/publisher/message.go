package publisher

import (
	"path/filepath"
	"time"

	"kindle_digest/internal/domain"
)

const ActionDelivered = "delivered"

// IssueMessage announces an issue that reached the reader.
type IssueMessage struct {
	Action      string    `json:"action"`
	RoundID     string    `json:"round_id"`
	Title       string    `json:"title"`
	Artifact    string    `json:"artifact"`
	Posts       int       `json:"posts"`
	Feeds       int       `json:"feeds"`
	FailedFeeds int       `json:"failed_feeds"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewIssueMessage(stats *domain.RoundStats) IssueMessage {
	return IssueMessage{
		Action:      ActionDelivered,
		RoundID:     stats.RoundID,
		Title:       stats.Title,
		Artifact:    filepath.Base(stats.Artifact),
		Posts:       stats.Posts,
		Feeds:       stats.Feeds,
		FailedFeeds: stats.FailedFeeds(),
		WindowStart: stats.Window.Start.UTC(),
		WindowEnd:   stats.Window.End.UTC(),
		Timestamp:   time.Now().UTC(),
	}
}
