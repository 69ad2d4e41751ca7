package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindle_digest/internal/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func testStats() *domain.RoundStats {
	return &domain.RoundStats{
		RoundID: "round-1",
		Title:   "News - 2026-03-10",
		Window: domain.Window{
			Start: time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC),
			End:   time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC),
		},
		Feeds:    3,
		Failures: []domain.FeedFailure{{Source: "https://broken.example/feed", Reason: "503"}},
		Posts:    12,
		Artifact: "/tmp/News - 2026-03-10.epub",
	}
}

func TestNewIssueMessage(t *testing.T) {
	msg := NewIssueMessage(testStats())

	assert.Equal(t, ActionDelivered, msg.Action)
	assert.Equal(t, "round-1", msg.RoundID)
	assert.Equal(t, "News - 2026-03-10.epub", msg.Artifact)
	assert.Equal(t, 12, msg.Posts)
	assert.Equal(t, 3, msg.Feeds)
	assert.Equal(t, 1, msg.FailedFeeds)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestKafka_PublishIssue(t *testing.T) {
	w := &fakeWriter{}
	k := &Kafka{writer: w, topic: "issues", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	require.NoError(t, k.PublishIssue(context.Background(), testStats()))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("round-1"), w.msgs[0].Key)

	var received IssueMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &received))
	assert.Equal(t, "News - 2026-03-10", received.Title)
	assert.True(t, received.WindowEnd.Equal(time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)))

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafka_PublishIssueError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	k := &Kafka{writer: w, topic: "issues", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := k.PublishIssue(context.Background(), testStats())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}
