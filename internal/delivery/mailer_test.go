package delivery

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"kindle_digest/internal/domain"
)

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

func testConfig(encryption string) Config {
	return Config{
		Host:       "smtp.example.com",
		Port:       465,
		User:       "user",
		Password:   "secret",
		From:       "digest@example.com",
		To:         "reader@kindle.com",
		Encryption: encryption,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testArtifact(t *testing.T) (domain.Issue, *domain.Artifact) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "News - 2026-03-10.epub")
	require.NoError(t, os.WriteFile(path, []byte("epub"), 0o644))
	issue := domain.Issue{Title: "News", Date: time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)}
	return issue, &domain.Artifact{Path: path, Files: []string{path}}
}

func TestNew_Encryption(t *testing.T) {
	_, err := New(testConfig(EncryptionSSL), testLogger())
	assert.NoError(t, err)

	_, err = New(testConfig(EncryptionTLS), testLogger())
	assert.NoError(t, err)

	_, err = New(testConfig("NONE"), testLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSubject(t *testing.T) {
	issue := domain.Issue{Title: "Morning Paper", Date: time.Date(2026, 1, 2, 23, 0, 0, 0, time.UTC)}

	assert.Equal(t, "Morning Paper - 2026-01-02", Subject(issue))
}

func TestNewMessage(t *testing.T) {
	m, err := New(testConfig(EncryptionSSL), testLogger())
	require.NoError(t, err)
	issue, art := testArtifact(t)

	msg, err := m.NewMessage(issue, art)
	require.NoError(t, err)

	assert.Equal(t, []string{"News - 2026-03-10"}, msg.GetGenHeader(mail.HeaderSubject))
	require.Len(t, msg.GetAttachments(), 1)
	assert.Equal(t, "News - 2026-03-10.epub", msg.GetAttachments()[0].Name)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Hot off the press!")
	assert.Contains(t, buf.String(), "reader@kindle.com")
}

func TestNewMessage_InvalidAddress(t *testing.T) {
	cfg := testConfig(EncryptionTLS)
	cfg.To = "not an address"
	m, err := New(cfg, testLogger())
	require.NoError(t, err)
	issue, art := testArtifact(t)

	_, err = m.NewMessage(issue, art)
	assert.Error(t, err)
}

func TestDeliver(t *testing.T) {
	m, err := New(testConfig(EncryptionTLS), testLogger())
	require.NoError(t, err)
	fake := &fakeSender{}
	m.client = fake
	issue, art := testArtifact(t)

	require.NoError(t, m.Deliver(context.Background(), issue, art))
	assert.Len(t, fake.sent, 1)
}

func TestDeliver_SendFailure(t *testing.T) {
	m, err := New(testConfig(EncryptionSSL), testLogger())
	require.NoError(t, err)
	m.client = &fakeSender{err: errors.New("535 authentication failed")}
	issue, art := testArtifact(t)

	err = m.Deliver(context.Background(), issue, art)

	require.ErrorIs(t, err, domain.ErrDelivery)
	assert.Contains(t, err.Error(), "535")
}

type stalledSender struct{}

func (stalledSender) DialAndSendWithContext(ctx context.Context, _ ...*mail.Msg) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestDeliver_Timeout(t *testing.T) {
	cfg := testConfig(EncryptionSSL)
	cfg.Timeout = 20 * time.Millisecond
	m, err := New(cfg, testLogger())
	require.NoError(t, err)
	m.client = stalledSender{}
	issue, art := testArtifact(t)

	err = m.Deliver(context.Background(), issue, art)

	require.ErrorIs(t, err, domain.ErrDelivery)
	assert.Contains(t, err.Error(), context.DeadlineExceeded.Error())
}
