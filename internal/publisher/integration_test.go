//go:build integration

package publisher

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"kindle_digest/internal/domain"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) RabbitMQConfig {
	return RabbitMQConfig{
		URL:        s.amqpURL,
		Exchange:   "test-exchange-" + name,
		RoutingKey: "test-routing-key-" + name,
		QueueName:  "test-queue-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("connect"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	err = pub.Close()
	s.NoError(err)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishIssue() {
	cfg := s.config("issue")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	stats := &domain.RoundStats{
		RoundID:  "4b1c0f9e-round",
		Title:    "News - 2026-03-10",
		Feeds:    4,
		Posts:    17,
		Artifact: "/tmp/work/News - 2026-03-10.epub",
		Failures: []domain.FeedFailure{{Source: "https://down.example/rss", Reason: "timeout"}},
	}

	err = pub.PublishIssue(s.ctx, stats)
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal("application/json", msg.ContentType)
	s.Equal("4b1c0f9e-round", msg.CorrelationId)

	var received IssueMessage
	err = json.Unmarshal(msg.Body, &received)
	s.NoError(err)
	s.Equal(ActionDelivered, received.Action)
	s.Equal("News - 2026-03-10", received.Title)
	s.Equal("News - 2026-03-10.epub", received.Artifact)
	s.Equal(17, received.Posts)
	s.Equal(1, received.FailedFeeds)
	s.False(received.Timestamp.IsZero())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_MessagePersistence() {
	cfg := s.config("persist")

	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	err = pub.PublishIssue(s.ctx, &domain.RoundStats{RoundID: "persist"})
	s.NoError(err)

	msg := s.consumeMessage(cfg)
	s.Require().NotNil(msg)

	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)
}

func (s *RabbitMQIntegrationSuite) consumeMessage(cfg RabbitMQConfig) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(cfg.QueueName, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}