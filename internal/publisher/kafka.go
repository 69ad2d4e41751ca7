package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"kindle_digest/internal/domain"
)

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes issue events keyed by round ID.
type Kafka struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewKafka(cfg KafkaConfig, logger *slog.Logger) *Kafka {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}

	logger.Info("kafka writer initialized", "brokers", cfg.Brokers, "topic", cfg.Topic)

	return &Kafka{writer: writer, topic: cfg.Topic, logger: logger}
}

func (k *Kafka) PublishIssue(ctx context.Context, stats *domain.RoundStats) error {
	body, err := json.Marshal(NewIssueMessage(stats))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(stats.RoundID),
		Value: body,
		Time:  time.Now(),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write message to %s: %w", k.topic, err)
	}

	k.logger.Debug("published issue", "round_id", stats.RoundID, "topic", k.topic)
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}
