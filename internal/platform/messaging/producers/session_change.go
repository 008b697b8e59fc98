package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// SessionChangeProducer writes session change events to the change topic.
// Writes are synchronous: the outbox relay only marks a row processed once
// the broker has acknowledged it.
type SessionChangeProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewSessionChangeProducer ensures the change topic exists and opens a writer
func NewSessionChangeProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*SessionChangeProducer, error) {
	if cfg.SessionChangeTopic == "" {
		return nil, fmt.Errorf("kafka session change topic is not configured")
	}

	if err := dialAndEnsureTopic(ctx, cfg.SessionChangeTopic, cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure session change topic %s exists: %w", cfg.SessionChangeTopic, err)
	}

	writer := &kafka.Writer{
		Addr:  kafka.TCP(cfg.Brokers),
		Topic: cfg.SessionChangeTopic,
		// Keyed by user id so one user's changes stay ordered within a partition
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: cfg.MaxWait,
	}

	return &SessionChangeProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.SessionChangeTopic,
	}, nil
}

func (p *SessionChangeProducer) Publish(ctx context.Context, key string, value interface{}) error {
	var payload []byte
	switch v := value.(type) {
	case []byte:
		payload = v
	case json.RawMessage:
		payload = v
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal session change: %w", err)
		}
		payload = encoded
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish session change",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish session change to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published session change",
		"topic", p.topic,
		"key", key,
	)
	return nil
}

func (p *SessionChangeProducer) Close() error {
	p.logger.Info("Closing session change producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close session change writer for topic %s: %w", p.topic, err)
	}
	return nil
}
