package producers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

// Reasons attached to dead-lettered session change events. Callers may
// append detail after a colon.
const (
	DLQReasonUnmarshal     = "unmarshal_failed"
	DLQReasonInvalidEvent  = "invalid_event"
	DLQReasonHandlerFailed = "handler_failed"
)

const (
	headerDLQReason      = "dlq-reason"
	headerDLQSourceTopic = "dlq-source-topic"
)

var ErrDLQDisabled = errors.New("DLQ producer not initialized")

// DeadLetter is the value written to the DLQ topic. Event holds the original
// value verbatim when it was valid JSON; RawEvent holds it as text otherwise.
type DeadLetter struct {
	Key         string          `json:"key"`
	Event       json.RawMessage `json:"event,omitempty"`
	RawEvent    string          `json:"raw_event,omitempty"`
	SourceTopic string          `json:"source_topic,omitempty"`
	Reason      string          `json:"reason"`
	FailedAt    time.Time       `json:"failed_at"`
}

func newDeadLetter(key string, value []byte, sourceTopic, reason string, now time.Time) DeadLetter {
	dl := DeadLetter{
		Key:         key,
		SourceTopic: sourceTopic,
		Reason:      reason,
		FailedAt:    now.UTC(),
	}
	if json.Valid(value) {
		dl.Event = json.RawMessage(value)
	} else {
		dl.RawEvent = string(value)
	}
	return dl
}

type DLQProducer struct {
	logger      *slog.Logger
	writer      KafkaWriter
	dlqTopic    string
	sourceTopic string
	now         func() time.Time
}

// NewDLQProducer returns a nil producer when cfg.DLQTopic is empty
func NewDLQProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*DLQProducer, error) {
	if cfg.DLQTopic == "" {
		logger.Info("DLQ topic is not configured, dead letters are disabled")
		return nil, nil
	}

	if err := dialAndEnsureTopic(ctx, cfg.DLQTopic, cfg, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure DLQ topic %s exists: %w", cfg.DLQTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.DLQTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &DLQProducer{
		logger:      logger,
		writer:      writer,
		dlqTopic:    cfg.DLQTopic,
		sourceTopic: cfg.SessionChangeTopic,
		now:         time.Now,
	}, nil
}

func (p *DLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	if p == nil || p.writer == nil {
		return ErrDLQDisabled
	}

	now := time.Now
	if p.now != nil {
		now = p.now
	}

	value, err := json.Marshal(newDeadLetter(key, originalMessageValue, p.sourceTopic, reason, now()))
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerDLQReason, Value: []byte(reason)},
			{Key: headerDLQSourceTopic, Value: []byte(p.sourceTopic)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish dead letter",
			"topic", p.dlqTopic,
			"key", key,
			"reason", reason,
			"error", err,
		)
		return fmt.Errorf("failed to publish message to DLQ %s: %w", p.dlqTopic, err)
	}

	p.logger.Warn("Session change dead-lettered",
		"topic", p.dlqTopic,
		"key", key,
		"reason", reason,
	)
	return nil
}

func (p *DLQProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close DLQ writer for topic %s: %w", p.dlqTopic, err)
	}
	p.logger.Info("Closed DLQ producer", "topic", p.dlqTopic)
	return nil
}
