package consumers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error
	Close() error
}

// MessageReader is the part of kafka.Reader the consumer loop needs
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer implements Consumer using Kafka
type KafkaConsumer struct {
	cfg       *config.KafkaConfig
	reader    MessageReader
	newReader func(topic, groupID string) MessageReader
	logger    *slog.Logger
	done      chan struct{}
	retryWait time.Duration
}

func NewKafkaConsumer(logger *slog.Logger, cfg *config.KafkaConfig) *KafkaConsumer {
	c := &KafkaConsumer{
		cfg:       cfg,
		logger:    logger,
		retryWait: time.Second,
	}
	c.newReader = c.kafkaReader
	return c
}

func (c *KafkaConsumer) kafkaReader(topic, groupID string) MessageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{c.cfg.Brokers},
		Topic:       topic,
		GroupID:     groupID,
		MinBytes:    c.cfg.MinBytes,
		MaxBytes:    c.cfg.MaxBytes,
		MaxWait:     c.cfg.MaxWait,
		StartOffset: c.cfg.StartOffset,
	})
}

// Subscribe starts a goroutine that feeds every message on topic to handler.
// Offsets are committed only after the handler succeeds.
func (c *KafkaConsumer) Subscribe(ctx context.Context, topic string, groupID string, handler MessageHandler) error {
	if c.reader != nil {
		return errors.New("consumer is already subscribed")
	}
	c.reader = c.newReader(topic, groupID)
	c.done = make(chan struct{})

	c.logger.Info("Subscribed to Kafka topic",
		"topic", topic,
		"group_id", groupID,
	)

	go c.run(ctx, topic, groupID, handler)
	return nil
}

func (c *KafkaConsumer) run(ctx context.Context, topic, groupID string, handler MessageHandler) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Context canceled, stopping consumer",
				"topic", topic,
				"group_id", groupID,
			)
			return
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to fetch message from Kafka",
				"topic", topic,
				"group_id", groupID,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryWait):
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if err := handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("Failed to process message, will not commit offset",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			continue
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message after successful processing",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Done is closed when the consume loop has exited
func (c *KafkaConsumer) Done() <-chan struct{} {
	return c.done
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}
