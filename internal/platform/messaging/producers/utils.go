package producers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/segmentio/kafka-go"
)

type topicRetry struct {
	attempts int
	backoff  time.Duration
}

var defaultTopicRetry = topicRetry{attempts: 5, backoff: 2 * time.Second}

// ensureTopic creates topic unless the broker already reports partitions for
// it. Partition reads are retried because a broker that has just started
// answers metadata requests with errors for a few seconds.
func ensureTopic(ctx context.Context, admin topicAdmin, topic string, cfg *config.KafkaConfig, retry topicRetry, log *slog.Logger) error {
	var (
		partitions []kafka.Partition
		err        error
	)
	for attempt := 1; attempt <= retry.attempts; attempt++ {
		partitions, err = admin.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			log.Info("Kafka topic exists", "topic", topic, "partitions", len(partitions))
			return nil
		}
		if err == nil {
			break
		}
		log.Warn("Failed to read topic partitions", "topic", topic, "attempt", attempt, "error", err)
		if attempt < retry.attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retry.backoff):
			}
		}
	}

	topicConfig := kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     max(cfg.NumPartitions, 1),
		ReplicationFactor: max(cfg.ReplicationFactor, 1),
	}
	if err := admin.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topic, err)
	}

	log.Info("Created Kafka topic",
		"topic", topic,
		"partitions", topicConfig.NumPartitions,
		"replication_factor", topicConfig.ReplicationFactor,
	)
	return nil
}

// dialAndEnsureTopic opens a short-lived admin connection for ensureTopic
func dialAndEnsureTopic(ctx context.Context, topic string, cfg *config.KafkaConfig, log *slog.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", cfg.Brokers)
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	return ensureTopic(ctx, conn, topic, cfg, defaultTopicRetry, log)
}
