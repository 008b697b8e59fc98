// Package outbox_relay publishes the session_outbox table to Kafka.
package outbox_relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chilli-trade-ledger/internal/config"
	"github.com/chilli-trade-ledger/internal/domain/outbox"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
)

// Results recorded in the outbox metric
const (
	resultPublished = "published"
	resultRetry     = "retry"
	resultFailed    = "failed"
	resultMalformed = "malformed"
	resultUnmarked  = "unmarked"
)

// Poller processes pending outbox messages
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        ChangePublisher
	metrics          *metrics.Metrics
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	outboxRepo outbox.Repository,
	publisher ChangePublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		metrics:          m,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	for _, msg := range messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := p.publisher.PublishChange(ctx, msg)
		if err == nil {
			p.metrics.OutboxMessageHandled(resultPublished)
			continue
		}

		if errors.Is(err, ErrMalformedPayload) {
			p.metrics.OutboxMessageHandled(resultMalformed)
			continue
		}

		// Delivered already: republished next poll, not counted as a failed attempt.
		if errors.Is(err, ErrStatusNotRecorded) {
			p.logger.Warn("Outbox message published but left PENDING", "outbox_id", msg.ID, "error", err)
			p.metrics.OutboxMessageHandled(resultUnmarked)
			continue
		}

		p.logger.Error("Failed to publish outbox message",
			"outbox_id", msg.ID, "event_id", msg.EventID.String(), "current_attempts", msg.Attempts, "error", err,
		)

		if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
			p.logger.Error("Failed to increment attempts for outbox message", "outbox_id", msg.ID, "error", errInc)
			continue
		}

		if !msg.RetriesExhausted(p.maxRetryAttempts) {
			p.metrics.OutboxMessageHandled(resultRetry)
			continue
		}

		p.logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
			"outbox_id", msg.ID, "event_id", msg.EventID.String(), "attempts_made", msg.Attempts+1,
		)
		if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
			p.logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH after max retries", "outbox_id", msg.ID, "error", errUpdate)
			continue
		}
		p.metrics.OutboxMessageHandled(resultFailed)
	}
	return nil
}
