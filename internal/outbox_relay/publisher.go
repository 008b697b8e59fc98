package outbox_relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chilli-trade-ledger/internal/domain/outbox"
	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/chilli-trade-ledger/internal/platform/messaging/producers"
)

// ErrMalformedPayload marks an outbox row whose payload is not a session
// change. Such rows are failed at once; retrying cannot fix them.
var ErrMalformedPayload = errors.New("malformed outbox payload")

// ErrStatusNotRecorded marks an event the broker accepted whose row could not
// be marked PROCESSED. The row stays PENDING without using up a retry.
var ErrStatusNotRecorded = errors.New("published but outbox status not recorded")

// ChangePublisher moves one outbox message onto the change topic
type ChangePublisher interface {
	PublishChange(ctx context.Context, message *outbox.Message) error
}

// KafkaChangePublisher implements ChangePublisher
type KafkaChangePublisher struct {
	outboxRepo outbox.Repository
	producer   producers.MessagePublisher
	logger     *slog.Logger
}

func NewChangePublisher(
	outboxRepo outbox.Repository,
	producer producers.MessagePublisher,
	logger *slog.Logger,
) ChangePublisher {
	return &KafkaChangePublisher{
		outboxRepo: outboxRepo,
		producer:   producer,
		logger:     logger,
	}
}

// PublishChange writes the event keyed by owner and marks the row PROCESSED.
// If the broker accepted the event but the status update failed, the row
// stays PENDING and the event is published again on a later poll; consumers
// treat change events as idempotent refresh triggers.
// That case returns ErrStatusNotRecorded.
func (p *KafkaChangePublisher) PublishChange(ctx context.Context, message *outbox.Message) error {
	change, err := message.GetSessionChange()
	if err == nil {
		err = change.Validate()
	}
	if err != nil {
		p.logger.Error("Outbox payload is not a valid session change",
			"outbox_id", message.ID, "event_id", message.EventID.String(), "error", err,
		)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to update outbox status to FAILED_TO_PUBLISH after decode error", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("%w: outbox %d: %v", ErrMalformedPayload, message.ID, err)
	}

	logger := p.logger
	if change.CorrelationID != "" {
		logger = p.logger.With("correlation_id", change.CorrelationID)
	}

	if err := p.producer.Publish(ctx, change.UserID.String(), []byte(message.Payload)); err != nil {
		return fmt.Errorf("failed to publish outbox %d: %w", message.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		logger.Error("Failed to update outbox message status to PROCESSED",
			"outbox_id", message.ID, "event_id", change.EventID.String(), "error", err,
		)
		return fmt.Errorf("%w: event %s, outbox %d: %v", ErrStatusNotRecorded, change.EventID, message.ID, err)
	}

	logger.Info("Published session change",
		"outbox_id", message.ID,
		"event_id", change.EventID.String(),
		"session_id", change.SessionID.String(),
		"change_type", string(change.Type),
	)
	return nil
}
