package outbox_relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestKafkaChangePublisher_PublishChange(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishesKeyedByUserAndMarksProcessed", func(t *testing.T) {
		repo := new(MockOutboxRepo)
		producer := new(MockProducer)
		p := NewChangePublisher(repo, producer, newTestLogger())
		msg, change := newOutboxMessage(t, 7, 0)

		producer.On("Publish", ctx, change.UserID.String(), []byte(msg.Payload)).Return(nil).Once()
		repo.On("UpdateStatus", ctx, int64(7), shared.OutboxStatusProcessed).Return(nil).Once()

		require.NoError(t, p.PublishChange(ctx, msg))
		producer.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("BrokerFailureLeavesRowPending", func(t *testing.T) {
		repo := new(MockOutboxRepo)
		producer := new(MockProducer)
		p := NewChangePublisher(repo, producer, newTestLogger())
		msg, _ := newOutboxMessage(t, 7, 0)

		producer.On("Publish", ctx, mock.Anything, mock.Anything).Return(errors.New("broker unavailable")).Once()

		err := p.PublishChange(ctx, msg)

		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrMalformedPayload))
		repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("MalformedPayloadFailsRow", func(t *testing.T) {
		repo := new(MockOutboxRepo)
		producer := new(MockProducer)
		p := NewChangePublisher(repo, producer, newTestLogger())
		msg, _ := newOutboxMessage(t, 9, 0)
		msg.Payload = json.RawMessage(`{"type":"TRUNCATE"}`)

		repo.On("UpdateStatus", ctx, int64(9), shared.OutboxStatusFailedToPublish).Return(nil).Once()

		err := p.PublishChange(ctx, msg)

		assert.ErrorIs(t, err, ErrMalformedPayload)
		producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("StatusUpdateFailure", func(t *testing.T) {
		repo := new(MockOutboxRepo)
		producer := new(MockProducer)
		p := NewChangePublisher(repo, producer, newTestLogger())
		msg, _ := newOutboxMessage(t, 7, 0)

		producer.On("Publish", ctx, mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("UpdateStatus", ctx, int64(7), shared.OutboxStatusProcessed).Return(errors.New("conn reset")).Once()

		err := p.PublishChange(ctx, msg)
		assert.ErrorIs(t, err, ErrStatusNotRecorded)
		assert.NotErrorIs(t, err, ErrMalformedPayload)
	})
}
