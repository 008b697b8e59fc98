package outbox

import (
	"encoding/json"
	"time"

	"github.com/chilli-trade-ledger/internal/domain/shared"
	"github.com/google/uuid"
)

// Message stores a session change event until the relay publishes it
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	SessionID     uuid.UUID           `json:"session_id"`
	UserID        uuid.UUID           `json:"user_id"`
	ChangeType    shared.ChangeType   `json:"change_type"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

func NewMessage(change *shared.SessionChange) (*Message, error) {
	payload, err := json.Marshal(change)
	if err != nil {
		return nil, err
	}

	return &Message{
		EventID:    change.EventID,
		SessionID:  change.SessionID,
		UserID:     change.UserID,
		ChangeType: change.Type,
		Payload:    payload,
		Status:     shared.OutboxStatusPending,
		CreatedAt:  time.Now(),
	}, nil
}

// RetriesExhausted reports whether the publish attempt in progress is the
// last one allowed. Attempts counts the failures recorded so far.
func (m *Message) RetriesExhausted(maxAttempts int) bool {
	return m.Attempts+1 >= maxAttempts
}

// GetSessionChange decodes the event carried in the payload
func (m *Message) GetSessionChange() (*shared.SessionChange, error) {
	var change shared.SessionChange
	if err := json.Unmarshal(m.Payload, &change); err != nil {
		return nil, err
	}
	return &change, nil
}
