package shared

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidChangeType = errors.New("invalid change type")

// SessionChange is the Kafka message announcing that one of a user's
// trade sessions was inserted, updated or deleted
type SessionChange struct {
	EventID       uuid.UUID  `json:"event_id"`
	SessionID     uuid.UUID  `json:"session_id"`
	UserID        uuid.UUID  `json:"user_id"`
	Type          ChangeType `json:"type"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

// NewSessionChange stamps a new event for the given row operation
func NewSessionChange(sessionID, userID uuid.UUID, changeType ChangeType, correlationID string) *SessionChange {
	return &SessionChange{
		EventID:       uuid.New(),
		SessionID:     sessionID,
		UserID:        userID,
		Type:          changeType,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
	}
}

// Validate checks the fields a consumer relies on
func (c *SessionChange) Validate() error {
	switch c.Type {
	case ChangeTypeInsert, ChangeTypeUpdate, ChangeTypeDelete:
	default:
		return ErrInvalidChangeType
	}
	if c.UserID == uuid.Nil {
		return errors.New("user id is required")
	}
	return nil
}
