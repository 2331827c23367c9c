package domain

import (
	"encoding/json"
	"time"
)

// OutboxEvent is a notification recorded in the same transaction as its cause.
type OutboxEvent struct {
	ID            string
	Kind          string
	Payload       json.RawMessage
	CreatedAt     time.Time
	Attempts      int
	NextAttemptAt time.Time
	DeliveredAt   *time.Time
	LastError     *string
}
