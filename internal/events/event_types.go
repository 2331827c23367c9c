package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventEscalationTriggered EventType = "escalation_triggered"
	EventDelegationCreated   EventType = "delegation_created"
	EventDelegationExpired   EventType = "delegation_expired"
	EventApprovalReminder    EventType = "approval_reminder"
)

// Event represents a domain event relayed from the outbox.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   []byte    `json:"payload"`
}

// EscalationTriggeredPayload is addressed to the level's targets.
type EscalationTriggeredPayload struct {
	TicketID    string    `json:"ticket_id"`
	ExternalKey string    `json:"external_key,omitempty"`
	Level       int       `json:"level"`
	Targets     []string  `json:"targets"`
	Timing      string    `json:"timing"`
	DueAt       time.Time `json:"due_at"`
	FiredAt     time.Time `json:"fired_at"`
}

// DelegationCreatedPayload is addressed to the original and backup person.
type DelegationCreatedPayload struct {
	DelegationID  string    `json:"delegation_id"`
	Kind          string    `json:"kind"`
	OriginalID    string    `json:"original_person_id"`
	BackupID      string    `json:"backup_person_id"`
	WindowStart   time.Time `json:"window_start"`
	WindowEnd     time.Time `json:"window_end"`
	DivertedCount int       `json:"diverted_count"`
}

// DelegationExpiredPayload is addressed to the original and backup person.
type DelegationExpiredPayload struct {
	DelegationID  string `json:"delegation_id"`
	Kind          string `json:"kind"`
	OriginalID    string `json:"original_person_id"`
	BackupID      string `json:"backup_person_id"`
	RevertedCount int    `json:"reverted_count"`
	Reason        string `json:"reason"`
}

// ApprovalReminderPayload nudges the current approver of a pending step.
type ApprovalReminderPayload struct {
	ApprovalStepID string    `json:"approval_step_id"`
	TicketID       string    `json:"ticket_id"`
	ApproverID     string    `json:"approver_id"`
	Level          int       `json:"level"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	PendingSince   time.Time `json:"pending_since"`
}

type addressed interface {
	Recipients() []string
}

// Recipients decodes the payload and lists who the event is addressed to.
// Unknown event types have no recipients.
func (e Event) Recipients() ([]string, error) {
	var payload addressed
	switch e.Type {
	case EventEscalationTriggered:
		payload = &EscalationTriggeredPayload{}
	case EventDelegationCreated:
		payload = &DelegationCreatedPayload{}
	case EventDelegationExpired:
		payload = &DelegationExpiredPayload{}
	case EventApprovalReminder:
		payload = &ApprovalReminderPayload{}
	default:
		return nil, nil
	}
	if err := json.Unmarshal(e.Payload, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return payload.Recipients(), nil
}

// Recipients lists the escalation targets.
func (p EscalationTriggeredPayload) Recipients() []string {
	return p.Targets
}

// Recipients is the approver who still has to act.
func (p ApprovalReminderPayload) Recipients() []string {
	return []string{p.ApproverID}
}

// Recipients lists who should hear about a delegation event.
func (p DelegationCreatedPayload) Recipients() []string {
	return []string{p.OriginalID, p.BackupID}
}

// Recipients lists who should hear about a delegation event.
func (p DelegationExpiredPayload) Recipients() []string {
	return []string{p.OriginalID, p.BackupID}
}
