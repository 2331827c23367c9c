package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeSLAAttached         TicketChangeType = "SLA_ATTACHED"
	ChangeTypeTimerStopped        TicketChangeType = "SLA_TIMER_STOPPED"
	ChangeTypeTimerStarted        TicketChangeType = "SLA_TIMER_STARTED"
	ChangeTypeEscalationTriggered TicketChangeType = "ESCALATION_TRIGGERED"
	ChangeTypeTechnicianDiverted  TicketChangeType = "TECHNICIAN_DIVERTED"
	ChangeTypeTechnicianReverted  TicketChangeType = "TECHNICIAN_REVERTED"
	ChangeTypeApprovalDiverted    TicketChangeType = "APPROVAL_DIVERTED"
	ChangeTypeApprovalReverted    TicketChangeType = "APPROVAL_REVERTED"
	ChangeTypeApprovalRouted      TicketChangeType = "APPROVAL_ROUTED"
	ChangeTypeTicketFinalized     TicketChangeType = "TICKET_FINALIZED"
	ChangeTypeTechnicianAssigned  TicketChangeType = "TECHNICIAN_ASSIGNED"
)

// ActorType indicates who caused a change.
type ActorType string

const (
	ActorTypeStaff  ActorType = "STAFF"
	ActorTypeSystem ActorType = "SYSTEM"
)

// Actor identifies the caller of an operation. A nil ID means the scheduler.
type Actor struct {
	Type ActorType
	ID   *string
}

// SystemActor is used by sweeps.
var SystemActor = Actor{Type: ActorTypeSystem}

// StaffActor builds an actor for an authenticated operator.
func StaffActor(id string) Actor {
	return Actor{Type: ActorTypeStaff, ID: &id}
}

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID            string
	TicketID      string
	ChangedByType ActorType
	ChangedByID   *string
	ChangeType    TicketChangeType
	Summary       string
	OldValue      map[string]any
	NewValue      map[string]any
	CreatedAt     time.Time
}
