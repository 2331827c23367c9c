package domain

import "time"

// DelegationKind distinguishes approver and technician delegations.
type DelegationKind string

const (
	DelegationKindApprover   DelegationKind = "APPROVER"
	DelegationKindTechnician DelegationKind = "TECHNICIAN"
)

// Valid reports whether k is a known kind.
func (k DelegationKind) Valid() bool {
	return k == DelegationKindApprover || k == DelegationKindTechnician
}

// WorkItemKind returns the kind of work a delegation of this kind diverts.
func (k DelegationKind) WorkItemKind() WorkItemKind {
	if k == DelegationKindApprover {
		return WorkItemApproval
	}
	return WorkItemTicket
}

// DelegationStatus is derived, never stored.
type DelegationStatus string

const (
	DelegationScheduled DelegationStatus = "SCHEDULED"
	DelegationActive    DelegationStatus = "ACTIVE"
	DelegationExpired   DelegationStatus = "EXPIRED"
)

// Delegation is a time-boxed rule routing one person's work to a backup.
type Delegation struct {
	ID               string
	Kind             DelegationKind
	OriginalPersonID string
	BackupPersonID   string
	WindowStart      time.Time
	WindowEnd        time.Time
	DivertExisting   bool
	Reason           string
	IsActive         bool
	CreatedBy        *string
	CreatedAt        time.Time
	DeactivatedAt    *time.Time
	DeactivatedBy    *string
}

// Overlaps reports whether both inclusive windows share at least one instant.
func (d *Delegation) Overlaps(start, end time.Time) bool {
	return !d.WindowStart.After(end) && !d.WindowEnd.Before(start)
}

// Covers reports whether t falls inside the inclusive window.
func (d *Delegation) Covers(t time.Time) bool {
	return !t.Before(d.WindowStart) && !t.After(d.WindowEnd)
}

// StatusAt derives the delegation status at the given instant.
func (d *Delegation) StatusAt(now time.Time) DelegationStatus {
	switch {
	case !d.IsActive:
		return DelegationExpired
	case now.Before(d.WindowStart):
		return DelegationScheduled
	case now.After(d.WindowEnd):
		return DelegationExpired
	default:
		return DelegationActive
	}
}

// DelegationFilter narrows delegation listings.
type DelegationFilter struct {
	Kind             *DelegationKind
	OriginalPersonID *string
	BackupPersonID   *string
	ActiveOnly       bool
	EndsBefore       *time.Time
	EndsAfter        *time.Time
	Limit            int
	Offset           int
}

// DelegationAction is the verb recorded on a delegation log entry.
type DelegationAction string

const (
	DelegationActionCreated         DelegationAction = "CREATED"
	DelegationActionDiverted        DelegationAction = "DIVERTED"
	DelegationActionExpired         DelegationAction = "EXPIRED"
	DelegationActionDeactivated     DelegationAction = "DEACTIVATED"
	DelegationActionRouted          DelegationAction = "ROUTED"
	DelegationActionReversionFailed DelegationAction = "REVERSION_FAILED"
)

// DelegationLog is an append-only audit entry for a delegation.
type DelegationLog struct {
	ID           string
	DelegationID string
	Action       DelegationAction
	Details      map[string]any
	PerformedBy  *string
	CreatedAt    time.Time
}

// WorkItemKind is the type of item a diversion moved.
type WorkItemKind string

const (
	WorkItemApproval WorkItemKind = "APPROVAL"
	WorkItemTicket   WorkItemKind = "TICKET"
)

// ReversionType records how a diversion was closed.
type ReversionType string

const (
	ReversionManual           ReversionType = "MANUAL"
	ReversionExpired          ReversionType = "EXPIRED"
	ReversionAlreadyFinalized ReversionType = "ALREADY_FINALIZED"
	ReversionSuperseded       ReversionType = "SUPERSEDED"
)

// Diversion records one work item moved to a backup under a delegation.
type Diversion struct {
	ID               string
	DelegationID     string
	WorkItemKind     WorkItemKind
	WorkItemID       string
	TicketID         string
	OriginalPersonID string
	BackupPersonID   string
	DivertedAt       time.Time
	RevertedAt       *time.Time
	ReversionType    *ReversionType
}

// IsOpen reports whether the diversion has not been reverted.
func (d *Diversion) IsOpen() bool {
	return d.RevertedAt == nil
}
