package domain

import "time"

// ApprovalStatus enumerates approval step states.
type ApprovalStatus string

const (
	ApprovalPending          ApprovalStatus = "PENDING"
	ApprovalForClarification ApprovalStatus = "FOR_CLARIFICATION"
	ApprovalApproved         ApprovalStatus = "APPROVED"
	ApprovalRejected         ApprovalStatus = "REJECTED"
)

// IsDecided reports whether the step no longer awaits the approver.
func (s ApprovalStatus) IsDecided() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

// ApprovalStep is a single approver work item on a ticket.
type ApprovalStep struct {
	ID         string
	TicketID   string
	Level      int
	Name       string
	ApproverID string
	Status     ApprovalStatus
	CreatedAt  time.Time
	DecidedAt  *time.Time
	RemindedAt *time.Time
}

// SelectorType names how an approver is chosen.
type SelectorType string

const (
	SelectorFixed              SelectorType = "FIXED"
	SelectorReportingManagerOf SelectorType = "REPORTING_MANAGER_OF"
	SelectorDepartmentHeadOf   SelectorType = "DEPARTMENT_HEAD_OF"
)

// ApproverSelector resolves to a concrete approver before the engine sees it.
type ApproverSelector struct {
	Type   SelectorType
	UserID string
}
