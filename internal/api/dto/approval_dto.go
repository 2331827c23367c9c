package dto

import (
	"time"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// SelectorRequest names how the approver is chosen.
type SelectorRequest struct {
	Type   string `json:"type" validate:"required,oneof=FIXED REPORTING_MANAGER_OF DEPARTMENT_HEAD_OF"`
	UserID string `json:"user_id" validate:"required"`
}

// CreateApprovalRequest payload.
type CreateApprovalRequest struct {
	TicketID string          `json:"ticket_id" validate:"required"`
	Level    int             `json:"level" validate:"min=1"`
	Name     string          `json:"name" validate:"max=200"`
	Selector SelectorRequest `json:"selector"`
}

// ApprovalStepResponse describes a stored step.
type ApprovalStepResponse struct {
	ID         string                `json:"id"`
	TicketID   string                `json:"ticket_id"`
	Level      int                   `json:"level"`
	Name       string                `json:"name"`
	ApproverID string                `json:"approver_id"`
	Status     domain.ApprovalStatus `json:"status"`
	CreatedAt  time.Time             `json:"created_at"`
}

// NewApprovalStepResponse maps a step.
func NewApprovalStepResponse(step *domain.ApprovalStep) ApprovalStepResponse {
	return ApprovalStepResponse{
		ID:         step.ID,
		TicketID:   step.TicketID,
		Level:      step.Level,
		Name:       step.Name,
		ApproverID: step.ApproverID,
		Status:     step.Status,
		CreatedAt:  step.CreatedAt,
	}
}
