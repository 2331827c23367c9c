package dto

import (
	"time"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// AttachSLARequest payload. StartedAt defaults to now and an empty SLAID to
// the default SLA for the ticket priority.
type AttachSLARequest struct {
	SLAID     string     `json:"sla_id" validate:"omitempty,max=64"`
	StartedAt *time.Time `json:"started_at"`
}

// StopTimerRequest payload. The reason is checked by the timer itself so the
// MISSING_REASON code reaches the caller.
type StopTimerRequest struct {
	Reason string `json:"reason"`
}

// FinalizeRequest payload.
type FinalizeRequest struct {
	Status string `json:"status" validate:"required,oneof=RESOLVED CLOSED CANCELLED"`
}

// AssignTechnicianRequest payload.
type AssignTechnicianRequest struct {
	TechnicianID string `json:"technician_id" validate:"required"`
}

// TicketDeadlineResponse summarizes a ticket's deadline fields after a mutation.
type TicketDeadlineResponse struct {
	ID                   string              `json:"id"`
	Status               domain.TicketStatus `json:"status"`
	SLAID                *string             `json:"sla_id"`
	OperationalHoursOnly bool                `json:"operational_hours_only"`
	SLAMinutesTotal      *int                `json:"sla_minutes_total"`
	SLAStartedAt         *time.Time          `json:"sla_started_at"`
	DueAt                *time.Time          `json:"due_at"`
	RemainingMinutes     *int                `json:"remaining_minutes"`
	ResolvedAt           *time.Time          `json:"resolved_at"`
	ClosedAt             *time.Time          `json:"closed_at"`
}

// NewTicketDeadlineResponse maps a ticket.
func NewTicketDeadlineResponse(t *domain.Ticket) TicketDeadlineResponse {
	return TicketDeadlineResponse{
		ID:                   t.ID,
		Status:               t.Status,
		SLAID:                t.SLAID,
		OperationalHoursOnly: t.OperationalHoursOnly,
		SLAMinutesTotal:      t.SLAMinutesTotal,
		SLAStartedAt:         t.SLAStartedAt,
		DueAt:                t.DueAt,
		RemainingMinutes:     t.RemainingMinutes,
		ResolvedAt:           t.ResolvedAt,
		ClosedAt:             t.ClosedAt,
	}
}
