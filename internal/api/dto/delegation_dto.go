package dto

import (
	"time"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/service"
)

// CreateDelegationRequest payload. Dates are calendar days (YYYY-MM-DD).
type CreateDelegationRequest struct {
	Kind             string `json:"kind" validate:"required,oneof=APPROVER TECHNICIAN"`
	OriginalPersonID string `json:"original_person_id" validate:"required"`
	BackupPersonID   string `json:"backup_person_id" validate:"required"`
	StartDate        string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate          string `json:"end_date" validate:"required,datetime=2006-01-02"`
	DivertExisting   bool   `json:"divert_existing"`
	Reason           string `json:"reason" validate:"max=500"`
}

// DelegationResponse is a delegation with its derived status.
type DelegationResponse struct {
	ID               string                  `json:"id"`
	Kind             domain.DelegationKind   `json:"kind"`
	OriginalPersonID string                  `json:"original_person_id"`
	BackupPersonID   string                  `json:"backup_person_id"`
	StartDate        string                  `json:"start_date"`
	EndDate          string                  `json:"end_date"`
	WindowStart      time.Time               `json:"window_start"`
	WindowEnd        time.Time               `json:"window_end"`
	DivertExisting   bool                    `json:"divert_existing"`
	Reason           string                  `json:"reason"`
	IsActive         bool                    `json:"is_active"`
	Status           domain.DelegationStatus `json:"status"`
	DivertedCount    int                     `json:"diverted_count"`
	CreatedBy        *string                 `json:"created_by"`
	CreatedAt        time.Time               `json:"created_at"`
	DeactivatedAt    *time.Time              `json:"deactivated_at"`
}

// DiversionResponse describes one diverted work item.
type DiversionResponse struct {
	ID               string                `json:"id"`
	WorkItemKind     domain.WorkItemKind   `json:"work_item_kind"`
	WorkItemID       string                `json:"work_item_id"`
	TicketID         string                `json:"ticket_id"`
	OriginalPersonID string                `json:"original_person_id"`
	BackupPersonID   string                `json:"backup_person_id"`
	DivertedAt       time.Time             `json:"diverted_at"`
	RevertedAt       *time.Time            `json:"reverted_at"`
	ReversionType    *domain.ReversionType `json:"reversion_type"`
}

// DelegationLogResponse is one audit entry.
type DelegationLogResponse struct {
	ID          string                  `json:"id"`
	Action      domain.DelegationAction `json:"action"`
	Details     map[string]any          `json:"details"`
	PerformedBy *string                 `json:"performed_by"`
	CreatedAt   time.Time               `json:"created_at"`
}

// DelegationDetailResponse adds diversions and logs.
type DelegationDetailResponse struct {
	DelegationResponse
	Diversions []DiversionResponse     `json:"diversions"`
	Logs       []DelegationLogResponse `json:"logs"`
}

// NewDelegationResponse maps a service view. Dates are rendered in loc.
func NewDelegationResponse(v service.DelegationView, loc *time.Location) DelegationResponse {
	return DelegationResponse{
		ID:               v.ID,
		Kind:             v.Kind,
		OriginalPersonID: v.OriginalPersonID,
		BackupPersonID:   v.BackupPersonID,
		StartDate:        v.WindowStart.In(loc).Format(domain.DateLayout),
		EndDate:          v.WindowEnd.In(loc).Format(domain.DateLayout),
		WindowStart:      v.WindowStart,
		WindowEnd:        v.WindowEnd,
		DivertExisting:   v.DivertExisting,
		Reason:           v.Reason,
		IsActive:         v.IsActive,
		Status:           v.Status,
		DivertedCount:    v.DivertedCount,
		CreatedBy:        v.CreatedBy,
		CreatedAt:        v.CreatedAt,
		DeactivatedAt:    v.DeactivatedAt,
	}
}

// NewDelegationDetailResponse maps a service detail.
func NewDelegationDetailResponse(d *service.DelegationDetail, loc *time.Location) DelegationDetailResponse {
	diversions := make([]DiversionResponse, 0, len(d.Diversions))
	for _, entry := range d.Diversions {
		diversions = append(diversions, DiversionResponse{
			ID:               entry.ID,
			WorkItemKind:     entry.WorkItemKind,
			WorkItemID:       entry.WorkItemID,
			TicketID:         entry.TicketID,
			OriginalPersonID: entry.OriginalPersonID,
			BackupPersonID:   entry.BackupPersonID,
			DivertedAt:       entry.DivertedAt,
			RevertedAt:       entry.RevertedAt,
			ReversionType:    entry.ReversionType,
		})
	}
	logs := make([]DelegationLogResponse, 0, len(d.Logs))
	for _, entry := range d.Logs {
		logs = append(logs, DelegationLogResponse{
			ID:          entry.ID,
			Action:      entry.Action,
			Details:     entry.Details,
			PerformedBy: entry.PerformedBy,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return DelegationDetailResponse{
		DelegationResponse: NewDelegationResponse(d.DelegationView, loc),
		Diversions:         diversions,
		Logs:               logs,
	}
}
