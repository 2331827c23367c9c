package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/repository"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

// AssignmentResult reports who ended up owning a ticket.
type AssignmentResult struct {
	TicketID             string  `json:"ticket_id"`
	RequestedTechnician  string  `json:"requested_technician_id"`
	AssignedTechnicianID string  `json:"assigned_technician_id"`
	DelegationID         *string `json:"delegation_id,omitempty"`
}

// AssignmentService handles ticket assignment operations.
type AssignmentService struct {
	store       *repository.Store
	delegations *DelegationService
	logger      *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(store *repository.Store, delegations *DelegationService, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{store: store, delegations: delegations, logger: logger}
}

// AssignTechnician points a ticket at a technician. When that technician is
// covered by an active delegation the ticket goes to the backup instead.
func (s *AssignmentService) AssignTechnician(ctx context.Context, ticketID, technicianID string, actor domain.Actor) (*AssignmentResult, error) {
	technicianID = strings.TrimSpace(technicianID)
	if technicianID == "" {
		return nil, apperrors.NewValidationError("technician_id is required", nil)
	}

	result := &AssignmentResult{TicketID: ticketID, RequestedTechnician: technicianID, AssignedTechnicianID: technicianID}
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.store.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
			}
			return err
		}
		if ticket.Status.IsTerminal() {
			return apperrors.NewInvalidTransition("assign a technician", ticket.Status)
		}

		oldAssignee := ticket.AssignedTechnicianID
		if err := s.store.Tickets.UpdateAssignee(ctx, ticketID, &technicianID); err != nil {
			return err
		}
		if err := appendHistory(ctx, s.store.History, ticketID, actor, domain.ChangeTypeTechnicianAssigned,
			"Technician assigned: "+technicianID,
			map[string]any{"assigned_technician_id": oldAssignee},
			map[string]any{"assigned_technician_id": technicianID},
		); err != nil {
			return err
		}

		routed, err := s.delegations.RouteWorkItem(ctx, domain.WorkItemTicket, ticketID, actor)
		if err != nil {
			return err
		}
		if routed != nil {
			result.AssignedTechnicianID = routed.BackupPersonID
			result.DelegationID = &routed.DelegationID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("technician assigned",
		zap.String("ticket_id", ticketID),
		zap.String("requested_technician_id", technicianID),
		zap.String("assigned_technician_id", result.AssignedTechnicianID))
	return result, nil
}
