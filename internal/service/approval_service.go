package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/repository"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

// PersonDirectory answers the org-chart questions approver selectors need.
type PersonDirectory interface {
	ReportingManagerOf(ctx context.Context, personID string) (string, error)
	DepartmentHeadOf(ctx context.Context, personID string) (string, error)
}

// staffDirectory reads the org chart from the staff and department tables.
type staffDirectory struct {
	staff       repository.StaffRepository
	departments repository.DepartmentRepository
}

// NewStaffDirectory builds a PersonDirectory backed by the store.
func NewStaffDirectory(store *repository.Store) PersonDirectory {
	return &staffDirectory{staff: store.Staff, departments: store.Departments}
}

func (d *staffDirectory) member(ctx context.Context, personID string) (*domain.StaffMember, error) {
	member, err := d.staff.GetByID(ctx, personID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("staff member", map[string]any{"person_id": personID})
		}
		return nil, err
	}
	return member, nil
}

func (d *staffDirectory) ReportingManagerOf(ctx context.Context, personID string) (string, error) {
	member, err := d.member(ctx, personID)
	if err != nil {
		return "", err
	}
	if member.ManagerID == nil || *member.ManagerID == "" {
		return "", apperrors.NewValidationError("person has no reporting manager", map[string]any{"person_id": personID})
	}
	return *member.ManagerID, nil
}

func (d *staffDirectory) DepartmentHeadOf(ctx context.Context, personID string) (string, error) {
	member, err := d.member(ctx, personID)
	if err != nil {
		return "", err
	}
	if member.DepartmentID == nil {
		return "", apperrors.NewValidationError("person has no department", map[string]any{"person_id": personID})
	}
	department, err := d.departments.GetByID(ctx, *member.DepartmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return "", apperrors.NewNotFound("department", map[string]any{"department_id": *member.DepartmentID})
		}
		return "", err
	}
	if department.HeadID == nil || *department.HeadID == "" {
		return "", apperrors.NewValidationError("department has no head", map[string]any{"department_id": department.ID})
	}
	return *department.HeadID, nil
}

// ApproverResolver turns a selector into a concrete approver id.
type ApproverResolver struct {
	directory PersonDirectory
}

// NewApproverResolver builds a resolver over the given directory.
func NewApproverResolver(directory PersonDirectory) *ApproverResolver {
	return &ApproverResolver{directory: directory}
}

// Resolve returns the approver the selector points at.
func (r *ApproverResolver) Resolve(ctx context.Context, selector domain.ApproverSelector) (string, error) {
	userID := strings.TrimSpace(selector.UserID)
	if userID == "" {
		return "", apperrors.NewValidationError("selector user_id is required", nil)
	}
	switch selector.Type {
	case domain.SelectorFixed:
		return userID, nil
	case domain.SelectorReportingManagerOf:
		return r.directory.ReportingManagerOf(ctx, userID)
	case domain.SelectorDepartmentHeadOf:
		return r.directory.DepartmentHeadOf(ctx, userID)
	default:
		return "", apperrors.NewValidationError("unknown selector type", map[string]any{"type": selector.Type})
	}
}

// CreateStepInput describes a new approval step.
type CreateStepInput struct {
	TicketID string
	Level    int
	Name     string
	Selector domain.ApproverSelector
}

// ApprovalService creates approval steps and routes them through delegations.
type ApprovalService struct {
	store       *repository.Store
	resolver    *ApproverResolver
	delegations *DelegationService
	logger      *zap.Logger
}

// NewApprovalService builds the service.
func NewApprovalService(store *repository.Store, resolver *ApproverResolver, delegations *DelegationService, logger *zap.Logger) *ApprovalService {
	return &ApprovalService{store: store, resolver: resolver, delegations: delegations, logger: logger}
}

// CreateStep creates a pending approval step. When the resolved approver has
// an active delegation the step goes straight to the backup.
func (s *ApprovalService) CreateStep(ctx context.Context, input CreateStepInput, actor domain.Actor) (*domain.ApprovalStep, error) {
	if input.Level < 1 {
		return nil, apperrors.NewValidationError("level must be at least 1", map[string]any{"level": input.Level})
	}
	approverID, err := s.resolver.Resolve(ctx, input.Selector)
	if err != nil {
		return nil, err
	}

	step := &domain.ApprovalStep{
		ID:         uuid.NewString(),
		TicketID:   input.TicketID,
		Level:      input.Level,
		Name:       strings.TrimSpace(input.Name),
		ApproverID: approverID,
		Status:     domain.ApprovalPending,
	}
	if step.Name == "" {
		step.Name = fmt.Sprintf("Level %d approval", input.Level)
	}

	err = s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.store.Tickets.GetForUpdate(ctx, input.TicketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": input.TicketID})
			}
			return err
		}
		if ticket.Status.IsTerminal() {
			return apperrors.NewInvalidTransition("add an approval", ticket.Status)
		}
		if err := s.store.Approvals.Create(ctx, step); err != nil {
			return err
		}
		routed, err := s.delegations.RouteWorkItem(ctx, domain.WorkItemApproval, step.ID, actor)
		if err != nil {
			return err
		}
		if routed != nil {
			step.ApproverID = routed.BackupPersonID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("approval step created",
		zap.String("approval_step_id", step.ID),
		zap.String("ticket_id", step.TicketID),
		zap.String("approver_id", step.ApproverID))
	return step, nil
}
