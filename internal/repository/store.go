package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// TicketRepository encapsulates ticket deadline persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate reads the ticket and locks it until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error)
	UpdateDeadline(ctx context.Context, ticket *domain.Ticket) error
	UpdateAssignee(ctx context.Context, id string, technicianID *string) error
}

// SLARepository reads SLA definitions.
type SLARepository interface {
	Create(ctx context.Context, sla *domain.SLADefinition) error
	GetByID(ctx context.Context, id string) (*domain.SLADefinition, error)
}

// ApprovalRepository stores approval steps.
type ApprovalRepository interface {
	Create(ctx context.Context, step *domain.ApprovalStep) error
	GetByID(ctx context.Context, id string) (*domain.ApprovalStep, error)
	GetForUpdate(ctx context.Context, id string) (*domain.ApprovalStep, error)
	ListPendingByApprover(ctx context.Context, approverID string) ([]domain.ApprovalStep, error)
	UpdateApprover(ctx context.Context, id, approverID string) error
	UpdateStatus(ctx context.Context, id string, status domain.ApprovalStatus, decidedAt *time.Time) error
	// ListAwaitingReminder pages, by id, through undecided steps last reminded
	// (or created) at or before cutoff.
	ListAwaitingReminder(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]domain.ApprovalStep, error)
	MarkReminded(ctx context.Context, id string, at time.Time) error
}

// DelegationRepository stores delegation records. Records are never deleted.
type DelegationRepository interface {
	Create(ctx context.Context, delegation *domain.Delegation) error
	GetByID(ctx context.Context, id string) (*domain.Delegation, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Delegation, error)
	List(ctx context.Context, filter domain.DelegationFilter) ([]domain.Delegation, error)
	// LockPerson serializes delegation writes for one (kind, original person) pair.
	LockPerson(ctx context.Context, kind domain.DelegationKind, originalPersonID string) error
	FindOverlapping(ctx context.Context, kind domain.DelegationKind, originalPersonID string, start, end time.Time) ([]domain.Delegation, error)
	FindActiveFor(ctx context.Context, kind domain.DelegationKind, originalPersonID string, at time.Time) (*domain.Delegation, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Delegation, error)
	Deactivate(ctx context.Context, id string, at time.Time, by *string) error
}

// DelegationLogRepository appends delegation audit entries.
type DelegationLogRepository interface {
	Create(ctx context.Context, entry *domain.DelegationLog) error
	ListByDelegation(ctx context.Context, delegationID string) ([]domain.DelegationLog, error)
}

// DiversionRepository stores diversion entries.
type DiversionRepository interface {
	Create(ctx context.Context, diversion *domain.Diversion) error
	ListByDelegation(ctx context.Context, delegationID string) ([]domain.Diversion, error)
	ListOpenByDelegation(ctx context.Context, delegationID string) ([]domain.Diversion, error)
	MarkReverted(ctx context.Context, id string, reversion domain.ReversionType, at time.Time) error
}

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

// OutboxRepository stores pending notifications.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error
	ListPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error
}

// StaffRepository reads the people directory.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}

// DepartmentRepository reads departments.
type DepartmentRepository interface {
	Create(ctx context.Context, department *domain.Department) error
	GetByID(ctx context.Context, id string) (*domain.Department, error)
}

// TxManager runs fn inside a transaction carried by the returned context.
// A non-nil error from fn rolls back every write made through that context.
type TxManager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles the repositories the engine works against.
type Store struct {
	Tickets        TicketRepository
	SLAs           SLARepository
	Approvals      ApprovalRepository
	Delegations    DelegationRepository
	DelegationLogs DelegationLogRepository
	Diversions     DiversionRepository
	History        TicketHistoryRepository
	Outbox         OutboxRepository
	Staff          StaffRepository
	Departments    DepartmentRepository
	Tx             TxManager
	Ping           func(ctx context.Context) error
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, domain.ErrItemNotFound)
}
