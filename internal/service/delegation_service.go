package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/deadline"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/events"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/repository"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

// CreateDelegationInput carries a new delegation request. Window bounds are
// calendar dates; only their day matters.
type CreateDelegationInput struct {
	Kind             domain.DelegationKind
	OriginalPersonID string
	BackupPersonID   string
	WindowStart      time.Time
	WindowEnd        time.Time
	DivertExisting   bool
	Reason           string
}

// DelegationView is a delegation with its derived status.
type DelegationView struct {
	domain.Delegation
	Status        domain.DelegationStatus
	DivertedCount int
}

// DelegationDetail adds diversions and audit entries to a view.
type DelegationDetail struct {
	DelegationView
	Diversions []domain.Diversion
	Logs       []domain.DelegationLog
}

// ReversionResult summarizes how a delegation's diversions were closed.
type ReversionResult struct {
	DelegationID     string `json:"delegation_id"`
	AlreadyInactive  bool   `json:"already_inactive"`
	Reverted         int    `json:"reverted"`
	AlreadyFinalized int    `json:"already_finalized"`
	Superseded       int    `json:"superseded"`
}

// reversionError names the work item a reversion failed on.
type reversionError struct {
	workItemID string
	err        error
}

func (e *reversionError) Error() string {
	return fmt.Sprintf("revert work item %s: %v", e.workItemID, e.err)
}

func (e *reversionError) Unwrap() error {
	return e.err
}

// DelegationService owns delegation records and the diversions they cause.
type DelegationService struct {
	store   *repository.Store
	calc    *deadline.Calculator
	logger  *zap.Logger
	metrics *observability.Metrics
	sweep   SweepOptions
}

// NewDelegationService builds the service.
func NewDelegationService(store *repository.Store, calc *deadline.Calculator, logger *zap.Logger, metrics *observability.Metrics, sweep SweepOptions) *DelegationService {
	return &DelegationService{store: store, calc: calc, logger: logger, metrics: metrics, sweep: sweep}
}

func (s *DelegationService) view(d domain.Delegation) DelegationView {
	return DelegationView{Delegation: d, Status: d.StatusAt(s.calc.Now())}
}

// CreateDelegation validates and stores a delegation. When DivertExisting is
// set and the window covers today, the original person's open work moves to
// the backup in the same transaction.
func (s *DelegationService) CreateDelegation(ctx context.Context, input CreateDelegationInput, actor domain.Actor) (*DelegationView, error) {
	if !input.Kind.Valid() {
		return nil, apperrors.NewValidationError("kind must be APPROVER or TECHNICIAN", map[string]any{"kind": input.Kind})
	}
	if input.OriginalPersonID == "" || input.BackupPersonID == "" {
		return nil, apperrors.NewValidationError("original and backup person are required", nil)
	}
	if input.OriginalPersonID == input.BackupPersonID {
		return nil, apperrors.NewSameOriginalAndBackup(input.OriginalPersonID)
	}

	cal := s.calc.Calendar()
	start := cal.StartOfDay(input.WindowStart)
	end := cal.EndOfDay(input.WindowEnd)
	if end.Before(start) {
		return nil, apperrors.NewInvalidWindow(start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	}
	now := s.calc.Now()
	if end.Before(now) {
		return nil, apperrors.NewPastEndDate(end.Format(domain.DateLayout))
	}

	record := domain.Delegation{
		ID:               uuid.NewString(),
		Kind:             input.Kind,
		OriginalPersonID: input.OriginalPersonID,
		BackupPersonID:   input.BackupPersonID,
		WindowStart:      start,
		WindowEnd:        end,
		DivertExisting:   input.DivertExisting,
		Reason:           input.Reason,
		IsActive:         true,
		CreatedBy:        actor.ID,
	}

	var diverted []domain.Diversion
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		diverted = nil
		if err := s.store.Delegations.LockPerson(ctx, record.Kind, record.OriginalPersonID); err != nil {
			return err
		}
		conflicts, err := s.store.Delegations.FindOverlapping(ctx, record.Kind, record.OriginalPersonID, start, end)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return apperrors.NewOverlappingDelegation(&conflicts[0])
		}
		if err := s.store.Delegations.Create(ctx, &record); err != nil {
			if errors.Is(err, domain.ErrOverlappingDelegation) {
				return apperrors.NewOverlappingDelegation(nil)
			}
			return err
		}

		if record.DivertExisting && record.Covers(now) {
			diverted, err = s.divertExisting(ctx, &record, actor, now)
			if err != nil {
				return err
			}
		}

		if err := appendDelegationLog(ctx, s.store.DelegationLogs, record.ID, domain.DelegationActionCreated, actor, map[string]any{
			"kind":               record.Kind,
			"original_person_id": record.OriginalPersonID,
			"backup_person_id":   record.BackupPersonID,
			"window_start":       record.WindowStart.Format(domain.DateLayout),
			"window_end":         record.WindowEnd.Format(domain.DateLayout),
			"divert_existing":    record.DivertExisting,
			"diverted_count":     len(diverted),
			"reason":             record.Reason,
		}); err != nil {
			return err
		}
		return enqueue(ctx, s.store.Outbox, events.EventDelegationCreated, events.DelegationCreatedPayload{
			DelegationID:  record.ID,
			Kind:          string(record.Kind),
			OriginalID:    record.OriginalPersonID,
			BackupID:      record.BackupPersonID,
			WindowStart:   record.WindowStart,
			WindowEnd:     record.WindowEnd,
			DivertedCount: len(diverted),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	for _, d := range diverted {
		s.metrics.RecordDiversion(string(d.WorkItemKind))
	}
	s.logger.Info("delegation created",
		zap.String("delegation_id", record.ID),
		zap.String("kind", string(record.Kind)),
		zap.String("original_person_id", record.OriginalPersonID),
		zap.String("backup_person_id", record.BackupPersonID),
		zap.Int("diverted_count", len(diverted)))

	view := s.view(record)
	view.DivertedCount = len(diverted)
	return &view, nil
}

// divertExisting moves the original person's open work to the backup.
func (s *DelegationService) divertExisting(ctx context.Context, d *domain.Delegation, actor domain.Actor, now time.Time) ([]domain.Diversion, error) {
	var diverted []domain.Diversion

	switch d.Kind {
	case domain.DelegationKindApprover:
		steps, err := s.store.Approvals.ListPendingByApprover(ctx, d.OriginalPersonID)
		if err != nil {
			return nil, err
		}
		for _, step := range steps {
			ticket, err := s.store.Tickets.GetByID(ctx, step.TicketID)
			if err != nil {
				return nil, fmt.Errorf("load ticket %s for approval %s: %w", step.TicketID, step.ID, err)
			}
			if ticket.Status.IsTerminal() {
				continue
			}
			diversion, err := s.divertApproval(ctx, d, step, actor, now, domain.ChangeTypeApprovalDiverted)
			if err != nil {
				return nil, err
			}
			diverted = append(diverted, *diversion)
		}
	case domain.DelegationKindTechnician:
		original := d.OriginalPersonID
		tickets, err := s.store.Tickets.List(ctx, domain.TicketFilter{
			Statuses:   []domain.TicketStatus{domain.TicketStatusForApproval, domain.TicketStatusOpen, domain.TicketStatusOnHold},
			AssignedTo: &original,
		})
		if err != nil {
			return nil, err
		}
		for _, ticket := range tickets {
			diversion, err := s.divertTicket(ctx, d, ticket, actor, now)
			if err != nil {
				return nil, err
			}
			diverted = append(diverted, *diversion)
		}
	}

	if len(diverted) > 0 {
		items := make([]string, 0, len(diverted))
		for _, div := range diverted {
			items = append(items, div.WorkItemID)
		}
		if err := appendDelegationLog(ctx, s.store.DelegationLogs, d.ID, domain.DelegationActionDiverted, actor, map[string]any{
			"count":          len(diverted),
			"work_item_kind": d.Kind.WorkItemKind(),
			"work_item_ids":  items,
		}); err != nil {
			return nil, err
		}
	}
	return diverted, nil
}

func (s *DelegationService) divertApproval(ctx context.Context, d *domain.Delegation, step domain.ApprovalStep, actor domain.Actor, now time.Time, change domain.TicketChangeType) (*domain.Diversion, error) {
	if err := s.store.Approvals.UpdateApprover(ctx, step.ID, d.BackupPersonID); err != nil {
		return nil, fmt.Errorf("reassign approval %s: %w", step.ID, err)
	}
	diversion, err := s.recordDiversion(ctx, d, domain.WorkItemApproval, step.ID, step.TicketID, now)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("Approval %q diverted from %s to %s", step.Name, d.OriginalPersonID, d.BackupPersonID)
	if err := appendHistory(ctx, s.store.History, step.TicketID, actor, change, summary,
		map[string]any{"approver_id": d.OriginalPersonID, "approval_step_id": step.ID},
		map[string]any{"approver_id": d.BackupPersonID, "delegation_id": d.ID},
	); err != nil {
		return nil, err
	}
	return diversion, nil
}

func (s *DelegationService) divertTicket(ctx context.Context, d *domain.Delegation, ticket domain.Ticket, actor domain.Actor, now time.Time) (*domain.Diversion, error) {
	backup := d.BackupPersonID
	if err := s.store.Tickets.UpdateAssignee(ctx, ticket.ID, &backup); err != nil {
		return nil, fmt.Errorf("reassign ticket %s: %w", ticket.ID, err)
	}
	diversion, err := s.recordDiversion(ctx, d, domain.WorkItemTicket, ticket.ID, ticket.ID, now)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("Ticket diverted from technician %s to %s", d.OriginalPersonID, d.BackupPersonID)
	if err := appendHistory(ctx, s.store.History, ticket.ID, actor, domain.ChangeTypeTechnicianDiverted, summary,
		map[string]any{"assigned_technician_id": d.OriginalPersonID},
		map[string]any{"assigned_technician_id": d.BackupPersonID, "delegation_id": d.ID},
	); err != nil {
		return nil, err
	}
	return diversion, nil
}

// recordDiversion writes the diversion entry for a work item. An item routed
// again while its entry under d is still open keeps that entry, so a later
// reversion returns it once.
func (s *DelegationService) recordDiversion(ctx context.Context, d *domain.Delegation, kind domain.WorkItemKind, itemID, ticketID string, now time.Time) (*domain.Diversion, error) {
	open, err := s.store.Diversions.ListOpenByDelegation(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	for i := range open {
		if open[i].WorkItemKind == kind && open[i].WorkItemID == itemID {
			return &open[i], nil
		}
	}
	diversion := &domain.Diversion{
		ID:               uuid.NewString(),
		DelegationID:     d.ID,
		WorkItemKind:     kind,
		WorkItemID:       itemID,
		TicketID:         ticketID,
		OriginalPersonID: d.OriginalPersonID,
		BackupPersonID:   d.BackupPersonID,
		DivertedAt:       now,
	}
	if err := s.store.Diversions.Create(ctx, diversion); err != nil {
		return nil, err
	}
	return diversion, nil
}

// GetDelegation returns a delegation with its diversions and log.
func (s *DelegationService) GetDelegation(ctx context.Context, id string) (*DelegationDetail, error) {
	record, err := s.store.Delegations.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("delegation", map[string]any{"delegation_id": id})
		}
		return nil, err
	}
	diversions, err := s.store.Diversions.ListByDelegation(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.DelegationLogs.ListByDelegation(ctx, id)
	if err != nil {
		return nil, err
	}
	view := s.view(*record)
	view.DivertedCount = len(diversions)
	return &DelegationDetail{DelegationView: view, Diversions: diversions, Logs: logs}, nil
}

// ListDelegations lists delegations with derived status.
func (s *DelegationService) ListDelegations(ctx context.Context, filter domain.DelegationFilter) ([]DelegationView, error) {
	records, err := s.store.Delegations.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]DelegationView, 0, len(records))
	for _, record := range records {
		views = append(views, s.view(record))
	}
	return views, nil
}

// UpcomingExpirations lists active delegations ending within the next days.
func (s *DelegationService) UpcomingExpirations(ctx context.Context, days int) ([]DelegationView, error) {
	if days <= 0 {
		days = 7
	}
	now := s.calc.Now()
	until := s.calc.Calendar().EndOfDay(now.AddDate(0, 0, days))
	return s.ListDelegations(ctx, domain.DelegationFilter{
		ActiveOnly: true,
		EndsAfter:  &now,
		EndsBefore: &until,
	})
}

// ActiveBackupFor returns the active delegation covering person at the given
// instant, or nil when there is none.
func (s *DelegationService) ActiveBackupFor(ctx context.Context, kind domain.DelegationKind, personID string, at time.Time) (*domain.Delegation, error) {
	record, err := s.store.Delegations.FindActiveFor(ctx, kind, personID, at)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// RouteWorkItem sends newly created work to the owner's backup when the owner
// has an active delegation. It joins the caller's transaction when there is one.
func (s *DelegationService) RouteWorkItem(ctx context.Context, kind domain.WorkItemKind, workItemID string, actor domain.Actor) (*domain.Diversion, error) {
	var routed *domain.Diversion
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		routed = nil
		now := s.calc.Now()
		var record *domain.Delegation
		switch kind {
		case domain.WorkItemApproval:
			step, err := s.store.Approvals.GetForUpdate(ctx, workItemID)
			if err != nil {
				return err
			}
			if step.Status.IsDecided() {
				return nil
			}
			record, err = s.ActiveBackupFor(ctx, domain.DelegationKindApprover, step.ApproverID, now)
			if err != nil || record == nil {
				return err
			}
			routed, err = s.divertApproval(ctx, record, *step, actor, now, domain.ChangeTypeApprovalRouted)
			if err != nil {
				return err
			}
		case domain.WorkItemTicket:
			ticket, err := s.store.Tickets.GetForUpdate(ctx, workItemID)
			if err != nil {
				return err
			}
			if ticket.Status.IsTerminal() || ticket.AssignedTechnicianID == nil {
				return nil
			}
			record, err = s.ActiveBackupFor(ctx, domain.DelegationKindTechnician, *ticket.AssignedTechnicianID, now)
			if err != nil || record == nil {
				return err
			}
			routed, err = s.divertTicket(ctx, record, *ticket, actor, now)
			if err != nil {
				return err
			}
		default:
			return apperrors.NewValidationError("unknown work item kind", map[string]any{"kind": kind})
		}
		return appendDelegationLog(ctx, s.store.DelegationLogs, record.ID, domain.DelegationActionRouted, actor, map[string]any{
			"work_item_kind": kind,
			"work_item_id":   workItemID,
			"backup_person":  record.BackupPersonID,
		})
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("work item", map[string]any{"work_item_id": workItemID})
		}
		return nil, err
	}
	if routed != nil {
		s.metrics.RecordDiversion(string(routed.WorkItemKind))
		s.logger.Info("work item routed to backup",
			zap.String("delegation_id", routed.DelegationID),
			zap.String("work_item_id", workItemID),
			zap.String("backup_person_id", routed.BackupPersonID))
	}
	return routed, nil
}

// DeactivateDelegation ends a delegation early and returns its work to the
// original person. Deactivating an inactive delegation changes nothing.
func (s *DelegationService) DeactivateDelegation(ctx context.Context, id string, actor domain.Actor) (*ReversionResult, error) {
	if _, err := s.store.Delegations.GetByID(ctx, id); err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("delegation", map[string]any{"delegation_id": id})
		}
		return nil, err
	}
	return s.expire(ctx, id, domain.ReversionManual, domain.DelegationActionDeactivated, actor)
}

// RunExpirySweep reverts and deactivates every active delegation whose window
// has ended. Each delegation is all-or-nothing in its own transaction.
func (s *DelegationService) RunExpirySweep(ctx context.Context) (SweepReport, error) {
	opts := s.sweep.withDefaults()
	expired, err := s.store.Delegations.ListExpired(ctx, s.calc.Now(), opts.BatchSize)
	if err != nil {
		s.metrics.RecordSweep(SweepExpiry, err, 0)
		return SweepReport{Sweep: SweepExpiry}, err
	}

	ids := make([]string, 0, len(expired))
	for _, d := range expired {
		ids = append(ids, d.ID)
	}
	report := runSweep(ctx, SweepExpiry, ids, opts, s.logger, s.metrics, func(ctx context.Context, id string) (bool, error) {
		result, err := s.expire(ctx, id, domain.ReversionExpired, domain.DelegationActionExpired, domain.SystemActor)
		if err != nil {
			return false, err
		}
		return !result.AlreadyInactive, nil
	})
	return report, nil
}

func (s *DelegationService) expire(ctx context.Context, id string, reversion domain.ReversionType, action domain.DelegationAction, actor domain.Actor) (*ReversionResult, error) {
	var (
		result  *ReversionResult
		outcome []domain.ReversionType
	)
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		result = &ReversionResult{DelegationID: id}
		outcome = nil

		record, err := s.store.Delegations.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !record.IsActive {
			result.AlreadyInactive = true
			return nil
		}

		open, err := s.store.Diversions.ListOpenByDelegation(ctx, id)
		if err != nil {
			return err
		}
		now := s.calc.Now()
		for _, diversion := range open {
			kind, err := s.revert(ctx, record, diversion, reversion, actor, now)
			if err != nil {
				return &reversionError{workItemID: diversion.WorkItemID, err: err}
			}
			outcome = append(outcome, kind)
			switch kind {
			case domain.ReversionAlreadyFinalized:
				result.AlreadyFinalized++
			case domain.ReversionSuperseded:
				result.Superseded++
			default:
				result.Reverted++
			}
		}

		if err := s.store.Delegations.Deactivate(ctx, id, now, actor.ID); err != nil {
			return err
		}
		if err := appendDelegationLog(ctx, s.store.DelegationLogs, id, action, actor, map[string]any{
			"reversion_type":    reversion,
			"reverted":          result.Reverted,
			"already_finalized": result.AlreadyFinalized,
			"superseded":        result.Superseded,
		}); err != nil {
			return err
		}
		return enqueue(ctx, s.store.Outbox, events.EventDelegationExpired, events.DelegationExpiredPayload{
			DelegationID:  id,
			Kind:          string(record.Kind),
			OriginalID:    record.OriginalPersonID,
			BackupID:      record.BackupPersonID,
			RevertedCount: result.Reverted,
			Reason:        string(reversion),
		}, now)
	})
	if err != nil {
		s.recordReversionFailure(ctx, id, err)
		return nil, err
	}

	for _, kind := range outcome {
		s.metrics.RecordReversion(string(kind))
	}
	if !result.AlreadyInactive {
		s.logger.Info("delegation ended",
			zap.String("delegation_id", id),
			zap.String("reversion_type", string(reversion)),
			zap.Int("reverted", result.Reverted),
			zap.Int("already_finalized", result.AlreadyFinalized),
			zap.Int("superseded", result.Superseded))
	}
	return result, nil
}

// recordReversionFailure logs a failed expiry outside the rolled-back transaction.
func (s *DelegationService) recordReversionFailure(ctx context.Context, id string, cause error) {
	fields := []zap.Field{zap.String("delegation_id", id), zap.Error(cause)}
	details := map[string]any{"error": cause.Error()}
	var revErr *reversionError
	if errors.As(cause, &revErr) {
		fields = append(fields, zap.String("work_item_id", revErr.workItemID))
		details["work_item_id"] = revErr.workItemID
	}
	s.logger.Error("delegation reversion failed", fields...)

	if repository.IsNotFound(cause) && revErr == nil {
		return
	}
	if err := appendDelegationLog(ctx, s.store.DelegationLogs, id, domain.DelegationActionReversionFailed, domain.SystemActor, details); err != nil {
		s.logger.Warn("unable to record reversion failure", zap.String("delegation_id", id), zap.Error(err))
	}
}

// revert closes one diversion. Items that were finalized or reassigned by
// someone else are closed without touching the item.
func (s *DelegationService) revert(ctx context.Context, d *domain.Delegation, diversion domain.Diversion, reversion domain.ReversionType, actor domain.Actor, now time.Time) (domain.ReversionType, error) {
	outcome := reversion

	switch diversion.WorkItemKind {
	case domain.WorkItemApproval:
		step, err := s.store.Approvals.GetForUpdate(ctx, diversion.WorkItemID)
		if err != nil {
			if !repository.IsNotFound(err) {
				return "", err
			}
			outcome = domain.ReversionSuperseded
			break
		}
		ticket, err := s.store.Tickets.GetByID(ctx, step.TicketID)
		if err != nil && !repository.IsNotFound(err) {
			return "", err
		}
		switch {
		case step.Status.IsDecided() || (ticket != nil && ticket.Status.IsTerminal()):
			outcome = domain.ReversionAlreadyFinalized
		case step.ApproverID != diversion.BackupPersonID:
			outcome = domain.ReversionSuperseded
		default:
			if err := s.store.Approvals.UpdateApprover(ctx, step.ID, diversion.OriginalPersonID); err != nil {
				return "", err
			}
			summary := fmt.Sprintf("Approval %q returned from %s to %s", step.Name, diversion.BackupPersonID, diversion.OriginalPersonID)
			if err := appendHistory(ctx, s.store.History, step.TicketID, actor, domain.ChangeTypeApprovalReverted, summary,
				map[string]any{"approver_id": diversion.BackupPersonID},
				map[string]any{"approver_id": diversion.OriginalPersonID, "delegation_id": d.ID, "reversion_type": reversion},
			); err != nil {
				return "", err
			}
		}
	case domain.WorkItemTicket:
		ticket, err := s.store.Tickets.GetForUpdate(ctx, diversion.WorkItemID)
		if err != nil {
			if !repository.IsNotFound(err) {
				return "", err
			}
			outcome = domain.ReversionSuperseded
			break
		}
		switch {
		case ticket.Status.IsTerminal():
			outcome = domain.ReversionAlreadyFinalized
		case ticket.AssignedTechnicianID == nil || *ticket.AssignedTechnicianID != diversion.BackupPersonID:
			outcome = domain.ReversionSuperseded
		default:
			original := diversion.OriginalPersonID
			if err := s.store.Tickets.UpdateAssignee(ctx, ticket.ID, &original); err != nil {
				return "", err
			}
			summary := fmt.Sprintf("Ticket returned from technician %s to %s", diversion.BackupPersonID, diversion.OriginalPersonID)
			if err := appendHistory(ctx, s.store.History, ticket.ID, actor, domain.ChangeTypeTechnicianReverted, summary,
				map[string]any{"assigned_technician_id": diversion.BackupPersonID},
				map[string]any{"assigned_technician_id": diversion.OriginalPersonID, "delegation_id": d.ID, "reversion_type": reversion},
			); err != nil {
				return "", err
			}
		}
	default:
		return "", fmt.Errorf("unknown work item kind %q", diversion.WorkItemKind)
	}

	if err := s.store.Diversions.MarkReverted(ctx, diversion.ID, outcome, now); err != nil {
		return "", err
	}
	return outcome, nil
}
