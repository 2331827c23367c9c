package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/deadline"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/repository"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

// StopResult is returned when a ticket's SLA clock is paused.
type StopResult struct {
	TicketID         string              `json:"ticket_id"`
	RemainingMinutes int                 `json:"remaining_minutes"`
	NewStatus        domain.TicketStatus `json:"new_status"`
}

// StartResult is returned when a ticket's SLA clock resumes.
type StartResult struct {
	TicketID  string              `json:"ticket_id"`
	NewDueAt  time.Time           `json:"new_due_at"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// DeadlineView is the current deadline state of a ticket.
type DeadlineView struct {
	TicketID             string              `json:"ticket_id"`
	Status               domain.TicketStatus `json:"status"`
	SLAID                *string             `json:"sla_id,omitempty"`
	OperationalHoursOnly bool                `json:"operational_hours_only"`
	DueAt                *time.Time          `json:"due_at,omitempty"`
	RemainingMinutes     *int                `json:"remaining_minutes,omitempty"`
	Remaining            string              `json:"remaining,omitempty"`
	Health               deadline.Health     `json:"health,omitempty"`
	PauseReason          string              `json:"pause_reason,omitempty"`
	PausedAt             *time.Time          `json:"paused_at,omitempty"`
	EscalationsFired     []int               `json:"escalations_fired"`
}

// TimerService drives the SLA timer state machine of a ticket.
type TimerService struct {
	store          *repository.Store
	calc           *deadline.Calculator
	logger         *zap.Logger
	metrics        *observability.Metrics
	sweep          SweepOptions
	autoCloseAfter time.Duration
	defaults       map[domain.TicketPriority]string
}

// NewTimerService builds the service.
func NewTimerService(store *repository.Store, calc *deadline.Calculator, logger *zap.Logger, metrics *observability.Metrics, sweep SweepOptions, autoCloseAfterDays int) *TimerService {
	if autoCloseAfterDays <= 0 {
		autoCloseAfterDays = 10
	}
	return &TimerService{
		store:          store,
		calc:           calc,
		logger:         logger,
		metrics:        metrics,
		sweep:          sweep,
		autoCloseAfter: time.Duration(autoCloseAfterDays) * 24 * time.Hour,
	}
}

// WithPriorityDefaults sets the SLA attached per ticket priority when
// AttachSLA is called without one. Blank ids are ignored.
func (s *TimerService) WithPriorityDefaults(ids map[domain.TicketPriority]string) *TimerService {
	s.defaults = make(map[domain.TicketPriority]string, len(ids))
	for priority, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s.defaults[priority] = id
		}
	}
	return s
}

// EnsureDefaultSLAs creates the built-in priority SLAs the defaults point at
// when they do not exist yet.
func (s *TimerService) EnsureDefaultSLAs(ctx context.Context) error {
	for priority, def := range domain.DefaultSLAs() {
		if s.defaults[priority] != def.ID {
			continue
		}
		_, err := s.store.SLAs.GetByID(ctx, def.ID)
		if err == nil {
			continue
		}
		if !repository.IsNotFound(err) {
			return err
		}
		def := def
		if err := s.store.SLAs.Create(ctx, &def); err != nil {
			if _, again := s.store.SLAs.GetByID(ctx, def.ID); again == nil {
				continue
			}
			return fmt.Errorf("create default sla %s: %w", def.ID, err)
		}
		s.logger.Info("default sla created", zap.String("sla_id", def.ID), zap.String("priority", string(priority)))
	}
	return nil
}

func (s *TimerService) lockTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.store.Tickets.GetForUpdate(ctx, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}
	return ticket, nil
}

func (s *TimerService) formatTime(t time.Time) string {
	return t.In(s.calc.Calendar().Location()).Format(humanTimeLayout)
}

// AttachSLA starts the SLA clock on a ticket and computes its first due date.
// A nil startedAt means now. An empty slaID picks the default for the
// ticket's priority.
func (s *TimerService) AttachSLA(ctx context.Context, ticketID, slaID string, startedAt *time.Time, actor domain.Actor) (*domain.Ticket, error) {
	slaID = strings.TrimSpace(slaID)
	var result *domain.Ticket
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusForApproval && ticket.Status != domain.TicketStatusOpen {
			return apperrors.NewInvalidTransition("attach an SLA", ticket.Status)
		}
		if slaID == "" {
			slaID = s.defaults[ticket.Priority]
			if slaID == "" {
				return apperrors.NewValidationError("no default SLA for ticket priority", map[string]any{"priority": ticket.Priority})
			}
		}
		sla, err := s.store.SLAs.GetByID(ctx, slaID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperrors.NewNotFound("sla", map[string]any{"sla_id": slaID})
			}
			return err
		}

		start := s.calc.Now()
		if startedAt != nil {
			start = *startedAt
		}
		total := sla.DurationMinutes()
		if total < 0 {
			return apperrors.NewInvalidDuration(total)
		}
		due, err := s.calc.ComputeDueDate(start, total, sla.OperationalHoursOnly)
		if err != nil {
			return err
		}

		oldStatus := ticket.Status
		ticket.Status = domain.TicketStatusOpen
		ticket.SLAID = &sla.ID
		ticket.OperationalHoursOnly = sla.OperationalHoursOnly
		ticket.SLAMinutesTotal = &total
		ticket.SLAStartedAt = &start
		ticket.DueAt = &due
		ticket.EscalationFiredAt = [domain.MaxEscalationLevels]*time.Time{}
		if err := ticket.ValidateDeadline(); err != nil {
			return err
		}
		if err := s.store.Tickets.UpdateDeadline(ctx, ticket); err != nil {
			return err
		}

		summary := fmt.Sprintf("SLA %q attached. Due %s", sla.Name, s.formatTime(due))
		if err := appendHistory(ctx, s.store.History, ticket.ID, actor, domain.ChangeTypeSLAAttached, summary,
			map[string]any{"status": oldStatus},
			map[string]any{"status": ticket.Status, "sla_id": sla.ID, "due_at": timeValue(&due), "sla_minutes": total},
		); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sla attached", zap.String("ticket_id", ticketID), zap.String("sla_id", slaID), zap.Timep("due_at", result.DueAt))
	return result, nil
}

// StopTimer pauses the SLA clock and snapshots the remaining time.
func (s *TimerService) StopTimer(ctx context.Context, ticketID, reason string, actor domain.Actor) (*StopResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewMissingReason()
	}

	var result *StopResult
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusOpen {
			return apperrors.NewInvalidTransition("stop the timer", ticket.Status)
		}
		if !ticket.HasSLA() || ticket.DueAt == nil {
			return apperrors.NewSLANotAttached(ticketID)
		}

		now := s.calc.Now()
		oldDue := *ticket.DueAt
		remaining := s.calc.RemainingMinutes(oldDue, ticket.OperationalHoursOnly)

		ticket.Status = domain.TicketStatusOnHold
		ticket.DueAt = nil
		ticket.RemainingMinutes = &remaining
		ticket.PauseReason = reason
		ticket.PausedAt = &now
		if err := ticket.ValidateDeadline(); err != nil {
			return err
		}
		if err := s.store.Tickets.UpdateDeadline(ctx, ticket); err != nil {
			return err
		}

		summary := fmt.Sprintf("SLA timer stopped: %s. Remaining time: %s", reason, deadline.FormatMinutes(remaining))
		if err := appendHistory(ctx, s.store.History, ticket.ID, actor, domain.ChangeTypeTimerStopped, summary,
			map[string]any{"status": domain.TicketStatusOpen, "due_at": timeValue(&oldDue)},
			map[string]any{"status": ticket.Status, "remaining_minutes": remaining, "reason": reason},
		); err != nil {
			return err
		}
		result = &StopResult{TicketID: ticket.ID, RemainingMinutes: remaining, NewStatus: ticket.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sla timer stopped", zap.String("ticket_id", ticketID), zap.Int("remaining_minutes", result.RemainingMinutes))
	return result, nil
}

// StartTimer resumes a paused SLA clock from the snapshot.
func (s *TimerService) StartTimer(ctx context.Context, ticketID string, actor domain.Actor) (*StartResult, error) {
	var result *StartResult
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusOnHold {
			return apperrors.NewInvalidTransition("start the timer", ticket.Status)
		}
		if ticket.RemainingMinutes == nil {
			return apperrors.NewMissingRemainingSLA(ticketID)
		}

		remaining := *ticket.RemainingMinutes
		due, err := s.calc.RecomputeAfterResume(remaining, ticket.OperationalHoursOnly)
		if err != nil {
			return err
		}
		now := s.calc.Now()
		pausedFor := ""
		if ticket.PausedAt != nil {
			pausedFor = deadline.FormatMinutes(int(now.Sub(*ticket.PausedAt).Minutes()))
		}
		oldReason := ticket.PauseReason

		ticket.Status = domain.TicketStatusOpen
		ticket.DueAt = &due
		ticket.RemainingMinutes = nil
		ticket.PauseReason = ""
		ticket.PausedAt = nil
		ticket.ResumedAt = &now
		if err := ticket.ValidateDeadline(); err != nil {
			return err
		}
		if err := s.store.Tickets.UpdateDeadline(ctx, ticket); err != nil {
			return err
		}

		summary := fmt.Sprintf("SLA timer resumed after %s. Remaining time: %s. New due date: %s",
			pausedFor, deadline.FormatMinutes(remaining), s.formatTime(due))
		if err := appendHistory(ctx, s.store.History, ticket.ID, actor, domain.ChangeTypeTimerStarted, summary,
			map[string]any{"status": domain.TicketStatusOnHold, "remaining_minutes": remaining, "reason": oldReason},
			map[string]any{"status": ticket.Status, "due_at": timeValue(&due)},
		); err != nil {
			return err
		}
		result = &StartResult{TicketID: ticket.ID, NewDueAt: due, NewStatus: ticket.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("sla timer started", zap.String("ticket_id", ticketID), zap.Time("due_at", result.NewDueAt))
	return result, nil
}

// Finalize moves a ticket to a terminal status and clears its deadline.
// A resolved ticket may still be closed; any other terminal ticket is final.
func (s *TimerService) Finalize(ctx context.Context, ticketID string, status domain.TicketStatus, actor domain.Actor) (*domain.Ticket, error) {
	if !status.IsTerminal() {
		return nil, apperrors.NewValidationError("status must be RESOLVED, CLOSED or CANCELLED", map[string]any{"status": status})
	}

	var result *domain.Ticket
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		ticket, err := s.lockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		closingResolved := ticket.Status == domain.TicketStatusResolved && status == domain.TicketStatusClosed
		if ticket.Status.IsTerminal() && !closingResolved {
			return apperrors.NewInvalidTransition("finalize", ticket.Status)
		}

		now := s.calc.Now()
		oldStatus := ticket.Status
		ticket.Status = status
		ticket.DueAt = nil
		ticket.RemainingMinutes = nil
		ticket.PauseReason = ""
		ticket.PausedAt = nil
		switch status {
		case domain.TicketStatusResolved:
			ticket.ResolvedAt = &now
		default:
			ticket.ClosedAt = &now
		}
		if err := ticket.ValidateDeadline(); err != nil {
			return err
		}
		if err := s.store.Tickets.UpdateDeadline(ctx, ticket); err != nil {
			return err
		}

		summary := fmt.Sprintf("Ticket %s", strings.ToLower(string(status)))
		if err := appendHistory(ctx, s.store.History, ticket.ID, actor, domain.ChangeTypeTicketFinalized, summary,
			map[string]any{"status": oldStatus},
			map[string]any{"status": status},
		); err != nil {
			return err
		}
		result = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Deadline reports the current deadline state and health of a ticket.
func (s *TimerService) Deadline(ctx context.Context, ticketID string) (*DeadlineView, error) {
	ticket, err := s.store.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, err
	}

	view := &DeadlineView{
		TicketID:             ticket.ID,
		Status:               ticket.Status,
		SLAID:                ticket.SLAID,
		OperationalHoursOnly: ticket.OperationalHoursOnly,
		DueAt:                ticket.DueAt,
		PauseReason:          ticket.PauseReason,
		PausedAt:             ticket.PausedAt,
		EscalationsFired:     []int{},
	}
	for level := 1; level <= domain.MaxEscalationLevels; level++ {
		if ticket.EscalationFired(level) {
			view.EscalationsFired = append(view.EscalationsFired, level)
		}
	}
	switch {
	case ticket.Status == domain.TicketStatusOpen && ticket.DueAt != nil:
		remaining := s.calc.RemainingMinutes(*ticket.DueAt, ticket.OperationalHoursOnly)
		view.RemainingMinutes = &remaining
		view.Remaining = deadline.FormatMinutes(remaining)
		view.Health = s.calc.Health(*ticket.DueAt, ticket.OperationalHoursOnly)
	case ticket.Status == domain.TicketStatusOnHold && ticket.RemainingMinutes != nil:
		view.RemainingMinutes = ticket.RemainingMinutes
		view.Remaining = deadline.FormatMinutes(*ticket.RemainingMinutes)
	}
	return view, nil
}

// RunAutoCloseSweep closes tickets that have stayed resolved past the grace period.
func (s *TimerService) RunAutoCloseSweep(ctx context.Context) (SweepReport, error) {
	cutoff := s.calc.Now().Add(-s.autoCloseAfter)
	opts := s.sweep.withDefaults()
	ids, err := listTicketIDs(ctx, s.store.Tickets, domain.TicketFilter{
		Statuses:       []domain.TicketStatus{domain.TicketStatusResolved},
		ResolvedBefore: &cutoff,
	}, opts.BatchSize)
	if err != nil {
		s.metrics.RecordSweep(SweepAutoClose, err, 0)
		return SweepReport{Sweep: SweepAutoClose}, err
	}
	report := runSweep(ctx, SweepAutoClose, ids, opts, s.logger, s.metrics, func(ctx context.Context, id string) (bool, error) {
		_, err := s.Finalize(ctx, id, domain.TicketStatusClosed, domain.SystemActor)
		if err != nil && repository.IsNotFound(err) {
			return false, nil
		}
		return err == nil, err
	})
	return report, nil
}
