package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/deadline"
	"github.com/spec-kit/deadline-engine/internal/events"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/repository"
)

const defaultReminderEvery = 24 * time.Hour

// ReminderService nudges approvers whose steps are still waiting on them.
type ReminderService struct {
	store   *repository.Store
	calc    *deadline.Calculator
	logger  *zap.Logger
	metrics *observability.Metrics
	sweep   SweepOptions
	every   time.Duration
}

// NewReminderService builds the service. A step is reminded at most once per every.
func NewReminderService(store *repository.Store, calc *deadline.Calculator, logger *zap.Logger, metrics *observability.Metrics, sweep SweepOptions, every time.Duration) *ReminderService {
	if every <= 0 {
		every = defaultReminderEvery
	}
	return &ReminderService{store: store, calc: calc, logger: logger, metrics: metrics, sweep: sweep, every: every}
}

// RunReminderSweep queues a reminder for every undecided approval step that
// has not been reminded within the period.
func (s *ReminderService) RunReminderSweep(ctx context.Context) (SweepReport, error) {
	opts := s.sweep.withDefaults()
	cutoff := s.calc.Now().Add(-s.every)

	var (
		ids     []string
		afterID string
	)
	for {
		page, err := s.store.Approvals.ListAwaitingReminder(ctx, cutoff, afterID, opts.BatchSize)
		if err != nil {
			s.metrics.RecordSweep(SweepReminder, err, 0)
			return SweepReport{Sweep: SweepReminder}, err
		}
		for _, step := range page {
			ids = append(ids, step.ID)
		}
		if len(page) < opts.BatchSize {
			break
		}
		afterID = page[len(page)-1].ID
	}

	report := runSweep(ctx, SweepReminder, ids, opts, s.logger, s.metrics, func(ctx context.Context, id string) (bool, error) {
		return s.RemindStep(ctx, id, cutoff)
	})
	return report, nil
}

// RemindStep queues one reminder unless the step was decided, reminded after
// cutoff, or belongs to a finalized ticket.
func (s *ReminderService) RemindStep(ctx context.Context, stepID string, cutoff time.Time) (bool, error) {
	var sent bool
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		sent = false
		step, err := s.store.Approvals.GetForUpdate(ctx, stepID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return err
		}
		if step.Status.IsDecided() {
			return nil
		}
		if step.RemindedAt != nil && step.RemindedAt.After(cutoff) {
			return nil
		}
		ticket, err := s.store.Tickets.GetByID(ctx, step.TicketID)
		if err != nil {
			return err
		}
		if ticket.Status.IsTerminal() {
			return nil
		}

		now := s.calc.Now()
		if err := enqueue(ctx, s.store.Outbox, events.EventApprovalReminder, events.ApprovalReminderPayload{
			ApprovalStepID: step.ID,
			TicketID:       step.TicketID,
			ApproverID:     step.ApproverID,
			Level:          step.Level,
			Name:           step.Name,
			Status:         string(step.Status),
			PendingSince:   step.CreatedAt,
		}, now); err != nil {
			return err
		}
		if err := s.store.Approvals.MarkReminded(ctx, step.ID, now); err != nil {
			return err
		}
		sent = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if sent {
		s.logger.Debug("approval reminder queued", zap.String("approval_step_id", stepID))
	}
	return sent, nil
}
