package service

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/deadline"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/events"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/repository"
)

// EscalationService fires SLA escalation levels for open tickets.
type EscalationService struct {
	store   *repository.Store
	calc    *deadline.Calculator
	logger  *zap.Logger
	metrics *observability.Metrics
	sweep   SweepOptions
}

// NewEscalationService builds the service.
func NewEscalationService(store *repository.Store, calc *deadline.Calculator, logger *zap.Logger, metrics *observability.Metrics, sweep SweepOptions) *EscalationService {
	return &EscalationService{store: store, calc: calc, logger: logger, metrics: metrics, sweep: sweep}
}

// RunEscalationSweep evaluates every open ticket with a due date. Each ticket
// is handled in its own transaction.
func (s *EscalationService) RunEscalationSweep(ctx context.Context) (SweepReport, error) {
	opts := s.sweep.withDefaults()
	ids, err := listTicketIDs(ctx, s.store.Tickets, domain.TicketFilter{
		Statuses:    []domain.TicketStatus{domain.TicketStatusOpen},
		WithDueDate: true,
	}, opts.BatchSize)
	if err != nil {
		s.metrics.RecordSweep(SweepEscalation, err, 0)
		return SweepReport{Sweep: SweepEscalation}, err
	}
	report := runSweep(ctx, SweepEscalation, ids, opts, s.logger, s.metrics, func(ctx context.Context, id string) (bool, error) {
		fired, err := s.EvaluateTicket(ctx, id)
		return len(fired) > 0, err
	})
	return report, nil
}

// EvaluateTicket fires every due level of the ticket's SLA that has not fired
// yet and returns the levels fired now.
func (s *EscalationService) EvaluateTicket(ctx context.Context, ticketID string) ([]int, error) {
	var fired []int
	err := s.store.Tx.RunInTransaction(ctx, func(ctx context.Context) error {
		fired = nil
		ticket, err := s.store.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil
			}
			return err
		}
		if ticket.Status != domain.TicketStatusOpen || ticket.DueAt == nil || !ticket.HasSLA() {
			return nil
		}
		sla, err := s.store.SLAs.GetByID(ctx, *ticket.SLAID)
		if err != nil {
			return fmt.Errorf("load sla %s: %w", *ticket.SLAID, err)
		}

		levels := append([]domain.EscalationLevel(nil), sla.Escalations...)
		sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

		now := s.calc.Now()
		untilDue := s.calc.MinutesUntilDue(*ticket.DueAt)
		for _, level := range levels {
			if level.Level < 1 || level.Level > domain.MaxEscalationLevels {
				continue
			}
			if ticket.EscalationFired(level.Level) || !level.ShouldFire(untilDue) {
				continue
			}
			ticket.MarkEscalationFired(level.Level, now)

			summary := fmt.Sprintf("Escalation level %d triggered (%s due date)", level.Level, describeTiming(level))
			if err := appendHistory(ctx, s.store.History, ticket.ID, domain.SystemActor, domain.ChangeTypeEscalationTriggered, summary,
				nil,
				map[string]any{"level": level.Level, "targets": level.Targets, "minutes_until_due": untilDue},
			); err != nil {
				return err
			}
			if err := enqueue(ctx, s.store.Outbox, events.EventEscalationTriggered, events.EscalationTriggeredPayload{
				TicketID:    ticket.ID,
				ExternalKey: ticket.ExternalKey,
				Level:       level.Level,
				Targets:     level.Targets,
				Timing:      string(level.Timing),
				DueAt:       *ticket.DueAt,
				FiredAt:     now,
			}, now); err != nil {
				return err
			}
			fired = append(fired, level.Level)
		}
		if len(fired) == 0 {
			return nil
		}
		return s.store.Tickets.UpdateDeadline(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	for _, level := range fired {
		s.metrics.RecordEscalation(level)
		s.logger.Info("escalation triggered", zap.String("ticket_id", ticketID), zap.Int("level", level))
	}
	return fired, nil
}

func describeTiming(level domain.EscalationLevel) string {
	if level.Timing == domain.EscalationBefore {
		return fmt.Sprintf("%s before", deadline.FormatMinutes(level.OffsetMinutes))
	}
	return fmt.Sprintf("%s after", deadline.FormatMinutes(level.OffsetMinutes))
}
