package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spec-kit/deadline-engine/internal/config"
	"github.com/spec-kit/deadline-engine/internal/events"
	"github.com/spec-kit/deadline-engine/internal/notify"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/repository"
)

const maxRetryDelay = time.Hour

// NotificationService relays committed outbox events to the notifier.
type NotificationService struct {
	outbox     repository.OutboxRepository
	dispatcher events.Dispatcher
	notifier   notify.Notifier
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *observability.Metrics
	cfg        config.NotificationConfig
	batchSize  int
	now        func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(store *repository.Store, dispatcher events.Dispatcher, notifier notify.Notifier, logger *zap.Logger, metrics *observability.Metrics, cfg config.NotificationConfig, batchSize int) *NotificationService {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &NotificationService{
		outbox:     store.Outbox,
		dispatcher: dispatcher,
		notifier:   notifier,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
		batchSize:  batchSize,
		now:        time.Now,
	}
}

// SetClock overrides the time source used for delivery stamps.
func (n *NotificationService) SetClock(now func() time.Time) {
	n.now = now
}

// RegisterHandlers subscribes the notifier to every engine event.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventEscalationTriggered, n.forward)
	n.dispatcher.Subscribe(events.EventDelegationCreated, n.forward)
	n.dispatcher.Subscribe(events.EventDelegationExpired, n.forward)
	n.dispatcher.Subscribe(events.EventApprovalReminder, n.forward)
}

func (n *NotificationService) forward(ctx context.Context, event events.Event) error {
	recipients, err := event.Recipients()
	if err != nil {
		n.metrics.RecordNotification(string(event.Type), err)
		return err
	}
	err = n.notifier.Notify(ctx, string(event.Type), recipients, json.RawMessage(event.Payload))
	n.metrics.RecordNotification(string(event.Type), err)
	return err
}

// RelayOutbox publishes pending outbox events. Delivery is at-least-once;
// a failed event is retried later with exponential backoff.
func (n *NotificationService) RelayOutbox(ctx context.Context) (SweepReport, error) {
	started := n.now()
	pending, err := n.outbox.ListPending(ctx, started, n.batchSize)
	if err != nil {
		n.metrics.RecordSweep(SweepOutbox, err, 0)
		return SweepReport{Sweep: SweepOutbox}, err
	}

	report := SweepReport{Sweep: SweepOutbox, Scanned: len(pending), StartedAt: started}
	for _, item := range pending {
		if err := n.limiter.Wait(ctx); err != nil {
			break
		}
		event := events.Event{
			ID:        item.ID,
			Type:      events.EventType(item.Kind),
			Timestamp: item.CreatedAt,
			Payload:   item.Payload,
		}
		if pubErr := n.dispatcher.Publish(ctx, event); pubErr != nil {
			attempts := item.Attempts + 1
			next := n.now().Add(retryDelay(attempts))
			report.Failed++
			report.Failures = append(report.Failures, ItemFailure{ItemID: item.ID, Error: pubErr.Error()})
			n.metrics.RecordSweepItem(SweepOutbox, "failed")

			fields := []zap.Field{
				zap.String("event_id", item.ID),
				zap.String("kind", item.Kind),
				zap.Int("attempts", attempts),
				zap.Time("next_attempt_at", next),
				zap.Error(pubErr),
			}
			if attempts >= n.cfg.MaxAttempts {
				n.logger.Error("notification delivery keeps failing", fields...)
			} else {
				n.logger.Warn("notification delivery failed", fields...)
			}
			if err := n.outbox.MarkFailed(ctx, item.ID, attempts, next, pubErr.Error()); err != nil {
				n.logger.Error("unable to record notification failure", zap.String("event_id", item.ID), zap.Error(err))
			}
			continue
		}
		if err := n.outbox.MarkDelivered(ctx, item.ID, n.now()); err != nil {
			report.Failed++
			report.Failures = append(report.Failures, ItemFailure{ItemID: item.ID, Error: err.Error()})
			n.logger.Error("unable to mark notification delivered", zap.String("event_id", item.ID), zap.Error(err))
			continue
		}
		report.Processed++
		n.metrics.RecordSweepItem(SweepOutbox, "processed")
	}

	report.FinishedAt = n.now()
	n.metrics.RecordSweep(SweepOutbox, ctx.Err(), report.FinishedAt.Sub(report.StartedAt))
	n.logger.Info("sweep finished",
		zap.String("sweep", SweepOutbox),
		zap.Int("scanned", report.Scanned),
		zap.Int("processed", report.Processed),
		zap.Int("failed", report.Failed))
	return report, nil
}

// retryDelay doubles from 30s per attempt, capped at an hour.
func retryDelay(attempts int) time.Duration {
	delay := 30 * time.Second
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
