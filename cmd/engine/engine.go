package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/deadline-engine/internal/api/http"
	"github.com/spec-kit/deadline-engine/internal/api/http/handlers"
	"github.com/spec-kit/deadline-engine/internal/auth"
	"github.com/spec-kit/deadline-engine/internal/calendar"
	"github.com/spec-kit/deadline-engine/internal/config"
	"github.com/spec-kit/deadline-engine/internal/deadline"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/events"
	"github.com/spec-kit/deadline-engine/internal/notify"
	"github.com/spec-kit/deadline-engine/internal/observability"
	"github.com/spec-kit/deadline-engine/internal/persistence"
	"github.com/spec-kit/deadline-engine/internal/repository"
	"github.com/spec-kit/deadline-engine/internal/service"
	"github.com/spec-kit/deadline-engine/internal/worker"
)

// engine holds every wired component of one process.
type engine struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	postgres *persistence.Postgres
	redis    *persistence.Redis
	store    *repository.Store
	cal      *calendar.Calendar

	timers        *service.TimerService
	escalations   *service.EscalationService
	delegations   *service.DelegationService
	approvals     *service.ApprovalService
	assignments   *service.AssignmentService
	notifications *service.NotificationService
	reminders     *service.ReminderService
	scheduler     *worker.Scheduler
}

func loadConfigAndLogger() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

func newEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine, error) {
	pg, store, err := persistence.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	cal, err := calendar.Load(cfg.Calendar.ProfilePath, cfg.Calendar.Timezone)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("failed to load calendar: %w", err)
	}

	e := &engine{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.NewMetrics(),
		postgres: pg,
		redis:    persistence.NewRedis(cfg.Redis, logger),
		store:    store,
		cal:      cal,
	}

	calc := deadline.NewCalculator(cal, deadline.WithAtRiskMinutes(cfg.Calendar.AtRiskMinutes))
	sweep := service.SweepOptions{
		Concurrency: cfg.Scheduler.Concurrency,
		ItemTimeout: cfg.Scheduler.ItemTimeout,
		BatchSize:   cfg.Scheduler.BatchSize,
	}

	e.timers = service.NewTimerService(store, calc, logger, e.metrics, sweep, cfg.Scheduler.AutoCloseAfterDays).
		WithPriorityDefaults(priorityDefaults(cfg.SLA))
	if err := e.timers.EnsureDefaultSLAs(ctx); err != nil {
		e.close()
		return nil, fmt.Errorf("failed to seed default SLAs: %w", err)
	}
	e.escalations = service.NewEscalationService(store, calc, logger, e.metrics, sweep)
	e.delegations = service.NewDelegationService(store, calc, logger, e.metrics, sweep)
	resolver := service.NewApproverResolver(service.NewStaffDirectory(store))
	e.approvals = service.NewApprovalService(store, resolver, e.delegations, logger)
	e.assignments = service.NewAssignmentService(store, e.delegations, logger)
	e.reminders = service.NewReminderService(store, calc, logger, e.metrics, sweep, cfg.Scheduler.ReminderEvery)

	dispatcher := events.NewInMemoryDispatcher()
	e.notifications = service.NewNotificationService(store, dispatcher, newNotifier(cfg.Notification, logger),
		logger, e.metrics, cfg.Notification, cfg.Scheduler.BatchSize)
	e.notifications.RegisterHandlers()

	e.scheduler = worker.NewScheduler(logger, worker.NewRedisLocker(e.redis),
		worker.Job{Name: service.SweepEscalation, Interval: cfg.Scheduler.EscalationInterval, Run: e.escalations.RunEscalationSweep},
		worker.Job{Name: service.SweepExpiry, Interval: cfg.Scheduler.ExpiryInterval, Run: e.delegations.RunExpirySweep},
		worker.Job{Name: service.SweepAutoClose, Interval: cfg.Scheduler.AutoCloseInterval, Run: e.timers.RunAutoCloseSweep},
		worker.Job{Name: service.SweepOutbox, Interval: cfg.Scheduler.OutboxInterval, Run: e.notifications.RelayOutbox},
		worker.Job{Name: service.SweepReminder, Interval: cfg.Scheduler.ReminderInterval, Run: e.reminders.RunReminderSweep},
	)
	return e, nil
}

func priorityDefaults(cfg config.SLAConfig) map[domain.TicketPriority]string {
	ids := make(map[domain.TicketPriority]string, len(cfg.DefaultByPriority))
	for priority, id := range cfg.DefaultByPriority {
		ids[domain.TicketPriority(strings.ToUpper(priority))] = id
	}
	return ids
}

func newNotifier(cfg config.NotificationConfig, logger *zap.Logger) notify.Notifier {
	if cfg.WebhookURL == "" {
		logger.Info("NOTIFY_WEBHOOK_URL not provided; notifications are logged")
		return notify.NewLogNotifier(logger)
	}
	return notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:              cfg.WebhookURL,
		Timeout:          cfg.WebhookTimeout,
		FailureThreshold: uint32(cfg.BreakerFailures),
		OpenTimeout:      cfg.BreakerOpenTimeout,
	}, logger)
}

func (e *engine) httpApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               e.cfg.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	httptransport.RegisterMiddlewares(app, e.logger, e.metrics, e.cfg.App.RequestTimeout())

	deps := map[string]handlers.Pinger{"postgres": e.postgres, "redis": nil}
	if e.redis != nil {
		deps["redis"] = e.redis
	}

	tokens := auth.NewTokenManager(e.cfg.Auth.JWTSecret, e.cfg.Auth.AccessTokenTTLMinutes)
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(e.cfg.App.Name, e.cfg.App.Version, deps),
		Delegations:    handlers.NewDelegationsHandler(e.delegations, e.cal),
		Tickets:        handlers.NewTicketsHandler(e.timers, e.assignments),
		Approvals:      handlers.NewApprovalsHandler(e.approvals),
		Sweeps:         handlers.NewSweepsHandler(e.scheduler),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        e.metrics,
	})
	return app
}

func (e *engine) close() {
	e.redis.Close()
	e.postgres.Close()
}
