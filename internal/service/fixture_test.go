package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/calendar"
	"github.com/spec-kit/deadline-engine/internal/deadline"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/repository"
	"github.com/spec-kit/deadline-engine/internal/repository/memstore"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

var pht = time.FixedZone("PHT", 8*60*60)

// june builds a June 2024 instant. The 3rd is a Monday.
func june(day, hour, minute int) time.Time {
	return time.Date(2024, time.June, day, hour, minute, 0, 0, pht)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	ctx         context.Context
	mem         *memstore.Store
	store       *repository.Store
	clock       *testClock
	calc        *deadline.Calculator
	timers      *TimerService
	escalations *EscalationService
	delegations *DelegationService
	approvals   *ApprovalService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cal, err := calendar.Compile(&domain.CalendarProfile{
		Name:            "office",
		StandardHours:   domain.ClockRange{Start: "08:00", End: "17:00"},
		ExcludeWeekends: true,
	}, pht)
	require.NoError(t, err)

	clock := &testClock{now: june(3, 9, 0)}
	mem := memstore.New()
	mem.SetClock(clock.Now)
	store := mem.Repositories()
	calc := deadline.NewCalculator(cal, deadline.WithClock(clock.Now))
	logger := zap.NewNop()
	sweep := SweepOptions{Concurrency: 2, ItemTimeout: 5 * time.Second, BatchSize: 100}

	delegations := NewDelegationService(store, calc, logger, nil, sweep)
	return &fixture{
		ctx:         context.Background(),
		mem:         mem,
		store:       store,
		clock:       clock,
		calc:        calc,
		timers:      NewTimerService(store, calc, logger, nil, sweep, 10),
		escalations: NewEscalationService(store, calc, logger, nil, sweep),
		delegations: delegations,
		approvals:   NewApprovalService(store, NewApproverResolver(NewStaffDirectory(store)), delegations, logger),
	}
}

func (f *fixture) seedTicket(t *testing.T, id string, status domain.TicketStatus, technician string) {
	t.Helper()
	ticket := &domain.Ticket{
		ID:          id,
		ExternalKey: "REQ-" + id,
		RequesterID: "requester-1",
		Title:       "Printer on 3F is jammed",
		Status:      status,
		Priority:    domain.TicketPriorityMedium,
	}
	if technician != "" {
		ticket.AssignedTechnicianID = &technician
	}
	require.NoError(t, f.store.Tickets.Create(f.ctx, ticket))
}

func (f *fixture) seedSLA(t *testing.T, id string, minutes int, operational bool, levels ...domain.EscalationLevel) {
	t.Helper()
	require.NoError(t, f.store.SLAs.Create(f.ctx, &domain.SLADefinition{
		ID:                   id,
		Name:                 "Standard " + id,
		Minutes:              minutes,
		OperationalHoursOnly: operational,
		Escalations:          levels,
	}))
}

func (f *fixture) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets.GetByID(f.ctx, id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) historyOf(t *testing.T, ticketID string, change domain.TicketChangeType) []domain.TicketHistory {
	t.Helper()
	entries, err := f.store.History.ListByTicket(f.ctx, ticketID)
	require.NoError(t, err)
	var matched []domain.TicketHistory
	for _, entry := range entries {
		if entry.ChangeType == change {
			matched = append(matched, entry)
		}
	}
	return matched
}

func (f *fixture) pendingOutbox(t *testing.T, kind string) []domain.OutboxEvent {
	t.Helper()
	pending, err := f.store.Outbox.ListPending(f.ctx, june(30, 0, 0), 0)
	require.NoError(t, err)
	var matched []domain.OutboxEvent
	for _, event := range pending {
		if event.Kind == kind {
			matched = append(matched, event)
		}
	}
	return matched
}

func (f *fixture) logActions(t *testing.T, delegationID string) []domain.DelegationAction {
	t.Helper()
	logs, err := f.store.DelegationLogs.ListByDelegation(f.ctx, delegationID)
	require.NoError(t, err)
	actions := make([]domain.DelegationAction, 0, len(logs))
	for _, entry := range logs {
		actions = append(actions, entry.Action)
	}
	return actions
}

func failOn(id string) memstore.FaultFunc {
	return func(key string) error {
		if key == id {
			return errors.New("connection reset by peer")
		}
		return nil
	}
}

func errorCode(err error) string {
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

func assignee(ticket *domain.Ticket) string {
	if ticket.AssignedTechnicianID == nil {
		return ""
	}
	return *ticket.AssignedTechnicianID
}

func ptr[T any](v T) *T {
	return &v
}
