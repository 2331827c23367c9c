package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/deadline-engine/internal/domain"
	apperrors "github.com/spec-kit/deadline-engine/pkg/util"
)

func TestAttachSLA_ComputesDueDateInWorkingTime(t *testing.T) {
	f := newFixture(t)
	f.seedTicket(t, "t-1", domain.TicketStatusForApproval, "")
	f.seedSLA(t, "sla-8h", 480, true)

	ticket, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.StaffActor("agent-1"))
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	require.NotNil(t, ticket.DueAt)
	assert.True(t, ticket.DueAt.Equal(june(3, 17, 0)), "got %s", ticket.DueAt)
	assert.Equal(t, 480, *ticket.SLAMinutesTotal)

	stored := f.ticket(t, "t-1")
	assert.True(t, stored.DueAt.Equal(june(3, 17, 0)))
	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeSLAAttached), 1)
}

func TestAttachSLA_FallsBackToPriorityDefault(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true)
	f.timers.WithPriorityDefaults(map[domain.TicketPriority]string{
		domain.TicketPriorityMedium: "default-medium",
		domain.TicketPriorityHigh:   "sla-8h",
		domain.TicketPriorityLow:    " ",
	})
	require.NoError(t, f.timers.EnsureDefaultSLAs(f.ctx))
	require.NoError(t, f.timers.EnsureDefaultSLAs(f.ctx))

	_, err := f.store.SLAs.GetByID(f.ctx, "default-medium")
	require.NoError(t, err)
	_, err = f.store.SLAs.GetByID(f.ctx, "default-high")
	assert.Error(t, err)

	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	ticket, err := f.timers.AttachSLA(f.ctx, "t-1", "", nil, domain.SystemActor)
	require.NoError(t, err)
	require.NotNil(t, ticket.SLAID)
	assert.Equal(t, "default-medium", *ticket.SLAID)
	assert.False(t, ticket.OperationalHoursOnly)
	assert.True(t, ticket.DueAt.Equal(june(10, 9, 0)), "got %s", ticket.DueAt)

	require.NoError(t, f.store.Tickets.Create(f.ctx, &domain.Ticket{
		ID: "t-2", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityLow,
	}))
	_, err = f.timers.AttachSLA(f.ctx, "t-2", "", nil, domain.SystemActor)
	assert.Equal(t, apperrors.CodeValidationFailed, errorCode(err))
}

func TestAttachSLA_RejectsTerminalTicket(t *testing.T) {
	f := newFixture(t)
	f.seedTicket(t, "t-1", domain.TicketStatusClosed, "")
	f.seedSLA(t, "sla-8h", 480, true)

	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	assert.Equal(t, apperrors.CodeInvalidTransition, errorCode(err))
}

func TestAttachSLA_RollsBackWhenHistoryWriteFails(t *testing.T) {
	f := newFixture(t)
	f.seedTicket(t, "t-1", domain.TicketStatusForApproval, "")
	f.seedSLA(t, "sla-8h", 480, true)
	f.mem.InjectFault("history.Create", failOn("t-1"))

	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.Error(t, err)

	stored := f.ticket(t, "t-1")
	assert.Equal(t, domain.TicketStatusForApproval, stored.Status)
	assert.Nil(t, stored.DueAt)
	assert.False(t, stored.HasSLA())
}

func TestStopAndStartTimer_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "tech-1")
	f.seedSLA(t, "sla-8h", 480, true)
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)

	f.clock.Set(june(3, 13, 0))
	stopped, err := f.timers.StopTimer(f.ctx, "t-1", "  waiting on vendor  ", domain.StaffActor("tech-1"))
	require.NoError(t, err)
	assert.Equal(t, 240, stopped.RemainingMinutes)
	assert.Equal(t, domain.TicketStatusOnHold, stopped.NewStatus)

	paused := f.ticket(t, "t-1")
	assert.Nil(t, paused.DueAt)
	require.NotNil(t, paused.RemainingMinutes)
	assert.Equal(t, 240, *paused.RemainingMinutes)
	assert.Equal(t, "waiting on vendor", paused.PauseReason)

	history := f.historyOf(t, "t-1", domain.ChangeTypeTimerStopped)
	require.Len(t, history, 1)
	assert.Equal(t, "SLA timer stopped: waiting on vendor. Remaining time: 4 hours", history[0].Summary)

	f.clock.Set(june(5, 9, 0))
	started, err := f.timers.StartTimer(f.ctx, "t-1", domain.StaffActor("tech-1"))
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusOpen, started.NewStatus)
	assert.True(t, started.NewDueAt.Equal(june(5, 13, 0)), "got %s", started.NewDueAt)

	resumed := f.ticket(t, "t-1")
	assert.Nil(t, resumed.RemainingMinutes)
	assert.Empty(t, resumed.PauseReason)
	assert.Nil(t, resumed.PausedAt)
	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeTimerStarted), 1)
}

func TestStopTimer_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)
	f.seedTicket(t, "no-sla", domain.TicketStatusOpen, "")

	_, err = f.timers.StopTimer(f.ctx, "t-1", "   ", domain.SystemActor)
	assert.Equal(t, apperrors.CodeMissingReason, errorCode(err))

	_, err = f.timers.StopTimer(f.ctx, "no-sla", "vendor", domain.SystemActor)
	assert.Equal(t, apperrors.CodeSLANotAttached, errorCode(err))

	_, err = f.timers.StopTimer(f.ctx, "missing", "vendor", domain.SystemActor)
	assert.Equal(t, apperrors.CodeItemNotFound, errorCode(err))

	_, err = f.timers.StopTimer(f.ctx, "t-1", "vendor", domain.SystemActor)
	require.NoError(t, err)
	_, err = f.timers.StopTimer(f.ctx, "t-1", "vendor again", domain.SystemActor)
	assert.Equal(t, apperrors.CodeInvalidTransition, errorCode(err))
	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeTimerStopped), 1)
}

func TestStartTimer_Errors(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true)
	f.seedTicket(t, "open", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "open", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)

	_, err = f.timers.StartTimer(f.ctx, "open", domain.SystemActor)
	assert.Equal(t, apperrors.CodeInvalidTransition, errorCode(err))

	f.seedTicket(t, "no-snapshot", domain.TicketStatusOnHold, "")
	_, err = f.timers.StartTimer(f.ctx, "no-snapshot", domain.SystemActor)
	assert.Equal(t, apperrors.CodeMissingRemainingSLA, errorCode(err))
}

func TestFinalize(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)

	_, err = f.timers.Finalize(f.ctx, "t-1", domain.TicketStatusOpen, domain.SystemActor)
	assert.Equal(t, apperrors.CodeValidationFailed, errorCode(err))

	resolved, err := f.timers.Finalize(f.ctx, "t-1", domain.TicketStatusResolved, domain.SystemActor)
	require.NoError(t, err)
	assert.Nil(t, resolved.DueAt)
	assert.NotNil(t, resolved.ResolvedAt)

	closed, err := f.timers.Finalize(f.ctx, "t-1", domain.TicketStatusClosed, domain.SystemActor)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)

	_, err = f.timers.Finalize(f.ctx, "t-1", domain.TicketStatusCancelled, domain.SystemActor)
	assert.Equal(t, apperrors.CodeInvalidTransition, errorCode(err))
}

func TestDeadline_ReportsHealth(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)

	f.clock.Set(june(3, 16, 30))
	view, err := f.timers.Deadline(f.ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, view.RemainingMinutes)
	assert.Equal(t, 30, *view.RemainingMinutes)
	assert.Equal(t, "30 minutes", view.Remaining)
	assert.Empty(t, view.EscalationsFired)

	f.clock.Set(june(3, 18, 0))
	view, err = f.timers.Deadline(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, 0, *view.RemainingMinutes)
}

func TestRunAutoCloseSweep_ClosesStaleResolvedTickets(t *testing.T) {
	f := newFixture(t)
	f.seedTicket(t, "stale", domain.TicketStatusOpen, "")
	f.seedTicket(t, "fresh", domain.TicketStatusOpen, "")

	f.clock.Set(june(3, 9, 0))
	_, err := f.timers.Finalize(f.ctx, "stale", domain.TicketStatusResolved, domain.SystemActor)
	require.NoError(t, err)
	f.clock.Set(june(12, 9, 0))
	_, err = f.timers.Finalize(f.ctx, "fresh", domain.TicketStatusResolved, domain.SystemActor)
	require.NoError(t, err)

	f.clock.Set(june(14, 9, 0))
	report, err := f.timers.RunAutoCloseSweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 0, report.Failed)

	assert.Equal(t, domain.TicketStatusClosed, f.ticket(t, "stale").Status)
	assert.Equal(t, domain.TicketStatusResolved, f.ticket(t, "fresh").Status)
}
