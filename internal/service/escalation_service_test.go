package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/events"
)

func escalationLevels() []domain.EscalationLevel {
	return []domain.EscalationLevel{
		{Level: 3, Enabled: true, Targets: []string{"director-1"}, Timing: domain.EscalationAfter, OffsetMinutes: 120},
		{Level: 1, Enabled: true, Targets: []string{"lead-1"}, Timing: domain.EscalationBefore, OffsetMinutes: 60},
		{Level: 2, Enabled: true, Targets: []string{"manager-1"}, Timing: domain.EscalationAfter, OffsetMinutes: 0},
		{Level: 4, Enabled: false, Targets: []string{"cio-1"}, Timing: domain.EscalationAfter, OffsetMinutes: 0},
	}
}

func TestEvaluateTicket_FiresEachLevelOnce(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true, escalationLevels()...)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "tech-1")
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)

	f.clock.Set(june(3, 15, 0))
	fired, err := f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, fired)

	f.clock.Set(june(3, 16, 0))
	fired, err = f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, fired)

	fired, err = f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, fired)

	f.clock.Set(june(3, 17, 30))
	fired, err = f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, fired)

	f.clock.Set(june(4, 9, 0))
	fired, err = f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, []int{3}, fired)

	fired, err = f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, fired)

	ticket := f.ticket(t, "t-1")
	assert.True(t, ticket.EscalationFired(1))
	assert.True(t, ticket.EscalationFired(2))
	assert.True(t, ticket.EscalationFired(3))
	assert.False(t, ticket.EscalationFired(4))

	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeEscalationTriggered), 3)
	assert.Len(t, f.pendingOutbox(t, string(events.EventEscalationTriggered)), 3)
}

func TestEvaluateTicket_FiresOverdueLevelsTogether(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true, escalationLevels()...)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)

	f.clock.Set(june(4, 9, 0))
	fired, err := f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, fired)
}

func TestRunEscalationSweep_ReachesTicketsBeyondOneBatch(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-quiet", 480, true)
	f.seedSLA(t, "sla-8h", 480, true, escalationLevels()...)
	for i := 0; i < 250; i++ {
		id := fmt.Sprintf("a-%03d", i)
		f.seedTicket(t, id, domain.TicketStatusOpen, "")
		_, err := f.timers.AttachSLA(f.ctx, id, "sla-quiet", nil, domain.SystemActor)
		require.NoError(t, err)
	}
	f.clock.Set(june(3, 9, 1))
	f.seedTicket(t, "z-1", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "z-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)

	f.clock.Set(june(4, 12, 0))
	report, err := f.escalations.RunEscalationSweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 251, report.Scanned)
	assert.Equal(t, 1, report.Processed)

	ticket := f.ticket(t, "z-1")
	assert.True(t, ticket.EscalationFired(1))
	assert.True(t, ticket.EscalationFired(3))
}

func TestEvaluateTicket_IgnoresPausedTickets(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true, escalationLevels()...)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)
	_, err = f.timers.StopTimer(f.ctx, "t-1", "awaiting parts", domain.SystemActor)
	require.NoError(t, err)

	f.clock.Set(june(10, 9, 0))
	fired, err := f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, fired)
	assert.Empty(t, f.pendingOutbox(t, string(events.EventEscalationTriggered)))
}

func TestRunEscalationSweep_IsolatesFailures(t *testing.T) {
	f := newFixture(t)
	f.seedSLA(t, "sla-8h", 480, true, escalationLevels()...)
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		f.seedTicket(t, id, domain.TicketStatusOpen, "")
		_, err := f.timers.AttachSLA(f.ctx, id, "sla-8h", nil, domain.SystemActor)
		require.NoError(t, err)
	}
	f.mem.InjectFault("history.Create", failOn("t-2"))

	f.clock.Set(june(3, 16, 0))
	report, err := f.escalations.RunEscalationSweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "t-2", report.Failures[0].ItemID)

	assert.True(t, f.ticket(t, "t-1").EscalationFired(1))
	assert.False(t, f.ticket(t, "t-2").EscalationFired(1))
	assert.True(t, f.ticket(t, "t-3").EscalationFired(1))
	assert.Len(t, f.pendingOutbox(t, string(events.EventEscalationTriggered)), 2)

	f.mem.ClearFaults()
	report, err = f.escalations.RunEscalationSweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 2, report.Skipped)
	assert.True(t, f.ticket(t, "t-2").EscalationFired(1))
}
