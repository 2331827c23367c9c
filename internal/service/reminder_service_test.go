package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/events"
)

func TestRunReminderSweep_RemindsOncePerPeriod(t *testing.T) {
	f := newFixture(t)
	reminders := NewReminderService(f.store, f.calc, zap.NewNop(), nil,
		SweepOptions{Concurrency: 2, ItemTimeout: 5 * time.Second, BatchSize: 1}, 24*time.Hour)

	f.seedTicket(t, "t-1", domain.TicketStatusForApproval, "")
	f.seedTicket(t, "t-closed", domain.TicketStatusClosed, "")
	for _, step := range []domain.ApprovalStep{
		{ID: "s-1", TicketID: "t-1", Level: 1, Name: "Manager approval", ApproverID: "mgr-a", Status: domain.ApprovalPending},
		{ID: "s-2", TicketID: "t-1", Level: 2, Name: "Head approval", ApproverID: "head-a", Status: domain.ApprovalApproved},
		{ID: "s-3", TicketID: "t-closed", Level: 1, Name: "Manager approval", ApproverID: "mgr-a", Status: domain.ApprovalPending},
	} {
		step := step
		require.NoError(t, f.store.Approvals.Create(f.ctx, &step))
	}

	report, err := reminders.RunReminderSweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	f.clock.Set(june(4, 9, 0))
	report, err = reminders.RunReminderSweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Skipped)

	queued := f.pendingOutbox(t, string(events.EventApprovalReminder))
	require.Len(t, queued, 1)
	var payload events.ApprovalReminderPayload
	require.NoError(t, json.Unmarshal(queued[0].Payload, &payload))
	assert.Equal(t, "s-1", payload.ApprovalStepID)
	assert.Equal(t, []string{"mgr-a"}, payload.Recipients())

	f.clock.Set(june(4, 18, 0))
	report, err = reminders.RunReminderSweep(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
	assert.Len(t, f.pendingOutbox(t, string(events.EventApprovalReminder)), 1)

	f.clock.Set(june(5, 9, 0))
	report, err = reminders.RunReminderSweep(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Len(t, f.pendingOutbox(t, string(events.EventApprovalReminder)), 2)
}
