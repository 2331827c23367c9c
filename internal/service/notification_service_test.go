package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/deadline-engine/internal/config"
	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/events"
)

type recordingNotifier struct {
	mu        sync.Mutex
	failUntil int
	calls     int
	delivered []string
	addressed [][]string
}

func (n *recordingNotifier) Notify(_ context.Context, kind string, recipients []string, payload json.RawMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	if n.calls <= n.failUntil {
		return errors.New("webhook returned 502")
	}
	n.delivered = append(n.delivered, kind+" "+string(payload))
	n.addressed = append(n.addressed, recipients)
	return nil
}

func newRelay(f *fixture, notifier *recordingNotifier) *NotificationService {
	svc := NewNotificationService(f.store, events.NewInMemoryDispatcher(), notifier, zap.NewNop(), nil, config.NotificationConfig{
		RatePerSecond: 1000,
		Burst:         10,
		MaxAttempts:   3,
	}, 50)
	svc.SetClock(f.clock.Now)
	svc.RegisterHandlers()
	return svc
}

func TestRelayOutbox_DeliversPendingEvents(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{}
	relay := newRelay(f, notifier)

	require.NoError(t, enqueue(f.ctx, f.store.Outbox, events.EventDelegationCreated,
		events.DelegationCreatedPayload{DelegationID: "d-1", OriginalID: "tech-a", BackupID: "tech-b"}, f.clock.Now()))

	report, err := relay.RelayOutbox(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	require.Len(t, notifier.delivered, 1)
	assert.Contains(t, notifier.delivered[0], "delegation_created")
	assert.Contains(t, notifier.delivered[0], `"delegation_id":"d-1"`)
	assert.Equal(t, []string{"tech-a", "tech-b"}, notifier.addressed[0])
	assert.Empty(t, f.pendingOutbox(t, string(events.EventDelegationCreated)))

	report, err = relay.RelayOutbox(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned)
}

func TestRelayOutbox_RetriesWithBackoff(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{failUntil: 2}
	relay := newRelay(f, notifier)

	require.NoError(t, enqueue(f.ctx, f.store.Outbox, events.EventEscalationTriggered,
		events.EscalationTriggeredPayload{TicketID: "t-1", Level: 1}, f.clock.Now()))

	report, err := relay.RelayOutbox(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	pending := f.pendingOutbox(t, string(events.EventEscalationTriggered))
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.True(t, pending[0].NextAttemptAt.Equal(june(3, 9, 0).Add(30*time.Second)))
	require.NotNil(t, pending[0].LastError)

	report, err = relay.RelayOutbox(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Scanned, "not due yet")

	f.clock.Set(june(3, 9, 1))
	report, err = relay.RelayOutbox(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	pending = f.pendingOutbox(t, string(events.EventEscalationTriggered))
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)

	f.clock.Set(june(3, 9, 5))
	report, err = relay.RelayOutbox(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Len(t, notifier.delivered, 1)
	assert.Empty(t, f.pendingOutbox(t, string(events.EventEscalationTriggered)))
}

func TestRelayOutbox_FailureLeavesSourceStateAlone(t *testing.T) {
	f := newFixture(t)
	notifier := &recordingNotifier{failUntil: 100}
	relay := newRelay(f, notifier)

	f.seedSLA(t, "sla-8h", 480, true, escalationLevels()...)
	f.seedTicket(t, "t-1", domain.TicketStatusOpen, "")
	_, err := f.timers.AttachSLA(f.ctx, "t-1", "sla-8h", nil, domain.SystemActor)
	require.NoError(t, err)
	f.clock.Set(june(3, 16, 0))
	_, err = f.escalations.EvaluateTicket(f.ctx, "t-1")
	require.NoError(t, err)

	_, err = relay.RelayOutbox(f.ctx)
	require.NoError(t, err)
	assert.True(t, f.ticket(t, "t-1").EscalationFired(1))
	assert.Len(t, f.historyOf(t, "t-1", domain.ChangeTypeEscalationTriggered), 1)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryDelay(1))
	assert.Equal(t, time.Minute, retryDelay(2))
	assert.Equal(t, 32*time.Minute, retryDelay(7))
	assert.Equal(t, time.Hour, retryDelay(8))
	assert.Equal(t, time.Hour, retryDelay(50))
}
