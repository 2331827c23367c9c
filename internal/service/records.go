package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/deadline-engine/internal/domain"
	"github.com/spec-kit/deadline-engine/internal/events"
	"github.com/spec-kit/deadline-engine/internal/repository"
)

// humanTimeLayout is how due dates appear in history summaries.
const humanTimeLayout = "Jan 2, 2006 3:04 PM"

// enqueue records a notification in the caller's transaction.
func enqueue(ctx context.Context, outbox repository.OutboxRepository, kind events.EventType, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return outbox.Enqueue(ctx, &domain.OutboxEvent{
		ID:            uuid.NewString(),
		Kind:          string(kind),
		Payload:       body,
		NextAttemptAt: now,
	})
}

func appendHistory(ctx context.Context, repo repository.TicketHistoryRepository, ticketID string, actor domain.Actor,
	change domain.TicketChangeType, summary string, oldValue, newValue map[string]any) error {
	return repo.Create(ctx, &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByType: actor.Type,
		ChangedByID:   actor.ID,
		ChangeType:    change,
		Summary:       summary,
		OldValue:      oldValue,
		NewValue:      newValue,
	})
}

func appendDelegationLog(ctx context.Context, repo repository.DelegationLogRepository, delegationID string,
	action domain.DelegationAction, actor domain.Actor, details map[string]any) error {
	return repo.Create(ctx, &domain.DelegationLog{
		ID:           uuid.NewString(),
		DelegationID: delegationID,
		Action:       action,
		Details:      details,
		PerformedBy:  actor.ID,
	})
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}
