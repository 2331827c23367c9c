package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

type outboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository builds repository.
func NewOutboxRepository(pool *pgxpool.Pool) OutboxRepository {
	return &outboxRepository{pool: pool}
}

func (r *outboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	const query = `
        INSERT INTO outbox_events (id, kind, payload, next_attempt_at)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		event.ID, event.Kind, event.Payload, event.NextAttemptAt,
	).Scan(&event.CreatedAt)
}

func (r *outboxRepository) ListPending(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEvent, error) {
	const query = `
        SELECT id, kind, payload, created_at, attempts, next_attempt_at, delivered_at, last_error
        FROM outbox_events
        WHERE delivered_at IS NULL AND next_attempt_at <= $1
        ORDER BY created_at ASC
        LIMIT $2`
	if limit <= 0 {
		limit = 100
	}
	rows, err := conn(ctx, r.pool).Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OutboxEvent
	for rows.Next() {
		var event domain.OutboxEvent
		if err := rows.Scan(
			&event.ID,
			&event.Kind,
			&event.Payload,
			&event.CreatedAt,
			&event.Attempts,
			&event.NextAttemptAt,
			&event.DeliveredAt,
			&event.LastError,
		); err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE outbox_events SET delivered_at=$1, attempts=attempts+1, last_error=NULL WHERE id=$2`
	return r.exec(ctx, query, at, id)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, lastError string) error {
	const query = `UPDATE outbox_events SET attempts=$1, next_attempt_at=$2, last_error=$3 WHERE id=$4`
	return r.exec(ctx, query, attempts, nextAttemptAt, lastError, id)
}

func (r *outboxRepository) exec(ctx context.Context, query string, args ...any) error {
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
