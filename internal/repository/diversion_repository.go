package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

const diversionColumns = `id, delegation_id, work_item_kind, work_item_id, ticket_id, original_person_id,
               backup_person_id, diverted_at, reverted_at, reversion_type`

type diversionRepository struct {
	pool *pgxpool.Pool
}

// NewDiversionRepository builds repository.
func NewDiversionRepository(pool *pgxpool.Pool) DiversionRepository {
	return &diversionRepository{pool: pool}
}

func (r *diversionRepository) Create(ctx context.Context, d *domain.Diversion) error {
	const query = `
        INSERT INTO diversions (id, delegation_id, work_item_kind, work_item_id, ticket_id,
            original_person_id, backup_person_id, diverted_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		d.ID,
		d.DelegationID,
		d.WorkItemKind,
		d.WorkItemID,
		d.TicketID,
		d.OriginalPersonID,
		d.BackupPersonID,
		d.DivertedAt,
	)
	return err
}

func (r *diversionRepository) ListByDelegation(ctx context.Context, delegationID string) ([]domain.Diversion, error) {
	query := `SELECT ` + diversionColumns + ` FROM diversions WHERE delegation_id=$1 ORDER BY diverted_at ASC`
	return r.query(ctx, query, delegationID)
}

func (r *diversionRepository) ListOpenByDelegation(ctx context.Context, delegationID string) ([]domain.Diversion, error) {
	query := `SELECT ` + diversionColumns + ` FROM diversions
        WHERE delegation_id=$1 AND reverted_at IS NULL ORDER BY diverted_at ASC`
	return r.query(ctx, query, delegationID)
}

func (r *diversionRepository) MarkReverted(ctx context.Context, id string, reversion domain.ReversionType, at time.Time) error {
	const query = `UPDATE diversions SET reverted_at=$1, reversion_type=$2 WHERE id=$3 AND reverted_at IS NULL`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, at, reversion, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *diversionRepository) query(ctx context.Context, query string, args ...any) ([]domain.Diversion, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Diversion
	for rows.Next() {
		var d domain.Diversion
		if err := rows.Scan(
			&d.ID,
			&d.DelegationID,
			&d.WorkItemKind,
			&d.WorkItemID,
			&d.TicketID,
			&d.OriginalPersonID,
			&d.BackupPersonID,
			&d.DivertedAt,
			&d.RevertedAt,
			&d.ReversionType,
		); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
