package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

const approvalColumns = `id, ticket_id, level, name, approver_id, status, created_at, decided_at, reminded_at`

type approvalRepository struct {
	pool *pgxpool.Pool
}

// NewApprovalRepository builds repository.
func NewApprovalRepository(pool *pgxpool.Pool) ApprovalRepository {
	return &approvalRepository{pool: pool}
}

func (r *approvalRepository) Create(ctx context.Context, step *domain.ApprovalStep) error {
	const query = `
        INSERT INTO approval_steps (id, ticket_id, level, name, approver_id, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		step.ID, step.TicketID, step.Level, step.Name, step.ApproverID, step.Status,
	).Scan(&step.CreatedAt)
}

func (r *approvalRepository) GetByID(ctx context.Context, id string) (*domain.ApprovalStep, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_steps WHERE id=$1`
	return scanApproval(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *approvalRepository) GetForUpdate(ctx context.Context, id string) (*domain.ApprovalStep, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_steps WHERE id=$1 FOR UPDATE`
	return scanApproval(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *approvalRepository) ListPendingByApprover(ctx context.Context, approverID string) ([]domain.ApprovalStep, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_steps
        WHERE approver_id=$1 AND status IN ($2,$3) ORDER BY created_at ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, approverID, domain.ApprovalPending, domain.ApprovalForClarification)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ApprovalStep
	for rows.Next() {
		step, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *step)
	}
	return result, rows.Err()
}

func (r *approvalRepository) UpdateApprover(ctx context.Context, id, approverID string) error {
	const query = `UPDATE approval_steps SET approver_id=$1 WHERE id=$2`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, approverID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *approvalRepository) UpdateStatus(ctx context.Context, id string, status domain.ApprovalStatus, decidedAt *time.Time) error {
	const query = `UPDATE approval_steps SET status=$1, decided_at=$2 WHERE id=$3`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, status, decidedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *approvalRepository) ListAwaitingReminder(ctx context.Context, cutoff time.Time, afterID string, limit int) ([]domain.ApprovalStep, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_steps
        WHERE status IN ($1,$2) AND COALESCE(reminded_at, created_at) <= $3 AND id > $4
        ORDER BY id ASC LIMIT $5`
	rows, err := conn(ctx, r.pool).Query(ctx, query, domain.ApprovalPending, domain.ApprovalForClarification, cutoff, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ApprovalStep
	for rows.Next() {
		step, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *step)
	}
	return result, rows.Err()
}

func (r *approvalRepository) MarkReminded(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE approval_steps SET reminded_at=$1 WHERE id=$2`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, at, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanApproval(row pgx.Row) (*domain.ApprovalStep, error) {
	var step domain.ApprovalStep
	if err := row.Scan(
		&step.ID,
		&step.TicketID,
		&step.Level,
		&step.Name,
		&step.ApproverID,
		&step.Status,
		&step.CreatedAt,
		&step.DecidedAt,
		&step.RemindedAt,
	); err != nil {
		return nil, err
	}
	return &step, nil
}
