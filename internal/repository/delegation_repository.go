package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

// exclusionViolation is raised by the no-overlap constraint on delegations.
const exclusionViolation = "23P01"

const delegationColumns = `id, kind, original_person_id, backup_person_id, window_start, window_end,
               divert_existing, reason, is_active, created_by, created_at, deactivated_at, deactivated_by`

type delegationRepository struct {
	pool *pgxpool.Pool
}

// NewDelegationRepository builds repository.
func NewDelegationRepository(pool *pgxpool.Pool) DelegationRepository {
	return &delegationRepository{pool: pool}
}

func (r *delegationRepository) Create(ctx context.Context, d *domain.Delegation) error {
	const query = `
        INSERT INTO delegations (id, kind, original_person_id, backup_person_id, window_start, window_end,
            divert_existing, reason, is_active, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING created_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		d.ID,
		d.Kind,
		d.OriginalPersonID,
		d.BackupPersonID,
		d.WindowStart,
		d.WindowEnd,
		d.DivertExisting,
		d.Reason,
		d.IsActive,
		d.CreatedBy,
	).Scan(&d.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return fmt.Errorf("%w: %s", domain.ErrOverlappingDelegation, pgErr.Message)
	}
	return err
}

func (r *delegationRepository) GetByID(ctx context.Context, id string) (*domain.Delegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegations WHERE id=$1`
	return scanDelegation(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *delegationRepository) GetForUpdate(ctx context.Context, id string) (*domain.Delegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegations WHERE id=$1 FOR UPDATE`
	return scanDelegation(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *delegationRepository) List(ctx context.Context, filter domain.DelegationFilter) ([]domain.Delegation, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.OriginalPersonID != nil {
		args = append(args, *filter.OriginalPersonID)
		clauses = append(clauses, fmt.Sprintf("original_person_id=$%d", len(args)))
	}
	if filter.BackupPersonID != nil {
		args = append(args, *filter.BackupPersonID)
		clauses = append(clauses, fmt.Sprintf("backup_person_id=$%d", len(args)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "is_active")
	}
	if filter.EndsAfter != nil {
		args = append(args, *filter.EndsAfter)
		clauses = append(clauses, fmt.Sprintf("window_end >= $%d", len(args)))
	}
	if filter.EndsBefore != nil {
		args = append(args, *filter.EndsBefore)
		clauses = append(clauses, fmt.Sprintf("window_end <= $%d", len(args)))
	}

	query := `SELECT ` + delegationColumns + ` FROM delegations WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY window_start DESC, created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return r.query(ctx, query, args...)
}

func (r *delegationRepository) LockPerson(ctx context.Context, kind domain.DelegationKind, originalPersonID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	_, err := conn(ctx, r.pool).Exec(ctx, query, string(kind)+":"+originalPersonID)
	return err
}

func (r *delegationRepository) FindOverlapping(ctx context.Context, kind domain.DelegationKind, originalPersonID string, start, end time.Time) ([]domain.Delegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegations
        WHERE kind=$1 AND original_person_id=$2 AND is_active
          AND window_start <= $4 AND window_end >= $3
        ORDER BY window_start ASC`
	return r.query(ctx, query, kind, originalPersonID, start, end)
}

func (r *delegationRepository) FindActiveFor(ctx context.Context, kind domain.DelegationKind, originalPersonID string, at time.Time) (*domain.Delegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegations
        WHERE kind=$1 AND original_person_id=$2 AND is_active
          AND window_start <= $3 AND window_end >= $3
        ORDER BY created_at DESC LIMIT 1`
	return scanDelegation(conn(ctx, r.pool).QueryRow(ctx, query, kind, originalPersonID, at))
}

func (r *delegationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Delegation, error) {
	query := `SELECT ` + delegationColumns + ` FROM delegations
        WHERE is_active AND window_end < $1
        ORDER BY window_end ASC LIMIT $2`
	if limit <= 0 {
		limit = 500
	}
	return r.query(ctx, query, now, limit)
}

func (r *delegationRepository) Deactivate(ctx context.Context, id string, at time.Time, by *string) error {
	const query = `UPDATE delegations SET is_active=FALSE, deactivated_at=$1, deactivated_by=$2 WHERE id=$3 AND is_active`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, at, by, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *delegationRepository) query(ctx context.Context, query string, args ...any) ([]domain.Delegation, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Delegation
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	return result, rows.Err()
}

func scanDelegation(row pgx.Row) (*domain.Delegation, error) {
	var d domain.Delegation
	if err := row.Scan(
		&d.ID,
		&d.Kind,
		&d.OriginalPersonID,
		&d.BackupPersonID,
		&d.WindowStart,
		&d.WindowEnd,
		&d.DivertExisting,
		&d.Reason,
		&d.IsActive,
		&d.CreatedBy,
		&d.CreatedAt,
		&d.DeactivatedAt,
		&d.DeactivatedBy,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

type delegationLogRepository struct {
	pool *pgxpool.Pool
}

// NewDelegationLogRepository builds repository.
func NewDelegationLogRepository(pool *pgxpool.Pool) DelegationLogRepository {
	return &delegationLogRepository{pool: pool}
}

func (r *delegationLogRepository) Create(ctx context.Context, entry *domain.DelegationLog) error {
	const query = `
        INSERT INTO delegation_logs (id, delegation_id, action, details, performed_by)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		entry.ID, entry.DelegationID, entry.Action, entry.Details, entry.PerformedBy,
	).Scan(&entry.CreatedAt)
}

func (r *delegationLogRepository) ListByDelegation(ctx context.Context, delegationID string) ([]domain.DelegationLog, error) {
	const query = `
        SELECT id, delegation_id, action, details, performed_by, created_at
        FROM delegation_logs WHERE delegation_id=$1 ORDER BY created_at ASC`
	rows, err := conn(ctx, r.pool).Query(ctx, query, delegationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DelegationLog
	for rows.Next() {
		var entry domain.DelegationLog
		if err := rows.Scan(
			&entry.ID,
			&entry.DelegationID,
			&entry.Action,
			&entry.Details,
			&entry.PerformedBy,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
