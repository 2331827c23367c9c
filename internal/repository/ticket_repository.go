package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

const ticketColumns = `id, external_key, requester_id, assigned_technician_id, title, status, priority,
               sla_id, operational_hours_only, sla_minutes_total, sla_started_at, due_at,
               remaining_minutes, pause_reason, paused_at, resumed_at,
               escalation_l1_fired_at, escalation_l2_fired_at, escalation_l3_fired_at, escalation_l4_fired_at,
               created_at, updated_at, resolved_at, closed_at`

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, external_key, requester_id, assigned_technician_id, title, status, priority)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING created_at, updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.ID,
		ticket.ExternalKey,
		ticket.RequesterID,
		ticket.AssignedTechnicianID,
		ticket.Title,
		ticket.Status,
		ticket.Priority,
	).Scan(&ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, id))
}

func (r *ticketRepository) List(ctx context.Context, filter domain.TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.WithDueDate {
		clauses = append(clauses, "due_at IS NOT NULL", "sla_id IS NOT NULL")
	}
	if filter.ResolvedBefore != nil {
		args = append(args, *filter.ResolvedBefore)
		clauses = append(clauses, fmt.Sprintf("resolved_at < $%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_technician_id=$%d", len(args)))
	}
	if filter.After != nil {
		args = append(args, filter.After.CreatedAt, filter.After.ID)
		clauses = append(clauses, fmt.Sprintf("(created_at, id) > ($%d, $%d)", len(args)-1, len(args)))
	}

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) UpdateDeadline(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET status=$1, sla_id=$2, operational_hours_only=$3, sla_minutes_total=$4,
            sla_started_at=$5, due_at=$6, remaining_minutes=$7, pause_reason=$8, paused_at=$9, resumed_at=$10,
            escalation_l1_fired_at=$11, escalation_l2_fired_at=$12, escalation_l3_fired_at=$13, escalation_l4_fired_at=$14,
            resolved_at=$15, closed_at=$16, updated_at=NOW()
        WHERE id=$17
        RETURNING updated_at`
	err := conn(ctx, r.pool).QueryRow(ctx, query,
		ticket.Status,
		ticket.SLAID,
		ticket.OperationalHoursOnly,
		ticket.SLAMinutesTotal,
		ticket.SLAStartedAt,
		ticket.DueAt,
		ticket.RemainingMinutes,
		ticket.PauseReason,
		ticket.PausedAt,
		ticket.ResumedAt,
		ticket.EscalationFiredAt[0],
		ticket.EscalationFiredAt[1],
		ticket.EscalationFiredAt[2],
		ticket.EscalationFiredAt[3],
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	).Scan(&ticket.UpdatedAt)
	return err
}

func (r *ticketRepository) UpdateAssignee(ctx context.Context, id string, technicianID *string) error {
	const query = `UPDATE tickets SET assigned_technician_id=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := conn(ctx, r.pool).Exec(ctx, query, technicianID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.RequesterID,
		&ticket.AssignedTechnicianID,
		&ticket.Title,
		&ticket.Status,
		&ticket.Priority,
		&ticket.SLAID,
		&ticket.OperationalHoursOnly,
		&ticket.SLAMinutesTotal,
		&ticket.SLAStartedAt,
		&ticket.DueAt,
		&ticket.RemainingMinutes,
		&ticket.PauseReason,
		&ticket.PausedAt,
		&ticket.ResumedAt,
		&ticket.EscalationFiredAt[0],
		&ticket.EscalationFiredAt[1],
		&ticket.EscalationFiredAt[2],
		&ticket.EscalationFiredAt[3],
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
