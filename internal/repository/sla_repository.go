package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

type slaRepository struct {
	pool *pgxpool.Pool
}

// escalationRow is the jsonb shape of one escalation level.
type escalationRow struct {
	Level         int      `json:"level"`
	Enabled       bool     `json:"enabled"`
	Targets       []string `json:"targets"`
	Timing        string   `json:"timing"`
	OffsetMinutes int      `json:"offset_minutes"`
}

// NewSLARepository builds repository.
func NewSLARepository(pool *pgxpool.Pool) SLARepository {
	return &slaRepository{pool: pool}
}

func (r *slaRepository) Create(ctx context.Context, sla *domain.SLADefinition) error {
	const query = `
        INSERT INTO sla_definitions (id, name, days, hours, minutes, operational_hours_only, escalations)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	rows := make([]escalationRow, 0, len(sla.Escalations))
	for _, level := range sla.Escalations {
		rows = append(rows, escalationRow{
			Level:         level.Level,
			Enabled:       level.Enabled,
			Targets:       level.Targets,
			Timing:        string(level.Timing),
			OffsetMinutes: level.OffsetMinutes,
		})
	}
	_, err := conn(ctx, r.pool).Exec(ctx, query,
		sla.ID, sla.Name, sla.Days, sla.Hours, sla.Minutes, sla.OperationalHoursOnly, rows)
	return err
}

func (r *slaRepository) GetByID(ctx context.Context, id string) (*domain.SLADefinition, error) {
	const query = `
        SELECT id, name, days, hours, minutes, operational_hours_only, escalations
        FROM sla_definitions WHERE id=$1`
	var (
		sla  domain.SLADefinition
		rows []escalationRow
	)
	if err := conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&sla.ID,
		&sla.Name,
		&sla.Days,
		&sla.Hours,
		&sla.Minutes,
		&sla.OperationalHoursOnly,
		&rows,
	); err != nil {
		return nil, err
	}
	for _, row := range rows {
		sla.Escalations = append(sla.Escalations, domain.EscalationLevel{
			Level:         row.Level,
			Enabled:       row.Enabled,
			Targets:       row.Targets,
			Timing:        domain.EscalationTiming(row.Timing),
			OffsetMinutes: row.OffsetMinutes,
		})
	}
	return &sla, nil
}
