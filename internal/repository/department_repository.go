package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/deadline-engine/internal/domain"
)

type departmentRepository struct {
	pool *pgxpool.Pool
}

// NewDepartmentRepository builds repository.
func NewDepartmentRepository(pool *pgxpool.Pool) DepartmentRepository {
	return &departmentRepository{pool: pool}
}

func (r *departmentRepository) Create(ctx context.Context, department *domain.Department) error {
	const query = `
        INSERT INTO departments (id, name, head_id, is_active)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at, updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, query,
		department.ID, department.Name, department.HeadID, department.IsActive,
	).Scan(&department.CreatedAt, &department.UpdatedAt)
}

func (r *departmentRepository) GetByID(ctx context.Context, id string) (*domain.Department, error) {
	const query = `SELECT id, name, head_id, is_active, created_at, updated_at FROM departments WHERE id=$1`
	var department domain.Department
	if err := conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&department.ID,
		&department.Name,
		&department.HeadID,
		&department.IsActive,
		&department.CreatedAt,
		&department.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &department, nil
}
