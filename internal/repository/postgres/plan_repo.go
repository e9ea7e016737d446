package postgres

import (
	"context"

	"github.com/and161185/prompt-enhancer/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PlanRepo implements PlanRepository using PostgreSQL.
type PlanRepo struct{ db *DB }

// NewPlanRepo constructs a plan repository.
func NewPlanRepo(db *DB) *PlanRepo { return &PlanRepo{db: db} }

const planColumns = `id, name, display_name, daily_limit, monthly_limit, features, is_active`

// GetByID selects a plan by ID.
func (r *PlanRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Plan, error) {
	q := `SELECT ` + planColumns + ` FROM plans WHERE id=$1`
	return scanPlan(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByName selects an active plan by name.
func (r *PlanRepo) GetByName(ctx context.Context, name string) (*model.Plan, error) {
	q := `SELECT ` + planColumns + ` FROM plans WHERE name=$1 AND is_active`
	return scanPlan(r.db.Pool.QueryRow(ctx, q, name))
}

// ListActive returns active plans ordered by daily limit.
func (r *PlanRepo) ListActive(ctx context.Context) ([]model.Plan, error) {
	q := `SELECT ` + planColumns + ` FROM plans WHERE is_active ORDER BY daily_limit`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	var p model.Plan
	if err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.DailyLimit, &p.MonthlyLimit, &p.Features, &p.IsActive); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}
