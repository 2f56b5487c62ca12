package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// INVESTMENT PLAN OPERATIONS
// =====================================================

const planColumns = `id, name, description, min_investment_amount, maturity_period_days,
	min_interest_rate, max_interest_rate, final_interest_rate, is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (*InvestmentPlan, error) {
	p := &InvestmentPlan{}
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.MinInvestmentAmount, &p.MaturityPeriodDays,
		&p.MinInterestRate, &p.MaxInterestRate, &p.FinalInterestRate, &p.IsActive,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePlan creates a new investment plan
func (r *Repository) CreatePlan(ctx context.Context, p *InvestmentPlan) error {
	query := `
		INSERT INTO investment_plans (name, description, min_investment_amount,
			maturity_period_days, min_interest_rate, max_interest_rate, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		p.Name, p.Description, p.MinInvestmentAmount, p.MaturityPeriodDays,
		p.MinInterestRate, p.MaxInterestRate, p.IsActive,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create plan: %w", err)
	}

	return nil
}

// GetPlanByID retrieves a plan by ID
func (r *Repository) GetPlanByID(ctx context.Context, planID string) (*InvestmentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM investment_plans WHERE id = $1`

	p, err := scanPlan(r.db.Pool.QueryRow(ctx, query, planID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	return p, nil
}

// ListPlans retrieves plans, optionally only active ones
func (r *Repository) ListPlans(ctx context.Context, activeOnly bool) ([]*InvestmentPlan, error) {
	query := `SELECT ` + planColumns + ` FROM investment_plans`
	if activeOnly {
		query += ` WHERE is_active = true`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []*InvestmentPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}

	return plans, rows.Err()
}

// UpdatePlan updates a plan's editable fields. The final interest rate
// is only ever set through SetPlanFinalRate.
func (r *Repository) UpdatePlan(ctx context.Context, p *InvestmentPlan) error {
	query := `
		UPDATE investment_plans SET
			name = $2,
			description = $3,
			min_investment_amount = $4,
			maturity_period_days = $5,
			min_interest_rate = $6,
			max_interest_rate = $7,
			is_active = $8,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.Name, p.Description, p.MinInvestmentAmount, p.MaturityPeriodDays,
		p.MinInterestRate, p.MaxInterestRate, p.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// SetPlanFinalRate sets the plan's final interest rate exactly once.
// A second attempt fails with ErrPlanAlreadyFinalized.
func (r *Repository) SetPlanFinalRate(ctx context.Context, planID string, rate float64) error {
	query := `
		UPDATE investment_plans SET final_interest_rate = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND final_interest_rate IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, planID, rate)
	if err != nil {
		return fmt.Errorf("failed to set final rate: %w", err)
	}
	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM investment_plans WHERE id = $1)`, planID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check plan: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return ErrPlanAlreadyFinalized
	}

	return nil
}

// DeletePlan removes a plan. Refused while any order still references
// it.
func (r *Repository) DeletePlan(ctx context.Context, planID string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Completed orders keep their plan reference for the audit trail, so
	// any referencing order blocks the delete. Deactivation is the
	// supported way to retire a plan with history.
	var openOrders int64
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM investment_orders WHERE plan_id = $1`,
		planID).Scan(&openOrders)
	if err != nil {
		return fmt.Errorf("failed to count plan orders: %w", err)
	}
	if openOrders > 0 {
		return ErrPlanHasOpenOrders
	}

	result, err := tx.Exec(ctx, `DELETE FROM investment_plans WHERE id = $1`, planID)
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return tx.Commit(ctx)
}
