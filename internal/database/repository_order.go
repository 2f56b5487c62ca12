package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// INVESTMENT ORDER OPERATIONS
// =====================================================

const orderColumns = `id, user_id, plan_id, amount, payment_method, status, payment_deadline,
	start_date, maturity_date, final_interest_rate, final_amount, created_at, updated_at`

func scanOrder(row pgx.Row) (*InvestmentOrder, error) {
	o := &InvestmentOrder{}
	err := row.Scan(
		&o.ID, &o.UserID, &o.PlanID, &o.Amount, &o.PaymentMethod, &o.Status,
		&o.PaymentDeadline, &o.StartDate, &o.MaturityDate, &o.FinalInterestRate,
		&o.FinalAmount, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// CreateOrder inserts a new order
func (r *Repository) CreateOrder(ctx context.Context, o *InvestmentOrder) error {
	query := `
		INSERT INTO investment_orders (user_id, plan_id, amount, payment_method, status, payment_deadline)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		o.UserID, o.PlanID, o.Amount, o.PaymentMethod, o.Status, o.PaymentDeadline,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	return nil
}

// CreateOrderWithBalanceDebit inserts an awaiting_approval order funded
// from the account balance and the completed debit transaction that pays
// for it, in one database transaction. Fails with ErrInsufficientBalance
// when the balance cannot cover the amount, leaving nothing persisted.
func (r *Repository) CreateOrderWithBalanceDebit(ctx context.Context, o *InvestmentOrder, debit *Transaction) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance float64
	err = tx.QueryRow(ctx,
		`SELECT account_balance FROM users WHERE id = $1 FOR UPDATE`, o.UserID).
		Scan(&balance)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	if balance < o.Amount {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET account_balance = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		o.UserID, balance-o.Amount)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO investment_orders (user_id, plan_id, amount, payment_method, status, payment_deadline)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		o.UserID, o.PlanID, o.Amount, o.PaymentMethod, o.Status, o.PaymentDeadline).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}

	debit.RelatedOrderID = &o.ID
	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, amount, status, reference, description,
			related_order_id, processed_at)
		 VALUES ($1, $2, $3, 'completed', $4, $5, $6, CURRENT_TIMESTAMP)
		 RETURNING id, status, processed_at, created_at, updated_at`,
		debit.UserID, debit.Type, debit.Amount, debit.Reference, debit.Description, debit.RelatedOrderID).
		Scan(&debit.ID, &debit.Status, &debit.ProcessedAt, &debit.CreatedAt, &debit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert debit transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// GetOrderByID retrieves an order by ID
func (r *Repository) GetOrderByID(ctx context.Context, orderID string) (*InvestmentOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM investment_orders WHERE id = $1`

	o, err := scanOrder(r.db.Pool.QueryRow(ctx, query, orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	return o, nil
}

const orderDetailQuery = `
	SELECT o.id, o.user_id, o.plan_id, o.amount, o.payment_method, o.status, o.payment_deadline,
		o.start_date, o.maturity_date, o.final_interest_rate, o.final_amount,
		o.created_at, o.updated_at,
		p.name, p.final_interest_rate, p.maturity_period_days, u.email, u.name
	FROM investment_orders o
	JOIN investment_plans p ON p.id = o.plan_id
	JOIN users u ON u.id = o.user_id
`

func scanOrderDetail(row pgx.Row) (*OrderDetail, error) {
	d := &OrderDetail{}
	err := row.Scan(
		&d.ID, &d.UserID, &d.PlanID, &d.Amount, &d.PaymentMethod, &d.Status,
		&d.PaymentDeadline, &d.StartDate, &d.MaturityDate, &d.FinalInterestRate,
		&d.FinalAmount, &d.CreatedAt, &d.UpdatedAt,
		&d.PlanName, &d.PlanFinalRate, &d.MaturityPeriodDays, &d.UserEmail, &d.UserName,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetOrderDetail retrieves an order joined with its plan and owning user
func (r *Repository) GetOrderDetail(ctx context.Context, orderID string) (*OrderDetail, error) {
	d, err := scanOrderDetail(r.db.Pool.QueryRow(ctx, orderDetailQuery+` WHERE o.id = $1`, orderID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order detail: %w", err)
	}

	return d, nil
}

// ListOrders retrieves orders matching the filter, newest first
func (r *Repository) ListOrders(ctx context.Context, filter OrderFilter) ([]*OrderDetail, error) {
	query := orderDetailQuery + ` WHERE 1=1`

	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND o.user_id = $%d", len(args))
	}
	if filter.PlanID != "" {
		args = append(args, filter.PlanID)
		query += fmt.Sprintf(" AND o.plan_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND o.status = $%d", len(args))
	}

	query += " ORDER BY o.created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var list []*OrderDetail
	for rows.Next() {
		d, err := scanOrderDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		list = append(list, d)
	}

	return list, rows.Err()
}

// ActivateOrder transitions an awaiting_approval order to active and
// stamps its start and maturity dates. The dates are computed once, from
// the plan's maturity period at activation time, and never recalculated.
func (r *Repository) ActivateOrder(ctx context.Context, orderID string) (*InvestmentOrder, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := r.activateOrderLocked(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return order, nil
}

// activateOrderLocked performs the awaiting_approval -> active transition
// inside the caller's database transaction
func (r *Repository) activateOrderLocked(ctx context.Context, tx pgx.Tx, orderID string) (*InvestmentOrder, error) {
	order, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM investment_orders WHERE id = $1 FOR UPDATE`, orderID))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	if order.Status != OrderAwaitingApproval {
		return nil, ErrInvalidTransition
	}

	var periodDays int
	err = tx.QueryRow(ctx,
		`SELECT maturity_period_days FROM investment_plans WHERE id = $1`, order.PlanID).
		Scan(&periodDays)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan period: %w", err)
	}

	start := time.Now().UTC()
	maturity := start.AddDate(0, 0, periodDays)

	err = tx.QueryRow(ctx,
		`UPDATE investment_orders SET status = 'active', start_date = $2, maturity_date = $3,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1
		 RETURNING status, start_date, maturity_date, updated_at`,
		orderID, start, maturity).
		Scan(&order.Status, &order.StartDate, &order.MaturityDate, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to activate order: %w", err)
	}

	return order, nil
}

// MatureOrder transitions an active order to matured. When a rate is
// supplied the final amount is priced in the same statement; otherwise
// the order matures unpriced and is backfilled at plan finalization.
// A lost race (order no longer active) fails with ErrInvalidTransition.
func (r *Repository) MatureOrder(ctx context.Context, orderID string, rate *float64) (*InvestmentOrder, error) {
	var (
		query string
		args  []interface{}
	)

	if rate != nil {
		query = `
			UPDATE investment_orders SET status = 'matured', final_interest_rate = $2,
				final_amount = amount * (1 + $2 / 100), updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND status = 'active' AND final_amount IS NULL
			RETURNING ` + orderColumns
		args = []interface{}{orderID, *rate}
	} else {
		query = `
			UPDATE investment_orders SET status = 'matured', updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND status = 'active'
			RETURNING ` + orderColumns
		args = []interface{}{orderID}
	}

	order, err := scanOrder(r.db.Pool.QueryRow(ctx, query, args...))
	if err == pgx.ErrNoRows {
		return nil, r.classifyMissedOrder(ctx, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mature order: %w", err)
	}

	return order, nil
}

// BackfillMaturedOrderRate prices a matured order that the sweep moved
// before the plan was finalized. Only orders without a final amount are
// touched, so repeated finalization attempts cannot alter a priced order.
func (r *Repository) BackfillMaturedOrderRate(ctx context.Context, orderID string, rate float64) (*InvestmentOrder, error) {
	query := `
		UPDATE investment_orders SET final_interest_rate = $2,
			final_amount = amount * (1 + $2 / 100), updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'matured' AND final_amount IS NULL
		RETURNING ` + orderColumns

	order, err := scanOrder(r.db.Pool.QueryRow(ctx, query, orderID, rate))
	if err == pgx.ErrNoRows {
		return nil, r.classifyMissedOrder(ctx, orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to backfill order rate: %w", err)
	}

	return order, nil
}

// classifyMissedOrder distinguishes a missing row from one that lost a
// conditional-update race
func (r *Repository) classifyMissedOrder(ctx context.Context, orderID string) error {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM investment_orders WHERE id = $1)`, orderID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check order: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInvalidTransition
}

// CompleteMaturedOrder pays out a matured order: credits the user with
// the final amount, adds the profit to their total earnings, records the
// maturity transaction linked to the order and flips the order to
// completed, all in one database transaction.
func (r *Repository) CompleteMaturedOrder(ctx context.Context, orderID, adminID, reference string) (*InvestmentOrder, *Transaction, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	order, err := scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM investment_orders WHERE id = $1 FOR UPDATE`, orderID))
	if err == pgx.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock order: %w", err)
	}

	if order.Status != OrderMatured {
		return nil, nil, ErrInvalidTransition
	}
	if order.FinalAmount == nil {
		return nil, nil, ErrFinalRateNotSet
	}

	payout := *order.FinalAmount
	profit := payout - order.Amount

	var balance, earnings float64
	err = tx.QueryRow(ctx,
		`SELECT account_balance, total_earnings FROM users WHERE id = $1 FOR UPDATE`,
		order.UserID).Scan(&balance, &earnings)
	if err == pgx.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock user: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET account_balance = $2, total_earnings = $3, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1`,
		order.UserID, balance+payout, earnings+profit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update balance: %w", err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE investment_orders SET status = 'completed', updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1
		 RETURNING status, updated_at`,
		orderID).Scan(&order.Status, &order.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to complete order: %w", err)
	}

	payoutTx := &Transaction{
		UserID:         order.UserID,
		Type:           TransactionMaturity,
		Amount:         payout,
		Reference:      reference,
		Description:    fmt.Sprintf("Maturity payout for order %s", orderID),
		RelatedOrderID: &order.ID,
		ProcessedBy:    &adminID,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, amount, status, reference, description,
			related_order_id, processed_by, processed_at)
		 VALUES ($1, 'maturity', $2, 'completed', $3, $4, $5, $6, CURRENT_TIMESTAMP)
		 RETURNING id, status, processed_at, created_at, updated_at`,
		payoutTx.UserID, payoutTx.Amount, payoutTx.Reference, payoutTx.Description,
		payoutTx.RelatedOrderID, payoutTx.ProcessedBy).
		Scan(&payoutTx.ID, &payoutTx.Status, &payoutTx.ProcessedAt, &payoutTx.CreatedAt, &payoutTx.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to insert maturity transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit: %w", err)
	}

	return order, payoutTx, nil
}

// ListMaturedDue retrieves active orders whose maturity date has elapsed,
// joined with plan and user for notification
func (r *Repository) ListMaturedDue(ctx context.Context, now time.Time) ([]*OrderDetail, error) {
	rows, err := r.db.Pool.Query(ctx,
		orderDetailQuery+` WHERE o.status = 'active' AND o.maturity_date <= $1 ORDER BY o.maturity_date`,
		now)
	if err != nil {
		return nil, fmt.Errorf("failed to query matured orders: %w", err)
	}
	defer rows.Close()

	var list []*OrderDetail
	for rows.Next() {
		d, err := scanOrderDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		list = append(list, d)
	}

	return list, rows.Err()
}

// ListOrdersForFinalization retrieves a plan's orders that a
// finalization pass must touch: active orders plus matured orders that
// were swept before the rate was known
func (r *Repository) ListOrdersForFinalization(ctx context.Context, planID string) ([]*InvestmentOrder, error) {
	query := `
		SELECT ` + orderColumns + ` FROM investment_orders
		WHERE plan_id = $1
		  AND (status = 'active' OR (status = 'matured' AND final_amount IS NULL))
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan orders: %w", err)
	}
	defer rows.Close()

	var list []*InvestmentOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		list = append(list, o)
	}

	return list, rows.Err()
}
