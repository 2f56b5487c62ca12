package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// TRANSACTION OPERATIONS
// =====================================================

const transactionColumns = `id, user_id, type, amount, status, reference, description,
	rejection_reason, related_order_id, processed_by, processed_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*Transaction, error) {
	t := &Transaction{}
	err := row.Scan(
		&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.Reference, &t.Description,
		&t.RejectionReason, &t.RelatedOrderID, &t.ProcessedBy, &t.ProcessedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTransaction inserts a new pending transaction
func (r *Repository) CreateTransaction(ctx context.Context, t *Transaction) error {
	query := `
		INSERT INTO transactions (user_id, type, amount, status, reference, description, related_order_id)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6)
		RETURNING id, status, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		t.UserID, t.Type, t.Amount, t.Reference, t.Description, t.RelatedOrderID,
	).Scan(&t.ID, &t.Status, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetTransactionByID retrieves a transaction by ID
func (r *Repository) GetTransactionByID(ctx context.Context, txID string) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.db.Pool.QueryRow(ctx, query, txID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return t, nil
}

// GetTransactionDetail retrieves a transaction joined with its owning user
func (r *Repository) GetTransactionDetail(ctx context.Context, txID string) (*TransactionDetail, error) {
	query := `
		SELECT t.id, t.user_id, t.type, t.amount, t.status, t.reference, t.description,
			t.rejection_reason, t.related_order_id, t.processed_by, t.processed_at,
			t.created_at, t.updated_at, u.email, u.name
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		WHERE t.id = $1
	`

	d := &TransactionDetail{}
	err := r.db.Pool.QueryRow(ctx, query, txID).Scan(
		&d.ID, &d.UserID, &d.Type, &d.Amount, &d.Status, &d.Reference, &d.Description,
		&d.RejectionReason, &d.RelatedOrderID, &d.ProcessedBy, &d.ProcessedAt,
		&d.CreatedAt, &d.UpdatedAt, &d.UserEmail, &d.UserName,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction detail: %w", err)
	}

	return d, nil
}

// ListTransactions retrieves transactions matching the filter, newest first
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*TransactionDetail, error) {
	query := `
		SELECT t.id, t.user_id, t.type, t.amount, t.status, t.reference, t.description,
			t.rejection_reason, t.related_order_id, t.processed_by, t.processed_at,
			t.created_at, t.updated_at, u.email, u.name
		FROM transactions t
		JOIN users u ON u.id = t.user_id
		WHERE 1=1
	`

	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND t.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND t.type = $%d", len(args))
	}

	query += " ORDER BY t.created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var list []*TransactionDetail
	for rows.Next() {
		d := &TransactionDetail{}
		err := rows.Scan(
			&d.ID, &d.UserID, &d.Type, &d.Amount, &d.Status, &d.Reference, &d.Description,
			&d.RejectionReason, &d.RelatedOrderID, &d.ProcessedBy, &d.ProcessedAt,
			&d.CreatedAt, &d.UpdatedAt, &d.UserEmail, &d.UserName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		list = append(list, d)
	}

	return list, rows.Err()
}

// ApplyPendingTransaction flips a pending transaction to completed and
// mutates the owning user's balance according to the transaction type.
// The status flip and the balance mutation commit in the same database
// transaction; on any failure nothing is persisted and the transaction
// record stays pending.
func (r *Repository) ApplyPendingTransaction(ctx context.Context, txID, adminID string) (*Transaction, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	record, err := scanTransaction(tx.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, txID))
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction: %w", err)
	}

	if record.Status != TransactionPending {
		return nil, ErrTransactionNotPending
	}

	var balance, deposited, withdrawn, earnings float64
	err = tx.QueryRow(ctx,
		`SELECT account_balance, total_deposited, total_withdrawn, total_earnings
		 FROM users WHERE id = $1 FOR UPDATE`, record.UserID).
		Scan(&balance, &deposited, &withdrawn, &earnings)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	switch record.Type {
	case TransactionDeposit:
		balance += record.Amount
		deposited += record.Amount
	case TransactionWithdrawal:
		if balance < record.Amount {
			return nil, ErrInsufficientBalance
		}
		balance -= record.Amount
		withdrawn += record.Amount
	case TransactionAdjustment:
		// Admin override, no floor check
		balance += record.Amount
	case TransactionMaturity:
		balance += record.Amount
		earnings += record.Amount
	default:
		return nil, fmt.Errorf("transaction type %s is not approvable", record.Type)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET account_balance = $2, total_deposited = $3,
			total_withdrawn = $4, total_earnings = $5, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1`,
		record.UserID, balance, deposited, withdrawn, earnings)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	err = tx.QueryRow(ctx,
		`UPDATE transactions SET status = 'completed', processed_by = $2,
			processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1
		 RETURNING status, processed_by, processed_at, updated_at`,
		txID, adminID).
		Scan(&record.Status, &record.ProcessedBy, &record.ProcessedAt, &record.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to complete transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return record, nil
}

// RejectTransaction moves a pending transaction to rejected. No balance
// effect. Fails if the transaction has already left the pending state.
func (r *Repository) RejectTransaction(ctx context.Context, txID, adminID, reason string) (*Transaction, error) {
	query := `
		UPDATE transactions SET status = 'rejected', rejection_reason = $3,
			processed_by = $2, processed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + transactionColumns

	record, err := scanTransaction(r.db.Pool.QueryRow(ctx, query, txID, adminID, reason))
	if err == pgx.ErrNoRows {
		return nil, r.classifyMissedTransaction(ctx, txID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reject transaction: %w", err)
	}

	return record, nil
}

// CancelTransaction moves a pending transaction to cancelled. No balance
// effect. Fails if the transaction has already left the pending state.
func (r *Repository) CancelTransaction(ctx context.Context, txID string) (*Transaction, error) {
	query := `
		UPDATE transactions SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + transactionColumns

	record, err := scanTransaction(r.db.Pool.QueryRow(ctx, query, txID))
	if err == pgx.ErrNoRows {
		return nil, r.classifyMissedTransaction(ctx, txID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel transaction: %w", err)
	}

	return record, nil
}

// classifyMissedTransaction distinguishes a missing row from one that
// lost the conditional-update race
func (r *Repository) classifyMissedTransaction(ctx context.Context, txID string) error {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions WHERE id = $1)`, txID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check transaction: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrTransactionNotPending
}

// CreateCompletedTransaction inserts an already-completed transaction and
// applies its signed amount to the user's balance in the same database
// transaction. Used for internally generated events: admin adjustments
// and order-creation debits. When enforceFloor is set, a debit that
// would take the balance below zero fails with ErrInsufficientBalance.
func (r *Repository) CreateCompletedTransaction(ctx context.Context, t *Transaction, enforceFloor bool) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance float64
	err = tx.QueryRow(ctx,
		`SELECT account_balance FROM users WHERE id = $1 FOR UPDATE`, t.UserID).
		Scan(&balance)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}

	newBalance := balance + t.Amount
	if enforceFloor && newBalance < 0 {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET account_balance = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
		t.UserID, newBalance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (user_id, type, amount, status, reference, description,
			related_order_id, processed_by, processed_at)
		 VALUES ($1, $2, $3, 'completed', $4, $5, $6, $7, CURRENT_TIMESTAMP)
		 RETURNING id, status, processed_at, created_at, updated_at`,
		t.UserID, t.Type, t.Amount, t.Reference, t.Description, t.RelatedOrderID, t.ProcessedBy).
		Scan(&t.ID, &t.Status, &t.ProcessedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}
