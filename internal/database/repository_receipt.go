package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// PAYMENT RECEIPT OPERATIONS
// =====================================================

const receiptColumns = `id, order_id, user_id, receipt_image, notes, status,
	reviewed_by, review_notes, reviewed_at, created_at, updated_at`

func scanReceipt(row pgx.Row) (*PaymentReceipt, error) {
	rc := &PaymentReceipt{}
	err := row.Scan(
		&rc.ID, &rc.OrderID, &rc.UserID, &rc.ReceiptImage, &rc.Notes, &rc.Status,
		&rc.ReviewedBy, &rc.ReviewNotes, &rc.ReviewedAt, &rc.CreatedAt, &rc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// CreateReceiptForOrder inserts a pending receipt and flips its order
// from pending_payment to awaiting_approval in one database transaction.
// Fails with ErrInvalidTransition if the order is not awaiting payment.
func (r *Repository) CreateReceiptForOrder(ctx context.Context, rc *PaymentReceipt) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status OrderStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM investment_orders WHERE id = $1 FOR UPDATE`, rc.OrderID).
		Scan(&status)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock order: %w", err)
	}

	if status != OrderPendingPayment {
		return ErrInvalidTransition
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO payment_receipts (order_id, user_id, receipt_image, notes)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, status, created_at, updated_at`,
		rc.OrderID, rc.UserID, rc.ReceiptImage, rc.Notes).
		Scan(&rc.ID, &rc.Status, &rc.CreatedAt, &rc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert receipt: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE investment_orders SET status = 'awaiting_approval', updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1`, rc.OrderID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// GetReceiptByID retrieves a receipt by ID
func (r *Repository) GetReceiptByID(ctx context.Context, receiptID string) (*PaymentReceipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM payment_receipts WHERE id = $1`

	rc, err := scanReceipt(r.db.Pool.QueryRow(ctx, query, receiptID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	return rc, nil
}

const receiptDetailQuery = `
	SELECT r.id, r.order_id, r.user_id, r.receipt_image, r.notes, r.status,
		r.reviewed_by, r.review_notes, r.reviewed_at, r.created_at, r.updated_at,
		o.amount, p.name, u.email
	FROM payment_receipts r
	JOIN investment_orders o ON o.id = r.order_id
	JOIN investment_plans p ON p.id = o.plan_id
	JOIN users u ON u.id = r.user_id
`

func scanReceiptDetail(row pgx.Row) (*ReceiptDetail, error) {
	d := &ReceiptDetail{}
	err := row.Scan(
		&d.ID, &d.OrderID, &d.UserID, &d.ReceiptImage, &d.Notes, &d.Status,
		&d.ReviewedBy, &d.ReviewNotes, &d.ReviewedAt, &d.CreatedAt, &d.UpdatedAt,
		&d.OrderAmount, &d.PlanName, &d.UserEmail,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// GetReceiptDetail retrieves a receipt joined with its order, plan name
// and owning user
func (r *Repository) GetReceiptDetail(ctx context.Context, receiptID string) (*ReceiptDetail, error) {
	d, err := scanReceiptDetail(r.db.Pool.QueryRow(ctx, receiptDetailQuery+` WHERE r.id = $1`, receiptID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt detail: %w", err)
	}

	return d, nil
}

// ListReceipts retrieves receipts matching the filter, newest first
func (r *Repository) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]*ReceiptDetail, error) {
	query := receiptDetailQuery + ` WHERE 1=1`

	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND r.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND r.status = $%d", len(args))
	}

	query += " ORDER BY r.created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var list []*ReceiptDetail
	for rows.Next() {
		d, err := scanReceiptDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		list = append(list, d)
	}

	return list, rows.Err()
}

// ReviewReceipt decides a pending receipt exactly once and drives the
// parent order in the same database transaction: approval activates the
// order, rejection sends it back to pending_payment for re-upload. The
// payment deadline is not extended on rejection. A receipt that has
// already been decided fails with ErrReceiptAlreadyReviewed.
func (r *Repository) ReviewReceipt(ctx context.Context, receiptID, adminID string, approve bool, reviewNotes string) (*PaymentReceipt, *InvestmentOrder, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rc, err := scanReceipt(tx.QueryRow(ctx,
		`SELECT `+receiptColumns+` FROM payment_receipts WHERE id = $1 FOR UPDATE`, receiptID))
	if err == pgx.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock receipt: %w", err)
	}

	if rc.Status != ReceiptPending {
		return nil, nil, ErrReceiptAlreadyReviewed
	}

	decision := ReceiptRejected
	if approve {
		decision = ReceiptApproved
	}

	err = tx.QueryRow(ctx,
		`UPDATE payment_receipts SET status = $2, reviewed_by = $3, review_notes = $4,
			reviewed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		 WHERE id = $1
		 RETURNING status, reviewed_by, review_notes, reviewed_at, updated_at`,
		receiptID, decision, adminID, reviewNotes).
		Scan(&rc.Status, &rc.ReviewedBy, &rc.ReviewNotes, &rc.ReviewedAt, &rc.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update receipt: %w", err)
	}

	var order *InvestmentOrder
	if approve {
		order, err = r.activateOrderLocked(ctx, tx, rc.OrderID)
		if err != nil {
			return nil, nil, err
		}
	} else {
		order, err = scanOrder(tx.QueryRow(ctx,
			`UPDATE investment_orders SET status = 'pending_payment', updated_at = CURRENT_TIMESTAMP
			 WHERE id = $1 AND status = 'awaiting_approval'
			 RETURNING `+orderColumns, rc.OrderID))
		if err == pgx.ErrNoRows {
			return nil, nil, ErrInvalidTransition
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to revert order: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit: %w", err)
	}

	return rc, order, nil
}
