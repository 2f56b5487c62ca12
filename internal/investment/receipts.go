package investment

import (
	"context"
	"fmt"
	"time"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/events"
)

// UploadReceiptRequest is a user's proof of manual payment
type UploadReceiptRequest struct {
	OrderID      string `json:"order_id" binding:"required,uuid"`
	ReceiptImage string `json:"receipt_image" binding:"required"`
	Notes        string `json:"notes" binding:"omitempty,max=1000"`
}

// ReviewReceiptRequest is an admin's decision on a receipt
type ReviewReceiptRequest struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes" binding:"omitempty,max=1000"`
}

// UploadReceipt attaches a payment receipt to the caller's order and
// moves the order to awaiting_approval. Uploads against an expired
// payment deadline are refused.
func (s *Service) UploadReceipt(ctx context.Context, userID string, req UploadReceiptRequest) (*database.PaymentReceipt, error) {
	order, err := s.store.GetOrderByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, database.ErrNotFound
	}
	if order.UserID != userID {
		return nil, ErrNotOwner
	}
	if order.Status != database.OrderPendingPayment {
		return nil, database.ErrInvalidTransition
	}
	if time.Now().UTC().After(order.PaymentDeadline) {
		return nil, ErrDeadlineExpired
	}

	receipt := &database.PaymentReceipt{
		OrderID:      req.OrderID,
		UserID:       userID,
		ReceiptImage: req.ReceiptImage,
		Notes:        req.Notes,
	}

	if err := s.store.CreateReceiptForOrder(ctx, receipt); err != nil {
		return nil, err
	}

	s.logger.Info("receipt uploaded",
		"receipt_id", receipt.ID, "order_id", req.OrderID, "user_id", userID)

	if s.bus != nil {
		s.bus.PublishReceiptEvent(events.EventReceiptUploaded, receipt.ID, req.OrderID, userID, "uploaded")
	}

	return receipt, nil
}

// ReviewReceipt decides a pending receipt exactly once. Approval
// activates the order and stamps its investment term; rejection sends
// the order back to pending_payment so the user can upload a new
// receipt within the original deadline.
func (s *Service) ReviewReceipt(ctx context.Context, receiptID, adminID string, req ReviewReceiptRequest) (*database.PaymentReceipt, *database.InvestmentOrder, error) {
	receipt, order, err := s.store.ReviewReceipt(ctx, receiptID, adminID, req.Approve, req.Notes)
	if err != nil {
		return nil, nil, err
	}

	decision := "rejected"
	if req.Approve {
		decision = "approved"
	}
	s.logger.Info("receipt reviewed",
		"receipt_id", receipt.ID, "order_id", order.ID, "admin_id", adminID, "decision", decision)

	if s.bus != nil {
		s.bus.PublishReceiptEvent(events.EventReceiptReviewed, receipt.ID, order.ID, receipt.UserID, decision)
	}

	if s.mailer != nil {
		go func(userID string, approved bool, notes string) {
			ctx := context.Background()
			user, err := s.store.GetUserByID(ctx, userID)
			if err != nil || user == nil {
				return
			}
			s.mailer.SendReceiptReviewedEmail(ctx, user.Email, approved, notes)
		}(receipt.UserID, req.Approve, req.Notes)
	}

	return receipt, order, nil
}

// GetReceipt returns a single receipt with ownership enforcement for
// non-admin callers
func (s *Service) GetReceipt(ctx context.Context, receiptID, callerID string, isAdmin bool) (*database.ReceiptDetail, error) {
	detail, err := s.store.GetReceiptDetail(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, database.ErrNotFound
	}
	if !isAdmin && detail.UserID != callerID {
		return nil, ErrNotOwner
	}
	return detail, nil
}

// ListReceipts returns receipts matching the filter
func (s *Service) ListReceipts(ctx context.Context, filter database.ReceiptFilter) ([]*database.ReceiptDetail, error) {
	list, err := s.store.ListReceipts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	return list, nil
}
