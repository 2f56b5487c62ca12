package investment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/events"
)

// PaymentDeadlineWindow is how long a manually paid order waits for a
// receipt before it is considered abandoned
const PaymentDeadlineWindow = 48 * time.Hour

// CreateOrderRequest is a user's request to invest in a plan
type CreateOrderRequest struct {
	PlanID        string  `json:"plan_id" binding:"required,uuid"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	PaymentMethod string  `json:"payment_method" binding:"required,oneof=manual account_balance"`
}

// CreateOrder places a new investment order. Manual payment leaves the
// order waiting for a receipt upload; paying from the account balance
// debits it immediately and the order goes straight to admin approval.
func (s *Service) CreateOrder(ctx context.Context, userID string, req CreateOrderRequest) (*database.InvestmentOrder, error) {
	plan, err := s.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanInactive
	}
	if req.Amount < plan.MinInvestmentAmount {
		return nil, ErrAmountBelowMinimum
	}

	order := &database.InvestmentOrder{
		UserID:          userID,
		PlanID:          req.PlanID,
		Amount:          req.Amount,
		PaymentMethod:   database.PaymentMethod(req.PaymentMethod),
		PaymentDeadline: time.Now().UTC().Add(PaymentDeadlineWindow),
	}

	switch order.PaymentMethod {
	case database.PaymentAccountBalance:
		order.Status = database.OrderAwaitingApproval
		debit := &database.Transaction{
			UserID:      userID,
			Type:        database.TransactionReinvestment,
			Amount:      -req.Amount,
			Reference:   uuid.New().String(),
			Description: fmt.Sprintf("Investment in %s", plan.Name),
		}
		if err := s.store.CreateOrderWithBalanceDebit(ctx, order, debit); err != nil {
			return nil, err
		}
	default:
		order.Status = database.OrderPendingPayment
		if err := s.store.CreateOrder(ctx, order); err != nil {
			return nil, err
		}
	}

	s.logger.Info("order created",
		"order_id", order.ID, "user_id", userID, "plan_id", req.PlanID,
		"amount", req.Amount, "method", req.PaymentMethod)

	if s.bus != nil {
		s.bus.PublishOrderEvent(events.EventOrderCreated, order.ID, userID, req.PlanID, string(order.Status))
	}

	return order, nil
}

// ActivateOrder approves an awaiting_approval order directly, without
// going through a receipt. Used for balance-funded orders.
func (s *Service) ActivateOrder(ctx context.Context, orderID, adminID string) (*database.InvestmentOrder, error) {
	order, err := s.store.ActivateOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order activated",
		"order_id", order.ID, "admin_id", adminID, "maturity_date", order.MaturityDate)

	if s.bus != nil {
		s.bus.PublishOrderEvent(events.EventOrderActivated, order.ID, order.UserID, order.PlanID, string(order.Status))
	}

	return order, nil
}

// CompleteOrder pays out a matured, priced order. The payout and the
// profit booking commit atomically with the status flip.
func (s *Service) CompleteOrder(ctx context.Context, orderID, adminID string) (*database.InvestmentOrder, *database.Transaction, error) {
	order, payout, err := s.store.CompleteMaturedOrder(ctx, orderID, adminID, uuid.New().String())
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("order completed",
		"order_id", order.ID, "admin_id", adminID, "payout", payout.Amount)

	if s.bus != nil {
		s.bus.PublishOrderEvent(events.EventOrderCompleted, order.ID, order.UserID, order.PlanID, string(order.Status))
	}

	if s.mailer != nil {
		go func(orderID string, amount float64) {
			ctx := context.Background()
			detail, err := s.store.GetOrderDetail(ctx, orderID)
			if err != nil || detail == nil {
				return
			}
			s.mailer.SendOrderCompletedEmail(ctx, detail.UserEmail, detail.PlanName, amount)
		}(order.ID, payout.Amount)
	}

	return order, payout, nil
}

// GetOrder returns a single order with ownership enforcement for
// non-admin callers
func (s *Service) GetOrder(ctx context.Context, orderID, callerID string, isAdmin bool) (*database.OrderDetail, error) {
	detail, err := s.store.GetOrderDetail(ctx, orderID)
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

// ListOrders returns orders matching the filter
func (s *Service) ListOrders(ctx context.Context, filter database.OrderFilter) ([]*database.OrderDetail, error) {
	list, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return list, nil
}
