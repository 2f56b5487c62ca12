package investment

import (
	"context"
	"fmt"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/events"
	"investment-backoffice/internal/logging"
)

// Store is the persistence surface the investment service needs. The
// database repository implements it; tests substitute an in-memory
// version.
type Store interface {
	CreatePlan(ctx context.Context, p *database.InvestmentPlan) error
	GetPlanByID(ctx context.Context, planID string) (*database.InvestmentPlan, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]*database.InvestmentPlan, error)
	UpdatePlan(ctx context.Context, p *database.InvestmentPlan) error
	SetPlanFinalRate(ctx context.Context, planID string, rate float64) error
	DeletePlan(ctx context.Context, planID string) error

	CreateOrder(ctx context.Context, o *database.InvestmentOrder) error
	CreateOrderWithBalanceDebit(ctx context.Context, o *database.InvestmentOrder, debit *database.Transaction) error
	GetOrderByID(ctx context.Context, orderID string) (*database.InvestmentOrder, error)
	GetOrderDetail(ctx context.Context, orderID string) (*database.OrderDetail, error)
	ListOrders(ctx context.Context, filter database.OrderFilter) ([]*database.OrderDetail, error)
	ActivateOrder(ctx context.Context, orderID string) (*database.InvestmentOrder, error)
	MatureOrder(ctx context.Context, orderID string, rate *float64) (*database.InvestmentOrder, error)
	BackfillMaturedOrderRate(ctx context.Context, orderID string, rate float64) (*database.InvestmentOrder, error)
	CompleteMaturedOrder(ctx context.Context, orderID, adminID, reference string) (*database.InvestmentOrder, *database.Transaction, error)
	ListOrdersForFinalization(ctx context.Context, planID string) ([]*database.InvestmentOrder, error)

	CreateReceiptForOrder(ctx context.Context, rc *database.PaymentReceipt) error
	GetReceiptByID(ctx context.Context, receiptID string) (*database.PaymentReceipt, error)
	GetReceiptDetail(ctx context.Context, receiptID string) (*database.ReceiptDetail, error)
	ListReceipts(ctx context.Context, filter database.ReceiptFilter) ([]*database.ReceiptDetail, error)
	ReviewReceipt(ctx context.Context, receiptID, adminID string, approve bool, reviewNotes string) (*database.PaymentReceipt, *database.InvestmentOrder, error)

	GetUserByID(ctx context.Context, userID string) (*database.User, error)
}

// Mailer sends investment notifications. Sends are best effort and
// happen after the database work has committed.
type Mailer interface {
	SendReceiptReviewedEmail(ctx context.Context, to string, approved bool, notes string)
	SendOrderCompletedEmail(ctx context.Context, to, planName string, payout float64)
}

// PlanCache caches the active plan listing. The Redis cache service
// implements it; a nil cache disables caching.
type PlanCache interface {
	GetActivePlans(ctx context.Context) ([]*database.InvestmentPlan, bool)
	SetActivePlans(ctx context.Context, plans []*database.InvestmentPlan)
	Invalidate(ctx context.Context)
}

// Service manages investment plans, the order lifecycle and payment
// receipt review. State transitions are enforced by the store's atomic
// operations; this layer validates, orchestrates and notifies.
type Service struct {
	store  Store
	mailer Mailer
	cache  PlanCache
	bus    *events.EventBus
	logger *logging.Logger
}

// NewService creates a new investment service. mailer, cache and bus
// may be nil.
func NewService(store Store, mailer Mailer, cache PlanCache, bus *events.EventBus) *Service {
	return &Service{
		store:  store,
		mailer: mailer,
		cache:  cache,
		bus:    bus,
		logger: logging.WithComponent("investment"),
	}
}

// =====================================================
// PLAN MANAGEMENT
// =====================================================

// CreatePlanRequest defines a new investment plan
type CreatePlanRequest struct {
	Name                string  `json:"name" binding:"required,min=2,max=100"`
	Description         string  `json:"description" binding:"omitempty,max=1000"`
	MinInvestmentAmount float64 `json:"min_investment_amount" binding:"required,gt=0"`
	MaturityPeriodDays  int     `json:"maturity_period_days" binding:"required,gt=0"`
	MinInterestRate     float64 `json:"min_interest_rate" binding:"gte=0"`
	MaxInterestRate     float64 `json:"max_interest_rate" binding:"gte=0"`
	IsActive            *bool   `json:"is_active"`
}

// UpdatePlanRequest updates a plan's editable fields. The final rate
// is set only through finalization.
type UpdatePlanRequest struct {
	Name                *string  `json:"name" binding:"omitempty,min=2,max=100"`
	Description         *string  `json:"description" binding:"omitempty,max=1000"`
	MinInvestmentAmount *float64 `json:"min_investment_amount" binding:"omitempty,gt=0"`
	MaturityPeriodDays  *int     `json:"maturity_period_days" binding:"omitempty,gt=0"`
	MinInterestRate     *float64 `json:"min_interest_rate" binding:"omitempty,gte=0"`
	MaxInterestRate     *float64 `json:"max_interest_rate" binding:"omitempty,gte=0"`
	IsActive            *bool    `json:"is_active"`
}

// CreatePlan creates a new investment plan
func (s *Service) CreatePlan(ctx context.Context, req CreatePlanRequest) (*database.InvestmentPlan, error) {
	if req.MinInterestRate > req.MaxInterestRate {
		return nil, ErrInvalidRateRange
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	plan := &database.InvestmentPlan{
		Name:                req.Name,
		Description:         req.Description,
		MinInvestmentAmount: req.MinInvestmentAmount,
		MaturityPeriodDays:  req.MaturityPeriodDays,
		MinInterestRate:     req.MinInterestRate,
		MaxInterestRate:     req.MaxInterestRate,
		IsActive:            active,
	}

	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}

	s.invalidatePlanCache(ctx)
	s.logger.Info("plan created", "plan_id", plan.ID, "name", plan.Name)

	return plan, nil
}

// GetPlan returns a single plan
func (s *Service) GetPlan(ctx context.Context, planID string) (*database.InvestmentPlan, error) {
	plan, err := s.store.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, database.ErrNotFound
	}
	return plan, nil
}

// ListPlans returns plans, serving the active listing from cache when
// possible
func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]*database.InvestmentPlan, error) {
	if activeOnly && s.cache != nil {
		if plans, ok := s.cache.GetActivePlans(ctx); ok {
			return plans, nil
		}
	}

	plans, err := s.store.ListPlans(ctx, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}

	if activeOnly && s.cache != nil {
		s.cache.SetActivePlans(ctx, plans)
	}

	return plans, nil
}

// UpdatePlan applies partial updates to a plan's editable fields
func (s *Service) UpdatePlan(ctx context.Context, planID string, req UpdatePlanRequest) (*database.InvestmentPlan, error) {
	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		plan.Name = *req.Name
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.MinInvestmentAmount != nil {
		plan.MinInvestmentAmount = *req.MinInvestmentAmount
	}
	if req.MaturityPeriodDays != nil {
		plan.MaturityPeriodDays = *req.MaturityPeriodDays
	}
	if req.MinInterestRate != nil {
		plan.MinInterestRate = *req.MinInterestRate
	}
	if req.MaxInterestRate != nil {
		plan.MaxInterestRate = *req.MaxInterestRate
	}
	if req.IsActive != nil {
		plan.IsActive = *req.IsActive
	}

	if plan.MinInterestRate > plan.MaxInterestRate {
		return nil, ErrInvalidRateRange
	}

	if err := s.store.UpdatePlan(ctx, plan); err != nil {
		return nil, err
	}

	s.invalidatePlanCache(ctx)
	s.logger.Info("plan updated", "plan_id", plan.ID)

	return plan, nil
}

// DeletePlan removes a plan without order history
func (s *Service) DeletePlan(ctx context.Context, planID string) error {
	if err := s.store.DeletePlan(ctx, planID); err != nil {
		return err
	}

	s.invalidatePlanCache(ctx)
	s.logger.Info("plan deleted", "plan_id", planID)
	return nil
}

// FinalizationResult summarizes a plan finalization pass
type FinalizationResult struct {
	PlanID         string   `json:"plan_id"`
	FinalRate      float64  `json:"final_rate"`
	OrdersPriced   int      `json:"orders_priced"`
	OrdersFailed   int      `json:"orders_failed"`
	FailedOrderIDs []string `json:"failed_order_ids,omitempty"`
}

// FinalizePlan sets the plan's final interest rate exactly once and
// prices its open orders: active orders mature with the rate applied,
// orders the sweep already matured unpriced are backfilled. Individual
// order failures do not abort the pass; they are reported in the
// result.
func (s *Service) FinalizePlan(ctx context.Context, planID, adminID string, rate float64) (*FinalizationResult, error) {
	plan, err := s.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	if rate < plan.MinInterestRate || rate > plan.MaxInterestRate {
		return nil, ErrRateOutOfRange
	}

	if err := s.store.SetPlanFinalRate(ctx, planID, rate); err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrdersForFinalization(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan orders: %w", err)
	}

	result := &FinalizationResult{PlanID: planID, FinalRate: rate}
	for _, order := range orders {
		var opErr error
		if order.Status == database.OrderActive {
			_, opErr = s.store.MatureOrder(ctx, order.ID, &rate)
		} else {
			_, opErr = s.store.BackfillMaturedOrderRate(ctx, order.ID, rate)
		}

		if opErr != nil {
			result.OrdersFailed++
			result.FailedOrderIDs = append(result.FailedOrderIDs, order.ID)
			s.logger.Error("failed to price order during finalization",
				"plan_id", planID, "order_id", order.ID, "error", opErr)
			continue
		}
		result.OrdersPriced++
	}

	s.invalidatePlanCache(ctx)
	s.logger.Info("plan finalized",
		"plan_id", planID, "admin_id", adminID, "rate", rate,
		"priced", result.OrdersPriced, "failed", result.OrdersFailed)

	if s.bus != nil {
		s.bus.PublishPlanFinalized(planID, rate, result.OrdersPriced, result.OrdersFailed)
	}

	return result, nil
}

func (s *Service) invalidatePlanCache(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}
