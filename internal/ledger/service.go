package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"investment-backoffice/internal/database"
	"investment-backoffice/internal/events"
	"investment-backoffice/internal/logging"
)

// DefaultRejectionReason is recorded when an admin rejects without
// giving a reason
const DefaultRejectionReason = "No reason provided"

// Store is the persistence surface the ledger service needs. The
// database repository implements it; tests substitute an in-memory
// version.
type Store interface {
	CreateTransaction(ctx context.Context, t *database.Transaction) error
	GetTransactionByID(ctx context.Context, txID string) (*database.Transaction, error)
	GetTransactionDetail(ctx context.Context, txID string) (*database.TransactionDetail, error)
	ListTransactions(ctx context.Context, filter database.TransactionFilter) ([]*database.TransactionDetail, error)
	ApplyPendingTransaction(ctx context.Context, txID, adminID string) (*database.Transaction, error)
	RejectTransaction(ctx context.Context, txID, adminID, reason string) (*database.Transaction, error)
	CancelTransaction(ctx context.Context, txID string) (*database.Transaction, error)
	CreateCompletedTransaction(ctx context.Context, t *database.Transaction, enforceFloor bool) error
	GetUserByID(ctx context.Context, userID string) (*database.User, error)
	ListAdminEmails(ctx context.Context) ([]string, error)
}

// Mailer sends ledger notifications. Sends are best effort and happen
// after the database work has committed.
type Mailer interface {
	SendPendingRequestEmail(ctx context.Context, recipients []string, userName, txType string, amount float64)
	SendTransactionDecidedEmail(ctx context.Context, to, txType string, amount float64, approved bool, reason string)
	SendBalanceAdjustedEmail(ctx context.Context, to string, amount float64, description string)
}

// CreateTransactionRequest is a user's deposit or withdrawal request
type CreateTransactionRequest struct {
	Type        string  `json:"type" binding:"required,oneof=deposit withdrawal"`
	Amount      float64 `json:"amount" binding:"required,gt=0"`
	Description string  `json:"description" binding:"omitempty,max=500"`
}

// AdjustmentRequest is an admin's direct balance correction
type AdjustmentRequest struct {
	UserID      string  `json:"user_id" binding:"required,uuid"`
	Amount      float64 `json:"amount" binding:"required"`
	Description string  `json:"description" binding:"required,max=500"`
}

// Service manages the transaction ledger: user-submitted deposit and
// withdrawal requests, the admin approval flow, and direct balance
// adjustments. All balance mutations happen inside the store's atomic
// operations; this layer validates, orchestrates and notifies.
type Service struct {
	store  Store
	mailer Mailer
	bus    *events.EventBus
	logger *logging.Logger
}

// NewService creates a new ledger service. mailer and bus may be nil.
func NewService(store Store, mailer Mailer, bus *events.EventBus) *Service {
	return &Service{
		store:  store,
		mailer: mailer,
		bus:    bus,
		logger: logging.WithComponent("ledger"),
	}
}

// CreatePending records a deposit or withdrawal request. The request
// stays pending until an admin decides it; no balance changes here,
// not even a hold for withdrawals.
func (s *Service) CreatePending(ctx context.Context, userID string, req CreateTransactionRequest) (*database.Transaction, error) {
	txType := database.TransactionType(req.Type)
	if txType != database.TransactionDeposit && txType != database.TransactionWithdrawal {
		return nil, ErrInvalidType
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	t := &database.Transaction{
		UserID:      userID,
		Type:        txType,
		Amount:      req.Amount,
		Reference:   uuid.New().String(),
		Description: req.Description,
	}

	if err := s.store.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("transaction requested",
		"transaction_id", t.ID, "user_id", userID, "type", req.Type, "amount", req.Amount)

	if s.bus != nil {
		s.bus.PublishTransactionDecided(events.EventTransactionCreated, t.ID, userID, req.Type, req.Amount)
	}
	s.notifyAdmins(userID, t)

	return t, nil
}

// Approve completes a pending transaction and applies its balance
// effect. A withdrawal that would overdraw the account fails with
// ErrInsufficientBalance and the request stays pending for the admin
// to reject or the user to cancel.
func (s *Service) Approve(ctx context.Context, txID, adminID string) (*database.Transaction, error) {
	t, err := s.store.ApplyPendingTransaction(ctx, txID, adminID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction approved",
		"transaction_id", t.ID, "admin_id", adminID, "type", string(t.Type), "amount", t.Amount)

	if s.bus != nil {
		s.bus.PublishTransactionDecided(events.EventTransactionApproved, t.ID, t.UserID, string(t.Type), t.Amount)
	}
	s.notifyUserDecision(t, true, "")

	return t, nil
}

// Reject declines a pending transaction without touching the balance
func (s *Service) Reject(ctx context.Context, txID, adminID, reason string) (*database.Transaction, error) {
	if reason == "" {
		reason = DefaultRejectionReason
	}

	t, err := s.store.RejectTransaction(ctx, txID, adminID, reason)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction rejected",
		"transaction_id", t.ID, "admin_id", adminID, "reason", reason)

	if s.bus != nil {
		s.bus.PublishTransactionDecided(events.EventTransactionRejected, t.ID, t.UserID, string(t.Type), t.Amount)
	}
	s.notifyUserDecision(t, false, reason)

	return t, nil
}

// Cancel withdraws a pending request. The owner can cancel their own;
// admins can cancel anyone's.
func (s *Service) Cancel(ctx context.Context, txID, callerID string, isAdmin bool) (*database.Transaction, error) {
	existing, err := s.store.GetTransactionByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, database.ErrNotFound
	}
	if !isAdmin && existing.UserID != callerID {
		return nil, ErrNotOwner
	}

	t, err := s.store.CancelTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("transaction cancelled", "transaction_id", t.ID, "by", callerID)

	if s.bus != nil {
		s.bus.PublishTransactionDecided(events.EventTransactionCancelled, t.ID, t.UserID, string(t.Type), t.Amount)
	}

	return t, nil
}

// CreateAdjustment applies an immediate signed balance correction.
// There is no approval step and no overdraft floor; the admin is
// trusted to know what they are doing.
func (s *Service) CreateAdjustment(ctx context.Context, adminID string, req AdjustmentRequest) (*database.Transaction, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}

	t := &database.Transaction{
		UserID:      req.UserID,
		Type:        database.TransactionAdjustment,
		Amount:      req.Amount,
		Reference:   uuid.New().String(),
		Description: req.Description,
		ProcessedBy: &adminID,
	}

	if err := s.store.CreateCompletedTransaction(ctx, t, false); err != nil {
		return nil, err
	}

	s.logger.Info("balance adjusted",
		"transaction_id", t.ID, "user_id", req.UserID, "admin_id", adminID, "amount", req.Amount)

	if s.bus != nil {
		s.bus.PublishTransactionDecided(events.EventBalanceAdjusted, t.ID, t.UserID, string(t.Type), t.Amount)
	}

	if s.mailer != nil {
		go func(userID string, amount float64, description string) {
			ctx := context.Background()
			user, err := s.store.GetUserByID(ctx, userID)
			if err != nil || user == nil {
				return
			}
			s.mailer.SendBalanceAdjustedEmail(ctx, user.Email, amount, description)
		}(req.UserID, req.Amount, req.Description)
	}

	return t, nil
}

// GetTransaction returns a single transaction with ownership
// enforcement for non-admin callers
func (s *Service) GetTransaction(ctx context.Context, txID, callerID string, isAdmin bool) (*database.TransactionDetail, error) {
	d, err := s.store.GetTransactionDetail(ctx, txID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, database.ErrNotFound
	}
	if !isAdmin && d.UserID != callerID {
		return nil, ErrNotOwner
	}
	return d, nil
}

// ListTransactions returns transactions matching the filter
func (s *Service) ListTransactions(ctx context.Context, filter database.TransactionFilter) ([]*database.TransactionDetail, error) {
	list, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return list, nil
}

func (s *Service) notifyAdmins(userID string, t *database.Transaction) {
	if s.mailer == nil {
		return
	}
	go func() {
		ctx := context.Background()

		user, err := s.store.GetUserByID(ctx, userID)
		if err != nil || user == nil {
			return
		}

		admins, err := s.store.ListAdminEmails(ctx)
		if err != nil || len(admins) == 0 {
			return
		}

		s.mailer.SendPendingRequestEmail(ctx, admins, user.Name, string(t.Type), t.Amount)
	}()
}

func (s *Service) notifyUserDecision(t *database.Transaction, approved bool, reason string) {
	if s.mailer == nil {
		return
	}
	go func() {
		ctx := context.Background()

		user, err := s.store.GetUserByID(ctx, t.UserID)
		if err != nil || user == nil {
			return
		}

		s.mailer.SendTransactionDecidedEmail(ctx, user.Email, string(t.Type), t.Amount, approved, reason)
	}()
}
