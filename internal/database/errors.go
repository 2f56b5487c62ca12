package database

import "errors"

// Sentinel errors surfaced by the repository. Handlers map these to
// stable error codes and HTTP status codes.
var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrTransactionNotPending indicates a decision was attempted on a
	// transaction that has already left the pending state.
	ErrTransactionNotPending = errors.New("transaction is not pending")

	// ErrInsufficientBalance indicates a debit would take the account
	// balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidTransition indicates an order state-machine precondition
	// was violated. The order is left unchanged.
	ErrInvalidTransition = errors.New("invalid order transition")

	// ErrFinalRateNotSet indicates completion was attempted on a matured
	// order whose final amount has not been priced yet.
	ErrFinalRateNotSet = errors.New("final interest rate not set")

	// ErrPlanAlreadyFinalized indicates the plan's final interest rate
	// has already been set. Finalization is one-shot.
	ErrPlanAlreadyFinalized = errors.New("plan already finalized")

	// ErrReceiptAlreadyReviewed indicates the receipt has already been
	// approved or rejected. Review is one-shot.
	ErrReceiptAlreadyReviewed = errors.New("receipt already reviewed")

	// ErrPlanHasOpenOrders indicates a plan delete was refused because
	// non-terminal orders still reference it.
	ErrPlanHasOpenOrders = errors.New("plan has open orders")

	// ErrEmailExists indicates the email address is already registered.
	ErrEmailExists = errors.New("email already registered")
)
