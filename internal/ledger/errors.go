package ledger

import "errors"

var (
	// ErrInvalidAmount indicates a zero or negative request amount
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidType indicates a transaction type users cannot request
	ErrInvalidType = errors.New("transaction type cannot be requested")

	// ErrNotOwner indicates the caller does not own the transaction
	ErrNotOwner = errors.New("transaction belongs to another user")
)
