package investment

import "errors"

var (
	// ErrPlanInactive indicates an order against a deactivated plan
	ErrPlanInactive = errors.New("investment plan is not active")

	// ErrAmountBelowMinimum indicates an order below the plan's minimum
	ErrAmountBelowMinimum = errors.New("amount is below the plan minimum")

	// ErrInvalidRateRange indicates a plan whose minimum rate exceeds
	// its maximum
	ErrInvalidRateRange = errors.New("minimum interest rate exceeds maximum")

	// ErrRateOutOfRange indicates a final rate outside the plan's
	// advertised range
	ErrRateOutOfRange = errors.New("final rate is outside the plan's range")

	// ErrDeadlineExpired indicates a receipt upload after the payment
	// deadline
	ErrDeadlineExpired = errors.New("payment deadline has expired")

	// ErrNotOwner indicates the caller does not own the resource
	ErrNotOwner = errors.New("resource belongs to another user")
)
