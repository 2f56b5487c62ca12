package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/database"
	"investment-backoffice/internal/investment"
	"investment-backoffice/internal/ledger"
	"investment-backoffice/internal/logging"
)

// respondError maps service errors onto HTTP statuses with a stable
// {"error", "message"} envelope
func respondError(c *gin.Context, err error) {
	var authErr auth.AuthError
	if errors.As(err, &authErr) {
		c.JSON(authErrorStatus(authErr), gin.H{
			"error":   authErr.Code,
			"message": authErr.Message,
		})
		return
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "NOT_FOUND",
			"message": "resource not found",
		})

	case errors.Is(err, ledger.ErrNotOwner), errors.Is(err, investment.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "FORBIDDEN",
			"message": "resource belongs to another user",
		})

	case errors.Is(err, database.ErrInsufficientBalance):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "INSUFFICIENT_BALANCE",
			"message": "account balance cannot cover this amount",
		})

	case errors.Is(err, database.ErrTransactionNotPending):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "TRANSACTION_NOT_PENDING",
			"message": "transaction has already been decided",
		})

	case errors.Is(err, database.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "INVALID_TRANSITION",
			"message": "operation is not valid in the current state",
		})

	case errors.Is(err, database.ErrFinalRateNotSet):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "FINAL_RATE_NOT_SET",
			"message": "order has no final rate yet, finalize the plan first",
		})

	case errors.Is(err, database.ErrPlanAlreadyFinalized):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "PLAN_ALREADY_FINALIZED",
			"message": "plan final rate has already been set",
		})

	case errors.Is(err, database.ErrReceiptAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "RECEIPT_ALREADY_REVIEWED",
			"message": "receipt has already been decided",
		})

	case errors.Is(err, database.ErrPlanHasOpenOrders):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "PLAN_HAS_ORDERS",
			"message": "plan is referenced by orders, deactivate it instead",
		})

	case errors.Is(err, database.ErrEmailExists):
		c.JSON(http.StatusConflict, gin.H{
			"error":   "EMAIL_EXISTS",
			"message": "email already registered",
		})

	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidType),
		errors.Is(err, investment.ErrPlanInactive),
		errors.Is(err, investment.ErrAmountBelowMinimum),
		errors.Is(err, investment.ErrInvalidRateRange),
		errors.Is(err, investment.ErrRateOutOfRange),
		errors.Is(err, investment.ErrDeadlineExpired):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_FAILED",
			"message": err.Error(),
		})

	default:
		logging.WithComponent("api").Error("internal error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL_ERROR",
			"message": "an internal error occurred",
		})
	}
}

func authErrorStatus(err auth.AuthError) int {
	switch err.Code {
	case auth.ErrForbidden.Code:
		return http.StatusForbidden
	case auth.ErrUserNotFound.Code:
		return http.StatusNotFound
	case auth.ErrEmailExists.Code:
		return http.StatusConflict
	case auth.ErrWeakPassword.Code:
		return http.StatusBadRequest
	case auth.ErrRateLimited.Code:
		return http.StatusTooManyRequests
	default:
		return http.StatusUnauthorized
	}
}

// respondBindError reports a request body that failed validation
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "INVALID_REQUEST",
		"message": err.Error(),
	})
}
