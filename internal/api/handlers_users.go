package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/database"
	"investment-backoffice/internal/ledger"
)

func userResponse(u *database.User) gin.H {
	return gin.H{
		"id":              u.ID,
		"email":           u.Email,
		"name":            u.Name,
		"role":            u.Role,
		"account_balance": u.AccountBalance,
		"total_deposited": u.TotalDeposited,
		"total_withdrawn": u.TotalWithdrawn,
		"total_earnings":  u.TotalEarnings,
		"is_active":       u.IsActive,
		"created_at":      u.CreatedAt,
	}
}

// handleCreateUser creates a user account. An initial balance, if
// given, is booked as an adjustment so the ledger stays complete.
func (s *Server) handleCreateUser(c *gin.Context) {
	var req auth.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	user, err := s.authService.CreateUser(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	if req.InitialBalance > 0 {
		_, err := s.ledgerSvc.CreateAdjustment(c.Request.Context(), auth.GetUserID(c), ledger.AdjustmentRequest{
			UserID:      user.ID,
			Amount:      req.InitialBalance,
			Description: "Initial balance",
		})
		if err != nil {
			respondError(c, err)
			return
		}
		user.AccountBalance = req.InitialBalance
	}

	c.JSON(http.StatusCreated, userResponse(user))
}

// handleListUsers lists all user accounts
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.repo.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	resp := make([]gin.H, 0, len(users))
	for _, u := range users {
		resp = append(resp, userResponse(u))
	}

	c.JSON(http.StatusOK, gin.H{"users": resp, "count": len(resp)})
}

// handleGetUser returns a single user account
func (s *Server) handleGetUser(c *gin.Context) {
	user, err := s.repo.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if user == nil {
		respondError(c, database.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, userResponse(user))
}

// handleDeleteUser removes a user account and, via cascade, their
// orders, transactions and receipts. The last admin cannot be removed.
func (s *Server) handleDeleteUser(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if user == nil {
		respondError(c, database.ErrNotFound)
		return
	}

	if user.IsAdmin() {
		admins, err := s.repo.CountAdmins(ctx)
		if err != nil {
			respondError(c, err)
			return
		}
		if admins <= 1 {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "LAST_ADMIN",
				"message": "cannot delete the last admin account",
			})
			return
		}
	}

	if err := s.repo.DeleteUser(ctx, userID); err != nil {
		respondError(c, err)
		return
	}

	DisconnectUserWebSockets(userID)

	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
