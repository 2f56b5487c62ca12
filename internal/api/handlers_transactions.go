package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/database"
	"investment-backoffice/internal/ledger"
)

// handleCreateTransaction records a deposit or withdrawal request
func (s *Server) handleCreateTransaction(c *gin.Context) {
	var req ledger.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tx, err := s.ledgerSvc.CreatePending(c.Request.Context(), auth.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// handleListTransactions lists transactions. Regular users only see
// their own; admins can filter by any user.
func (s *Server) handleListTransactions(c *gin.Context) {
	filter := database.TransactionFilter{
		Status: database.TransactionStatus(c.Query("status")),
		Type:   database.TransactionType(c.Query("type")),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	if auth.IsAdmin(c) {
		filter.UserID = c.Query("user_id")
	} else {
		filter.UserID = auth.GetUserID(c)
	}

	list, err := s.ledgerSvc.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": list, "count": len(list)})
}

// handleGetTransaction returns a single transaction
func (s *Server) handleGetTransaction(c *gin.Context) {
	detail, err := s.ledgerSvc.GetTransaction(c.Request.Context(),
		c.Param("id"), auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// handleCancelTransaction withdraws a pending request
func (s *Server) handleCancelTransaction(c *gin.Context) {
	tx, err := s.ledgerSvc.Cancel(c.Request.Context(),
		c.Param("id"), auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// handleApproveTransaction completes a pending transaction
func (s *Server) handleApproveTransaction(c *gin.Context) {
	tx, err := s.ledgerSvc.Approve(c.Request.Context(), c.Param("id"), auth.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

type rejectTransactionRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// handleRejectTransaction declines a pending transaction
func (s *Server) handleRejectTransaction(c *gin.Context) {
	var req rejectTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondBindError(c, err)
		return
	}

	tx, err := s.ledgerSvc.Reject(c.Request.Context(), c.Param("id"), auth.GetUserID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}

// handleCreateAdjustment applies a direct balance correction
func (s *Server) handleCreateAdjustment(c *gin.Context) {
	var req ledger.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	tx, err := s.ledgerSvc.CreateAdjustment(c.Request.Context(), auth.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}
