package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/database"
	"investment-backoffice/internal/investment"
)

type uploadReceiptBody struct {
	ReceiptImage string `json:"receipt_image" binding:"required"`
	Notes        string `json:"notes" binding:"omitempty,max=1000"`
}

// handleUploadReceipt attaches a payment receipt to the order in the
// URL
func (s *Server) handleUploadReceipt(c *gin.Context) {
	var body uploadReceiptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondBindError(c, err)
		return
	}

	receipt, err := s.investSvc.UploadReceipt(c.Request.Context(), auth.GetUserID(c),
		investment.UploadReceiptRequest{
			OrderID:      c.Param("id"),
			ReceiptImage: body.ReceiptImage,
			Notes:        body.Notes,
		})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, receipt)
}

// handleListReceipts lists receipts. Regular users only see their own.
func (s *Server) handleListReceipts(c *gin.Context) {
	filter := database.ReceiptFilter{
		Status: database.ReceiptStatus(c.Query("status")),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	if auth.IsAdmin(c) {
		filter.UserID = c.Query("user_id")
	} else {
		filter.UserID = auth.GetUserID(c)
	}

	list, err := s.investSvc.ListReceipts(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipts": list, "count": len(list)})
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(c *gin.Context) {
	detail, err := s.investSvc.GetReceipt(c.Request.Context(),
		c.Param("id"), auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// handleReviewReceipt decides a pending receipt
func (s *Server) handleReviewReceipt(c *gin.Context) {
	var req investment.ReviewReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	receipt, order, err := s.investSvc.ReviewReceipt(c.Request.Context(),
		c.Param("id"), auth.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"receipt": receipt, "order": order})
}
