package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/database"
	"investment-backoffice/internal/investment"
)

// handleCreateOrder places an investment order for the caller
func (s *Server) handleCreateOrder(c *gin.Context) {
	var req investment.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	order, err := s.investSvc.CreateOrder(c.Request.Context(), auth.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// handleListOrders lists orders. Regular users only see their own;
// admins can filter by any user or plan.
func (s *Server) handleListOrders(c *gin.Context) {
	filter := database.OrderFilter{
		Status: database.OrderStatus(c.Query("status")),
	}
	filter.Limit, _ = strconv.Atoi(c.Query("limit"))
	filter.Offset, _ = strconv.Atoi(c.Query("offset"))

	if auth.IsAdmin(c) {
		filter.UserID = c.Query("user_id")
		filter.PlanID = c.Query("plan_id")
	} else {
		filter.UserID = auth.GetUserID(c)
	}

	list, err := s.investSvc.ListOrders(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": list, "count": len(list)})
}

// handleGetOrder returns a single order
func (s *Server) handleGetOrder(c *gin.Context) {
	detail, err := s.investSvc.GetOrder(c.Request.Context(),
		c.Param("id"), auth.GetUserID(c), auth.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, detail)
}

// handleActivateOrder approves a balance-funded order
func (s *Server) handleActivateOrder(c *gin.Context) {
	order, err := s.investSvc.ActivateOrder(c.Request.Context(), c.Param("id"), auth.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// handleCompleteOrder pays out a matured order
func (s *Server) handleCompleteOrder(c *gin.Context) {
	order, payout, err := s.investSvc.CompleteOrder(c.Request.Context(), c.Param("id"), auth.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "payout": payout})
}
