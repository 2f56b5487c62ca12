package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"investment-backoffice/internal/auth"
	"investment-backoffice/internal/investment"
)

// handleListPlans lists active investment plans, served from cache
// when available
func (s *Server) handleListPlans(c *gin.Context) {
	plans, err := s.investSvc.ListPlans(c.Request.Context(), true)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
}

// handleListAllPlans lists every plan, inactive and finalized included
func (s *Server) handleListAllPlans(c *gin.Context) {
	plans, err := s.investSvc.ListPlans(c.Request.Context(), false)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"plans": plans, "count": len(plans)})
}

// handleGetPlan returns a single plan
func (s *Server) handleGetPlan(c *gin.Context) {
	plan, err := s.investSvc.GetPlan(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// handleCreatePlan creates a new investment plan
func (s *Server) handleCreatePlan(c *gin.Context) {
	var req investment.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	plan, err := s.investSvc.CreatePlan(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, plan)
}

// handleUpdatePlan updates a plan's editable fields
func (s *Server) handleUpdatePlan(c *gin.Context) {
	var req investment.UpdatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	plan, err := s.investSvc.UpdatePlan(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, plan)
}

// handleDeletePlan removes a plan without order history
func (s *Server) handleDeletePlan(c *gin.Context) {
	if err := s.investSvc.DeletePlan(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "plan deleted"})
}

type finalizePlanRequest struct {
	FinalRate float64 `json:"final_rate" binding:"required,gte=0"`
}

// handleFinalizePlan sets the plan's final rate and prices its orders
func (s *Server) handleFinalizePlan(c *gin.Context) {
	var req finalizePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	result, err := s.investSvc.FinalizePlan(c.Request.Context(),
		c.Param("id"), auth.GetUserID(c), req.FinalRate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
