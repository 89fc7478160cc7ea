package handlers

import (
	"net/http"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/ArowuTest/pollstake-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// StakeHandler handles stake placement and pool queries
type StakeHandler struct {
	stakeService services.StakeService
}

// NewStakeHandler creates a new StakeHandler
func NewStakeHandler(stakeService services.StakeService) *StakeHandler {
	return &StakeHandler{stakeService: stakeService}
}

// PlaceStake handles POST /stakes
func (h *StakeHandler) PlaceStake(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.PlaceStakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	stake, err := h.stakeService.PlaceStake(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stake)
}

// ListMyStakes handles GET /stakes/my
func (h *StakeHandler) ListMyStakes(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	q, ok := bindPageQuery(c)
	if !ok {
		return
	}

	page, err := h.stakeService.ListMyStakes(c.Request.Context(), actor, models.StakeStatus(c.Query("status")), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetPoolComposition handles GET /public/polls/:id/pool
func (h *StakeHandler) GetPoolComposition(c *gin.Context) {
	pool, err := h.stakeService.GetPoolComposition(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

// CalculateWinnings handles GET /public/stakes/calculate-winnings
func (h *StakeHandler) CalculateWinnings(c *gin.Context) {
	amount, err := utils.ParseAmount(c.Query("amount"))
	if err != nil {
		writeError(c, services.ErrInvalidAmount)
		return
	}

	projection, err := h.stakeService.CalculateWinnings(c.Request.Context(), c.Query("pollId"), c.Query("selectedOptionId"), amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, projection)
}
