package handlers

import (
	"net/http"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// PollHandler serves the poll catalogue and the admin lifecycle actions
type PollHandler struct {
	pollService  services.PollService
	adminService services.AdminService
}

// NewPollHandler creates a new PollHandler
func NewPollHandler(pollService services.PollService, adminService services.AdminService) *PollHandler {
	return &PollHandler{
		pollService:  pollService,
		adminService: adminService,
	}
}

// CreatePoll handles POST /polls
func (h *PollHandler) CreatePoll(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	poll, err := h.pollService.CreatePoll(c.Request.Context(), actor, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, poll)
}

// ListPolls handles GET /public/polls
func (h *PollHandler) ListPolls(c *gin.Context) {
	q, ok := bindPageQuery(c)
	if !ok {
		return
	}
	filter := models.PollFilter{
		Search:   c.Query("search"),
		Status:   models.PollStatus(c.Query("status")),
		Category: c.Query("category"),
	}

	page, err := h.pollService.ListPolls(c.Request.Context(), filter, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetPoll handles GET /public/polls/:id
func (h *PollHandler) GetPoll(c *gin.Context) {
	poll, err := h.pollService.GetPoll(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// GetPollStats handles GET /public/polls/:id/stats
func (h *PollHandler) GetPollStats(c *gin.Context) {
	stats, err := h.pollService.GetPollStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ClosePoll handles POST /polls/:id/close
func (h *PollHandler) ClosePoll(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	poll, err := h.adminService.ClosePoll(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// ResolvePoll handles POST /polls/:id/resolve
func (h *PollHandler) ResolvePoll(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.ResolvePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	poll, err := h.adminService.ResolvePoll(c.Request.Context(), actor, c.Param("id"), req.CorrectOptionID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// CancelPoll handles POST /polls/:id/cancel
func (h *PollHandler) CancelPoll(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	poll, err := h.adminService.CancelPoll(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, poll)
}

// DeletePoll handles DELETE /polls/:id
func (h *PollHandler) DeletePoll(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	if err := h.adminService.DeletePoll(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Poll deleted successfully"})
}
