package handlers

import (
	"net/http"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/ArowuTest/pollstake-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// AdminHandler serves the admin area: transactions, wallets and the dashboard
type AdminHandler struct {
	walletService services.WalletService
	adminService  services.AdminService
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(walletService services.WalletService, adminService services.AdminService) *AdminHandler {
	return &AdminHandler{
		walletService: walletService,
		adminService:  adminService,
	}
}

// ListTransactions handles GET /admin/transactions
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	q, ok := bindPageQuery(c)
	if !ok {
		return
	}
	filter := models.TransactionFilter{
		UserID: c.Query("userId"),
		Type:   models.TransactionType(c.Query("type")),
		Status: models.TransactionStatus(c.Query("status")),
	}

	page, err := h.walletService.ListAllTransactions(c.Request.Context(), actor, filter, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ListPendingWithdrawals handles GET /admin/transactions/withdrawals/pending
func (h *AdminHandler) ListPendingWithdrawals(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	q, ok := bindPageQuery(c)
	if !ok {
		return
	}

	page, err := h.walletService.ListPendingWithdrawals(c.Request.Context(), actor, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// ApproveWithdrawal handles PUT /admin/transactions/:id/approve
func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	tx, err := h.walletService.ApproveWithdrawal(c.Request.Context(), actor, c.Param("id"))
	writeTransactionResult(c, http.StatusOK, tx, err)
}

// RejectWithdrawal handles PUT /admin/transactions/:id/reject
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	tx, err := h.walletService.RejectWithdrawal(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tx)
}

// ListUsers handles GET /admin/users
func (h *AdminHandler) ListUsers(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	q, ok := bindPageQuery(c)
	if !ok {
		return
	}
	locked, err := utils.ParseOptionalBool(c.Query("isLocked"))
	if err != nil {
		writeError(c, services.ErrValidation.WithMessage("isLocked must be true or false"))
		return
	}

	page, err := h.walletService.ListWallets(c.Request.Context(), actor, models.WalletFilter{UserID: c.Query("userId"), IsLocked: locked}, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetUser handles GET /admin/users/:id
func (h *AdminHandler) GetUser(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	wallet, err := h.walletService.GetWallet(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// LockUser handles PUT /admin/users/:id/lock
func (h *AdminHandler) LockUser(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.LockWalletRequest
	// the reason is optional, so an empty body is fine
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindingError(c, err)
			return
		}
	}

	wallet, err := h.walletService.LockWallet(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// UnlockUser handles PUT /admin/users/:id/unlock
func (h *AdminHandler) UnlockUser(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	wallet, err := h.walletService.UnlockWallet(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// GetDashboardStats handles GET /admin/dashboard/stats
func (h *AdminHandler) GetDashboardStats(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	stats, err := h.adminService.GetDashboardStats(c.Request.Context(), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
