package handlers

import (
	"io"
	"net/http"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody bounds the gateway callback payload
const maxWebhookBody = 1 << 20

// WalletHandler handles balance, deposit, withdrawal and reconciliation requests
type WalletHandler struct {
	walletService services.WalletService
}

// NewWalletHandler creates a new WalletHandler
func NewWalletHandler(walletService services.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// GetBalance handles GET /wallet/balance
func (h *WalletHandler) GetBalance(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	wallet, err := h.walletService.GetBalance(c.Request.Context(), actor.UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

// ListTransactions handles GET /wallet/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	q, ok := bindPageQuery(c)
	if !ok {
		return
	}
	filter := models.TransactionFilter{
		Type:   models.TransactionType(c.Query("type")),
		Status: models.TransactionStatus(c.Query("status")),
	}

	page, err := h.walletService.ListTransactions(c.Request.Context(), actor.UserID, filter, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// InitiateDeposit handles POST /wallet/deposit
func (h *WalletHandler) InitiateDeposit(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	initiation, err := h.walletService.InitiateDeposit(c.Request.Context(), actor.UserID, req)
	if err != nil {
		var tx *models.Transaction
		if initiation != nil {
			tx = initiation.Transaction
		}
		writeTransactionResult(c, http.StatusCreated, tx, err)
		return
	}
	c.JSON(http.StatusCreated, initiation)
}

// VerifyDeposit handles POST /wallet/verify/:reference
func (h *WalletHandler) VerifyDeposit(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	tx, err := h.walletService.VerifyDeposit(c.Request.Context(), actor, c.Param("reference"))
	writeTransactionResult(c, http.StatusOK, tx, err)
}

// CalculateWithdrawal handles POST /wallet/calculate-withdrawal
func (h *WalletHandler) CalculateWithdrawal(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.CalculateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	breakdown, err := h.walletService.CalculateWithdrawalBreakdown(c.Request.Context(), actor.UserID, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// Withdraw handles POST /wallet/withdraw
func (h *WalletHandler) Withdraw(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	var req models.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindingError(c, err)
		return
	}

	tx, err := h.walletService.Withdraw(c.Request.Context(), actor.UserID, req)
	writeTransactionResult(c, http.StatusCreated, tx, err)
}

// Reconcile handles POST /wallet/reconcile/:transactionId
func (h *WalletHandler) Reconcile(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	tx, err := h.walletService.Reconcile(c.Request.Context(), actor, c.Param("transactionId"))
	writeTransactionResult(c, http.StatusOK, tx, err)
}

// ReconcileAll handles POST /wallet/reconcile-all
func (h *WalletHandler) ReconcileAll(c *gin.Context) {
	actor, ok := principal(c)
	if !ok {
		return
	}
	report, err := h.walletService.ReconcileAll(c.Request.Context(), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// PaystackWebhook handles POST /webhooks/paystack
func (h *WalletHandler) PaystackWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		writeError(c, services.ErrValidation.WithMessage("unreadable webhook body"))
		return
	}
	if err := h.walletService.HandleWebhook(c.Request.Context(), body, c.GetHeader("X-Paystack-Signature")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
