package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/metrics"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/ArowuTest/pollstake-backend/internal/utils"
	"github.com/ArowuTest/pollstake-backend/pkg/notify"
	"github.com/ArowuTest/pollstake-backend/pkg/paystack"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/time/rate"
)

// PaymentGateway is the part of the payment provider the wallet talks to
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error)
	InitiateTransfer(ctx context.Context, req paystack.TransferRequest) (*paystack.Transfer, error)
	VerifyTransfer(ctx context.Context, reference string) (*paystack.Transfer, error)
	VerifySignature(body []byte, signature string) bool
}

// LedgerEntry describes one balance movement requested from the wallet ledger
type LedgerEntry struct {
	UserID    string
	Amount    int64
	Type      models.TransactionType
	Reference string
	PollID    *primitive.ObjectID
	StakeID   *primitive.ObjectID
	Fee       int64
}

// ReconcileOptions paces bulk reconciliation
type ReconcileOptions struct {
	RatePerSecond float64
	Burst         int
	StaleAfter    time.Duration
	BatchSize     int
}

// Reference prefixes of gateway-backed transactions
const (
	depositRefPrefix    = "dep_"
	withdrawalRefPrefix = "wd_"
)

// WalletServiceImpl implements WalletService
type WalletServiceImpl struct {
	transactor repositories.Transactor
	walletRepo repositories.WalletRepository
	txRepo     repositories.TransactionRepository
	settings   PlatformSettingsService
	gateway    PaymentGateway
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	locks      *keyedMutex
	limiter    *rate.Limiter
	staleAfter time.Duration
	batchSize  int
	nowFn      func() time.Time
}

// NewWalletService creates a new WalletService
func NewWalletService(
	transactor repositories.Transactor,
	walletRepo repositories.WalletRepository,
	txRepo repositories.TransactionRepository,
	settings PlatformSettingsService,
	gateway PaymentGateway,
	notifier notify.Notifier,
	m *metrics.Metrics,
	opts ReconcileOptions,
) *WalletServiceImpl {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.BatchSize < 1 || opts.BatchSize > models.MaxPageLimit {
		opts.BatchSize = models.MaxPageLimit
	}
	return &WalletServiceImpl{
		transactor: transactor,
		walletRepo: walletRepo,
		txRepo:     txRepo,
		settings:   settings,
		gateway:    gateway,
		notifier:   notifier,
		metrics:    m,
		locks:      newKeyedMutex(),
		limiter:    rate.NewLimiter(limit, opts.Burst),
		staleAfter: opts.StaleAfter,
		batchSize:  opts.BatchSize,
		nowFn:      time.Now,
	}
}

// Debit decreases the user's available balance by entry.Amount
func (s *WalletServiceImpl) Debit(ctx context.Context, entry LedgerEntry) (*models.Transaction, error) {
	return s.apply(ctx, s.entryTransaction(entry), -entry.Amount)
}

// Credit increases the user's available balance by entry.Amount
func (s *WalletServiceImpl) Credit(ctx context.Context, entry LedgerEntry) (*models.Transaction, error) {
	return s.apply(ctx, s.entryTransaction(entry), entry.Amount)
}

func (s *WalletServiceImpl) entryTransaction(entry LedgerEntry) *models.Transaction {
	return &models.Transaction{
		UserID:    entry.UserID,
		Type:      entry.Type,
		Amount:    entry.Amount,
		Status:    models.TransactionStatusCompleted,
		Reference: entry.Reference,
		Fee:       entry.Fee,
		PollID:    entry.PollID,
		StakeID:   entry.StakeID,
	}
}

// apply moves delta through the user's wallet and records tx in the same storage
// transaction. A reference that is already recorded for the same movement returns
// the stored transaction untouched.
func (s *WalletServiceImpl) apply(ctx context.Context, tx *models.Transaction, delta int64) (*models.Transaction, error) {
	if tx.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if tx.UserID == "" || tx.Reference == "" || !tx.Type.Valid() {
		return nil, ErrValidation.WithMessage("ledger entry needs a user, a type and a reference")
	}

	var replayed *models.Transaction
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.txRepo.FindByReference(ctx, tx.Reference)
		if err == nil {
			if !sameMovement(existing, tx) {
				return ErrReferenceConflict.WithMessage("reference %s is already used", tx.Reference)
			}
			replayed = existing
			return nil
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}

		if _, err := s.walletRepo.EnsureWallet(ctx, tx.UserID); err != nil {
			return err
		}
		wallet, err := s.walletRepo.ApplyDelta(ctx, tx.UserID, delta)
		if errors.Is(err, repositories.ErrConditionFailed) {
			return s.rejectionReason(ctx, tx.UserID, delta)
		}
		if err != nil {
			return err
		}

		tx.ID = primitive.NilObjectID
		tx.BalanceAfter = wallet.AvailableBalance
		tx.BalanceBefore = wallet.AvailableBalance - delta
		tx.CreatedAt = s.nowFn().UTC()
		return s.txRepo.Create(ctx, tx)
	})
	if errors.Is(err, repositories.ErrDuplicateKey) {
		// a concurrent call with the same reference committed first
		if existing, ferr := s.txRepo.FindByReference(ctx, tx.Reference); ferr == nil && sameMovement(existing, tx) {
			return existing, nil
		}
	}
	if err != nil {
		return nil, internal(err, "failed to apply ledger entry")
	}
	if replayed != nil {
		slog.Debug("Ledger entry replayed", "reference", tx.Reference, "transactionId", replayed.ID.Hex())
		return replayed, nil
	}

	s.metrics.LedgerMovement(string(tx.Type), tx.Amount)
	slog.Info("Ledger entry applied", "userId", tx.UserID, "type", tx.Type, "amount", tx.Amount,
		"reference", tx.Reference, "balanceAfter", tx.BalanceAfter)
	return tx, nil
}

func sameMovement(a, b *models.Transaction) bool {
	return a.UserID == b.UserID && a.Type == b.Type && a.Amount == b.Amount
}

// rejectionReason explains why a conditional balance update matched nothing
func (s *WalletServiceImpl) rejectionReason(ctx context.Context, userID string, delta int64) error {
	wallet, err := s.walletRepo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if wallet.IsLocked {
		return ErrWalletLocked
	}
	if delta < 0 {
		return ErrInsufficientBalance.WithMessage("available balance %d is less than %d", wallet.AvailableBalance, -delta)
	}
	return fmt.Errorf("credit of %d to wallet %s was not applied", delta, userID)
}

// GetBalance returns the user's wallet, creating it on first use
func (s *WalletServiceImpl) GetBalance(ctx context.Context, userID string) (*models.Wallet, error) {
	wallet, err := s.walletRepo.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, internal(err, "failed to load wallet")
	}
	return wallet, nil
}

// ListTransactions pages through the user's transactions
func (s *WalletServiceImpl) ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter, q models.PageQuery) (*models.Page[*models.Transaction], error) {
	filter.UserID = userID
	return s.findTransactions(ctx, filter, q)
}

func (s *WalletServiceImpl) findTransactions(ctx context.Context, filter models.TransactionFilter, q models.PageQuery) (*models.Page[*models.Transaction], error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, ErrValidation.WithMessage("unknown transaction type %q", filter.Type)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrValidation.WithMessage("unknown transaction status %q", filter.Status)
	}
	q = q.Normalize()
	txs, total, err := s.txRepo.Find(ctx, filter, q)
	if err != nil {
		return nil, internal(err, "failed to list transactions")
	}
	page := models.NewPage(txs, total, q)
	return &page, nil
}

// CalculateWithdrawalBreakdown previews a withdrawal of amount
func (s *WalletServiceImpl) CalculateWithdrawalBreakdown(ctx context.Context, userID string, amount int64) (*models.WithdrawalBreakdown, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	b := ComputeWithdrawalBreakdown(amount, wallet.AvailableBalance, settings)
	return &b, nil
}

// Withdraw debits the requested amount into a pending withdrawal. Without approval
// the transfer is submitted immediately; a gateway timeout leaves it processing.
func (s *WalletServiceImpl) Withdraw(ctx context.Context, userID string, req models.WithdrawRequest) (*models.Transaction, error) {
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.WithdrawalsEnabled {
		return nil, ErrWithdrawalsDisabled
	}
	if req.Amount < settings.MinWithdrawalAmount {
		return nil, ErrWithdrawalBelowMinimum.WithMessage("minimum withdrawal amount is %d", settings.MinWithdrawalAmount)
	}

	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.IsLocked {
		return nil, ErrWalletLocked
	}
	b := ComputeWithdrawalBreakdown(req.Amount, wallet.AvailableBalance, settings)
	if !b.CanWithdraw {
		if req.Amount > wallet.AvailableBalance {
			return nil, ErrInsufficientBalance.WithMessage("available balance %d is less than %d", wallet.AvailableBalance, req.Amount)
		}
		return nil, ErrInvalidAmount.WithMessage("amount does not cover withdrawal fees of %d", b.PlatformFee+b.TransferFee)
	}

	tx, err := s.apply(ctx, &models.Transaction{
		UserID:      userID,
		Type:        models.TransactionTypeWithdrawal,
		Amount:      req.Amount,
		Status:      models.TransactionStatusPending,
		Reference:   withdrawalRefPrefix + uuid.NewString(),
		Fee:         b.PlatformFee,
		TransferFee: b.TransferFee,
		NetAmount:   b.NetAmount,
		BankDetails: &models.BankDetails{
			AccountNumber: req.AccountNumber,
			BankCode:      req.BankCode,
			AccountName:   req.AccountName,
		},
	}, -req.Amount)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notify.EventWithdrawalRequested, tx)

	if settings.RequireWithdrawalApproval {
		slog.Info("Withdrawal awaiting approval", "transactionId", tx.ID.Hex(), "userId", userID, "amount", tx.Amount,
			"account", utils.MaskAccountNumber(req.AccountNumber))
		return tx, nil
	}

	unlock := s.locks.Lock(tx.ID.Hex())
	defer unlock()
	return s.submitWithdrawal(ctx, tx, "")
}

// ApproveWithdrawal submits a pending withdrawal to the gateway
func (s *WalletServiceImpl) ApproveWithdrawal(ctx context.Context, actor models.Principal, txID string) (*models.Transaction, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	tx, unlock, err := s.lockTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if tx.Type != models.TransactionTypeWithdrawal || tx.Status != models.TransactionStatusPending {
		return nil, ErrTransactionState.WithMessage("only pending withdrawals can be approved")
	}
	slog.Info("Withdrawal approved", "transactionId", txID, "approvedBy", actor.UserID)
	return s.submitWithdrawal(ctx, tx, actor.UserID)
}

// RejectWithdrawal marks a pending withdrawal rejected and refunds it
func (s *WalletServiceImpl) RejectWithdrawal(ctx context.Context, actor models.Principal, txID, reason string) (*models.Transaction, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	tx, unlock, err := s.lockTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if tx.Type != models.TransactionTypeWithdrawal || tx.Status != models.TransactionStatusPending {
		return nil, ErrTransactionState.WithMessage("only pending withdrawals can be rejected")
	}
	slog.Info("Withdrawal rejected", "transactionId", txID, "rejectedBy", actor.UserID, "reason", reason)
	return s.failWithdrawal(ctx, tx, models.TransactionStatusRejected, reason, actor.UserID)
}

// lockTransaction takes the per-transaction lock and loads the transaction under it
func (s *WalletServiceImpl) lockTransaction(ctx context.Context, txID string) (*models.Transaction, func(), error) {
	id, err := primitive.ObjectIDFromHex(txID)
	if err != nil {
		return nil, nil, ErrInvalidID
	}
	unlock := s.locks.Lock(id.Hex())
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		unlock()
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, ErrTransactionNotFound
		}
		return nil, nil, internal(err, "failed to load transaction")
	}
	return tx, unlock, nil
}

// submitWithdrawal moves a pending withdrawal to processing and hands it to the gateway.
// No storage transaction is open while the gateway call is in flight.
func (s *WalletServiceImpl) submitWithdrawal(ctx context.Context, tx *models.Transaction, reviewer string) (*models.Transaction, error) {
	processing, err := s.txRepo.UpdateStatus(ctx, tx.ID, []models.TransactionStatus{models.TransactionStatusPending}, models.TransactionUpdate{
		Status:     models.TransactionStatusProcessing,
		ReviewedBy: reviewer,
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		return nil, ErrTransactionState.WithMessage("withdrawal is no longer pending")
	}
	if err != nil {
		return nil, internal(err, "failed to mark withdrawal processing")
	}

	transfer, err := s.gateway.InitiateTransfer(ctx, transferRequest(processing))
	if err != nil {
		if paystack.IsDefinitive(err) {
			s.metrics.GatewayCall("transfer", "rejected")
			slog.Warn("Transfer rejected by gateway", "transactionId", tx.ID.Hex(), "error", err)
			failed, ferr := s.failWithdrawal(ctx, processing, models.TransactionStatusFailed, err.Error(), "")
			if ferr != nil {
				return nil, ferr
			}
			return failed, ErrGatewayRejected.Wrap(err)
		}
		s.metrics.GatewayCall("transfer", "unavailable")
		slog.Warn("Transfer outcome unknown, leaving withdrawal processing", "transactionId", tx.ID.Hex(), "error", err)
		return processing, ErrGatewayUnavailable.Wrap(err)
	}
	s.metrics.GatewayCall("transfer", "ok")
	return s.applyTransferStatus(ctx, processing, transfer)
}

func transferRequest(tx *models.Transaction) paystack.TransferRequest {
	req := paystack.TransferRequest{
		Amount:    tx.NetAmount,
		Reference: tx.Reference,
		Reason:    "Wallet withdrawal",
	}
	if tx.BankDetails != nil {
		req.Recipient = paystack.Recipient{
			AccountNumber: tx.BankDetails.AccountNumber,
			BankCode:      tx.BankDetails.BankCode,
			AccountName:   tx.BankDetails.AccountName,
		}
	}
	return req
}

// applyTransferStatus records what the gateway reported for a processing withdrawal
func (s *WalletServiceImpl) applyTransferStatus(ctx context.Context, tx *models.Transaction, transfer *paystack.Transfer) (*models.Transaction, error) {
	switch transfer.Status {
	case paystack.StatusSuccess:
		now := s.nowFn().UTC()
		completed, err := s.txRepo.UpdateStatus(ctx, tx.ID, []models.TransactionStatus{models.TransactionStatusProcessing}, models.TransactionUpdate{
			Status:           models.TransactionStatusCompleted,
			GatewayReference: transfer.TransferCode,
			CompletedAt:      &now,
		})
		if errors.Is(err, repositories.ErrConditionFailed) {
			return s.currentTransaction(ctx, tx.ID)
		}
		if err != nil {
			return nil, internal(err, "failed to complete withdrawal")
		}
		slog.Info("Withdrawal completed", "transactionId", tx.ID.Hex(), "userId", tx.UserID, "netAmount", tx.NetAmount)
		s.publish(ctx, notify.EventWithdrawalCompleted, completed)
		return completed, nil

	case paystack.StatusFailed, paystack.StatusReversed:
		return s.failWithdrawal(ctx, tx, models.TransactionStatusFailed, "transfer "+transfer.Status, "")

	default:
		if transfer.TransferCode == "" || transfer.TransferCode == tx.GatewayReference {
			return tx, nil
		}
		updated, err := s.txRepo.UpdateStatus(ctx, tx.ID, []models.TransactionStatus{models.TransactionStatusProcessing}, models.TransactionUpdate{
			Status:           models.TransactionStatusProcessing,
			GatewayReference: transfer.TransferCode,
		})
		if errors.Is(err, repositories.ErrConditionFailed) {
			return s.currentTransaction(ctx, tx.ID)
		}
		if err != nil {
			slog.Error("Failed to store transfer code", "transactionId", tx.ID.Hex(), "transferCode", transfer.TransferCode, "error", err)
			return tx, internal(err, "failed to store transfer code")
		}
		return updated, nil
	}
}

// failWithdrawal moves a pending or processing withdrawal to status and refunds the
// debited amount, both in one storage transaction.
func (s *WalletServiceImpl) failWithdrawal(ctx context.Context, tx *models.Transaction, status models.TransactionStatus, reason, reviewer string) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		updated, err := s.txRepo.UpdateStatus(ctx, tx.ID,
			[]models.TransactionStatus{models.TransactionStatusPending, models.TransactionStatusProcessing},
			models.TransactionUpdate{Status: status, FailureReason: reason, ReviewedBy: reviewer})
		if errors.Is(err, repositories.ErrConditionFailed) {
			return ErrTransactionState.WithMessage("withdrawal is no longer pending or processing")
		}
		if err != nil {
			return err
		}
		out = updated

		_, err = s.apply(ctx, &models.Transaction{
			UserID:    tx.UserID,
			Type:      models.TransactionTypeRefund,
			Amount:    tx.Amount,
			Status:    models.TransactionStatusCompleted,
			Reference: "withdrawal-reversal:" + tx.ID.Hex(),
		}, tx.Amount)
		return err
	})
	if err != nil {
		slog.Error("Failed to reverse withdrawal", "transactionId", tx.ID.Hex(), "error", err)
		return nil, internal(err, "failed to reverse withdrawal")
	}
	slog.Info("Withdrawal reversed", "transactionId", tx.ID.Hex(), "userId", tx.UserID, "status", status, "reason", reason)
	s.publish(ctx, notify.EventWithdrawalFailed, out)
	return out, nil
}

func (s *WalletServiceImpl) currentTransaction(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to reload transaction")
	}
	return tx, nil
}

// Reconcile re-queries the gateway for a deposit or withdrawal and applies the result.
// Users may reconcile their own transactions; admins any.
func (s *WalletServiceImpl) Reconcile(ctx context.Context, actor models.Principal, txID string) (*models.Transaction, error) {
	tx, unlock, err := s.lockTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if tx.UserID != actor.UserID && !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	return s.reconcile(ctx, tx)
}

// reconcile must be called with the transaction's lock held
func (s *WalletServiceImpl) reconcile(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	switch tx.Type {
	case models.TransactionTypeDeposit:
		return s.verifyDeposit(ctx, tx)
	case models.TransactionTypeWithdrawal:
		return s.reconcileWithdrawal(ctx, tx)
	default:
		return tx, nil
	}
}

func (s *WalletServiceImpl) reconcileWithdrawal(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if tx.Status != models.TransactionStatusProcessing && tx.Status != models.TransactionStatusFailed {
		return tx, nil
	}

	transfer, err := s.gateway.VerifyTransfer(ctx, tx.Reference)
	if err != nil {
		if !paystack.IsDefinitive(err) {
			s.metrics.GatewayCall("verify_transfer", "unavailable")
			return tx, ErrGatewayUnavailable.Wrap(err)
		}
		s.metrics.GatewayCall("verify_transfer", "rejected")
		if tx.Status == models.TransactionStatusProcessing && isNotFound(err) {
			return s.resubmitTransfer(ctx, tx)
		}
		slog.Warn("Transfer verification rejected", "transactionId", tx.ID.Hex(), "error", err)
		return tx, nil
	}
	s.metrics.GatewayCall("verify_transfer", "ok")

	if tx.Status == models.TransactionStatusFailed {
		if transfer.Status == paystack.StatusSuccess {
			s.metrics.InvariantViolation(ErrDoubleCredit.Code)
			slog.Error("Refunded withdrawal was paid out by the gateway", "transactionId", tx.ID.Hex(),
				"userId", tx.UserID, "amount", tx.Amount, "transferCode", transfer.TransferCode)
			return tx, ErrDoubleCredit.WithMessage("withdrawal %s was refunded and paid out", tx.ID.Hex())
		}
		return tx, nil
	}
	return s.applyTransferStatus(ctx, tx, transfer)
}

// resubmitTransfer retries a transfer the gateway has no record of. The reference
// stops the gateway from paying twice, so a rejection here never fails the withdrawal.
func (s *WalletServiceImpl) resubmitTransfer(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	transfer, err := s.gateway.InitiateTransfer(ctx, transferRequest(tx))
	if err != nil {
		if paystack.IsDefinitive(err) {
			s.metrics.GatewayCall("transfer", "rejected")
			slog.Warn("Transfer resubmission rejected, leaving withdrawal processing", "transactionId", tx.ID.Hex(), "error", err)
			return tx, nil
		}
		s.metrics.GatewayCall("transfer", "unavailable")
		return tx, ErrGatewayUnavailable.Wrap(err)
	}
	s.metrics.GatewayCall("transfer", "ok")
	slog.Info("Transfer resubmitted", "transactionId", tx.ID.Hex(), "status", transfer.Status)
	return s.applyTransferStatus(ctx, tx, transfer)
}

func isNotFound(err error) bool {
	var apiErr *paystack.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ReconcileAll reconciles processing withdrawals and pending deposits older than the
// stale threshold. Gateway calls are paced by the limiter.
func (s *WalletServiceImpl) ReconcileAll(ctx context.Context, actor models.Principal) (*models.ReconcileReport, error) {
	cutoff := s.nowFn().Add(-s.staleAfter)
	filters := []models.TransactionFilter{
		{Type: models.TransactionTypeWithdrawal, Status: models.TransactionStatusProcessing, CreatedBefore: &cutoff},
		{Type: models.TransactionTypeDeposit, Status: models.TransactionStatusPending, CreatedBefore: &cutoff},
	}

	// collect first: reconciling moves transactions out of the filters being paged
	var ids []primitive.ObjectID
	for _, f := range filters {
		if !actor.HasRole(models.RoleAdmin) {
			f.UserID = actor.UserID
		}
		q := models.PageQuery{Page: 1, Limit: s.batchSize, SortBy: "createdAt", SortOrder: "asc"}
		for {
			txs, total, err := s.txRepo.Find(ctx, f, q)
			if err != nil {
				return nil, internal(err, "failed to list stale transactions")
			}
			for _, tx := range txs {
				ids = append(ids, tx.ID)
			}
			if int64(q.Page*q.Limit) >= total || len(txs) == 0 {
				break
			}
			q.Page++
		}
	}

	report := &models.ReconcileReport{}
	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			return report, err
		}
		s.reconcileOne(ctx, id, report)
	}

	slog.Info("Reconciliation sweep finished", "actor", actor.UserID, "checked", report.Checked,
		"completed", report.Completed, "failed", report.Failed, "unchanged", report.Unchanged, "errors", len(report.Errors))
	return report, nil
}

func (s *WalletServiceImpl) reconcileOne(ctx context.Context, id primitive.ObjectID, report *models.ReconcileReport) {
	unlock := s.locks.Lock(id.Hex())
	defer unlock()

	report.Checked++
	tx, err := s.txRepo.FindByID(ctx, id)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", id.Hex(), err))
		return
	}
	before := tx.Status
	after, err := s.reconcile(ctx, tx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", tx.Reference, err))
		return
	}
	switch {
	case after.Status == before:
		report.Unchanged++
	case after.Status == models.TransactionStatusCompleted:
		report.Completed++
	default:
		report.Failed++
	}
}

// InitiateDeposit records a pending deposit and opens a checkout for it. A rejected
// checkout marks the deposit failed. When the gateway's answer is unknown the deposit
// stays pending for verification, the webhook or reconciliation to settle.
func (s *WalletServiceImpl) InitiateDeposit(ctx context.Context, userID string, req models.DepositRequest) (*models.DepositInitiation, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	wallet, err := s.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if wallet.IsLocked {
		return nil, ErrWalletLocked
	}

	tx := &models.Transaction{
		UserID:    userID,
		Type:      models.TransactionTypeDeposit,
		Amount:    req.Amount,
		Status:    models.TransactionStatusPending,
		Reference: depositRefPrefix + uuid.NewString(),
		CreatedAt: s.nowFn().UTC(),
	}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, internal(err, "failed to record deposit")
	}

	resp, err := s.gateway.InitializeTransaction(ctx, paystack.InitializeRequest{
		Email:     req.Email,
		Amount:    req.Amount,
		Reference: tx.Reference,
		Metadata: map[string]string{
			"userId":      userID,
			"name":        req.Name,
			"phoneNumber": req.PhoneNumber,
		},
	})
	if err != nil {
		if !paystack.IsDefinitive(err) {
			// The gateway may still have recorded the checkout; verification settles it.
			s.metrics.GatewayCall("initialize", "unavailable")
			slog.Warn("Deposit initialization outcome unknown", "transactionId", tx.ID.Hex(), "reference", tx.Reference, "error", err)
			return &models.DepositInitiation{Transaction: tx, Reference: tx.Reference}, ErrGatewayUnavailable.Wrap(err)
		}
		s.metrics.GatewayCall("initialize", "rejected")
		svcErr := ErrGatewayRejected.Wrap(err)
		if _, uerr := s.txRepo.UpdateStatus(ctx, tx.ID, []models.TransactionStatus{models.TransactionStatusPending}, models.TransactionUpdate{
			Status:        models.TransactionStatusFailed,
			FailureReason: err.Error(),
		}); uerr != nil {
			slog.Error("Failed to mark deposit failed", "transactionId", tx.ID.Hex(), "error", uerr)
		}
		return nil, svcErr
	}
	s.metrics.GatewayCall("initialize", "ok")

	updated, err := s.txRepo.UpdateStatus(ctx, tx.ID, []models.TransactionStatus{models.TransactionStatusPending}, models.TransactionUpdate{
		Status:           models.TransactionStatusPending,
		AuthorizationURL: resp.AuthorizationURL,
		GatewayReference: resp.AccessCode,
	})
	if err != nil {
		return nil, internal(err, "failed to store checkout link")
	}
	slog.Info("Deposit initiated", "transactionId", tx.ID.Hex(), "userId", userID, "amount", req.Amount, "reference", tx.Reference)
	return &models.DepositInitiation{
		Transaction:      updated,
		Reference:        tx.Reference,
		AuthorizationURL: resp.AuthorizationURL,
	}, nil
}

// VerifyDeposit confirms a deposit with the gateway. Completed and failed deposits are
// returned as they are, so the call is safe to repeat.
func (s *WalletServiceImpl) VerifyDeposit(ctx context.Context, actor models.Principal, reference string) (*models.Transaction, error) {
	found, err := s.txRepo.FindByReference(ctx, reference)
	if errors.Is(err, repositories.ErrNotFound) || (err == nil && found.Type != models.TransactionTypeDeposit) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, internal(err, "failed to load deposit")
	}
	if found.UserID != actor.UserID && !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}

	tx, unlock, err := s.lockTransaction(ctx, found.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer unlock()
	return s.verifyDeposit(ctx, tx)
}

// verifyDeposit must be called with the transaction's lock held
func (s *WalletServiceImpl) verifyDeposit(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	if tx.Status != models.TransactionStatusPending {
		return tx, nil
	}

	v, err := s.gateway.VerifyTransaction(ctx, tx.Reference)
	if err != nil {
		if !paystack.IsDefinitive(err) {
			s.metrics.GatewayCall("verify_charge", "unavailable")
			return tx, ErrGatewayUnavailable.Wrap(err)
		}
		s.metrics.GatewayCall("verify_charge", "rejected")
		if isNotFound(err) {
			return tx, nil
		}
		return tx, ErrGatewayRejected.Wrap(err)
	}
	s.metrics.GatewayCall("verify_charge", "ok")

	switch v.Status {
	case paystack.StatusSuccess:
		if v.Amount != tx.Amount {
			s.metrics.InvariantViolation(ErrDepositAmountMismatch.Code)
			slog.Error("Gateway reported a different deposit amount", "transactionId", tx.ID.Hex(),
				"expected", tx.Amount, "reported", v.Amount)
			return tx, ErrDepositAmountMismatch.WithMessage("expected %d, gateway reported %d", tx.Amount, v.Amount)
		}
		return s.completeDeposit(ctx, tx)

	case paystack.StatusFailed, paystack.StatusAbandoned:
		failed, err := s.txRepo.UpdateStatus(ctx, tx.ID, []models.TransactionStatus{models.TransactionStatusPending}, models.TransactionUpdate{
			Status:        models.TransactionStatusFailed,
			FailureReason: "charge " + v.Status,
		})
		if errors.Is(err, repositories.ErrConditionFailed) {
			return s.currentTransaction(ctx, tx.ID)
		}
		if err != nil {
			return nil, internal(err, "failed to mark deposit failed")
		}
		slog.Info("Deposit failed", "transactionId", tx.ID.Hex(), "status", v.Status)
		return failed, nil

	default:
		return tx, nil
	}
}

// completeDeposit credits the wallet and completes the pending deposit atomically
func (s *WalletServiceImpl) completeDeposit(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	var out *models.Transaction
	err := s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.walletRepo.EnsureWallet(ctx, tx.UserID); err != nil {
			return err
		}
		wallet, err := s.walletRepo.ApplyDelta(ctx, tx.UserID, tx.Amount)
		if errors.Is(err, repositories.ErrConditionFailed) {
			return s.rejectionReason(ctx, tx.UserID, tx.Amount)
		}
		if err != nil {
			return err
		}

		before, after := wallet.AvailableBalance-tx.Amount, wallet.AvailableBalance
		now := s.nowFn().UTC()
		out, err = s.txRepo.UpdateStatus(ctx, tx.ID, []models.TransactionStatus{models.TransactionStatusPending}, models.TransactionUpdate{
			Status:        models.TransactionStatusCompleted,
			BalanceBefore: &before,
			BalanceAfter:  &after,
			CompletedAt:   &now,
		})
		return err
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		return s.currentTransaction(ctx, tx.ID)
	}
	if err != nil {
		return nil, internal(err, "failed to complete deposit")
	}

	s.metrics.LedgerMovement(string(models.TransactionTypeDeposit), tx.Amount)
	slog.Info("Deposit completed", "transactionId", tx.ID.Hex(), "userId", tx.UserID, "amount", tx.Amount)
	s.publish(ctx, notify.EventDepositCompleted, out)
	return out, nil
}

// webhookPayload is the subset of a gateway callback the wallet acts on
type webhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// HandleWebhook verifies the callback signature and routes the event to the
// deposit or withdrawal reconciliation path
func (s *WalletServiceImpl) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	if !s.gateway.VerifySignature(body, signature) {
		return ErrInvalidSignature
	}
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return ErrValidation.WithMessage("malformed webhook payload")
	}
	if payload.Data.Reference == "" {
		return ErrValidation.WithMessage("webhook payload has no reference")
	}

	slog.Info("Gateway webhook received", "event", payload.Event, "reference", payload.Data.Reference)
	switch payload.Event {
	case "charge.success":
		_, err := s.VerifyDeposit(ctx, models.SystemPrincipal, payload.Data.Reference)
		if errors.Is(err, ErrTransactionNotFound) {
			slog.Warn("Webhook for unknown deposit", "reference", payload.Data.Reference)
			return nil
		}
		return err

	case "transfer.success", "transfer.failed", "transfer.reversed":
		tx, err := s.txRepo.FindByReference(ctx, payload.Data.Reference)
		if errors.Is(err, repositories.ErrNotFound) {
			slog.Warn("Webhook for unknown transfer", "reference", payload.Data.Reference)
			return nil
		}
		if err != nil {
			return internal(err, "failed to load transfer")
		}
		_, err = s.Reconcile(ctx, models.SystemPrincipal, tx.ID.Hex())
		return err

	default:
		return nil
	}
}

// LockWallet blocks every debit and credit on the user's wallet
func (s *WalletServiceImpl) LockWallet(ctx context.Context, actor models.Principal, userID, reason string) (*models.Wallet, error) {
	return s.setLocked(ctx, actor, userID, true, reason)
}

// UnlockWallet lifts a wallet lock
func (s *WalletServiceImpl) UnlockWallet(ctx context.Context, actor models.Principal, userID string) (*models.Wallet, error) {
	return s.setLocked(ctx, actor, userID, false, "")
}

func (s *WalletServiceImpl) setLocked(ctx context.Context, actor models.Principal, userID string, locked bool, reason string) (*models.Wallet, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	if _, err := s.walletRepo.EnsureWallet(ctx, userID); err != nil {
		return nil, internal(err, "failed to load wallet")
	}
	wallet, err := s.walletRepo.SetLocked(ctx, userID, locked, reason)
	if err != nil {
		return nil, internal(err, "failed to update wallet lock")
	}
	slog.Info("Wallet lock changed", "userId", userID, "locked", locked, "reason", reason, "by", actor.UserID)
	return wallet, nil
}

// GetWallet returns any user's wallet
func (s *WalletServiceImpl) GetWallet(ctx context.Context, actor models.Principal, userID string) (*models.Wallet, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}
	wallet, err := s.walletRepo.FindByUserID(ctx, userID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, internal(err, "failed to load wallet")
	}
	return wallet, nil
}

// ListWallets pages through every wallet
func (s *WalletServiceImpl) ListWallets(ctx context.Context, actor models.Principal, filter models.WalletFilter, q models.PageQuery) (*models.Page[*models.Wallet], error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}
	q = q.Normalize()
	wallets, total, err := s.walletRepo.FindAll(ctx, filter, q)
	if err != nil {
		return nil, internal(err, "failed to list wallets")
	}
	page := models.NewPage(wallets, total, q)
	return &page, nil
}

// ListAllTransactions pages through every user's transactions
func (s *WalletServiceImpl) ListAllTransactions(ctx context.Context, actor models.Principal, filter models.TransactionFilter, q models.PageQuery) (*models.Page[*models.Transaction], error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}
	return s.findTransactions(ctx, filter, q)
}

// ListPendingWithdrawals lists withdrawals awaiting approval, oldest first
func (s *WalletServiceImpl) ListPendingWithdrawals(ctx context.Context, actor models.Principal, q models.PageQuery) (*models.Page[*models.Transaction], error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}
	if q.SortOrder == "" {
		q.SortOrder = "asc"
	}
	return s.findTransactions(ctx, models.TransactionFilter{
		Type:   models.TransactionTypeWithdrawal,
		Status: models.TransactionStatusPending,
	}, q)
}

func (s *WalletServiceImpl) publish(ctx context.Context, eventType string, tx *models.Transaction) {
	if s.notifier == nil || tx == nil {
		return
	}
	s.notifier.Publish(ctx, notify.Event{
		Type:       eventType,
		Key:        tx.UserID,
		OccurredAt: s.nowFn().UTC(),
		Data: map[string]interface{}{
			"transactionId": tx.ID.Hex(),
			"reference":     tx.Reference,
			"amount":        tx.Amount,
			"status":        tx.Status,
		},
	})
}
