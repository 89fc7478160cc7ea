package services

import (
	"context"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
)

// Ledger is the balance-moving half of the wallet service. Stakes and settlements
// only ever touch balances through it.
type Ledger interface {
	// Debit decreases the balance and records a completed transaction. Retrying with the
	// same reference returns the original transaction without moving money again.
	Debit(ctx context.Context, entry LedgerEntry) (*models.Transaction, error)

	// Credit increases the balance; same idempotency rules as Debit
	Credit(ctx context.Context, entry LedgerEntry) (*models.Transaction, error)
}

// WalletService is the single writer of wallet balances
type WalletService interface {
	Ledger

	// GetBalance returns the user's wallet, creating an empty one on first use
	GetBalance(ctx context.Context, userID string) (*models.Wallet, error)

	// ListTransactions pages through the user's own transactions
	ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter, q models.PageQuery) (*models.Page[*models.Transaction], error)

	// CalculateWithdrawalBreakdown previews the fees of a withdrawal against the current balance
	CalculateWithdrawalBreakdown(ctx context.Context, userID string, amount int64) (*models.WithdrawalBreakdown, error)

	// Withdraw debits the requested amount and hands the net payout to the gateway
	Withdraw(ctx context.Context, userID string, req models.WithdrawRequest) (*models.Transaction, error)

	// ApproveWithdrawal submits a pending withdrawal to the gateway
	ApproveWithdrawal(ctx context.Context, actor models.Principal, txID string) (*models.Transaction, error)

	// RejectWithdrawal refunds a pending withdrawal without contacting the gateway
	RejectWithdrawal(ctx context.Context, actor models.Principal, txID, reason string) (*models.Transaction, error)

	// Reconcile re-queries the gateway for one transaction; safe to call repeatedly
	Reconcile(ctx context.Context, actor models.Principal, txID string) (*models.Transaction, error)

	// ReconcileAll reconciles every stale gateway transaction visible to the actor
	ReconcileAll(ctx context.Context, actor models.Principal) (*models.ReconcileReport, error)

	// InitiateDeposit opens a hosted checkout and records a pending deposit
	InitiateDeposit(ctx context.Context, userID string, req models.DepositRequest) (*models.DepositInitiation, error)

	// VerifyDeposit confirms a deposit with the gateway and credits it once
	VerifyDeposit(ctx context.Context, actor models.Principal, reference string) (*models.Transaction, error)

	// HandleWebhook authenticates and applies a gateway callback
	HandleWebhook(ctx context.Context, body []byte, signature string) error

	// Admin operations
	LockWallet(ctx context.Context, actor models.Principal, userID, reason string) (*models.Wallet, error)
	UnlockWallet(ctx context.Context, actor models.Principal, userID string) (*models.Wallet, error)
	GetWallet(ctx context.Context, actor models.Principal, userID string) (*models.Wallet, error)
	ListWallets(ctx context.Context, actor models.Principal, filter models.WalletFilter, q models.PageQuery) (*models.Page[*models.Wallet], error)
	ListAllTransactions(ctx context.Context, actor models.Principal, filter models.TransactionFilter, q models.PageQuery) (*models.Page[*models.Transaction], error)
	ListPendingWithdrawals(ctx context.Context, actor models.Principal, q models.PageQuery) (*models.Page[*models.Transaction], error)
}

// StakeService places stakes and answers pool queries
type StakeService interface {
	PlaceStake(ctx context.Context, actor models.Principal, req models.PlaceStakeRequest) (*models.Stake, error)

	// GetPoolComposition aggregates the poll's non-refunded stakes
	GetPoolComposition(ctx context.Context, pollID string) (*models.PoolComposition, error)

	ListMyStakes(ctx context.Context, actor models.Principal, status models.StakeStatus, q models.PageQuery) (*models.Page[*models.Stake], error)

	// CalculateWinnings projects the payout of a stake not yet placed
	CalculateWinnings(ctx context.Context, pollID, optionID string, amount int64) (*models.WinningsProjection, error)
}

// PollService creates polls and serves the public catalogue
type PollService interface {
	CreatePoll(ctx context.Context, actor models.Principal, req models.CreatePollRequest) (*models.Poll, error)
	GetPoll(ctx context.Context, pollID string) (*models.Poll, error)
	ListPolls(ctx context.Context, filter models.PollFilter, q models.PageQuery) (*models.Page[*models.Poll], error)
	GetPollStats(ctx context.Context, pollID string) (*models.PollStats, error)
}

// LifecycleService owns poll state transitions and settlement
type LifecycleService interface {
	// Close stops an active poll from accepting stakes
	Close(ctx context.Context, pollID string) (*models.Poll, error)

	// Resolve closes the poll if needed, pays out the winners and marks every stake won or lost
	Resolve(ctx context.Context, pollID, winningOptionID, actorID string) (*models.Poll, error)

	// Cancel refunds every stake in full
	Cancel(ctx context.Context, pollID, actorID string) (*models.Poll, error)

	// Delete removes a poll whose stakes are all refunded
	Delete(ctx context.Context, pollID string) error

	// CloseExpired closes active polls past their end time and returns how many were closed
	CloseExpired(ctx context.Context) (int, error)
}

// AdminService gates lifecycle operations by role and serves admin reports
type AdminService interface {
	ClosePoll(ctx context.Context, actor models.Principal, pollID string) (*models.Poll, error)
	ResolvePoll(ctx context.Context, actor models.Principal, pollID, winningOptionID string) (*models.Poll, error)
	CancelPoll(ctx context.Context, actor models.Principal, pollID string) (*models.Poll, error)
	DeletePoll(ctx context.Context, actor models.Principal, pollID string) error
	GetDashboardStats(ctx context.Context, actor models.Principal) (*models.DashboardStats, error)
}

// PlatformSettingsService serves the hot-reloaded platform settings
type PlatformSettingsService interface {
	// Current returns the cached settings, refreshing them once they are older than the refresh interval
	Current(ctx context.Context) (*models.PlatformSettings, error)
	Limits(ctx context.Context) (*models.PlatformLimits, error)
	Update(ctx context.Context, actor models.Principal, settings models.PlatformSettings) (*models.PlatformSettings, error)
	// Watch refreshes the cache every interval until ctx is done
	Watch(ctx context.Context, interval time.Duration)
}
