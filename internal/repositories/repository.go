package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound is returned when no record matches the lookup
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateKey is returned when an insert violates a unique index
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConditionFailed is returned when a conditional update matched no record
	ErrConditionFailed = errors.New("update condition not met")
)

// Transactor runs fn inside a storage transaction. Every repository call made with
// the ctx handed to fn takes part in the transaction; a non-nil error from fn rolls
// it back. Calling WithTransaction with a ctx that is already transactional joins
// the outer transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// WalletRepository defines the interface for wallet data operations
type WalletRepository interface {
	FindByUserID(ctx context.Context, userID string) (*models.Wallet, error)
	// EnsureWallet returns the user's wallet, creating an empty one if needed
	EnsureWallet(ctx context.Context, userID string) (*models.Wallet, error)
	// ApplyDelta adds delta to the available balance of an unlocked wallet and returns
	// the wallet after the update. It fails with ErrConditionFailed when the wallet is
	// locked or the balance would go negative.
	ApplyDelta(ctx context.Context, userID string, delta int64) (*models.Wallet, error)
	SetLocked(ctx context.Context, userID string, locked bool, reason string) (*models.Wallet, error)
	FindAll(ctx context.Context, filter models.WalletFilter, q models.PageQuery) ([]*models.Wallet, int64, error)
	Count(ctx context.Context) (int64, error)
}

// TransactionRepository defines the interface for ledger transaction operations
type TransactionRepository interface {
	// Create inserts tx; ErrDuplicateKey means the reference is already taken
	Create(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error)
	FindByReference(ctx context.Context, reference string) (*models.Transaction, error)
	// UpdateStatus applies update only if the transaction is currently in one of from
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from []models.TransactionStatus, update models.TransactionUpdate) (*models.Transaction, error)
	Find(ctx context.Context, filter models.TransactionFilter, q models.PageQuery) ([]*models.Transaction, int64, error)
	// Summarize groups the matching transactions by type
	Summarize(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionSummary, error)
}

// StakeRepository defines the interface for stake data operations
type StakeRepository interface {
	// Create inserts stake; ErrDuplicateKey means the user already staked on the poll
	Create(ctx context.Context, stake *models.Stake) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Stake, error)
	FindByUserAndPoll(ctx context.Context, userID string, pollID primitive.ObjectID) (*models.Stake, error)
	FindByPoll(ctx context.Context, pollID primitive.ObjectID) ([]*models.Stake, error)
	FindByUser(ctx context.Context, userID string, status models.StakeStatus, q models.PageQuery) ([]*models.Stake, int64, error)
	// UpdateSettlement writes the outcome onto a stake that is still in status from
	UpdateSettlement(ctx context.Context, id primitive.ObjectID, from models.StakeStatus, s models.StakeSettlement) error
	DeleteByPoll(ctx context.Context, pollID primitive.ObjectID) (int64, error)
}

// PollRepository defines the interface for poll data operations
type PollRepository interface {
	Create(ctx context.Context, poll *models.Poll) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Poll, error)
	Find(ctx context.Context, filter models.PollFilter, q models.PageQuery) ([]*models.Poll, int64, error)
	// FindExpired returns active polls whose end time is at or before now
	FindExpired(ctx context.Context, now time.Time) ([]*models.Poll, error)
	// IncrementPool adds one stake of amount to the option's pool. It fails with
	// ErrConditionFailed unless the poll is active and open at now.
	IncrementPool(ctx context.Context, pollID, optionID primitive.ObjectID, amount int64, now time.Time) error
	// UpdateState applies change only if the poll is currently in one of from
	UpdateState(ctx context.Context, pollID primitive.ObjectID, from []models.PollStatus, change models.PollStateChange) (*models.Poll, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	CountByStatus(ctx context.Context) (map[models.PollStatus]int64, error)
}

// PlatformSettingsRepository defines the interface for the platform settings singleton
type PlatformSettingsRepository interface {
	// Get returns the stored settings, storing defaults first if none exist
	Get(ctx context.Context, defaults models.PlatformSettings) (*models.PlatformSettings, error)
	Update(ctx context.Context, settings *models.PlatformSettings) error
}
