package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTransactionRollsBackEveryWrite(t *testing.T) {
	s := NewStore()
	wallets := NewWalletRepository(s)
	txs := NewTransactionRepository(s)
	ctx := context.Background()

	_, err := wallets.EnsureWallet(ctx, "u1")
	require.NoError(t, err)
	_, err = wallets.ApplyDelta(ctx, "u1", 1000)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := wallets.ApplyDelta(ctx, "u1", -400); err != nil {
			return err
		}
		if err := txs.Create(ctx, &models.Transaction{UserID: "u1", Type: models.TransactionTypeStake, Amount: 400, Reference: "stake:1"}); err != nil {
			return err
		}
		if _, err := wallets.EnsureWallet(ctx, "u2"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, err := wallets.FindByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), w.AvailableBalance)
	_, err = txs.FindByReference(ctx, "stake:1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = wallets.FindByUserID(ctx, "u2")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestReadsOutsideTransactionWaitForCommit(t *testing.T) {
	s := NewStore()
	wallets := NewWalletRepository(s)
	ctx := context.Background()

	_, err := wallets.EnsureWallet(ctx, "u1")
	require.NoError(t, err)
	_, err = wallets.ApplyDelta(ctx, "u1", 1000)
	require.NoError(t, err)

	debited := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := wallets.ApplyDelta(ctx, "u1", -400); err != nil {
				return err
			}
			close(debited)
			<-release
			return errors.New("rolled back")
		})
	}()
	<-debited

	seen := make(chan int64, 1)
	go func() {
		w, err := wallets.FindByUserID(ctx, "u1")
		if err != nil {
			seen <- -1
			return
		}
		seen <- w.AvailableBalance
	}()
	close(release)

	require.Error(t, <-done)
	assert.Equal(t, int64(1000), <-seen)
}

func TestNestedTransactionJoinsOuter(t *testing.T) {
	s := NewStore()
	wallets := NewWalletRepository(s)
	ctx := context.Background()

	err := s.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := wallets.EnsureWallet(ctx, "u1")
			return err
		}); err != nil {
			return err
		}
		return errors.New("outer failed")
	})
	require.Error(t, err)

	_, err = wallets.FindByUserID(ctx, "u1")
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestApplyDeltaConditions(t *testing.T) {
	s := NewStore()
	wallets := NewWalletRepository(s)
	ctx := context.Background()

	_, err := wallets.ApplyDelta(ctx, "missing", 10)
	assert.ErrorIs(t, err, repositories.ErrConditionFailed)

	_, err = wallets.EnsureWallet(ctx, "u1")
	require.NoError(t, err)
	_, err = wallets.ApplyDelta(ctx, "u1", -1)
	assert.ErrorIs(t, err, repositories.ErrConditionFailed)

	_, err = wallets.SetLocked(ctx, "u1", true, "review")
	require.NoError(t, err)
	_, err = wallets.ApplyDelta(ctx, "u1", 10)
	assert.ErrorIs(t, err, repositories.ErrConditionFailed)
}

func TestTransactionReferenceIsUnique(t *testing.T) {
	txs := NewTransactionRepository(NewStore())
	ctx := context.Background()

	require.NoError(t, txs.Create(ctx, &models.Transaction{UserID: "u1", Type: models.TransactionTypeWin, Amount: 5, Reference: "win:1"}))
	err := txs.Create(ctx, &models.Transaction{UserID: "u2", Type: models.TransactionTypeWin, Amount: 5, Reference: "win:1"})
	assert.ErrorIs(t, err, repositories.ErrDuplicateKey)
}
