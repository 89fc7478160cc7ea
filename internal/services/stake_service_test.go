package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func stakeRequest(poll *models.Poll, option int, amount int64) models.PlaceStakeRequest {
	return models.PlaceStakeRequest{
		PollID:           poll.ID.Hex(),
		SelectedOptionID: poll.Options[option].ID.Hex(),
		Amount:           amount,
	}
}

func TestPlaceStakeDebitsWalletAndGrowsPool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 5000)
	poll := env.createPoll(t, "Ada", "Bola")

	stake := env.placeStake(t, "u1", poll, 0, 1200)

	assert.Equal(t, models.StakeStatusActive, stake.Status)
	assert.Equal(t, int64(3800), env.balance(t, "u1"))

	tx, err := env.transactions.FindByReference(ctx, "stake:"+stake.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, stake.TransactionID, tx.ID)
	assert.Equal(t, models.TransactionTypeStake, tx.Type)
	assert.Equal(t, int64(5000), tx.BalanceBefore)
	assert.Equal(t, int64(3800), tx.BalanceAfter)

	stored, err := env.poll.GetPoll(ctx, poll.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1200), stored.TotalStakeAmount)
	assert.Equal(t, int64(1), stored.TotalParticipants)
	assert.Equal(t, int64(1200), stored.Options[0].TotalAmount)
	assert.Equal(t, int64(1), stored.Options[0].StakeCount)
	assert.Equal(t, int64(0), stored.Options[1].TotalAmount)
	assert.Contains(t, env.notifier.types(), "stake.placed")
}

func TestSecondStakeOnSamePollIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 5000)
	poll := env.createPoll(t, "Ada", "Bola")
	env.placeStake(t, "u1", poll, 0, 1000)

	_, err := env.stake.PlaceStake(ctx, player("u1"), stakeRequest(poll, 1, 1000))

	require.ErrorIs(t, err, ErrDuplicateStake)
	assert.Equal(t, int64(4000), env.balance(t, "u1"))
	stored, err := env.poll.GetPoll(ctx, poll.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stored.TotalStakeAmount)
}

func TestConcurrentStakesBySameUserPlaceOnlyOne(t *testing.T) {
	env := newTestEnv(t)
	env.fund(t, "u1", 50000)
	poll := env.createPoll(t, "Ada", "Bola")

	var wg sync.WaitGroup
	var placed, duplicates atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.stake.PlaceStake(context.Background(), player("u1"), stakeRequest(poll, i%2, 1000))
			switch {
			case err == nil:
				placed.Add(1)
			case assert.ErrorIs(t, err, ErrDuplicateStake):
				duplicates.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), placed.Load())
	assert.Equal(t, int32(7), duplicates.Load())
	assert.Equal(t, int64(49000), env.balance(t, "u1"))
}

func TestPlaceStakeValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 5000)
	poll := env.createPoll(t, "Ada", "Bola")

	tests := []struct {
		name string
		req  models.PlaceStakeRequest
		want error
	}{
		{"below minimum", stakeRequest(poll, 0, 99), ErrStakeOutOfRange},
		{"above maximum", stakeRequest(poll, 0, 1_000_001), ErrStakeOutOfRange},
		{"zero amount", stakeRequest(poll, 0, 0), ErrInvalidAmount},
		{"more than balance", stakeRequest(poll, 0, 5001), ErrInsufficientBalance},
		{"bad poll id", models.PlaceStakeRequest{PollID: "nope", SelectedOptionID: poll.Options[0].ID.Hex(), Amount: 500}, ErrInvalidID},
		{"unknown poll", models.PlaceStakeRequest{PollID: primitive.NewObjectID().Hex(), SelectedOptionID: poll.Options[0].ID.Hex(), Amount: 500}, ErrPollNotFound},
		{"foreign option", models.PlaceStakeRequest{PollID: poll.ID.Hex(), SelectedOptionID: primitive.NewObjectID().Hex(), Amount: 500}, ErrInvalidOption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.stake.PlaceStake(ctx, player("u1"), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Equal(t, int64(5000), env.balance(t, "u1"))
	_, err := env.stakes.FindByUserAndPoll(ctx, "u1", poll.ID)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestPlaceStakeOnClosedOrExpiredPoll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 5000)

	closed := env.createPoll(t, "Ada", "Bola")
	_, err := env.lifecycle.Close(ctx, closed.ID.Hex())
	require.NoError(t, err)
	_, err = env.stake.PlaceStake(ctx, player("u1"), stakeRequest(closed, 0, 500))
	assert.ErrorIs(t, err, ErrPollNotActive)

	end := testNow.Add(time.Hour)
	expiring, err := env.poll.CreatePoll(ctx, adminUser, models.CreatePollRequest{
		Title: "Eviction night", Category: "reality-tv", Options: []string{"Ada", "Bola"}, EndTime: &end,
	})
	require.NoError(t, err)
	env.advance(2 * time.Hour)
	_, err = env.stake.PlaceStake(ctx, player("u1"), stakeRequest(expiring, 0, 500))
	assert.ErrorIs(t, err, ErrPollNotActive)

	assert.Equal(t, int64(5000), env.balance(t, "u1"))
}

func TestPlaceStakeWhenStakingDisabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 5000)
	poll := env.createPoll(t, "Ada", "Bola")

	settings := models.DefaultPlatformSettings()
	settings.StakingEnabled = false
	_, err := env.settings.Update(ctx, adminUser, settings)
	require.NoError(t, err)

	_, err = env.stake.PlaceStake(ctx, player("u1"), stakeRequest(poll, 0, 500))
	assert.ErrorIs(t, err, ErrStakingDisabled)
}

func TestGetPoolCompositionListsEveryOption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll := env.createPoll(t, "Ada", "Bola", "Chidi")
	for user, option := range map[string]int{"u1": 0, "u2": 0, "u3": 1} {
		env.fund(t, user, 5000)
		env.placeStake(t, user, poll, option, 1000)
	}

	comp, err := env.stake.GetPoolComposition(ctx, poll.ID.Hex())
	require.NoError(t, err)

	assert.Equal(t, int64(3000), comp.TotalPool)
	assert.Equal(t, int64(3), comp.ParticipantCount)
	assert.Equal(t, map[string]int64{
		poll.Options[0].ID.Hex(): 2000,
		poll.Options[1].ID.Hex(): 1000,
		poll.Options[2].ID.Hex(): 0,
	}, comp.PerOptionTotal)

	_, err = env.lifecycle.Cancel(ctx, poll.ID.Hex(), adminUser.UserID)
	require.NoError(t, err)
	comp, err = env.stake.GetPoolComposition(ctx, poll.ID.Hex())
	require.NoError(t, err)
	assert.Zero(t, comp.TotalPool)
	assert.Zero(t, comp.ParticipantCount)
}

func TestListMyStakes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 5000)
	env.fund(t, "u2", 5000)
	first := env.createPoll(t, "Ada", "Bola")
	second := env.createPoll(t, "Chidi", "Dayo")
	env.placeStake(t, "u1", first, 0, 500)
	env.placeStake(t, "u1", second, 1, 700)
	env.placeStake(t, "u2", first, 1, 900)

	page, err := env.stake.ListMyStakes(ctx, player("u1"), "", models.PageQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.TotalDocs)
	for _, st := range page.Docs {
		assert.Equal(t, "u1", st.UserID)
	}

	page, err = env.stake.ListMyStakes(ctx, player("u1"), models.StakeStatusWon, models.PageQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Docs)

	_, err = env.stake.ListMyStakes(ctx, player("u1"), "pending", models.PageQuery{})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCalculateWinningsProjectsAgainstCurrentPool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll := env.createPoll(t, "Ada", "Bola")
	env.fund(t, "u1", 10000)
	env.fund(t, "u2", 10000)
	env.placeStake(t, "u1", poll, 0, 5000)
	env.placeStake(t, "u2", poll, 1, 4000)

	p, err := env.stake.CalculateWinnings(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), 1000)
	require.NoError(t, err)

	assert.Equal(t, "16.67", p.UserSharePercentage)
	assert.Equal(t, int64(1667), p.GrossWinnings)
	assert.Equal(t, int64(167), p.PlatformFee)
	assert.Equal(t, int64(1500), p.NetWinnings)

	_, err = env.stake.CalculateWinnings(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.stake.CalculateWinnings(ctx, poll.ID.Hex(), "zzz", 1000)
	assert.ErrorIs(t, err, ErrInvalidOption)
}
