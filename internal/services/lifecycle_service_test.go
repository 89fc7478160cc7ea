package services

import (
	"context"
	"errors"
	"fmt"
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

// seedPool funds three players and stakes 1000 and 5000 on the first option and
// 4000 on the second, a pool of 10000
func seedPool(t *testing.T, env *testEnv) (*models.Poll, map[string]*models.Stake) {
	t.Helper()
	poll := env.createPoll(t, "Ada", "Bola")
	stakes := make(map[string]*models.Stake)
	for _, s := range []struct {
		user   string
		option int
		amount int64
	}{
		{"u1", 0, 1000},
		{"u2", 0, 5000},
		{"u3", 1, 4000},
	} {
		env.fund(t, s.user, 10000)
		stakes[s.user] = env.placeStake(t, s.user, poll, s.option, s.amount)
	}
	return poll, stakes
}

func TestResolvePaysWinnersPariMutuel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll, stakes := seedPool(t, env)

	resolved, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.NoError(t, err)

	assert.Equal(t, models.PollStatusResolved, resolved.Status)
	require.NotNil(t, resolved.WinningOptionID)
	assert.Equal(t, poll.Options[0].ID, *resolved.WinningOptionID)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.NotNil(t, resolved.ClosedAt)
	assert.Nil(t, resolved.Settlement)

	assert.Equal(t, int64(10500), env.balance(t, "u1"))
	assert.Equal(t, int64(12500), env.balance(t, "u2"))
	assert.Equal(t, int64(6000), env.balance(t, "u3"))

	won, err := env.stakes.FindByID(ctx, stakes["u1"].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StakeStatusWon, won.Status)
	assert.Equal(t, int64(1667), won.GrossWinnings)
	assert.Equal(t, int64(167), won.PlatformFee)
	assert.Equal(t, int64(1500), won.NetWinnings)
	assert.NotNil(t, won.SettledAt)

	lost, err := env.stakes.FindByID(ctx, stakes["u3"].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StakeStatusLost, lost.Status)

	credit, err := env.transactions.FindByReference(ctx, "win:"+stakes["u2"].ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(7500), credit.Amount)
	assert.Equal(t, int64(833), credit.Fee)

	assert.Equal(t, []string{"poll.closed", "poll.resolved"}, lastEvents(env, "poll.", 2))
}

func TestResolveTwiceDoesNotPayAgain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll, _ := seedPool(t, env)

	_, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.NoError(t, err)
	_, err = env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = env.lifecycle.Cancel(ctx, poll.ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrAlreadyResolved)

	assert.Equal(t, int64(10500), env.balance(t, "u1"))
	assert.Equal(t, int64(12500), env.balance(t, "u2"))
}

func TestResolveRejectsForeignOption(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll, _ := seedPool(t, env)
	other := env.createPoll(t, "Chidi", "Dayo")

	_, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), other.Options[0].ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrInvalidOption)

	stored, err := env.poll.GetPoll(ctx, poll.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusActive, stored.Status)
}

func TestResolveWithNoWinningStakesRetainsPool(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll := env.createPoll(t, "Ada", "Bola", "Chidi")
	env.fund(t, "u1", 2000)
	env.fund(t, "u2", 2000)
	env.placeStake(t, "u1", poll, 1, 1000)
	env.placeStake(t, "u2", poll, 2, 1500)

	resolved, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.NoError(t, err)

	assert.Equal(t, models.PollStatusResolved, resolved.Status)
	assert.Equal(t, int64(1000), env.balance(t, "u1"))
	assert.Equal(t, int64(500), env.balance(t, "u2"))

	page, err := env.stake.ListMyStakes(ctx, player("u1"), models.StakeStatusLost, models.PageQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Docs, 1)
}

func TestResolveWithNoWinningStakesRefundsUnderRefundPolicy(t *testing.T) {
	settings := models.DefaultPlatformSettings()
	settings.NoWinnerPolicy = models.NoWinnerRefund
	env := newTestEnvWithSettings(t, settings)
	ctx := context.Background()
	poll := env.createPoll(t, "Ada", "Bola", "Chidi")
	env.fund(t, "u1", 2000)
	env.fund(t, "u2", 2000)
	env.placeStake(t, "u1", poll, 1, 1000)
	env.placeStake(t, "u2", poll, 2, 1500)

	_, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.NoError(t, err)

	assert.Equal(t, int64(2000), env.balance(t, "u1"))
	assert.Equal(t, int64(2000), env.balance(t, "u2"))
	page, err := env.stake.ListMyStakes(ctx, player("u2"), models.StakeStatusRefunded, models.PageQuery{})
	require.NoError(t, err)
	assert.Len(t, page.Docs, 1)
}

func TestResolvePollWithoutStakes(t *testing.T) {
	env := newTestEnv(t)
	poll := env.createPoll(t, "Ada", "Bola")

	resolved, err := env.lifecycle.Resolve(context.Background(), poll.ID.Hex(), poll.Options[1].ID.Hex(), adminUser.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusResolved, resolved.Status)
}

func TestCancelRefundsEveryStake(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll, stakes := seedPool(t, env)

	cancelled, err := env.lifecycle.Cancel(ctx, poll.ID.Hex(), adminUser.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	for user, st := range stakes {
		assert.Equal(t, int64(10000), env.balance(t, user), user)
		refund, err := env.transactions.FindByReference(ctx, "refund:"+st.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, st.Amount, refund.Amount)
	}

	_, err = env.lifecycle.Cancel(ctx, poll.ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	_, err = env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, int64(10000), env.balance(t, "u2"))
}

func TestInterruptedSettlementResumesWithPinnedTerms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll, _ := seedPool(t, env)

	_, err := env.wallet.LockWallet(ctx, adminUser, "u2", "kyc review")
	require.NoError(t, err)

	_, err = env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrWalletLocked)

	stalled, err := env.poll.GetPoll(ctx, poll.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusClosed, stalled.Status)
	require.NotNil(t, stalled.Settlement)
	assert.Equal(t, models.SettlementResolve, stalled.Settlement.Kind)
	assert.Equal(t, float64(10), stalled.Settlement.PlatformFeePercentage)

	_, err = env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[1].ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrSettlementInProgress)
	_, err = env.lifecycle.Cancel(ctx, poll.ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrSettlementInProgress)
	require.ErrorIs(t, env.lifecycle.Delete(ctx, poll.ID.Hex()), ErrSettlementInProgress)

	// a fee change after the settlement started must not reach the remaining payouts
	changed := models.DefaultPlatformSettings()
	changed.PlatformFeePercentage = 50
	_, err = env.settings.Update(ctx, adminUser, changed)
	require.NoError(t, err)

	_, err = env.wallet.UnlockWallet(ctx, adminUser, "u2")
	require.NoError(t, err)
	resolved, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.NoError(t, err)

	assert.Equal(t, models.PollStatusResolved, resolved.Status)
	assert.Nil(t, resolved.Settlement)
	assert.Equal(t, int64(10500), env.balance(t, "u1"))
	assert.Equal(t, int64(12500), env.balance(t, "u2"))
	assert.Equal(t, int64(6000), env.balance(t, "u3"))
}

func TestResolveDetectsPoolMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll, _ := seedPool(t, env)

	// a pool increment with no stake behind it
	require.NoError(t, env.polls.IncrementPool(ctx, poll.ID, poll.Options[1].ID, 700, testNow))

	_, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
	require.ErrorIs(t, err, ErrPoolMismatch)
	assert.Equal(t, int64(9000), env.balance(t, "u1"))
}

func TestClosePoll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	poll := env.createPoll(t, "Ada", "Bola")

	closed, err := env.lifecycle.Close(ctx, poll.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, models.PollStatusClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)

	_, err = env.lifecycle.Close(ctx, poll.ID.Hex())
	assert.ErrorIs(t, err, ErrPollNotClosable)
	_, err = env.lifecycle.Close(ctx, "not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestCloseExpiredClosesOnlyPollsPastTheirEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	soon, later := testNow.Add(time.Hour), testNow.Add(3*time.Hour)
	expiring, err := env.poll.CreatePoll(ctx, adminUser, models.CreatePollRequest{
		Title: "Head of house", Category: "reality-tv", Options: []string{"Ada", "Bola"}, EndTime: &soon,
	})
	require.NoError(t, err)
	running, err := env.poll.CreatePoll(ctx, adminUser, models.CreatePollRequest{
		Title: "Eviction", Category: "reality-tv", Options: []string{"Ada", "Bola"}, EndTime: &later,
	})
	require.NoError(t, err)
	open := env.createPoll(t, "Chidi", "Dayo")

	env.advance(2 * time.Hour)
	n, err := env.lifecycle.CloseExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	for id, want := range map[string]models.PollStatus{
		expiring.ID.Hex(): models.PollStatusClosed,
		running.ID.Hex():  models.PollStatusActive,
		open.ID.Hex():     models.PollStatusActive,
	} {
		p, err := env.poll.GetPoll(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, p.Status)
	}
}

func TestDeleteOnlyPollsWithoutLiveStakes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	empty := env.createPoll(t, "Ada", "Bola")
	require.NoError(t, env.lifecycle.Delete(ctx, empty.ID.Hex()))
	_, err := env.poll.GetPoll(ctx, empty.ID.Hex())
	assert.ErrorIs(t, err, ErrPollNotFound)

	staked, stakes := seedPool(t, env)
	require.ErrorIs(t, env.lifecycle.Delete(ctx, staked.ID.Hex()), ErrPollHasStakes)

	_, err = env.lifecycle.Cancel(ctx, staked.ID.Hex(), adminUser.UserID)
	require.NoError(t, err)
	require.NoError(t, env.lifecycle.Delete(ctx, staked.ID.Hex()))

	_, err = env.stakes.FindByID(ctx, stakes["u1"].ID)
	assert.Error(t, err)
	assert.Contains(t, env.notifier.types(), "poll.deleted")
}

// interleavingStakeRepo runs afterFindByPoll once, right after the first FindByPoll returns
type interleavingStakeRepo struct {
	repositories.StakeRepository
	once            sync.Once
	afterFindByPoll func()
}

func (r *interleavingStakeRepo) FindByPoll(ctx context.Context, pollID primitive.ObjectID) ([]*models.Stake, error) {
	stakes, err := r.StakeRepository.FindByPoll(ctx, pollID)
	r.once.Do(r.afterFindByPoll)
	return stakes, err
}

func TestDeleteKeepsStakePlacedAfterCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 1000)
	poll := env.createPoll(t, "Ada", "Bola")

	var late *models.Stake
	env.lifecycle.stakeRepo = &interleavingStakeRepo{
		StakeRepository: env.stakes,
		afterFindByPoll: func() { late = env.placeStake(t, "u1", poll, 0, 500) },
	}

	require.ErrorIs(t, env.lifecycle.Delete(ctx, poll.ID.Hex()), ErrPollHasStakes)

	require.NotNil(t, late)
	stored, err := env.poll.GetPoll(ctx, poll.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, int64(500), stored.TotalStakeAmount)
	_, err = env.stakes.FindByID(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), env.balance(t, "u1"))
	assert.NotContains(t, env.notifier.types(), "poll.deleted")
}

func TestStakeAfterDeleteIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, "u1", 1000)
	poll := env.createPoll(t, "Ada", "Bola")
	require.NoError(t, env.lifecycle.Delete(ctx, poll.ID.Hex()))

	_, err := env.stake.PlaceStake(ctx, player("u1"), models.PlaceStakeRequest{
		PollID:           poll.ID.Hex(),
		SelectedOptionID: poll.Options[0].ID.Hex(),
		Amount:           500,
	})
	assert.ErrorIs(t, err, ErrPollNotFound)
	assert.Equal(t, int64(1000), env.balance(t, "u1"))
}

func TestConcurrentResolveAndCancelSettleOnce(t *testing.T) {
	for i := 0; i < 10; i++ {
		env := newTestEnv(t)
		poll, _ := seedPool(t, env)

		var wg sync.WaitGroup
		var resolved, cancelled atomic.Int32
		start := make(chan struct{})
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.lifecycle.Resolve(context.Background(), poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
			if err == nil {
				resolved.Add(1)
				return
			}
			assert.True(t, isSettlementConflict(err), "resolve: %v", err)
		}()
		go func() {
			defer wg.Done()
			<-start
			_, err := env.lifecycle.Cancel(context.Background(), poll.ID.Hex(), adminUser.UserID)
			if err == nil {
				cancelled.Add(1)
				return
			}
			assert.True(t, isSettlementConflict(err), "cancel: %v", err)
		}()
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), resolved.Load()+cancelled.Load())
		want := map[string]int64{"u1": 10000, "u2": 10000, "u3": 10000}
		status := models.PollStatusCancelled
		if resolved.Load() == 1 {
			want = map[string]int64{"u1": 10500, "u2": 12500, "u3": 6000}
			status = models.PollStatusResolved
		}
		for user, balance := range want {
			assert.Equal(t, balance, env.balance(t, user), user)
		}
		stored, err := env.poll.GetPoll(context.Background(), poll.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
	}
}

func isSettlementConflict(err error) bool {
	for _, target := range []error{ErrAlreadyResolved, ErrAlreadyCancelled, ErrSettlementInProgress} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func TestStakesRacingResolveStayConsistent(t *testing.T) {
	const players = 20
	const amount = int64(200)

	env := newTestEnv(t)
	ctx := context.Background()
	poll := env.createPoll(t, "Ada", "Bola")
	for i := 0; i < players; i++ {
		env.fund(t, fmt.Sprintf("p%d", i), 1000)
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < players; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := env.stake.PlaceStake(ctx, player(fmt.Sprintf("p%d", i)), models.PlaceStakeRequest{
				PollID:           poll.ID.Hex(),
				SelectedOptionID: poll.Options[i%2].ID.Hex(),
				Amount:           amount,
			})
			if err != nil {
				assert.ErrorIs(t, err, ErrPollNotActive)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_, err := env.lifecycle.Resolve(ctx, poll.ID.Hex(), poll.Options[0].ID.Hex(), adminUser.UserID)
		assert.NoError(t, err)
	}()
	close(start)
	wg.Wait()

	stored, err := env.poll.GetPoll(ctx, poll.ID.Hex())
	require.NoError(t, err)
	require.Equal(t, models.PollStatusResolved, stored.Status)

	stakes, err := env.stakes.FindByPoll(ctx, poll.ID)
	require.NoError(t, err)
	var total, gross int64
	byUser := make(map[string]*models.Stake, len(stakes))
	for _, st := range stakes {
		assert.NotEqual(t, models.StakeStatusActive, st.Status, "stake %s left active", st.ID.Hex())
		total += st.Amount
		gross += st.GrossWinnings
		byUser[st.UserID] = st
	}
	assert.Equal(t, stored.TotalStakeAmount, total)
	assert.LessOrEqual(t, gross, total)

	for i := 0; i < players; i++ {
		user := fmt.Sprintf("p%d", i)
		want := int64(1000)
		if st, ok := byUser[user]; ok {
			want = 1000 - amount + st.NetWinnings
		}
		assert.Equal(t, want, env.balance(t, user), user)
	}
}

// lastEvents returns the types of the last n published events whose type starts with prefix
func lastEvents(env *testEnv, prefix string, n int) []string {
	var matched []string
	for _, typ := range env.notifier.types() {
		if len(typ) >= len(prefix) && typ[:len(prefix)] == prefix {
			matched = append(matched, typ)
		}
	}
	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	return matched
}
