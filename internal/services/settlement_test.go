package services

import (
	"errors"
	"testing"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func stakeOn(option primitive.ObjectID, user string, amount int64) *models.Stake {
	return &models.Stake{ID: primitive.NewObjectID(), UserID: user, SelectedOptionID: option, Amount: amount, Status: models.StakeStatusActive}
}

func TestComputePayoutsProportionalShare(t *testing.T) {
	a, b, c := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	stakes := []*models.Stake{
		stakeOn(a, "u1", 1000),
		stakeOn(a, "u2", 5000),
		stakeOn(b, "u3", 3000),
		stakeOn(c, "u4", 1000),
	}

	plan, err := ComputePayouts(stakes, a, 10000, 10)
	require.NoError(t, err)

	assert.Equal(t, int64(6000), plan.WinningTotal)
	require.Len(t, plan.Payouts, 2)

	first := plan.Payouts[0]
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, int64(1667), first.GrossWinnings)
	assert.Equal(t, int64(167), first.PlatformFee)
	assert.Equal(t, int64(1500), first.NetWinnings)

	second := plan.Payouts[1]
	assert.Equal(t, int64(8333), second.GrossWinnings)
	assert.Equal(t, int64(833), second.PlatformFee)
	assert.Equal(t, int64(7500), second.NetWinnings)

	assert.Equal(t, int64(10000), plan.TotalGross)
	assert.Equal(t, plan.TotalGross, plan.TotalNet+plan.TotalFees)
	assert.Zero(t, plan.Undistributed)
}

func TestComputePayoutsSingleWinnerTakesPool(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	stakes := []*models.Stake{stakeOn(a, "u1", 500), stakeOn(b, "u2", 1500)}

	plan, err := ComputePayouts(stakes, a, 2000, 0)
	require.NoError(t, err)
	require.Len(t, plan.Payouts, 1)
	assert.Equal(t, int64(2000), plan.Payouts[0].GrossWinnings)
	assert.Equal(t, int64(2000), plan.Payouts[0].NetWinnings)
	assert.Zero(t, plan.Payouts[0].PlatformFee)
}

func TestComputePayoutsNoWinners(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	stakes := []*models.Stake{stakeOn(b, "u1", 400), stakeOn(b, "u2", 600)}

	plan, err := ComputePayouts(stakes, a, 1000, 10)
	require.NoError(t, err)
	assert.Empty(t, plan.Payouts)
	assert.Zero(t, plan.WinningTotal)
	assert.Equal(t, int64(1000), plan.Undistributed)
}

func TestComputePayoutsNeverExceedsPool(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	// three equal winners over a pool of 11: each exact share is 3.67, so naive
	// half-up rounding would pay out 12
	stakes := []*models.Stake{
		stakeOn(a, "u1", 1),
		stakeOn(a, "u2", 1),
		stakeOn(a, "u3", 1),
		stakeOn(b, "u4", 8),
	}

	plan, err := ComputePayouts(stakes, a, 11, 0)
	require.NoError(t, err)

	var sum int64
	for _, p := range plan.Payouts {
		sum += p.GrossWinnings
		assert.Contains(t, []int64{3, 4}, p.GrossWinnings)
	}
	assert.Equal(t, int64(11), sum)
	assert.Zero(t, plan.Undistributed)
}

func TestComputePayoutsCorrectionPrefersSmallestRemainder(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	// shares of 1.4, 2.8, 2.8 round to 1, 3, 3 and already fit the pool
	stakes := []*models.Stake{stakeOn(a, "u1", 1), stakeOn(a, "u2", 2), stakeOn(a, "u3", 2), stakeOn(b, "u4", 2)}
	plan, err := ComputePayouts(stakes, a, 7, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), plan.Payouts[0].GrossWinnings)
	assert.Equal(t, int64(3), plan.Payouts[1].GrossWinnings)
	assert.Equal(t, int64(3), plan.Payouts[2].GrossWinnings)

	// pool 9 over 1:1 winners: 4.5 each -> both round up to 5 and one must give back
	stakes = []*models.Stake{stakeOn(a, "u1", 1), stakeOn(a, "u2", 1), stakeOn(b, "u3", 7)}
	plan, err = ComputePayouts(stakes, a, 9, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(9), plan.TotalGross)
	lowerID := stakes[0].ID
	if stakes[1].ID.Hex() < lowerID.Hex() {
		lowerID = stakes[1].ID
	}
	for _, p := range plan.Payouts {
		if p.StakeID == lowerID {
			assert.Equal(t, int64(4), p.GrossWinnings)
		} else {
			assert.Equal(t, int64(5), p.GrossWinnings)
		}
	}
}

func TestComputePayoutsRejectsBadInput(t *testing.T) {
	a := primitive.NewObjectID()

	_, err := ComputePayouts([]*models.Stake{stakeOn(a, "u1", 100)}, a, 100, 120)
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ComputePayouts([]*models.Stake{stakeOn(a, "u1", 0)}, a, 100, 10)
	assert.True(t, errors.Is(err, ErrInvalidAmount))

	_, err = ComputePayouts([]*models.Stake{stakeOn(a, "u1", 500)}, a, 100, 10)
	assert.True(t, errors.Is(err, ErrPoolMismatch))
}

func TestComputeRefunds(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	stakes := []*models.Stake{stakeOn(a, "u1", 250), stakeOn(b, "u2", 750)}

	refunds := ComputeRefunds(stakes)
	require.Len(t, refunds, 2)
	assert.Equal(t, Refund{StakeID: stakes[0].ID, UserID: "u1", Amount: 250}, refunds[0])
	assert.Equal(t, Refund{StakeID: stakes[1].ID, UserID: "u2", Amount: 750}, refunds[1])
	assert.Empty(t, ComputeRefunds(nil))
}

func TestProjectWinnings(t *testing.T) {
	// option holds 5000 of a 9000 pool; a new 1000 stake makes it 6000 of 10000
	share, gross, fee, net := ProjectWinnings(5000, 9000, 1000, 10)
	assert.Equal(t, "16.67", share)
	assert.Equal(t, int64(1667), gross)
	assert.Equal(t, int64(167), fee)
	assert.Equal(t, int64(1500), net)

	share, gross, _, _ = ProjectWinnings(0, 0, 1000, 10)
	assert.Equal(t, "100.00", share)
	assert.Equal(t, int64(1000), gross)

	share, gross, fee, net = ProjectWinnings(100, 100, 0, 10)
	assert.Equal(t, "0.00", share)
	assert.Zero(t, gross+fee+net)
}

func TestComputeWithdrawalBreakdown(t *testing.T) {
	settings := models.DefaultPlatformSettings()

	b := ComputeWithdrawalBreakdown(10000, 20000, &settings)
	assert.Equal(t, int64(150), b.PlatformFee)
	assert.Equal(t, int64(50), b.TransferFee)
	assert.Equal(t, int64(9800), b.NetAmount)
	assert.Equal(t, int64(10000), b.TotalDebit)
	assert.True(t, b.CanWithdraw)

	b = ComputeWithdrawalBreakdown(10000, 9999, &settings)
	assert.False(t, b.CanWithdraw)

	b = ComputeWithdrawalBreakdown(40, 1000, &settings)
	assert.LessOrEqual(t, b.NetAmount, int64(0))
	assert.False(t, b.CanWithdraw)
}
