package services

import (
	"sort"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payout is the computed settlement of one winning stake
type Payout struct {
	StakeID       primitive.ObjectID `json:"stakeId"`
	UserID        string             `json:"userId"`
	Amount        int64              `json:"amount"`
	GrossWinnings int64              `json:"grossWinnings"`
	PlatformFee   int64              `json:"platformFee"`
	NetWinnings   int64              `json:"netWinnings"`
}

// PayoutPlan is the full result of a pari-mutuel settlement
type PayoutPlan struct {
	WinningOptionID primitive.ObjectID `json:"winningOptionId"`
	WinningTotal    int64              `json:"winningTotal"`
	TotalPool       int64              `json:"totalPool"`
	Payouts         []Payout           `json:"payouts"`
	TotalGross      int64              `json:"totalGross"`
	TotalFees       int64              `json:"totalFees"`
	TotalNet        int64              `json:"totalNet"`
	// Undistributed is the part of the pool no winner receives: rounding dust,
	// or the whole pool when nobody picked the winning option.
	Undistributed int64 `json:"undistributed"`
}

// Refund returns one stake in full
type Refund struct {
	StakeID primitive.ObjectID `json:"stakeId"`
	UserID  string             `json:"userId"`
	Amount  int64              `json:"amount"`
}

var (
	hundred = decimal.NewFromInt(100)
	two     = decimal.NewFromInt(2)
)

// ComputePayouts splits totalPool among the stakes on winningOptionID in proportion
// to their amounts. Gross winnings are rounded half-up to whole minor units; when
// rounding up would hand out more than the pool, the rounded-up shares closest to
// one half give back a unit each (ties broken by stake id) so the sum of gross
// winnings never exceeds totalPool. The platform fee is taken from each gross share.
//
// When nobody staked on the winning option the plan has no payouts and the whole
// pool is undistributed; the caller applies the no-winner policy.
func ComputePayouts(stakes []*models.Stake, winningOptionID primitive.ObjectID, totalPool int64, platformFeePercentage float64) (*PayoutPlan, error) {
	if platformFeePercentage < 0 || platformFeePercentage > 100 {
		return nil, ErrValidation.WithMessage("platform fee percentage must be between 0 and 100")
	}
	if totalPool < 0 {
		return nil, ErrPoolMismatch.WithMessage("total pool is negative")
	}

	plan := &PayoutPlan{WinningOptionID: winningOptionID, TotalPool: totalPool}

	var winners []*models.Stake
	for _, st := range stakes {
		if st.Amount <= 0 {
			return nil, ErrInvalidAmount.WithMessage("stake %s has non-positive amount %d", st.ID.Hex(), st.Amount)
		}
		if st.SelectedOptionID == winningOptionID {
			winners = append(winners, st)
			plan.WinningTotal += st.Amount
		}
	}

	if plan.WinningTotal == 0 {
		plan.Payouts = []Payout{}
		plan.Undistributed = totalPool
		return plan, nil
	}
	if plan.WinningTotal > totalPool {
		return nil, ErrPoolMismatch.WithMessage("winning stakes %d exceed total pool %d", plan.WinningTotal, totalPool)
	}

	pool := decimal.NewFromInt(totalPool)
	winningTotal := decimal.NewFromInt(plan.WinningTotal)

	type share struct {
		gross     int64
		remainder decimal.Decimal
		roundedUp bool
	}
	shares := make([]share, len(winners))
	var grossSum int64
	for i, st := range winners {
		q, r := decimal.NewFromInt(st.Amount).Mul(pool).QuoRem(winningTotal, 0)
		sh := share{gross: q.IntPart(), remainder: r}
		if r.Mul(two).GreaterThanOrEqual(winningTotal) {
			sh.gross++
			sh.roundedUp = true
		}
		shares[i] = sh
		grossSum += sh.gross
	}

	if excess := grossSum - totalPool; excess > 0 {
		var candidates []int
		for i := range shares {
			if shares[i].roundedUp {
				candidates = append(candidates, i)
			}
		}
		sort.SliceStable(candidates, func(a, b int) bool {
			ra, rb := shares[candidates[a]].remainder, shares[candidates[b]].remainder
			if c := ra.Cmp(rb); c != 0 {
				return c < 0
			}
			return winners[candidates[a]].ID.Hex() < winners[candidates[b]].ID.Hex()
		})
		for _, i := range candidates {
			if excess == 0 {
				break
			}
			shares[i].gross--
			excess--
		}
	}

	plan.Payouts = make([]Payout, len(winners))
	for i, st := range winners {
		gross := shares[i].gross
		fee := percentOf(gross, platformFeePercentage)
		plan.Payouts[i] = Payout{
			StakeID:       st.ID,
			UserID:        st.UserID,
			Amount:        st.Amount,
			GrossWinnings: gross,
			PlatformFee:   fee,
			NetWinnings:   gross - fee,
		}
		plan.TotalGross += gross
		plan.TotalFees += fee
		plan.TotalNet += gross - fee
	}
	plan.Undistributed = totalPool - plan.TotalGross

	if plan.TotalNet+plan.TotalFees > totalPool || plan.Undistributed < 0 {
		return nil, ErrPayoutExceedsPool.WithMessage("payouts %d plus fees %d exceed pool %d", plan.TotalNet, plan.TotalFees, totalPool)
	}
	return plan, nil
}

// ComputeRefunds returns every stake's original amount, with no fee
func ComputeRefunds(stakes []*models.Stake) []Refund {
	refunds := make([]Refund, 0, len(stakes))
	for _, st := range stakes {
		refunds = append(refunds, Refund{StakeID: st.ID, UserID: st.UserID, Amount: st.Amount})
	}
	return refunds
}

// ProjectWinnings applies the settlement formula to a hypothetical stake of amount
// on an option currently holding optionTotal out of totalPool.
func ProjectWinnings(optionTotal, totalPool, amount int64, platformFeePercentage float64) (sharePercentage string, gross, fee, net int64) {
	winningTotal := optionTotal + amount
	pool := totalPool + amount
	if amount <= 0 || winningTotal <= 0 {
		return "0.00", 0, 0, 0
	}

	stake := decimal.NewFromInt(amount)
	wt := decimal.NewFromInt(winningTotal)
	sharePercentage = stake.Mul(hundred).Div(wt).StringFixed(2)
	gross = roundHalfUpDiv(stake.Mul(decimal.NewFromInt(pool)), wt)
	fee = percentOf(gross, platformFeePercentage)
	return sharePercentage, gross, fee, gross - fee
}

// percentOf returns round-half-up(amount * pct / 100)
func percentOf(amount int64, pct float64) int64 {
	if amount == 0 || pct == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(pct)).Div(hundred).Round(0).IntPart()
}

// roundHalfUpDiv divides two non-negative integers, rounding half up
func roundHalfUpDiv(num, den decimal.Decimal) int64 {
	q, r := num.QuoRem(den, 0)
	if r.Mul(two).GreaterThanOrEqual(den) {
		return q.IntPart() + 1
	}
	return q.IntPart()
}

// ComputeWithdrawalBreakdown splits a requested withdrawal into fees and payout.
// The requested amount is the total debit; fees come out of the payout.
func ComputeWithdrawalBreakdown(amount, availableBalance int64, settings *models.PlatformSettings) models.WithdrawalBreakdown {
	platformFee := percentOf(amount, settings.WithdrawalFeePercentage)
	transferFee := settings.WithdrawalTransferFee
	net := amount - platformFee - transferFee
	return models.WithdrawalBreakdown{
		Amount:           amount,
		PlatformFee:      platformFee,
		TransferFee:      transferFee,
		NetAmount:        net,
		TotalDebit:       amount,
		AvailableBalance: availableBalance,
		CanWithdraw:      amount > 0 && amount <= availableBalance && net > 0,
	}
}
