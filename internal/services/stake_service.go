package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/metrics"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/ArowuTest/pollstake-backend/pkg/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StakeServiceImpl implements StakeService
type StakeServiceImpl struct {
	transactor repositories.Transactor
	stakeRepo  repositories.StakeRepository
	pollRepo   repositories.PollRepository
	ledger     Ledger
	settings   PlatformSettingsService
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	locks      *keyedMutex
	nowFn      func() time.Time
}

// NewStakeService creates a new StakeService
func NewStakeService(
	transactor repositories.Transactor,
	stakeRepo repositories.StakeRepository,
	pollRepo repositories.PollRepository,
	ledger Ledger,
	settings PlatformSettingsService,
	notifier notify.Notifier,
	m *metrics.Metrics,
) *StakeServiceImpl {
	return &StakeServiceImpl{
		transactor: transactor,
		stakeRepo:  stakeRepo,
		pollRepo:   pollRepo,
		ledger:     ledger,
		settings:   settings,
		notifier:   notifier,
		metrics:    m,
		locks:      newKeyedMutex(),
		nowFn:      time.Now,
	}
}

// PlaceStake debits the stake amount, records the stake and grows the option's pool
// in one storage transaction. Placements by the same user on the same poll are
// serialized; the unique (user, poll) index backs that up across instances.
func (s *StakeServiceImpl) PlaceStake(ctx context.Context, actor models.Principal, req models.PlaceStakeRequest) (*models.Stake, error) {
	stake, err := s.placeStake(ctx, actor, req)
	outcome := "ok"
	if err != nil {
		outcome = ErrInternal.Code
		if svcErr, ok := AsError(err); ok {
			outcome = svcErr.Code
		}
	}
	s.metrics.StakePlaced(outcome)
	return stake, err
}

func (s *StakeServiceImpl) placeStake(ctx context.Context, actor models.Principal, req models.PlaceStakeRequest) (*models.Stake, error) {
	pollID, err := primitive.ObjectIDFromHex(req.PollID)
	if err != nil {
		return nil, ErrInvalidID.WithMessage("invalid poll id")
	}
	optionID, err := primitive.ObjectIDFromHex(req.SelectedOptionID)
	if err != nil {
		return nil, ErrInvalidOption
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.StakingEnabled {
		return nil, ErrStakingDisabled
	}

	poll, err := s.pollRepo.FindByID(ctx, pollID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPollNotFound
	}
	if err != nil {
		return nil, internal(err, "failed to load poll")
	}
	now := s.nowFn()
	if !poll.AcceptsStakes(now) {
		return nil, ErrPollNotActive
	}
	if _, ok := poll.Option(optionID); !ok {
		return nil, ErrInvalidOption
	}

	unlock := s.locks.Lock(actor.UserID + ":" + pollID.Hex())
	defer unlock()

	stake := &models.Stake{
		ID:               primitive.NewObjectID(),
		PollID:           pollID,
		UserID:           actor.UserID,
		SelectedOptionID: optionID,
		Amount:           req.Amount,
		Status:           models.StakeStatusActive,
		CreatedAt:        now.UTC(),
	}

	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.stakeRepo.FindByUserAndPoll(ctx, actor.UserID, pollID)
		if err == nil {
			return ErrDuplicateStake
		}
		if !errors.Is(err, repositories.ErrNotFound) {
			return err
		}
		if req.Amount < settings.MinStakeAmount || req.Amount > settings.MaxStakeAmount {
			return ErrStakeOutOfRange.WithMessage("stake must be between %d and %d", settings.MinStakeAmount, settings.MaxStakeAmount)
		}

		tx, err := s.ledger.Debit(ctx, LedgerEntry{
			UserID:    actor.UserID,
			Amount:    req.Amount,
			Type:      models.TransactionTypeStake,
			Reference: "stake:" + stake.ID.Hex(),
			PollID:    &pollID,
			StakeID:   &stake.ID,
		})
		if err != nil {
			return err
		}
		stake.TransactionID = tx.ID

		if err := s.stakeRepo.Create(ctx, stake); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return ErrDuplicateStake
			}
			return err
		}
		err = s.pollRepo.IncrementPool(ctx, pollID, optionID, req.Amount, now)
		if errors.Is(err, repositories.ErrConditionFailed) {
			return ErrPollNotActive
		}
		return err
	})
	if err != nil {
		return nil, internal(err, "failed to place stake")
	}

	slog.Info("Stake placed", "stakeId", stake.ID.Hex(), "pollId", pollID.Hex(), "userId", actor.UserID,
		"optionId", optionID.Hex(), "amount", req.Amount)
	if s.notifier != nil {
		s.notifier.Publish(ctx, notify.Event{
			Type:       notify.EventStakePlaced,
			Key:        pollID.Hex(),
			OccurredAt: now.UTC(),
			Data: map[string]interface{}{
				"stakeId":  stake.ID.Hex(),
				"userId":   actor.UserID,
				"optionId": optionID.Hex(),
				"amount":   req.Amount,
			},
		})
	}
	return stake, nil
}

// GetPoolComposition sums the poll's stakes that have not been refunded
func (s *StakeServiceImpl) GetPoolComposition(ctx context.Context, pollID string) (*models.PoolComposition, error) {
	poll, err := findPoll(ctx, s.pollRepo, pollID)
	if err != nil {
		return nil, err
	}
	stakes, err := s.stakeRepo.FindByPoll(ctx, poll.ID)
	if err != nil {
		return nil, internal(err, "failed to load stakes")
	}

	comp := &models.PoolComposition{
		PollID:         poll.ID,
		PerOptionTotal: make(map[string]int64, len(poll.Options)),
	}
	for _, opt := range poll.Options {
		comp.PerOptionTotal[opt.ID.Hex()] = 0
	}
	for _, st := range stakes {
		if st.Status == models.StakeStatusRefunded {
			continue
		}
		comp.PerOptionTotal[st.SelectedOptionID.Hex()] += st.Amount
		comp.TotalPool += st.Amount
		comp.ParticipantCount++
	}
	return comp, nil
}

// ListMyStakes pages through the caller's stakes, newest first
func (s *StakeServiceImpl) ListMyStakes(ctx context.Context, actor models.Principal, status models.StakeStatus, q models.PageQuery) (*models.Page[*models.Stake], error) {
	switch status {
	case "", models.StakeStatusActive, models.StakeStatusWon, models.StakeStatusLost, models.StakeStatusRefunded:
	default:
		return nil, ErrValidation.WithMessage("unknown stake status %q", status)
	}
	q = q.Normalize()
	stakes, total, err := s.stakeRepo.FindByUser(ctx, actor.UserID, status, q)
	if err != nil {
		return nil, internal(err, "failed to list stakes")
	}
	page := models.NewPage(stakes, total, q)
	return &page, nil
}

// CalculateWinnings projects what a stake of amount on optionID would win if the
// option won with the pool as it stands now
func (s *StakeServiceImpl) CalculateWinnings(ctx context.Context, pollID, optionID string, amount int64) (*models.WinningsProjection, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	poll, err := findPoll(ctx, s.pollRepo, pollID)
	if err != nil {
		return nil, err
	}
	optID, err := primitive.ObjectIDFromHex(optionID)
	if err != nil {
		return nil, ErrInvalidOption
	}
	opt, ok := poll.Option(optID)
	if !ok {
		return nil, ErrInvalidOption
	}
	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}

	share, gross, fee, net := ProjectWinnings(opt.TotalAmount, poll.TotalStakeAmount, amount, settings.PlatformFeePercentage)
	return &models.WinningsProjection{
		PollID:              poll.ID,
		SelectedOptionID:    optID,
		Amount:              amount,
		UserSharePercentage: share,
		GrossWinnings:       gross,
		PlatformFee:         fee,
		NetWinnings:         net,
	}, nil
}

// findPoll parses id and loads the poll, mapping lookup failures to service errors
func findPoll(ctx context.Context, pollRepo repositories.PollRepository, id string) (*models.Poll, error) {
	pollID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID.WithMessage("invalid poll id")
	}
	poll, err := pollRepo.FindByID(ctx, pollID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPollNotFound
	}
	if err != nil {
		return nil, internal(err, "failed to load poll")
	}
	return poll, nil
}
