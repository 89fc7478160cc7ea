package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/metrics"
	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/ArowuTest/pollstake-backend/pkg/notify"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LifecycleServiceImpl implements LifecycleService. Every transition of a poll runs
// under that poll's lock. Settlements record a marker on the poll before moving any
// money and settle stake by stake, so an interrupted run can be retried and picks up
// where it stopped.
type LifecycleServiceImpl struct {
	transactor repositories.Transactor
	pollRepo   repositories.PollRepository
	stakeRepo  repositories.StakeRepository
	ledger     Ledger
	settings   PlatformSettingsService
	notifier   notify.Notifier
	metrics    *metrics.Metrics
	locks      *keyedMutex
	nowFn      func() time.Time
}

// NewLifecycleService creates a new LifecycleService
func NewLifecycleService(
	transactor repositories.Transactor,
	pollRepo repositories.PollRepository,
	stakeRepo repositories.StakeRepository,
	ledger Ledger,
	settings PlatformSettingsService,
	notifier notify.Notifier,
	m *metrics.Metrics,
) *LifecycleServiceImpl {
	return &LifecycleServiceImpl{
		transactor: transactor,
		pollRepo:   pollRepo,
		stakeRepo:  stakeRepo,
		ledger:     ledger,
		settings:   settings,
		notifier:   notifier,
		metrics:    m,
		locks:      newKeyedMutex(),
		nowFn:      time.Now,
	}
}

// Close moves an active poll to closed
func (s *LifecycleServiceImpl) Close(ctx context.Context, pollID string) (*models.Poll, error) {
	id, err := primitive.ObjectIDFromHex(pollID)
	if err != nil {
		return nil, ErrInvalidID.WithMessage("invalid poll id")
	}
	unlock := s.locks.Lock(id.Hex())
	defer unlock()
	return s.close(ctx, id)
}

func (s *LifecycleServiceImpl) close(ctx context.Context, id primitive.ObjectID) (*models.Poll, error) {
	now := s.nowFn().UTC()
	poll, err := s.pollRepo.UpdateState(ctx, id, []models.PollStatus{models.PollStatusActive}, models.PollStateChange{
		Status:   models.PollStatusClosed,
		ClosedAt: &now,
	})
	if errors.Is(err, repositories.ErrConditionFailed) {
		current, ferr := s.loadPoll(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		return nil, ErrPollNotClosable.WithMessage("poll is %s; only active polls can be closed", current.Status)
	}
	if err != nil {
		return nil, internal(err, "failed to close poll")
	}
	slog.Info("Poll closed", "pollId", id.Hex())
	s.publish(ctx, notify.EventPollClosed, poll, nil)
	return poll, nil
}

// CloseExpired closes every active poll whose end time has passed
func (s *LifecycleServiceImpl) CloseExpired(ctx context.Context) (int, error) {
	expired, err := s.pollRepo.FindExpired(ctx, s.nowFn())
	if err != nil {
		return 0, internal(err, "failed to find expired polls")
	}
	closed := 0
	for _, p := range expired {
		if _, err := s.Close(ctx, p.ID.Hex()); err != nil {
			if errors.Is(err, ErrPollNotClosable) {
				continue
			}
			slog.Error("Failed to close expired poll", "pollId", p.ID.Hex(), "error", err)
			continue
		}
		closed++
	}
	if closed > 0 {
		slog.Info("Expired polls closed", "count", closed)
	}
	return closed, nil
}

// Resolve settles the poll in favour of winningOptionID. An active poll is closed first.
// Winners are credited their net winnings under reference win:{stakeId}; a retry after
// a crash skips stakes that were already settled.
func (s *LifecycleServiceImpl) Resolve(ctx context.Context, pollID, winningOptionID, actorID string) (*models.Poll, error) {
	id, err := primitive.ObjectIDFromHex(pollID)
	if err != nil {
		return nil, ErrInvalidID.WithMessage("invalid poll id")
	}
	winner, err := primitive.ObjectIDFromHex(winningOptionID)
	if err != nil {
		return nil, ErrInvalidOption
	}

	unlock := s.locks.Lock(id.Hex())
	defer unlock()

	poll, err := s.loadPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := settleable(poll); err != nil {
		return nil, err
	}
	if _, ok := poll.Option(winner); !ok {
		return nil, ErrInvalidOption
	}

	poll, err = s.beginSettlement(ctx, poll, models.SettlementResolve, &winner, actorID)
	if err != nil {
		return nil, err
	}
	marker := poll.Settlement

	stakes, err := s.stakeRepo.FindByPoll(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to load stakes")
	}
	if err := s.verifyPool(poll, stakes); err != nil {
		return nil, err
	}

	plan, err := ComputePayouts(stakes, winner, poll.TotalStakeAmount, marker.PlatformFeePercentage)
	if err != nil {
		if svcErr, ok := AsError(err); ok && svcErr.Kind == KindInvariantViolation {
			s.metrics.InvariantViolation(svcErr.Code)
			slog.Error("Settlement aborted", "pollId", id.Hex(), "error", err)
		}
		return nil, err
	}
	payouts := make(map[primitive.ObjectID]Payout, len(plan.Payouts))
	for _, p := range plan.Payouts {
		payouts[p.StakeID] = p
	}
	refundAll := plan.WinningTotal == 0 && marker.NoWinnerPolicy == models.NoWinnerRefund

	for _, st := range stakes {
		if st.Status != models.StakeStatusActive {
			continue
		}
		var err error
		switch p, won := payouts[st.ID]; {
		case refundAll:
			err = s.refundStake(ctx, st)
		case won:
			err = s.payStake(ctx, st, p)
		default:
			err = s.updateStake(ctx, st, models.StakeSettlement{Status: models.StakeStatusLost})
		}
		if err != nil {
			slog.Error("Settlement interrupted", "pollId", id.Hex(), "stakeId", st.ID.Hex(), "error", err)
			return nil, internal(err, "settlement interrupted")
		}
	}

	now := s.nowFn().UTC()
	resolved, err := s.pollRepo.UpdateState(ctx, id, []models.PollStatus{models.PollStatusClosed}, models.PollStateChange{
		Status:          models.PollStatusResolved,
		WinningOptionID: &winner,
		ResolvedAt:      &now,
		SetSettlement:   true,
	})
	if err != nil {
		return nil, internal(err, "failed to mark poll resolved")
	}

	s.metrics.SettlementCompleted(string(models.SettlementResolve))
	slog.Info("Poll resolved", "pollId", id.Hex(), "winningOptionId", winner.Hex(), "resolvedBy", actorID,
		"winners", len(plan.Payouts), "totalPool", plan.TotalPool, "totalNet", plan.TotalNet,
		"totalFees", plan.TotalFees, "undistributed", plan.Undistributed, "refunded", refundAll)
	s.publish(ctx, notify.EventPollResolved, resolved, map[string]interface{}{
		"winningOptionId": winner.Hex(),
		"winners":         len(plan.Payouts),
		"totalNet":        plan.TotalNet,
		"totalFees":       plan.TotalFees,
		"refunded":        refundAll,
	})
	return resolved, nil
}

// Cancel refunds every stake in full under reference refund:{stakeId} and marks the poll cancelled
func (s *LifecycleServiceImpl) Cancel(ctx context.Context, pollID, actorID string) (*models.Poll, error) {
	id, err := primitive.ObjectIDFromHex(pollID)
	if err != nil {
		return nil, ErrInvalidID.WithMessage("invalid poll id")
	}
	unlock := s.locks.Lock(id.Hex())
	defer unlock()

	poll, err := s.loadPoll(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := settleable(poll); err != nil {
		return nil, err
	}
	if _, err = s.beginSettlement(ctx, poll, models.SettlementCancel, nil, actorID); err != nil {
		return nil, err
	}

	stakes, err := s.stakeRepo.FindByPoll(ctx, id)
	if err != nil {
		return nil, internal(err, "failed to load stakes")
	}
	var refunded int64
	for _, st := range stakes {
		if st.Status != models.StakeStatusActive {
			continue
		}
		if err := s.refundStake(ctx, st); err != nil {
			slog.Error("Cancellation interrupted", "pollId", id.Hex(), "stakeId", st.ID.Hex(), "error", err)
			return nil, internal(err, "cancellation interrupted")
		}
		refunded += st.Amount
	}

	now := s.nowFn().UTC()
	cancelled, err := s.pollRepo.UpdateState(ctx, id, []models.PollStatus{models.PollStatusClosed}, models.PollStateChange{
		Status:        models.PollStatusCancelled,
		CancelledAt:   &now,
		SetSettlement: true,
	})
	if err != nil {
		return nil, internal(err, "failed to mark poll cancelled")
	}

	s.metrics.SettlementCompleted(string(models.SettlementCancel))
	slog.Info("Poll cancelled", "pollId", id.Hex(), "cancelledBy", actorID, "stakes", len(stakes), "refunded", refunded)
	s.publish(ctx, notify.EventPollCancelled, cancelled, map[string]interface{}{"refunded": refunded})
	return cancelled, nil
}

// Delete removes a poll and its stakes. Only polls whose stakes were all refunded,
// or that never had any, can be deleted.
func (s *LifecycleServiceImpl) Delete(ctx context.Context, pollID string) error {
	id, err := primitive.ObjectIDFromHex(pollID)
	if err != nil {
		return ErrInvalidID.WithMessage("invalid poll id")
	}
	unlock := s.locks.Lock(id.Hex())
	defer unlock()

	poll, err := s.loadPoll(ctx, id)
	if err != nil {
		return err
	}
	if poll.Settlement != nil {
		return ErrSettlementInProgress
	}
	if _, err := s.deletable(ctx, id); err != nil {
		return err
	}

	// Stakes are placed without this poll's lock, so the check is repeated inside
	// the transaction that removes them. A stake committed after it fails to
	// increment the pool of the deleted poll and rolls back.
	var deleted int64
	err = s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		refunded, err := s.deletable(ctx, id)
		if err != nil {
			return err
		}
		deleted, err = s.stakeRepo.DeleteByPoll(ctx, id)
		if err != nil {
			return err
		}
		if deleted != int64(refunded) {
			return ErrPollHasStakes
		}
		return s.pollRepo.Delete(ctx, id)
	})
	if err != nil {
		return internal(err, "failed to delete poll")
	}
	slog.Info("Poll deleted", "pollId", id.Hex(), "stakes", deleted)
	s.publish(ctx, notify.EventPollDeleted, poll, nil)
	return nil
}

// deletable returns how many stakes the poll has, failing with ErrPollHasStakes
// when any of them was not refunded
func (s *LifecycleServiceImpl) deletable(ctx context.Context, id primitive.ObjectID) (int, error) {
	stakes, err := s.stakeRepo.FindByPoll(ctx, id)
	if err != nil {
		return 0, internal(err, "failed to load stakes")
	}
	for _, st := range stakes {
		if st.Status != models.StakeStatusRefunded {
			return 0, ErrPollHasStakes
		}
	}
	return len(stakes), nil
}

// settleable rejects polls that can no longer be resolved or cancelled
func settleable(poll *models.Poll) error {
	switch poll.Status {
	case models.PollStatusResolved:
		return ErrAlreadyResolved
	case models.PollStatusCancelled:
		return ErrAlreadyCancelled
	case models.PollStatusDraft:
		return ErrPollNotActive.WithMessage("draft polls cannot be settled")
	}
	return nil
}

// beginSettlement records the settlement marker, closing the poll if it is still active.
// A marker left by an interrupted run is reused when it describes the same settlement.
func (s *LifecycleServiceImpl) beginSettlement(ctx context.Context, poll *models.Poll, kind models.SettlementKind, winner *primitive.ObjectID, actorID string) (*models.Poll, error) {
	if m := poll.Settlement; m != nil {
		if m.Kind != kind || (winner != nil && (m.WinningOptionID == nil || *m.WinningOptionID != *winner)) {
			return nil, ErrSettlementInProgress
		}
		slog.Warn("Resuming interrupted settlement", "pollId", poll.ID.Hex(), "kind", kind, "startedBy", m.StartedBy)
		return poll, nil
	}

	settings, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	now := s.nowFn().UTC()
	change := models.PollStateChange{
		Status: models.PollStatusClosed,
		Settlement: &models.SettlementMarker{
			Kind:                  kind,
			WinningOptionID:       winner,
			PlatformFeePercentage: settings.PlatformFeePercentage,
			NoWinnerPolicy:        settings.NoWinnerPolicy,
			StartedBy:             actorID,
			StartedAt:             now,
		},
		SetSettlement: true,
	}
	wasActive := poll.Status == models.PollStatusActive
	if wasActive {
		change.ClosedAt = &now
	}

	updated, err := s.pollRepo.UpdateState(ctx, poll.ID, []models.PollStatus{models.PollStatusActive, models.PollStatusClosed}, change)
	if errors.Is(err, repositories.ErrConditionFailed) {
		current, ferr := s.loadPoll(ctx, poll.ID)
		if ferr != nil {
			return nil, ferr
		}
		if serr := settleable(current); serr != nil {
			return nil, serr
		}
		return nil, ErrSettlementInProgress
	}
	if err != nil {
		return nil, internal(err, "failed to start settlement")
	}
	if wasActive {
		slog.Info("Poll closed", "pollId", poll.ID.Hex())
		s.publish(ctx, notify.EventPollClosed, updated, nil)
	}
	return updated, nil
}

// verifyPool checks the cached pool totals against the recorded stakes
func (s *LifecycleServiceImpl) verifyPool(poll *models.Poll, stakes []*models.Stake) error {
	var total int64
	perOption := make(map[primitive.ObjectID]int64, len(poll.Options))
	for _, st := range stakes {
		total += st.Amount
		perOption[st.SelectedOptionID] += st.Amount
	}

	var mismatch error
	if total != poll.TotalStakeAmount {
		mismatch = ErrPoolMismatch.WithMessage("poll total %d, stakes sum to %d", poll.TotalStakeAmount, total)
	}
	for _, opt := range poll.Options {
		if mismatch == nil && opt.TotalAmount != perOption[opt.ID] {
			mismatch = ErrPoolMismatch.WithMessage("option %s total %d, stakes sum to %d", opt.ID.Hex(), opt.TotalAmount, perOption[opt.ID])
		}
	}
	if mismatch != nil {
		s.metrics.InvariantViolation(ErrPoolMismatch.Code)
		slog.Error("Pool totals do not match stakes", "pollId", poll.ID.Hex(), "error", mismatch)
	}
	return mismatch
}

// payStake credits a winner and marks the stake won in one storage transaction
func (s *LifecycleServiceImpl) payStake(ctx context.Context, st *models.Stake, p Payout) error {
	return s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		if p.NetWinnings > 0 {
			pollID := st.PollID
			if _, err := s.ledger.Credit(ctx, LedgerEntry{
				UserID:    st.UserID,
				Amount:    p.NetWinnings,
				Type:      models.TransactionTypeWin,
				Reference: "win:" + st.ID.Hex(),
				PollID:    &pollID,
				StakeID:   &p.StakeID,
				Fee:       p.PlatformFee,
			}); err != nil {
				return err
			}
		}
		return s.updateStake(ctx, st, models.StakeSettlement{
			Status:        models.StakeStatusWon,
			GrossWinnings: p.GrossWinnings,
			PlatformFee:   p.PlatformFee,
			NetWinnings:   p.NetWinnings,
		})
	})
}

// refundStake returns the full stake amount and marks the stake refunded
func (s *LifecycleServiceImpl) refundStake(ctx context.Context, st *models.Stake) error {
	return s.transactor.WithTransaction(ctx, func(ctx context.Context) error {
		pollID, stakeID := st.PollID, st.ID
		if _, err := s.ledger.Credit(ctx, LedgerEntry{
			UserID:    st.UserID,
			Amount:    st.Amount,
			Type:      models.TransactionTypeRefund,
			Reference: "refund:" + st.ID.Hex(),
			PollID:    &pollID,
			StakeID:   &stakeID,
		}); err != nil {
			return err
		}
		return s.updateStake(ctx, st, models.StakeSettlement{Status: models.StakeStatusRefunded})
	})
}

func (s *LifecycleServiceImpl) updateStake(ctx context.Context, st *models.Stake, outcome models.StakeSettlement) error {
	outcome.SettledAt = s.nowFn().UTC()
	err := s.stakeRepo.UpdateSettlement(ctx, st.ID, models.StakeStatusActive, outcome)
	if errors.Is(err, repositories.ErrConditionFailed) {
		return fmt.Errorf("stake %s is no longer active", st.ID.Hex())
	}
	return err
}

func (s *LifecycleServiceImpl) loadPoll(ctx context.Context, id primitive.ObjectID) (*models.Poll, error) {
	poll, err := s.pollRepo.FindByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrPollNotFound
	}
	if err != nil {
		return nil, internal(err, "failed to load poll")
	}
	return poll, nil
}

func (s *LifecycleServiceImpl) publish(ctx context.Context, eventType string, poll *models.Poll, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if data == nil {
		data = make(map[string]interface{})
	}
	data["pollId"] = poll.ID.Hex()
	data["status"] = poll.Status
	data["totalStakeAmount"] = poll.TotalStakeAmount
	s.notifier.Publish(ctx, notify.Event{
		Type:       eventType,
		Key:        poll.ID.Hex(),
		OccurredAt: s.nowFn().UTC(),
		Data:       data,
	})
}
