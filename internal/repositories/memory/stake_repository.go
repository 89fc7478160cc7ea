package memory

import (
	"cmp"
	"context"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repositories.StakeRepository = (*StakeRepository)(nil)

// StakeRepository is the in-memory stake store
type StakeRepository struct {
	s *Store
}

// NewStakeRepository creates a StakeRepository backed by s
func NewStakeRepository(s *Store) *StakeRepository {
	return &StakeRepository{s: s}
}

func (r *StakeRepository) Create(ctx context.Context, stake *models.Stake) error {
	return r.s.write(ctx, func(j *journal) error {
		owner := stakeOwner{userID: stake.UserID, pollID: stake.PollID}
		if _, taken := r.s.stakeByOwner[owner]; taken {
			return repositories.ErrDuplicateKey
		}
		if stake.ID.IsZero() {
			stake.ID = primitive.NewObjectID()
		}
		if stake.CreatedAt.IsZero() {
			stake.CreatedAt = time.Now()
		}
		stake.UpdatedAt = stake.CreatedAt

		id := stake.ID
		r.s.stakes[id] = cloneStake(stake)
		r.s.stakeByOwner[owner] = id
		j.record(func() {
			delete(r.s.stakes, id)
			delete(r.s.stakeByOwner, owner)
		})
		return nil
	})
}

func (r *StakeRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Stake, error) {
	var out *models.Stake
	r.s.read(ctx, func() {
		if st, ok := r.s.stakes[id]; ok {
			out = cloneStake(st)
		}
	})
	if out == nil {
		return nil, repositories.ErrNotFound
	}
	return out, nil
}

func (r *StakeRepository) FindByUserAndPoll(ctx context.Context, userID string, pollID primitive.ObjectID) (*models.Stake, error) {
	var out *models.Stake
	r.s.read(ctx, func() {
		if id, ok := r.s.stakeByOwner[stakeOwner{userID: userID, pollID: pollID}]; ok {
			out = cloneStake(r.s.stakes[id])
		}
	})
	if out == nil {
		return nil, repositories.ErrNotFound
	}
	return out, nil
}

func (r *StakeRepository) FindByPoll(ctx context.Context, pollID primitive.ObjectID) ([]*models.Stake, error) {
	var out []*models.Stake
	r.s.read(ctx, func() {
		for _, st := range r.s.stakes {
			if st.PollID == pollID {
				out = append(out, cloneStake(st))
			}
		}
	})
	sortPage(out, models.PageQuery{SortOrder: "asc"}, func(a, b *models.Stake) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	}, func(st *models.Stake) primitive.ObjectID { return st.ID })
	return out, nil
}

func (r *StakeRepository) FindByUser(ctx context.Context, userID string, status models.StakeStatus, q models.PageQuery) ([]*models.Stake, int64, error) {
	var matched []*models.Stake
	r.s.read(ctx, func() {
		for _, st := range r.s.stakes {
			if st.UserID != userID || (status != "" && st.Status != status) {
				continue
			}
			matched = append(matched, cloneStake(st))
		}
	})
	sortPage(matched, q, func(a, b *models.Stake) int {
		if q.SortBy == "amount" {
			return cmp.Compare(a.Amount, b.Amount)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	}, func(st *models.Stake) primitive.ObjectID { return st.ID })
	return paginate(matched, q), int64(len(matched)), nil
}

func (r *StakeRepository) UpdateSettlement(ctx context.Context, id primitive.ObjectID, from models.StakeStatus, s models.StakeSettlement) error {
	return r.s.write(ctx, func(j *journal) error {
		st, ok := r.s.stakes[id]
		if !ok || st.Status != from {
			return repositories.ErrConditionFailed
		}
		prev := *st
		settledAt := s.SettledAt
		st.Status = s.Status
		st.GrossWinnings = s.GrossWinnings
		st.PlatformFee = s.PlatformFee
		st.NetWinnings = s.NetWinnings
		st.SettledAt = &settledAt
		st.UpdatedAt = time.Now()
		j.record(func() { *st = prev })
		return nil
	})
}

func (r *StakeRepository) DeleteByPoll(ctx context.Context, pollID primitive.ObjectID) (int64, error) {
	var deleted int64
	err := r.s.write(ctx, func(j *journal) error {
		for id, st := range r.s.stakes {
			if st.PollID != pollID {
				continue
			}
			removed := st
			owner := stakeOwner{userID: st.UserID, pollID: st.PollID}
			delete(r.s.stakes, id)
			delete(r.s.stakeByOwner, owner)
			j.record(func() {
				r.s.stakes[removed.ID] = removed
				r.s.stakeByOwner[owner] = removed.ID
			})
			deleted++
		}
		return nil
	})
	return deleted, err
}
