package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repositories.PollRepository = (*PollRepository)(nil)

// PollRepository is the in-memory poll store
type PollRepository struct {
	s *Store
}

// NewPollRepository creates a PollRepository backed by s
func NewPollRepository(s *Store) *PollRepository {
	return &PollRepository{s: s}
}

func (r *PollRepository) Create(ctx context.Context, poll *models.Poll) error {
	return r.s.write(ctx, func(j *journal) error {
		if poll.ID.IsZero() {
			poll.ID = primitive.NewObjectID()
		}
		if _, taken := r.s.polls[poll.ID]; taken {
			return repositories.ErrDuplicateKey
		}
		if poll.CreatedAt.IsZero() {
			poll.CreatedAt = time.Now()
		}
		poll.UpdatedAt = poll.CreatedAt

		id := poll.ID
		r.s.polls[id] = clonePoll(poll)
		j.record(func() { delete(r.s.polls, id) })
		return nil
	})
}

func (r *PollRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Poll, error) {
	var out *models.Poll
	r.s.read(ctx, func() {
		if p, ok := r.s.polls[id]; ok {
			out = clonePoll(p)
		}
	})
	if out == nil {
		return nil, repositories.ErrNotFound
	}
	return out, nil
}

func (r *PollRepository) Find(ctx context.Context, filter models.PollFilter, q models.PageQuery) ([]*models.Poll, int64, error) {
	search := strings.ToLower(filter.Search)
	var matched []*models.Poll
	r.s.read(ctx, func() {
		for _, p := range r.s.polls {
			if filter.Status != "" && p.Status != filter.Status {
				continue
			}
			if filter.Category != "" && p.Category != filter.Category {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(p.Title), search) &&
				!strings.Contains(strings.ToLower(p.Description), search) {
				continue
			}
			matched = append(matched, clonePoll(p))
		}
	})

	sortPage(matched, q, func(a, b *models.Poll) int {
		switch q.SortBy {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "totalStakeAmount":
			return cmp.Compare(a.TotalStakeAmount, b.TotalStakeAmount)
		case "totalParticipants":
			return cmp.Compare(a.TotalParticipants, b.TotalParticipants)
		case "endTime":
			return compareEndTime(a.EndTime, b.EndTime)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	}, func(p *models.Poll) primitive.ObjectID { return p.ID })

	return paginate(matched, q), int64(len(matched)), nil
}

// compareEndTime sorts polls without an end time first, as Mongo sorts nulls
func compareEndTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

func (r *PollRepository) FindExpired(ctx context.Context, now time.Time) ([]*models.Poll, error) {
	var out []*models.Poll
	r.s.read(ctx, func() {
		for _, p := range r.s.polls {
			if p.Status == models.PollStatusActive && p.EndTime != nil && !p.EndTime.After(now) {
				out = append(out, clonePoll(p))
			}
		}
	})
	return out, nil
}

func (r *PollRepository) IncrementPool(ctx context.Context, pollID, optionID primitive.ObjectID, amount int64, now time.Time) error {
	return r.s.write(ctx, func(j *journal) error {
		p, ok := r.s.polls[pollID]
		if !ok || !p.AcceptsStakes(now) {
			return repositories.ErrConditionFailed
		}
		opt, ok := p.Option(optionID)
		if !ok {
			return repositories.ErrConditionFailed
		}
		prev := clonePoll(p)
		opt.TotalAmount += amount
		opt.StakeCount++
		p.TotalStakeAmount += amount
		p.TotalParticipants++
		p.UpdatedAt = time.Now()
		j.record(func() { r.s.polls[pollID] = prev })
		return nil
	})
}

func (r *PollRepository) UpdateState(ctx context.Context, pollID primitive.ObjectID, from []models.PollStatus, change models.PollStateChange) (*models.Poll, error) {
	var out *models.Poll
	err := r.s.write(ctx, func(j *journal) error {
		p, ok := r.s.polls[pollID]
		if !ok || !slices.Contains(from, p.Status) {
			return repositories.ErrConditionFailed
		}
		prev := clonePoll(p)
		p.Status = change.Status
		if change.WinningOptionID != nil {
			winner := *change.WinningOptionID
			p.WinningOptionID = &winner
		}
		if change.SetSettlement {
			p.Settlement = nil
			if change.Settlement != nil {
				marker := *change.Settlement
				p.Settlement = &marker
			}
		}
		if change.ClosedAt != nil {
			t := *change.ClosedAt
			p.ClosedAt = &t
		}
		if change.ResolvedAt != nil {
			t := *change.ResolvedAt
			p.ResolvedAt = &t
		}
		if change.CancelledAt != nil {
			t := *change.CancelledAt
			p.CancelledAt = &t
		}
		p.UpdatedAt = time.Now()
		j.record(func() { r.s.polls[pollID] = prev })
		out = clonePoll(p)
		return nil
	})
	return out, err
}

func (r *PollRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	return r.s.write(ctx, func(j *journal) error {
		p, ok := r.s.polls[id]
		if !ok {
			return repositories.ErrNotFound
		}
		delete(r.s.polls, id)
		j.record(func() { r.s.polls[id] = p })
		return nil
	})
}

func (r *PollRepository) CountByStatus(ctx context.Context) (map[models.PollStatus]int64, error) {
	counts := make(map[models.PollStatus]int64)
	r.s.read(ctx, func() {
		for _, p := range r.s.polls {
			counts[p.Status]++
		}
	})
	return counts, nil
}
