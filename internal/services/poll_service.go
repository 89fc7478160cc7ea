package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PollServiceImpl implements PollService
type PollServiceImpl struct {
	pollRepo repositories.PollRepository
	nowFn    func() time.Time
}

// NewPollService creates a new PollService
func NewPollService(pollRepo repositories.PollRepository) *PollServiceImpl {
	return &PollServiceImpl{
		pollRepo: pollRepo,
		nowFn:    time.Now,
	}
}

// CreatePoll publishes a new poll. Polls go live immediately; a nil end time means
// the poll stays open until an admin closes it.
func (s *PollServiceImpl) CreatePoll(ctx context.Context, actor models.Principal, req models.CreatePollRequest) (*models.Poll, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrValidation.WithMessage("title is required")
	}
	category := strings.TrimSpace(req.Category)
	if category == "" {
		return nil, ErrValidation.WithMessage("category is required")
	}
	if len(req.Options) < models.MinPollOptions || len(req.Options) > models.MaxPollOptions {
		return nil, ErrValidation.WithMessage("a poll needs between %d and %d options", models.MinPollOptions, models.MaxPollOptions)
	}

	seen := make(map[string]bool, len(req.Options))
	options := make([]models.PollOption, 0, len(req.Options))
	for _, text := range req.Options {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ErrValidation.WithMessage("option text cannot be empty")
		}
		key := strings.ToLower(text)
		if seen[key] {
			return nil, ErrValidation.WithMessage("duplicate option %q", text)
		}
		seen[key] = true
		options = append(options, models.PollOption{ID: primitive.NewObjectID(), Text: text})
	}

	now := s.nowFn().UTC()
	var endTime *time.Time
	if req.EndTime != nil {
		if !req.EndTime.After(now) {
			return nil, ErrValidation.WithMessage("endTime must be in the future")
		}
		t := req.EndTime.UTC()
		endTime = &t
	}

	poll := &models.Poll{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		Category:    category,
		ShowName:    req.ShowName,
		Season:      req.Season,
		Options:     options,
		Status:      models.PollStatusActive,
		EndTime:     endTime,
		CreatedBy:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.pollRepo.Create(ctx, poll); err != nil {
		return nil, internal(err, "failed to create poll")
	}
	slog.Info("Poll created", "pollId", poll.ID.Hex(), "title", poll.Title, "options", len(options), "createdBy", actor.UserID)
	return poll, nil
}

// GetPoll returns a poll by id
func (s *PollServiceImpl) GetPoll(ctx context.Context, pollID string) (*models.Poll, error) {
	return findPoll(ctx, s.pollRepo, pollID)
}

// ListPolls pages through polls matching filter
func (s *PollServiceImpl) ListPolls(ctx context.Context, filter models.PollFilter, q models.PageQuery) (*models.Page[*models.Poll], error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, ErrValidation.WithMessage("unknown poll status %q", filter.Status)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	q = q.Normalize()
	polls, total, err := s.pollRepo.Find(ctx, filter, q)
	if err != nil {
		return nil, internal(err, "failed to list polls")
	}
	page := models.NewPage(polls, total, q)
	return &page, nil
}

// GetPollStats reports each option's share of the pool and its current odds
func (s *PollServiceImpl) GetPollStats(ctx context.Context, pollID string) (*models.PollStats, error) {
	poll, err := findPoll(ctx, s.pollRepo, pollID)
	if err != nil {
		return nil, err
	}

	pool := decimal.NewFromInt(poll.TotalStakeAmount)
	stats := &models.PollStats{
		PollID:            poll.ID,
		Status:            poll.Status,
		TotalStakeAmount:  poll.TotalStakeAmount,
		TotalParticipants: poll.TotalParticipants,
		Options:           make([]models.OptionStats, 0, len(poll.Options)),
	}
	for _, opt := range poll.Options {
		percentage, odds := decimal.Zero, decimal.Zero
		if opt.TotalAmount > 0 {
			optionTotal := decimal.NewFromInt(opt.TotalAmount)
			percentage = optionTotal.Mul(hundred).Div(pool)
			odds = pool.Div(optionTotal)
		}
		stats.Options = append(stats.Options, models.OptionStats{
			OptionID:    opt.ID,
			Text:        opt.Text,
			StakeCount:  opt.StakeCount,
			TotalAmount: opt.TotalAmount,
			Percentage:  percentage.StringFixed(2),
			Odds:        odds.StringFixed(2),
		})
	}
	return stats, nil
}
