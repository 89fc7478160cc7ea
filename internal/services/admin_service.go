package services

import (
	"context"
	"log/slog"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
)

// AdminServiceImpl implements AdminService. Close and cancel are open to admins and
// sub-admins; resolve and delete need a full admin.
type AdminServiceImpl struct {
	lifecycle  LifecycleService
	pollRepo   repositories.PollRepository
	txRepo     repositories.TransactionRepository
	walletRepo repositories.WalletRepository
}

// NewAdminService creates a new AdminService
func NewAdminService(lifecycle LifecycleService, pollRepo repositories.PollRepository, txRepo repositories.TransactionRepository, walletRepo repositories.WalletRepository) *AdminServiceImpl {
	return &AdminServiceImpl{
		lifecycle:  lifecycle,
		pollRepo:   pollRepo,
		txRepo:     txRepo,
		walletRepo: walletRepo,
	}
}

// ClosePoll stops a poll from accepting stakes
func (s *AdminServiceImpl) ClosePoll(ctx context.Context, actor models.Principal, pollID string) (*models.Poll, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}
	return s.lifecycle.Close(ctx, pollID)
}

// ResolvePoll picks the winner in one step; a poll that is still active is closed on the way
func (s *AdminServiceImpl) ResolvePoll(ctx context.Context, actor models.Principal, pollID, winningOptionID string) (*models.Poll, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, ErrForbidden
	}
	slog.Info("Resolving poll", "pollId", pollID, "winningOptionId", winningOptionID, "by", actor.UserID)
	return s.lifecycle.Resolve(ctx, pollID, winningOptionID, actor.UserID)
}

// CancelPoll refunds every stake and cancels the poll
func (s *AdminServiceImpl) CancelPoll(ctx context.Context, actor models.Principal, pollID string) (*models.Poll, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}
	slog.Info("Cancelling poll", "pollId", pollID, "by", actor.UserID)
	return s.lifecycle.Cancel(ctx, pollID, actor.UserID)
}

// DeletePoll removes a poll that holds no settled or active stakes
func (s *AdminServiceImpl) DeletePoll(ctx context.Context, actor models.Principal, pollID string) error {
	if !actor.HasRole(models.RoleAdmin) {
		return ErrForbidden
	}
	return s.lifecycle.Delete(ctx, pollID)
}

// GetDashboardStats aggregates poll counts and completed ledger movements
func (s *AdminServiceImpl) GetDashboardStats(ctx context.Context, actor models.Principal) (*models.DashboardStats, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleSubAdmin) {
		return nil, ErrForbidden
	}

	counts, err := s.pollRepo.CountByStatus(ctx)
	if err != nil {
		return nil, internal(err, "failed to count polls")
	}
	stats := &models.DashboardStats{PollsByStatus: counts}

	completed, err := s.txRepo.Summarize(ctx, models.TransactionFilter{Status: models.TransactionStatusCompleted})
	if err != nil {
		return nil, internal(err, "failed to summarize transactions")
	}
	for _, sum := range completed {
		switch sum.Type {
		case models.TransactionTypeStake:
			stats.TotalStaked = sum.Amount
		case models.TransactionTypeWin:
			stats.TotalPaidOut = sum.Amount
			stats.PlatformFeesRetained += sum.Fees
		case models.TransactionTypeRefund:
			stats.TotalRefunded = sum.Amount
		case models.TransactionTypeDeposit:
			stats.TotalDeposits = sum.Amount
		case models.TransactionTypeWithdrawal:
			stats.TotalWithdrawals = sum.Amount
			stats.PlatformFeesRetained += sum.Fees
		}
	}

	pending, err := s.txRepo.Summarize(ctx, models.TransactionFilter{
		Type:     models.TransactionTypeWithdrawal,
		Statuses: []models.TransactionStatus{models.TransactionStatusPending, models.TransactionStatusProcessing},
	})
	if err != nil {
		return nil, internal(err, "failed to summarize pending withdrawals")
	}
	for _, sum := range pending {
		stats.PendingWithdrawals += sum.Count
		stats.PendingWithdrawalsAmount += sum.Amount
	}

	if stats.WalletCount, err = s.walletRepo.Count(ctx); err != nil {
		return nil, internal(err, "failed to count wallets")
	}
	return stats, nil
}
