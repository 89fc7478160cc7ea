package memory

import (
	"cmp"
	"context"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repositories.WalletRepository = (*WalletRepository)(nil)

// WalletRepository is the in-memory wallet store
type WalletRepository struct {
	s *Store
}

// NewWalletRepository creates a WalletRepository backed by s
func NewWalletRepository(s *Store) *WalletRepository {
	return &WalletRepository{s: s}
}

func (r *WalletRepository) FindByUserID(ctx context.Context, userID string) (*models.Wallet, error) {
	var out *models.Wallet
	r.s.read(ctx, func() {
		if w, ok := r.s.wallets[userID]; ok {
			out = cloneWallet(w)
		}
	})
	if out == nil {
		return nil, repositories.ErrNotFound
	}
	return out, nil
}

func (r *WalletRepository) EnsureWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.s.write(ctx, func(j *journal) error {
		if w, ok := r.s.wallets[userID]; ok {
			out = cloneWallet(w)
			return nil
		}
		now := time.Now()
		w := &models.Wallet{
			ID:        primitive.NewObjectID(),
			UserID:    userID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		r.s.wallets[userID] = w
		j.record(func() { delete(r.s.wallets, userID) })
		out = cloneWallet(w)
		return nil
	})
	return out, err
}

func (r *WalletRepository) ApplyDelta(ctx context.Context, userID string, delta int64) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.s.write(ctx, func(j *journal) error {
		w, ok := r.s.wallets[userID]
		if !ok || w.IsLocked || w.AvailableBalance+delta < 0 {
			return repositories.ErrConditionFailed
		}
		prev := *w
		w.AvailableBalance += delta
		w.UpdatedAt = time.Now()
		j.record(func() { *w = prev })
		out = cloneWallet(w)
		return nil
	})
	return out, err
}

func (r *WalletRepository) SetLocked(ctx context.Context, userID string, locked bool, reason string) (*models.Wallet, error) {
	var out *models.Wallet
	err := r.s.write(ctx, func(j *journal) error {
		w, ok := r.s.wallets[userID]
		if !ok {
			return repositories.ErrNotFound
		}
		prev := *w
		w.IsLocked = locked
		w.LockedReason = ""
		if locked {
			w.LockedReason = reason
		}
		w.UpdatedAt = time.Now()
		j.record(func() { *w = prev })
		out = cloneWallet(w)
		return nil
	})
	return out, err
}

func (r *WalletRepository) FindAll(ctx context.Context, filter models.WalletFilter, q models.PageQuery) ([]*models.Wallet, int64, error) {
	var matched []*models.Wallet
	r.s.read(ctx, func() {
		for _, w := range r.s.wallets {
			if filter.UserID != "" && w.UserID != filter.UserID {
				continue
			}
			if filter.IsLocked != nil && w.IsLocked != *filter.IsLocked {
				continue
			}
			matched = append(matched, cloneWallet(w))
		}
	})

	sortPage(matched, q, func(a, b *models.Wallet) int {
		if q.SortBy == "availableBalance" {
			return cmp.Compare(a.AvailableBalance, b.AvailableBalance)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	}, func(w *models.Wallet) primitive.ObjectID { return w.ID })

	return paginate(matched, q), int64(len(matched)), nil
}

func (r *WalletRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	r.s.read(ctx, func() { n = int64(len(r.s.wallets)) })
	return n, nil
}
