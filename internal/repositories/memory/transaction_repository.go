package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var _ repositories.TransactionRepository = (*TransactionRepository)(nil)

// TransactionRepository is the in-memory ledger transaction store
type TransactionRepository struct {
	s *Store
}

// NewTransactionRepository creates a TransactionRepository backed by s
func NewTransactionRepository(s *Store) *TransactionRepository {
	return &TransactionRepository{s: s}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *models.Transaction) error {
	return r.s.write(ctx, func(j *journal) error {
		if _, taken := r.s.txByRef[tx.Reference]; taken {
			return repositories.ErrDuplicateKey
		}
		if tx.ID.IsZero() {
			tx.ID = primitive.NewObjectID()
		}
		if tx.CreatedAt.IsZero() {
			tx.CreatedAt = time.Now()
		}
		tx.UpdatedAt = tx.CreatedAt

		id, ref := tx.ID, tx.Reference
		r.s.transactions[id] = cloneTransaction(tx)
		r.s.txByRef[ref] = id
		j.record(func() {
			delete(r.s.transactions, id)
			delete(r.s.txByRef, ref)
		})
		return nil
	})
}

func (r *TransactionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Transaction, error) {
	var out *models.Transaction
	r.s.read(ctx, func() {
		if t, ok := r.s.transactions[id]; ok {
			out = cloneTransaction(t)
		}
	})
	if out == nil {
		return nil, repositories.ErrNotFound
	}
	return out, nil
}

func (r *TransactionRepository) FindByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	var out *models.Transaction
	r.s.read(ctx, func() {
		if id, ok := r.s.txByRef[reference]; ok {
			out = cloneTransaction(r.s.transactions[id])
		}
	})
	if out == nil {
		return nil, repositories.ErrNotFound
	}
	return out, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from []models.TransactionStatus, u models.TransactionUpdate) (*models.Transaction, error) {
	var out *models.Transaction
	err := r.s.write(ctx, func(j *journal) error {
		t, ok := r.s.transactions[id]
		if !ok || !slices.Contains(from, t.Status) {
			return repositories.ErrConditionFailed
		}
		prev := cloneTransaction(t)
		t.Status = u.Status
		if u.BalanceBefore != nil {
			t.BalanceBefore = *u.BalanceBefore
		}
		if u.BalanceAfter != nil {
			t.BalanceAfter = *u.BalanceAfter
		}
		if u.GatewayReference != "" {
			t.GatewayReference = u.GatewayReference
		}
		if u.AuthorizationURL != "" {
			t.AuthorizationURL = u.AuthorizationURL
		}
		if u.FailureReason != "" {
			t.FailureReason = u.FailureReason
		}
		if u.ReviewedBy != "" {
			t.ReviewedBy = u.ReviewedBy
		}
		if u.CompletedAt != nil {
			completed := *u.CompletedAt
			t.CompletedAt = &completed
		}
		t.UpdatedAt = time.Now()
		j.record(func() { r.s.transactions[id] = prev })
		out = cloneTransaction(t)
		return nil
	})
	return out, err
}

func (r *TransactionRepository) Find(ctx context.Context, filter models.TransactionFilter, q models.PageQuery) ([]*models.Transaction, int64, error) {
	matched := r.matching(ctx, filter)
	sortPage(matched, q, func(a, b *models.Transaction) int {
		if q.SortBy == "amount" {
			return cmp.Compare(a.Amount, b.Amount)
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	}, func(t *models.Transaction) primitive.ObjectID { return t.ID })
	return paginate(matched, q), int64(len(matched)), nil
}

func (r *TransactionRepository) Summarize(ctx context.Context, filter models.TransactionFilter) ([]models.TransactionSummary, error) {
	byType := make(map[models.TransactionType]*models.TransactionSummary)
	for _, t := range r.matching(ctx, filter) {
		sum, ok := byType[t.Type]
		if !ok {
			sum = &models.TransactionSummary{Type: t.Type}
			byType[t.Type] = sum
		}
		sum.Count++
		sum.Amount += t.Amount
		sum.Fees += t.Fee
	}

	out := make([]models.TransactionSummary, 0, len(byType))
	for _, sum := range byType {
		out = append(out, *sum)
	}
	slices.SortFunc(out, func(a, b models.TransactionSummary) int { return cmp.Compare(a.Type, b.Type) })
	return out, nil
}

func (r *TransactionRepository) matching(ctx context.Context, filter models.TransactionFilter) []*models.Transaction {
	var matched []*models.Transaction
	r.s.read(ctx, func() {
		for _, t := range r.s.transactions {
			if filter.UserID != "" && t.UserID != filter.UserID {
				continue
			}
			if filter.Type != "" && t.Type != filter.Type {
				continue
			}
			if filter.Status != "" && t.Status != filter.Status {
				continue
			}
			if filter.Status == "" && len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
				continue
			}
			if filter.CreatedBefore != nil && t.CreatedAt.After(*filter.CreatedBefore) {
				continue
			}
			matched = append(matched, cloneTransaction(t))
		}
	})
	return matched
}
