// Package memory provides in-process implementations of the repository
// interfaces. Transactions are serialized and rolled back through an undo
// journal, which makes the store suitable for tests and single-node local runs.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type journalKey struct{}

// journal records how to revert each write made inside a transaction
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	if j != nil {
		j.undo = append(j.undo, fn)
	}
}

func journalFrom(ctx context.Context) *journal {
	j, _ := ctx.Value(journalKey{}).(*journal)
	return j
}

// Store holds every collection of the in-memory backend
type Store struct {
	// txMu serializes transactions and standalone writes
	txMu sync.Mutex
	// mu guards the maps below
	mu sync.Mutex

	polls        map[primitive.ObjectID]*models.Poll
	stakes       map[primitive.ObjectID]*models.Stake
	stakeByOwner map[stakeOwner]primitive.ObjectID
	wallets      map[string]*models.Wallet
	transactions map[primitive.ObjectID]*models.Transaction
	txByRef      map[string]primitive.ObjectID
	settings     *models.PlatformSettings
}

type stakeOwner struct {
	userID string
	pollID primitive.ObjectID
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		polls:        make(map[primitive.ObjectID]*models.Poll),
		stakes:       make(map[primitive.ObjectID]*models.Stake),
		stakeByOwner: make(map[stakeOwner]primitive.ObjectID),
		wallets:      make(map[string]*models.Wallet),
		transactions: make(map[primitive.ObjectID]*models.Transaction),
		txByRef:      make(map[string]primitive.ObjectID),
	}
}

// WithTransaction runs fn atomically with respect to every other write on the store.
// Writes made by fn are undone in reverse order if fn returns an error.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if journalFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	j := &journal{}
	err := fn(context.WithValue(ctx, journalKey{}, j))
	if err != nil {
		s.mu.Lock()
		for i := len(j.undo) - 1; i >= 0; i-- {
			j.undo[i]()
		}
		s.mu.Unlock()
	}
	return err
}

// write runs fn under the data lock. Outside a transaction it also takes txMu so a
// standalone write never interleaves with a transaction that may still roll back.
func (s *Store) write(ctx context.Context, fn func(j *journal) error) error {
	j := journalFrom(ctx)
	if j == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(j)
}

// read runs fn under the data lock. Outside a transaction it waits for any running
// transaction to finish, so readers never see writes that may still be rolled back.
func (s *Store) read(ctx context.Context, fn func()) {
	if journalFrom(ctx) == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

func clonePoll(p *models.Poll) *models.Poll {
	c := *p
	c.Options = append([]models.PollOption(nil), p.Options...)
	if p.Settlement != nil {
		m := *p.Settlement
		c.Settlement = &m
	}
	return &c
}

func cloneStake(s *models.Stake) *models.Stake {
	c := *s
	return &c
}

func cloneWallet(w *models.Wallet) *models.Wallet {
	c := *w
	return &c
}

func cloneTransaction(t *models.Transaction) *models.Transaction {
	c := *t
	if t.BankDetails != nil {
		b := *t.BankDetails
		c.BankDetails = &b
	}
	return &c
}

// paginate returns the slice of items for the requested page
func paginate[T any](items []T, q models.PageQuery) []T {
	start := q.Skip()
	if start >= len(items) {
		return []T{}
	}
	end := start + q.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// sortPage orders items by cmp, honoring the query's sort direction, with id as tiebreaker
func sortPage[T any](items []T, q models.PageQuery, cmpFn func(a, b T) int, id func(T) primitive.ObjectID) {
	slices.SortStableFunc(items, func(a, b T) int {
		c := cmpFn(a, b)
		if c == 0 {
			c = strings.Compare(id(a).Hex(), id(b).Hex())
		}
		if q.SortOrder == "asc" {
			return c
		}
		return -c
	})
}
