package services

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ArowuTest/pollstake-backend/internal/models"
	"github.com/ArowuTest/pollstake-backend/internal/repositories/memory"
	"github.com/ArowuTest/pollstake-backend/pkg/notify"
	"github.com/ArowuTest/pollstake-backend/pkg/paystack"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	adminUser    = models.Principal{UserID: "admin-1", Role: models.RoleAdmin}
	subAdminUser = models.Principal{UserID: "sub-1", Role: models.RoleSubAdmin}
)

func player(id string) models.Principal {
	return models.Principal{UserID: id, Role: models.RoleUser}
}

// stubGateway is a scriptable payment gateway
type stubGateway struct {
	mu sync.Mutex

	initErr     error
	transferErr error
	// transferStatus is what InitiateTransfer reports; defaults to success
	transferStatus string

	verifyTransferErr    error
	verifyTransferStatus string

	verifyChargeErr error
	charges         map[string]*paystack.Verification

	transfers   []paystack.TransferRequest
	verifyCalls int
}

func newStubGateway() *stubGateway {
	return &stubGateway{charges: make(map[string]*paystack.Verification)}
}

func (g *stubGateway) InitializeTransaction(_ context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &paystack.InitializeResponse{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *stubGateway) VerifyTransaction(_ context.Context, reference string) (*paystack.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyChargeErr != nil {
		return nil, g.verifyChargeErr
	}
	v, ok := g.charges[reference]
	if !ok {
		return nil, &paystack.APIError{StatusCode: http.StatusNotFound, Message: "Transaction reference not found"}
	}
	return v, nil
}

func (g *stubGateway) InitiateTransfer(_ context.Context, req paystack.TransferRequest) (*paystack.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transfers = append(g.transfers, req)
	if g.transferErr != nil {
		return nil, g.transferErr
	}
	status := g.transferStatus
	if status == "" {
		status = paystack.StatusSuccess
	}
	return &paystack.Transfer{Reference: req.Reference, TransferCode: "TRF_" + req.Reference, Status: status, Amount: req.Amount}, nil
}

func (g *stubGateway) VerifyTransfer(_ context.Context, reference string) (*paystack.Transfer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verifyCalls++
	if g.verifyTransferErr != nil {
		return nil, g.verifyTransferErr
	}
	return &paystack.Transfer{Reference: reference, TransferCode: "TRF_" + reference, Status: g.verifyTransferStatus}, nil
}

func (g *stubGateway) VerifySignature(_ []byte, signature string) bool {
	return signature == "valid-signature"
}

func (g *stubGateway) script(fn func(g *stubGateway)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

func (g *stubGateway) transferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.transfers)
}

// recordingNotifier keeps every published event
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Close() error { return nil }

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// testEnv wires every service against one in-memory store
type testEnv struct {
	wallets      *memory.WalletRepository
	transactions *memory.TransactionRepository
	stakes       *memory.StakeRepository
	polls        *memory.PollRepository

	gateway  *stubGateway
	notifier *recordingNotifier

	settings  *PlatformSettingsServiceImpl
	wallet    *WalletServiceImpl
	stake     *StakeServiceImpl
	lifecycle *LifecycleServiceImpl
	poll      *PollServiceImpl
	admin     *AdminServiceImpl

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithSettings(t, models.DefaultPlatformSettings())
}

func newTestEnvWithSettings(t *testing.T, defaults models.PlatformSettings) *testEnv {
	t.Helper()
	store := memory.NewStore()
	env := &testEnv{
		wallets:      memory.NewWalletRepository(store),
		transactions: memory.NewTransactionRepository(store),
		stakes:       memory.NewStakeRepository(store),
		polls:        memory.NewPollRepository(store),
		gateway:      newStubGateway(),
		notifier:     &recordingNotifier{},
		now:          testNow,
	}

	env.settings = NewPlatformSettingsService(memory.NewPlatformSettingsRepository(store), defaults, time.Minute)
	env.settings.nowFn = env.clock
	env.wallet = NewWalletService(store, env.wallets, env.transactions, env.settings, env.gateway, env.notifier, nil,
		ReconcileOptions{StaleAfter: 10 * time.Minute, BatchSize: 2})
	env.wallet.nowFn = env.clock
	env.stake = NewStakeService(store, env.stakes, env.polls, env.wallet, env.settings, env.notifier, nil)
	env.stake.nowFn = env.clock
	env.lifecycle = NewLifecycleService(store, env.polls, env.stakes, env.wallet, env.settings, env.notifier, nil)
	env.lifecycle.nowFn = env.clock
	env.poll = NewPollService(env.polls)
	env.poll.nowFn = env.clock
	env.admin = NewAdminService(env.lifecycle, env.polls, env.transactions, env.wallets)
	return env
}

func (e *testEnv) clock() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// fund credits a user's wallet as if a deposit had cleared
func (e *testEnv) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := e.wallet.Credit(context.Background(), LedgerEntry{
		UserID:    userID,
		Amount:    amount,
		Type:      models.TransactionTypeDeposit,
		Reference: "seed:" + uuid.NewString(),
	})
	require.NoError(t, err)
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	w, err := e.wallet.GetBalance(context.Background(), userID)
	require.NoError(t, err)
	return w.AvailableBalance
}

// createPoll publishes a poll with the given option texts and no end time
func (e *testEnv) createPoll(t *testing.T, options ...string) *models.Poll {
	t.Helper()
	poll, err := e.poll.CreatePoll(context.Background(), adminUser, models.CreatePollRequest{
		Title:    "Who wins the finale?",
		Category: "reality-tv",
		Options:  options,
	})
	require.NoError(t, err)
	return poll
}

func (e *testEnv) placeStake(t *testing.T, userID string, poll *models.Poll, option int, amount int64) *models.Stake {
	t.Helper()
	st, err := e.stake.PlaceStake(context.Background(), player(userID), models.PlaceStakeRequest{
		PollID:           poll.ID.Hex(),
		SelectedOptionID: poll.Options[option].ID.Hex(),
		Amount:           amount,
	})
	require.NoError(t, err)
	return st
}
