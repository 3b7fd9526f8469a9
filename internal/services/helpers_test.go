package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smartpark/backend/internal/audit"
	"github.com/smartpark/backend/internal/models"
	"github.com/smartpark/backend/internal/store"
	"github.com/smartpark/backend/internal/store/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var admin = Actor{ID: "admin-1", IsAdmin: true}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store    store.Store
	clock    *fakeClock
	slots    *SlotPool
	wallet   *WalletLedger
	tags     *TagService
	sessions *SessionManager
}

func newFixture(t *testing.T, totalSlots int) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New(totalSlots), time.Second)
}

func newFixtureWithStore(t *testing.T, st store.Store, timeout time.Duration) *fixture {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	auditLogger := audit.NewLogger(zap.NewNop())

	slots := NewSlotPool(st, auditLogger, nil, timeout)
	wallet := NewWalletLedger(st, auditLogger, nil, timeout)
	tags := NewTagService(st, wallet, auditLogger, timeout)
	tags.now = clock.Now
	sessions := NewSessionManager(st, slots, wallet, SessionConfig{
		RatePerMinute:   decimal.NewFromInt(2),
		DecisionTimeout: timeout,
	}, auditLogger, nil, WithClock(clock.Now))

	return &fixture{
		store:    st,
		clock:    clock,
		slots:    slots,
		wallet:   wallet,
		tags:     tags,
		sessions: sessions,
	}
}

func (f *fixture) register(t *testing.T, rfid string, balance int64) *models.Identity {
	t.Helper()
	identity, err := f.tags.Register(context.Background(), rfid, decimal.NewFromInt(balance), admin)
	require.NoError(t, err)
	return identity
}

func (f *fixture) balance(t *testing.T, rfid string) decimal.Decimal {
	t.Helper()
	b, err := f.wallet.BalanceOf(context.Background(), rfid)
	require.NoError(t, err)
	return b
}

func (f *fixture) status(t *testing.T) Status {
	t.Helper()
	s, err := f.sessions.Status(context.Background())
	require.NoError(t, err)
	return s
}

// faultyStore wraps a store and lets a test replace individual Tx methods.
type faultyStore struct {
	inner store.Store
	wrap  func(store.Tx) store.Tx
}

func (s *faultyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.inner.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, s.wrap(tx))
	})
}

type faultyTx struct {
	store.Tx
	insertSession func(ctx context.Context, session *models.Session) error
	releaseSlot   func(ctx context.Context, slotID int, identityID string) error
	identityByTag func(ctx context.Context, rfid string) (*models.Identity, error)
	occupancy     func(ctx context.Context) (*store.Occupancy, error)
}

func (t *faultyTx) InsertSession(ctx context.Context, session *models.Session) error {
	if t.insertSession != nil {
		return t.insertSession(ctx, session)
	}
	return t.Tx.InsertSession(ctx, session)
}

func (t *faultyTx) ReleaseSlot(ctx context.Context, slotID int, identityID string) error {
	if t.releaseSlot != nil {
		return t.releaseSlot(ctx, slotID, identityID)
	}
	return t.Tx.ReleaseSlot(ctx, slotID, identityID)
}

func (t *faultyTx) IdentityByTag(ctx context.Context, rfid string) (*models.Identity, error) {
	if t.identityByTag != nil {
		return t.identityByTag(ctx, rfid)
	}
	return t.Tx.IdentityByTag(ctx, rfid)
}

func (t *faultyTx) Occupancy(ctx context.Context) (*store.Occupancy, error) {
	if t.occupancy != nil {
		return t.occupancy(ctx)
	}
	return t.Tx.Occupancy(ctx)
}
