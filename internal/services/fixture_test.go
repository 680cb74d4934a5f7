package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"WalletLedger/internal/lock"
	"WalletLedger/internal/models"
	"WalletLedger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// stepClock advances one second per reading so creation order is strict.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev models.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []models.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.OrderEvent(nil), p.events...)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *store.Memory
	locker   *lock.Local
	clock    *stepClock
	pub      *recordingPublisher
	orders   *OrderService
	wallets  *WalletService
	prov     *ProvisioningService
	app      *models.App
	currency int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	locker := lock.NewLocal(time.Second)
	pub := &recordingPublisher{}

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		store:  st,
		locker: locker,
		clock:  clock,
		pub:    pub,
		orders: &OrderService{
			Store:     st,
			Locker:    locker,
			Validator: Validator{SystemWallet: SystemWalletSaleOnly},
			Publisher: pub,
			Now:       clock.Now,
		},
		wallets: &WalletService{
			Store:              st,
			Locker:             locker,
			Now:                clock.Now,
			HistoryPageSize:    10,
			HistoryMaxPageSize: 20,
		},
		prov: &ProvisioningService{
			Store:                  st,
			Now:                    clock.Now,
			SystemWalletMinBalance: d("-1000000"),
		},
	}

	app, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	f.app = app
	c, err := f.prov.CreateCurrency(f.ctx, app.AppID)
	require.NoError(t, err)
	f.currency = c.CurrencyID
	return f
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (f *fixture) wallet() int64 {
	f.t.Helper()
	w, err := f.prov.CreateWallet(f.ctx, f.app.AppID)
	require.NoError(f.t, err)
	return w.WalletID
}

func item(sender, receiver int64, amount string) TransferItem {
	return TransferItem{SenderWalletID: sender, ReceiverWalletID: receiver, Amount: d(amount)}
}

func (f *fixture) request(typ models.TransactionType, partial bool, items ...TransferItem) CreateOrderRequest {
	return CreateOrderRequest{
		OrderID:             uuid.New(),
		CurrencyID:          f.currency,
		OrderTypeID:         1,
		TransactionType:     typ,
		AllowPartialSuccess: partial,
		Items:               items,
	}
}

func (f *fixture) create(typ models.TransactionType, partial bool, items ...TransferItem) (*models.Order, error) {
	return f.orders.CreateOrder(f.ctx, f.app.AppID, f.request(typ, partial, items...))
}

func (f *fixture) mustCreate(typ models.TransactionType, partial bool, items ...TransferItem) *models.Order {
	f.t.Helper()
	o, err := f.create(typ, partial, items...)
	require.NoError(f.t, err)
	return o
}

// fund issues amount to walletID from the system wallet.
func (f *fixture) fund(walletID int64, amount string) {
	f.t.Helper()
	f.mustCreate(models.TransactionSale, false, item(f.app.SystemWalletID, walletID, amount))
}

// balance returns the wallet's row in the fixture currency, if it exists.
func (f *fixture) balance(walletID int64) (decimal.Decimal, bool) {
	f.t.Helper()
	rows, err := f.store.ListBalances(f.ctx, walletID)
	require.NoError(f.t, err)
	for _, r := range rows {
		if r.CurrencyID == f.currency {
			return r.Balance, true
		}
	}
	return decimal.Zero, false
}

func (f *fixture) requireBalance(walletID int64, want string) {
	f.t.Helper()
	got, ok := f.balance(walletID)
	require.True(f.t, ok, "wallet %d has no balance row", walletID)
	require.True(f.t, got.Equal(d(want)), "wallet %d balance = %s, want %s", walletID, got, want)
}

func (f *fixture) requireNoRow(walletID int64) {
	f.t.Helper()
	_, ok := f.balance(walletID)
	require.False(f.t, ok, "wallet %d should have no balance row", walletID)
}
