package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"WalletLedger/internal/models"

	"github.com/google/uuid"
)

// Memory is a transactional in-memory Store. Transactions are serialized and
// work on a private copy of the state that replaces the live one on commit.
type Memory struct {
	txMu    sync.Mutex
	relayMu sync.Mutex
	mu      sync.RWMutex
	st      *memState
	relayed map[int64]struct{}
}

func NewMemory() *Memory {
	return &Memory{st: newMemState(), relayed: map[int64]struct{}{}}
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	work := m.st.clone()
	m.mu.RUnlock()

	if err := fn(&memTx{memReader{work}}); err != nil {
		return err
	}

	m.mu.Lock()
	m.st = work
	m.mu.Unlock()
	return nil
}

// view returns the committed state. Committed states are never mutated in place.
func (m *Memory) view() memReader {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memReader{m.st}
}

func (m *Memory) GetApp(ctx context.Context, appID int64) (*models.App, error) {
	return m.view().GetApp(ctx, appID)
}

func (m *Memory) CurrencyExists(ctx context.Context, appID, currencyID int64) (bool, error) {
	return m.view().CurrencyExists(ctx, appID, currencyID)
}

func (m *Memory) GetWallet(ctx context.Context, walletID int64) (*models.Wallet, error) {
	return m.view().GetWallet(ctx, walletID)
}

func (m *Memory) ListBalances(ctx context.Context, walletID int64) ([]models.CurrencyBalance, error) {
	return m.view().ListBalances(ctx, walletID)
}

func (m *Memory) GetOrder(ctx context.Context, appID int64, orderID uuid.UUID) (*models.Order, error) {
	return m.view().GetOrder(ctx, appID, orderID)
}

func (m *Memory) ListWalletTransactions(ctx context.Context, f TransactionFilter) ([]models.OrderItemView, error) {
	return m.view().ListWalletTransactions(ctx, f)
}

func (m *Memory) ListEventsAfter(ctx context.Context, after int64, limit int) ([]models.OrderEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.OrderEvent
	for _, ev := range m.st.events {
		if ev.EventID <= after {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) RelayEvents(ctx context.Context, limit int, fn func([]models.OrderEvent) error) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.relayMu.Lock()
	defer m.relayMu.Unlock()

	m.mu.RLock()
	var batch []models.OrderEvent
	for _, ev := range m.st.events {
		if _, ok := m.relayed[ev.EventID]; ok {
			continue
		}
		batch = append(batch, ev)
		if limit > 0 && len(batch) == limit {
			break
		}
	}
	m.mu.RUnlock()
	if len(batch) == 0 {
		return 0, nil
	}

	if err := fn(batch); err != nil {
		return 0, err
	}

	m.mu.Lock()
	for _, ev := range batch {
		m.relayed[ev.EventID] = struct{}{}
	}
	m.mu.Unlock()
	return len(batch), nil
}

type balanceKey struct {
	walletID   int64
	currencyID int64
}

type orderKey struct {
	appID   int64
	orderID uuid.UUID
}

type memState struct {
	seq        map[string]int64
	apps       map[int64]models.App
	currencies map[int64]models.Currency
	wallets    map[int64]models.Wallet
	balances   map[balanceKey]models.CurrencyBalance
	orders     map[orderKey]*models.Order
	events     []models.OrderEvent
}

func newMemState() *memState {
	return &memState{
		seq:        map[string]int64{},
		apps:       map[int64]models.App{},
		currencies: map[int64]models.Currency{},
		wallets:    map[int64]models.Wallet{},
		balances:   map[balanceKey]models.CurrencyBalance{},
		orders:     map[orderKey]*models.Order{},
	}
}

func (s *memState) next(name string) int64 {
	s.seq[name]++
	return s.seq[name]
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.apps {
		c.apps[k] = v
	}
	for k, v := range s.currencies {
		c.currencies[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	c.events = append(c.events, s.events...)
	return c
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	if o.CapturedAt != nil {
		t := *o.CapturedAt
		c.CapturedAt = &t
	}
	if o.VoidedAt != nil {
		t := *o.VoidedAt
		c.VoidedAt = &t
	}
	return &c
}

type memReader struct {
	st *memState
}

func (r memReader) GetApp(_ context.Context, appID int64) (*models.App, error) {
	app, ok := r.st.apps[appID]
	if !ok {
		return nil, ErrNotFound
	}
	return &app, nil
}

func (r memReader) CurrencyExists(_ context.Context, appID, currencyID int64) (bool, error) {
	c, ok := r.st.currencies[currencyID]
	return ok && c.AppID == appID, nil
}

func (r memReader) GetWallet(_ context.Context, walletID int64) (*models.Wallet, error) {
	w, ok := r.st.wallets[walletID]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (r memReader) ListBalances(_ context.Context, walletID int64) ([]models.CurrencyBalance, error) {
	var out []models.CurrencyBalance
	for k, b := range r.st.balances {
		if k.walletID == walletID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrencyID < out[j].CurrencyID })
	return out, nil
}

func (r memReader) GetOrder(_ context.Context, appID int64, orderID uuid.UUID) (*models.Order, error) {
	o, ok := r.st.orders[orderKey{appID, orderID}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r memReader) ListWalletTransactions(_ context.Context, f TransactionFilter) ([]models.OrderItemView, error) {
	var out []models.OrderItemView
	for k, o := range r.st.orders {
		if k.appID != f.AppID {
			continue
		}
		if f.BeginTime != nil && o.CreatedAt.Before(*f.BeginTime) {
			continue
		}
		if f.EndTime != nil && !o.CreatedAt.Before(*f.EndTime) {
			continue
		}
		if f.OrderTypeID != nil && o.OrderTypeID != *f.OrderTypeID {
			continue
		}
		if f.CurrencyID != nil && o.CurrencyID != *f.CurrencyID {
			continue
		}
		for _, item := range o.Items {
			if !item.Applied {
				continue
			}
			var counterparty int64
			switch {
			case item.SenderWalletID == f.WalletID:
				counterparty = item.ReceiverWalletID
			case item.ReceiverWalletID == f.WalletID && o.CreditPosted():
				counterparty = item.SenderWalletID
			default:
				continue
			}
			if f.ParticipantWalletID != nil && counterparty != *f.ParticipantWalletID {
				continue
			}
			out = append(out, models.OrderItemView{
				OrderID:          o.OrderID,
				CurrencyID:       o.CurrencyID,
				OrderTypeID:      o.OrderTypeID,
				OrderItemID:      item.OrderItemID,
				SenderWalletID:   item.SenderWalletID,
				ReceiverWalletID: item.ReceiverWalletID,
				Amount:           item.Amount,
				Status:           o.Status,
				TransactionType:  o.TransactionType,
				CreatedAt:        o.CreatedAt,
				CapturedAt:       o.CapturedAt,
				VoidedAt:         o.VoidedAt,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].OrderItemID > out[j].OrderItemID
	})

	if f.Offset < 0 || f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

type memTx struct {
	memReader
}

func (t *memTx) WalletApps(_ context.Context, walletIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(walletIDs))
	for _, id := range walletIDs {
		if w, ok := t.st.wallets[id]; ok {
			out[id] = w.AppID
		}
	}
	return out, nil
}

func (t *memTx) GetBalanceForUpdate(_ context.Context, walletID, currencyID int64) (*models.CurrencyBalance, error) {
	b, ok := t.st.balances[balanceKey{walletID, currencyID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (t *memTx) SaveBalance(_ context.Context, b *models.CurrencyBalance) error {
	t.st.balances[balanceKey{b.WalletID, b.CurrencyID}] = *b
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, o *models.Order) error {
	key := orderKey{o.AppID, o.OrderID}
	if _, ok := t.st.orders[key]; ok {
		return fmt.Errorf("%w: orders_pkey", ErrDuplicate)
	}
	for i := range o.Items {
		o.Items[i].OrderItemID = t.st.next("order_item")
	}
	t.st.orders[key] = cloneOrder(o)
	return nil
}

func (t *memTx) UpdateOrder(_ context.Context, o *models.Order) error {
	key := orderKey{o.AppID, o.OrderID}
	if _, ok := t.st.orders[key]; !ok {
		return ErrNotFound
	}
	t.st.orders[key] = cloneOrder(o)
	return nil
}

func (t *memTx) AppendEvent(_ context.Context, e *models.OrderEvent) error {
	e.EventID = t.st.next("order_event")
	t.st.events = append(t.st.events, *e)
	return nil
}

func (t *memTx) InsertApp(_ context.Context, app *models.App) error {
	app.AppID = t.st.next("app")
	t.st.apps[app.AppID] = *app
	return nil
}

func (t *memTx) SetSystemWallet(_ context.Context, appID, walletID int64) error {
	app, ok := t.st.apps[appID]
	if !ok {
		return ErrNotFound
	}
	app.SystemWalletID = walletID
	t.st.apps[appID] = app
	return nil
}

func (t *memTx) InsertCurrency(_ context.Context, c *models.Currency) error {
	c.CurrencyID = t.st.next("currency")
	t.st.currencies[c.CurrencyID] = *c
	return nil
}

func (t *memTx) InsertWallet(_ context.Context, w *models.Wallet) error {
	w.WalletID = t.st.next("wallet")
	t.st.wallets[w.WalletID] = models.Wallet{WalletID: w.WalletID, AppID: w.AppID, CreatedAt: w.CreatedAt}
	return nil
}
