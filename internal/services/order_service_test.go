package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"WalletLedger/internal/lock"
	"WalletLedger/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder_AuthorizeHoldsCredit(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")

	o := f.mustCreate(models.TransactionAuthorize, false, item(a, b, "30"))

	assert.Equal(t, models.OrderAuthorized, o.Status)
	assert.Nil(t, o.CapturedAt)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].Applied)
	assert.NotZero(t, o.Items[0].OrderItemID)
	f.requireBalance(a, "70")
	f.requireNoRow(b)
}

func TestCreateOrder_SalePostsBothLegs(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")

	o := f.mustCreate(models.TransactionSale, false, item(a, b, "30.25"))

	assert.Equal(t, models.OrderCaptured, o.Status)
	require.NotNil(t, o.CapturedAt)
	assert.Equal(t, o.CreatedAt, *o.CapturedAt)
	f.requireBalance(a, "69.75")
	f.requireBalance(b, "30.25")
}

func TestCreateOrder_AtomicFailureChangesNothing(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "50")

	req := f.request(models.TransactionSale, false, item(a, b, "30"), item(a, c, "30"))
	_, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)

	require.ErrorIs(t, err, ErrInsufficientBalance)
	f.requireBalance(a, "50")
	f.requireNoRow(b)
	f.requireNoRow(c)
	_, err = f.orders.GetOrder(f.ctx, f.app.AppID, req.OrderID)
	assert.ErrorIs(t, err, ErrNotExists)
}

func TestCreateOrder_PartialSuccess(t *testing.T) {
	f := newFixture(t)
	a, b, c, e := f.wallet(), f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "50")

	o := f.mustCreate(models.TransactionSale, true, item(a, b, "30"), item(a, c, "30"), item(a, e, "20"))

	require.Len(t, o.Items, 3)
	assert.True(t, o.Items[0].Applied)
	assert.False(t, o.Items[1].Applied)
	assert.True(t, o.Items[2].Applied)
	f.requireBalance(a, "0")
	f.requireBalance(b, "30")
	f.requireNoRow(c)
	f.requireBalance(e, "20")
}

func TestCreateOrder_PartialWithNothingApplied(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()

	o := f.mustCreate(models.TransactionAuthorize, true, item(a, b, "1"))

	require.Len(t, o.Items, 1)
	assert.False(t, o.Items[0].Applied)
	f.requireNoRow(a)
	f.requireNoRow(b)
}

func TestCreateOrder_RunningBalancesAcrossItems(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "50")

	// b starts empty; the credit from the first item funds the second.
	f.mustCreate(models.TransactionSale, false, item(a, b, "50"), item(b, c, "40"))

	f.requireBalance(a, "0")
	f.requireBalance(b, "10")
	f.requireBalance(c, "40")
}

func TestCreateOrder_RunningBalancesSameSender(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "50")

	_, err := f.create(models.TransactionAuthorize, false, item(a, b, "40"), item(a, c, "20"))

	require.ErrorIs(t, err, ErrInsufficientBalance)
	f.requireBalance(a, "50")
}

func TestCreateOrder_NegativeFloorAllowsOverdraft(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	_, err := f.wallets.SetMinBalance(f.ctx, f.app.AppID, a, f.currency, d("-100"))
	require.NoError(t, err)

	f.mustCreate(models.TransactionSale, false, item(a, b, "100"))
	f.requireBalance(a, "-100")

	_, err = f.create(models.TransactionSale, false, item(a, b, "0.01"))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreateOrder_DefaultMinBalanceForNewRows(t *testing.T) {
	f := newFixture(t)
	f.orders.Executor.DefaultMinBalance = d("-10")
	a, b := f.wallet(), f.wallet()

	f.mustCreate(models.TransactionSale, false, item(a, b, "10"))

	f.requireBalance(a, "-10")
	rows, err := f.store.ListBalances(f.ctx, a)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].MinBalance.Equal(d("-10")))
}

func TestCreateOrder_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")

	req := f.request(models.TransactionSale, false, item(a, b, "10"))
	first, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.NoError(t, err)

	req.Items = []TransferItem{item(a, b, "99")}
	second, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	require.Len(t, second.Items, 1)
	assert.True(t, second.Items[0].Amount.Equal(d("10")))
	f.requireBalance(a, "90")
	f.requireBalance(b, "10")
}

func TestCreateOrder_ReplaySkipsValidation(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")

	req := f.request(models.TransactionAuthorize, false, item(a, b, "10"))
	_, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.NoError(t, err)

	req.Items = nil
	o, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.NoError(t, err)
	assert.Len(t, o.Items, 1)
}

func TestCreateOrder_SameOrderIDInAnotherApp(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	req := f.request(models.TransactionSale, false, item(a, b, "10"))
	_, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.NoError(t, err)

	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	cur, err := f.prov.CreateCurrency(f.ctx, other.AppID)
	require.NoError(t, err)
	x, err := f.prov.CreateWallet(f.ctx, other.AppID)
	require.NoError(t, err)

	otherReq := req
	otherReq.CurrencyID = cur.CurrencyID
	otherReq.Items = []TransferItem{item(other.SystemWalletID, x.WalletID, "5")}
	o, err := f.orders.CreateOrder(f.ctx, other.AppID, otherReq)
	require.NoError(t, err)
	assert.Equal(t, other.AppID, o.AppID)
	assert.True(t, o.Items[0].Amount.Equal(d("5")))
}

func TestCreateOrder_Validation(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "100")

	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	foreign, err := f.prov.CreateWallet(f.ctx, other.AppID)
	require.NoError(t, err)
	foreignCurrency, err := f.prov.CreateCurrency(f.ctx, other.AppID)
	require.NoError(t, err)

	cases := []struct {
		name    string
		mutate  func(*CreateOrderRequest)
		wantErr error
		wantMsg string
	}{
		{
			name:    "unknown currency",
			mutate:  func(r *CreateOrderRequest) { r.CurrencyID = 9999 },
			wantErr: ErrNotExists,
		},
		{
			name:    "currency of another app",
			mutate:  func(r *CreateOrderRequest) { r.CurrencyID = foreignCurrency.CurrencyID },
			wantErr: ErrNotExists,
		},
		{
			name:    "no items",
			mutate:  func(r *CreateOrderRequest) { r.Items = nil },
			wantErr: ErrInvalidOperation,
		},
		{
			name:    "unknown transaction type",
			mutate:  func(r *CreateOrderRequest) { r.TransactionType = "Refund" },
			wantErr: ErrInvalidTransactionType,
		},
		{
			name:    "zero amount",
			mutate:  func(r *CreateOrderRequest) { r.Items[0].Amount = d("0") },
			wantErr: ErrInvalidOperation,
			wantMsg: "Amount",
		},
		{
			name:    "negative amount",
			mutate:  func(r *CreateOrderRequest) { r.Items[0].Amount = d("-1") },
			wantErr: ErrInvalidOperation,
			wantMsg: "Amount",
		},
		{
			name:    "duplicate pair",
			mutate:  func(r *CreateOrderRequest) { r.Items = append(r.Items, item(a, b, "2")) },
			wantErr: ErrInvalidOperation,
			wantMsg: "duplicate records",
		},
		{
			name:    "self transfer",
			mutate:  func(r *CreateOrderRequest) { r.Items = append(r.Items, item(c, c, "2")) },
			wantErr: ErrInvalidOperation,
			wantMsg: "SenderWallet and ReceiverWallet can not be same.",
		},
		{
			name:    "wallet of another app",
			mutate:  func(r *CreateOrderRequest) { r.Items = append(r.Items, item(a, foreign.WalletID, "2")) },
			wantErr: ErrInvalidOperation,
			wantMsg: "some wallets does not belong to the app",
		},
		{
			name:    "unknown wallet",
			mutate:  func(r *CreateOrderRequest) { r.Items = append(r.Items, item(a, 424242, "2")) },
			wantErr: ErrInvalidOperation,
			wantMsg: "424242",
		},
		{
			name: "system wallet authorizing",
			mutate: func(r *CreateOrderRequest) {
				r.TransactionType = models.TransactionAuthorize
				r.Items = []TransferItem{item(f.app.SystemWalletID, a, "1")}
			},
			wantErr: ErrInvalidOperation,
		},
		{
			name:    "amount checked before self transfer",
			mutate:  func(r *CreateOrderRequest) { r.Items = []TransferItem{item(c, c, "0")} },
			wantErr: ErrInvalidOperation,
			wantMsg: "Amount",
		},
		{
			name: "amount checked before duplicates",
			mutate: func(r *CreateOrderRequest) {
				r.Items = []TransferItem{item(a, b, "1"), item(a, b, "1"), item(c, a, "0")}
			},
			wantErr: ErrInvalidOperation,
			wantMsg: "Amount",
		},
		{
			name:    "nil order id",
			mutate:  func(r *CreateOrderRequest) { r.OrderID = uuid.Nil },
			wantErr: ErrInvalidOperation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := f.request(models.TransactionSale, false, item(a, b, "1"))
			tc.mutate(&req)

			_, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
			require.ErrorIs(t, err, tc.wantErr)
			if tc.wantMsg != "" {
				assert.Contains(t, err.Error(), tc.wantMsg)
			}
			f.requireBalance(a, "100")
		})
	}
	f.requireNoRow(b)
}

func TestCreateOrder_ForeignWalletsListed(t *testing.T) {
	f := newFixture(t)
	a := f.wallet()
	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	x, err := f.prov.CreateWallet(f.ctx, other.AppID)
	require.NoError(t, err)
	y, err := f.prov.CreateWallet(f.ctx, other.AppID)
	require.NoError(t, err)

	_, err = f.create(models.TransactionSale, false, item(a, x.WalletID, "1"), item(y.WalletID, a, "1"))

	require.ErrorIs(t, err, ErrInvalidOperation)
	assert.Contains(t, err.Error(), fmt.Sprintf("some wallets does not belong to the app: %d, %d", x.WalletID, y.WalletID))
}

func TestCreateOrder_SystemWalletPolicy(t *testing.T) {
	f := newFixture(t)
	a := f.wallet()
	sys := f.app.SystemWalletID

	f.orders.Validator.SystemWallet = SystemWalletDeny
	_, err := f.create(models.TransactionSale, false, item(sys, a, "1"))
	require.ErrorIs(t, err, ErrInvalidOperation)

	f.orders.Validator.SystemWallet = SystemWalletAllow
	f.mustCreate(models.TransactionAuthorize, false, item(sys, a, "1"))
	f.requireBalance(sys, "-1")
}

func TestCapture(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "100")
	o := f.mustCreate(models.TransactionAuthorize, false, item(a, b, "30"), item(a, c, "20"))

	captured, err := f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderCaptured, captured.Status)
	require.NotNil(t, captured.CapturedAt)
	f.requireBalance(a, "50")
	f.requireBalance(b, "30")
	f.requireBalance(c, "20")

	_, err = f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.ErrorIs(t, err, ErrOrderAlreadySetAsRequestedState)
	f.requireBalance(b, "30")
}

func TestCapture_OnlyAppliedItems(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "40")
	o := f.mustCreate(models.TransactionAuthorize, true, item(a, b, "30"), item(a, c, "20"))
	require.False(t, o.Items[1].Applied)

	_, err := f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	f.requireBalance(a, "10")
	f.requireBalance(b, "30")
	f.requireNoRow(c)
}

func TestCapture_Rejections(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")

	sale := f.mustCreate(models.TransactionSale, false, item(a, b, "10"))
	_, err := f.orders.Capture(f.ctx, f.app.AppID, sale.OrderID)
	require.ErrorIs(t, err, ErrInvalidTransactionType)

	auth := f.mustCreate(models.TransactionAuthorize, false, item(a, b, "10"))
	_, err = f.orders.Void(f.ctx, f.app.AppID, auth.OrderID)
	require.NoError(t, err)
	_, err = f.orders.Capture(f.ctx, f.app.AppID, auth.OrderID)
	require.ErrorIs(t, err, ErrInvalidTransactionType)

	_, err = f.orders.Capture(f.ctx, f.app.AppID, uuid.New())
	require.ErrorIs(t, err, ErrNotExists)

	f.requireBalance(a, "90")
	f.requireBalance(b, "10")
}

func TestVoid_UncapturedAuthorizeRestoresSenders(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	o := f.mustCreate(models.TransactionAuthorize, false, item(a, b, "30"))

	voided, err := f.orders.Void(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	assert.Equal(t, models.OrderVoided, voided.Status)
	require.NotNil(t, voided.VoidedAt)
	assert.Nil(t, voided.CapturedAt)
	f.requireBalance(a, "100")
	f.requireNoRow(b)

	_, err = f.orders.Void(f.ctx, f.app.AppID, o.OrderID)
	require.ErrorIs(t, err, ErrOrderAlreadySetAsRequestedState)
	f.requireBalance(a, "100")
}

func TestVoid_CapturedRestoresBothSides(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	o := f.mustCreate(models.TransactionAuthorize, false, item(a, b, "30"))
	_, err := f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	_, err = f.orders.Void(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	f.requireBalance(a, "100")
	f.requireBalance(b, "0")
}

func TestVoid_SaleIgnoresReceiverFloor(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "100")
	sale := f.mustCreate(models.TransactionSale, false, item(a, b, "30"))
	f.mustCreate(models.TransactionSale, false, item(b, c, "30"))

	_, err := f.orders.Void(f.ctx, f.app.AppID, sale.OrderID)
	require.NoError(t, err)

	f.requireBalance(a, "100")
	f.requireBalance(b, "-30")
	f.requireBalance(c, "30")
}

func TestVoid_PartialOrderReversesAppliedOnly(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "40")
	f.fund(c, "5")
	o := f.mustCreate(models.TransactionSale, true, item(a, b, "30"), item(c, b, "20"))

	_, err := f.orders.Void(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	f.requireBalance(a, "40")
	f.requireBalance(b, "0")
	f.requireBalance(c, "5")
}

func TestVoid_UnknownOrder(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.Void(f.ctx, f.app.AppID, uuid.New())
	require.ErrorIs(t, err, ErrNotExists)
}

func TestOrders_ConcurrentDebitsRespectFloor(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")

	const n = 40
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		rejected  int
		unexpects []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.create(models.TransactionSale, false, item(a, b, "10"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientBalance):
				rejected++
			default:
				unexpects = append(unexpects, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, unexpects)
	assert.Equal(t, 10, ok)
	assert.Equal(t, n-10, rejected)
	f.requireBalance(a, "0")
	f.requireBalance(b, "100")
}

func TestOrders_ConcurrentReplaysCreateOnce(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	req := f.request(models.TransactionSale, false, item(a, b, "10"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f.requireBalance(a, "90")
	f.requireBalance(b, "10")
}

func TestOrders_LockTimeout(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	f.orders.Locker = lock.NewLocal(30 * time.Millisecond)
	held := f.orders.Locker

	unlock, err := held.Lock(f.ctx, lock.AppKey(f.app.AppID))
	require.NoError(t, err)
	defer unlock()

	_, err = f.create(models.TransactionSale, false, item(a, b, "10"))
	require.ErrorIs(t, err, lock.ErrLockTimeout)
	assert.Equal(t, "LockTimeout", Kind(err))
	f.requireBalance(a, "100")
}

func TestOrders_CancelledBeforeLockRunsNothing(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := f.request(models.TransactionSale, false, item(a, b, "10"))
	_, err := f.orders.CreateOrder(ctx, f.app.AppID, req)

	require.ErrorIs(t, err, context.Canceled)
	f.requireBalance(a, "100")
	_, err = f.orders.GetOrder(f.ctx, f.app.AppID, req.OrderID)
	assert.ErrorIs(t, err, ErrNotExists)
}

func TestOrders_OtherAppsDoNotWait(t *testing.T) {
	f := newFixture(t)
	f.orders.Locker = lock.NewLocal(30 * time.Millisecond)

	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	cur, err := f.prov.CreateCurrency(f.ctx, other.AppID)
	require.NoError(t, err)
	x, err := f.prov.CreateWallet(f.ctx, other.AppID)
	require.NoError(t, err)

	unlock, err := f.orders.Locker.Lock(f.ctx, lock.AppKey(f.app.AppID))
	require.NoError(t, err)
	defer unlock()

	_, err = f.orders.CreateOrder(f.ctx, other.AppID, CreateOrderRequest{
		OrderID:         uuid.New(),
		CurrencyID:      cur.CurrencyID,
		TransactionType: models.TransactionSale,
		Items:           []TransferItem{item(other.SystemWalletID, x.WalletID, "1")},
	})
	require.NoError(t, err)
}

func TestOrders_EventsPublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	before := len(f.pub.Events())

	req := f.request(models.TransactionAuthorize, false, item(a, b, "10"))
	o, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.NoError(t, err)
	_, err = f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)
	_, err = f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.Error(t, err)
	_, err = f.orders.Void(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	published := f.pub.Events()[before:]
	require.Len(t, published, 3)
	assert.Equal(t, models.EventOrderCreated, published[0].Type)
	assert.Equal(t, models.EventOrderCaptured, published[1].Type)
	assert.Equal(t, models.EventOrderVoided, published[2].Type)
	for _, ev := range published {
		assert.Equal(t, o.OrderID, ev.OrderID)
		assert.NotZero(t, ev.EventID)
		assert.NotEmpty(t, ev.Payload)
	}

	outbox, err := f.store.ListEventsAfter(f.ctx, published[0].EventID-1, 0)
	require.NoError(t, err)
	require.Len(t, outbox, 3)
	assert.Equal(t, published[2].EventID, outbox[2].EventID)
}

func TestOrders_FailedCreateEmitsNoEvent(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	before := len(f.pub.Events())

	_, err := f.create(models.TransactionSale, false, item(a, b, "10"))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	assert.Len(t, f.pub.Events(), before)
}

func TestGetOrder(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	o := f.mustCreate(models.TransactionAuthorize, false, item(a, b, "10"))

	got, err := f.orders.GetOrder(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderID, got.OrderID)
	assert.Equal(t, models.OrderAuthorized, got.Status)
	require.Len(t, got.Items, 1)

	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	_, err = f.orders.GetOrder(f.ctx, other.AppID, o.OrderID)
	assert.ErrorIs(t, err, ErrNotExists)
}

func TestOrders_AuthorizeChainThenCapture(t *testing.T) {
	f := newFixture(t)
	a, b, c, dw := f.wallet(), f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "100")
	for _, w := range []int64{b, c} {
		_, err := f.wallets.SetMinBalance(f.ctx, f.app.AppID, w, f.currency, d("-100"))
		require.NoError(t, err)
	}

	o := f.mustCreate(models.TransactionAuthorize, false,
		item(a, b, "100"),
		item(b, c, "90"),
		item(c, dw, "80"),
	)
	f.requireBalance(a, "0")
	f.requireBalance(b, "-90")
	f.requireBalance(c, "-80")
	f.requireNoRow(dw)

	_, err := f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)
	f.requireBalance(a, "0")
	f.requireBalance(b, "10")
	f.requireBalance(c, "10")
	f.requireBalance(dw, "80")
}

func TestOrders_ZeroRowAtFloorRejectsAuthorize(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	_, err := f.wallets.SetMinBalance(f.ctx, f.app.AppID, a, f.currency, d("0"))
	require.NoError(t, err)
	f.requireBalance(a, "0")

	req := f.request(models.TransactionAuthorize, false, item(a, b, "100"))
	_, err = f.orders.CreateOrder(f.ctx, f.app.AppID, req)
	require.ErrorIs(t, err, ErrInsufficientBalance)

	f.requireBalance(a, "0")
	f.requireNoRow(b)
	_, err = f.orders.GetOrder(f.ctx, f.app.AppID, req.OrderID)
	require.ErrorIs(t, err, ErrNotExists)
}
