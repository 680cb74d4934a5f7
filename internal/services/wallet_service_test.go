package services

import (
	"math"
	"testing"
	"time"

	"WalletLedger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetWallet(t *testing.T) {
	f := newFixture(t)
	a := f.wallet()

	w, err := f.wallets.GetWallet(f.ctx, f.app.AppID, a)
	require.NoError(t, err)
	assert.Equal(t, a, w.WalletID)
	assert.Empty(t, w.Currencies)

	f.fund(a, "12.5")
	w, err = f.wallets.GetWallet(f.ctx, f.app.AppID, a)
	require.NoError(t, err)
	require.Len(t, w.Currencies, 1)
	assert.Equal(t, f.currency, w.Currencies[0].CurrencyID)
	assert.True(t, w.Currencies[0].Balance.Equal(d("12.5")))

	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	_, err = f.wallets.GetWallet(f.ctx, other.AppID, a)
	assert.ErrorIs(t, err, ErrNotExists)
	_, err = f.wallets.GetWallet(f.ctx, f.app.AppID, 777777)
	assert.ErrorIs(t, err, ErrNotExists)
}

func TestSetMinBalance(t *testing.T) {
	f := newFixture(t)
	a := f.wallet()

	row, err := f.wallets.SetMinBalance(f.ctx, f.app.AppID, a, f.currency, d("-50"))
	require.NoError(t, err)
	assert.True(t, row.Balance.IsZero())
	assert.True(t, row.MinBalance.Equal(d("-50")))
	f.requireBalance(a, "0")

	f.fund(a, "20")
	_, err = f.wallets.SetMinBalance(f.ctx, f.app.AppID, a, f.currency, d("25"))
	require.ErrorIs(t, err, ErrInvalidOperation)

	row, err = f.wallets.SetMinBalance(f.ctx, f.app.AppID, a, f.currency, d("20"))
	require.NoError(t, err)
	assert.True(t, row.Balance.Equal(d("20")))

	_, err = f.wallets.SetMinBalance(f.ctx, f.app.AppID, a, 9999, d("0"))
	assert.ErrorIs(t, err, ErrNotExists)

	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	_, err = f.wallets.SetMinBalance(f.ctx, other.AppID, a, f.currency, d("0"))
	assert.ErrorIs(t, err, ErrNotExists)
}

func TestHistory_DeferredCreditAppearsAfterCapture(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	o := f.mustCreate(models.TransactionAuthorize, false, item(a, b, "10"))

	senderView, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, senderView, 2)
	assert.Equal(t, o.OrderID, senderView[0].OrderID)

	receiverView, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, b, HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, receiverView)

	_, err = f.orders.Capture(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	receiverView, err = f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, b, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, receiverView, 1)
	assert.Equal(t, models.OrderCaptured, receiverView[0].Status)
	assert.NotNil(t, receiverView[0].CapturedAt)
}

func TestHistory_VoidedOrdersStayVisible(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "100")
	o := f.mustCreate(models.TransactionSale, false, item(a, b, "10"))
	_, err := f.orders.Void(f.ctx, f.app.AppID, o.OrderID)
	require.NoError(t, err)

	items, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, b, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.OrderVoided, items[0].Status)
	assert.NotNil(t, items[0].VoidedAt)
}

func TestHistory_SkippedItemsHidden(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "10")
	f.mustCreate(models.TransactionSale, true, item(a, b, "10"), item(a, c, "10"))

	items, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, c, HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHistory_FiltersAndPaging(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.wallet(), f.wallet(), f.wallet()
	f.fund(a, "1000")

	for i := 0; i < 5; i++ {
		req := f.request(models.TransactionSale, false, item(a, b, "1"))
		req.OrderTypeID = 7
		_, err := f.orders.CreateOrder(f.ctx, f.app.AppID, req)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		f.mustCreate(models.TransactionSale, false, item(a, c, "1"))
	}

	all, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, all, 9)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "history must be newest first")
	}

	withB, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{ParticipantWalletID: &b})
	require.NoError(t, err)
	assert.Len(t, withB, 5)

	orderType := int64(7)
	typed, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{OrderTypeID: &orderType})
	require.NoError(t, err)
	assert.Len(t, typed, 5)

	page0, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{PageSize: 4})
	require.NoError(t, err)
	page2, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{PageSize: 4, PageNumber: 2})
	require.NoError(t, err)
	require.Len(t, page0, 4)
	require.Len(t, page2, 1)
	assert.Equal(t, all[0].OrderItemID, page0[0].OrderItemID)
	assert.Equal(t, all[8].OrderItemID, page2[0].OrderItemID)

	capped, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{PageSize: 1000})
	require.NoError(t, err)
	assert.Len(t, capped, 9)

	begin := all[3].CreatedAt
	end := all[1].CreatedAt
	window, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{BeginTime: &begin, EndTime: &end})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, all[2].OrderItemID, window[0].OrderItemID)
	assert.Equal(t, all[3].OrderItemID, window[1].OrderItemID)

	_, err = f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{BeginTime: &end, EndTime: &begin})
	assert.ErrorIs(t, err, ErrInvalidOperation)

	empty, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{PageNumber: 50})
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestHistory_OtherAppSeesNothing(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "10")
	f.mustCreate(models.TransactionSale, false, item(a, b, "5"))

	other, err := f.prov.CreateApp(f.ctx)
	require.NoError(t, err)
	items, err := f.wallets.GetWalletTransactions(f.ctx, other.AppID, a, HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, items)

	from := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	items, err = f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{BeginTime: &from})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestHistory_HugePageNumberIsEmpty(t *testing.T) {
	f := newFixture(t)
	a, b := f.wallet(), f.wallet()
	f.fund(a, "10")
	f.mustCreate(models.TransactionSale, false, item(a, b, "5"))

	items, err := f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{PageSize: 10, PageNumber: math.MaxInt/10 + 1})
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = f.wallets.GetWalletTransactions(f.ctx, f.app.AppID, a, HistoryQuery{PageNumber: math.MaxInt})
	require.NoError(t, err)
	assert.Empty(t, items)
}
