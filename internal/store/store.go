package store

import (
	"context"
	"errors"
	"time"

	"WalletLedger/internal/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
)

// TransactionFilter selects posted order item legs touching WalletID.
type TransactionFilter struct {
	AppID               int64
	WalletID            int64
	ParticipantWalletID *int64
	BeginTime           *time.Time
	EndTime             *time.Time
	OrderTypeID         *int64
	CurrencyID          *int64
	Limit               int
	Offset              int
}

// Reader holds the lookups that are valid both inside and outside a transaction.
type Reader interface {
	GetApp(ctx context.Context, appID int64) (*models.App, error)
	CurrencyExists(ctx context.Context, appID, currencyID int64) (bool, error)
	GetWallet(ctx context.Context, walletID int64) (*models.Wallet, error)
	ListBalances(ctx context.Context, walletID int64) ([]models.CurrencyBalance, error)
	GetOrder(ctx context.Context, appID int64, orderID uuid.UUID) (*models.Order, error)
	ListWalletTransactions(ctx context.Context, f TransactionFilter) ([]models.OrderItemView, error)
}

// Tx is a unit of work. Everything written through it commits or rolls back together.
type Tx interface {
	Reader

	// WalletApps maps each known wallet id to its owning app. Unknown ids are absent.
	WalletApps(ctx context.Context, walletIDs []int64) (map[int64]int64, error)
	// GetBalanceForUpdate locks and returns the row, or ErrNotFound when it was never created.
	GetBalanceForUpdate(ctx context.Context, walletID, currencyID int64) (*models.CurrencyBalance, error)
	SaveBalance(ctx context.Context, b *models.CurrencyBalance) error

	// InsertOrder stores the order and its items, assigning OrderItemID in item order.
	InsertOrder(ctx context.Context, o *models.Order) error
	UpdateOrder(ctx context.Context, o *models.Order) error
	AppendEvent(ctx context.Context, e *models.OrderEvent) error

	InsertApp(ctx context.Context, app *models.App) error
	SetSystemWallet(ctx context.Context, appID, walletID int64) error
	InsertCurrency(ctx context.Context, c *models.Currency) error
	InsertWallet(ctx context.Context, w *models.Wallet) error
}

type Store interface {
	Reader

	// InTx runs fn in a transaction, committing when it returns nil.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// ListEventsAfter returns committed events with ids above after, oldest
	// first. A limit of zero means no limit.
	ListEventsAfter(ctx context.Context, after int64, limit int) ([]models.OrderEvent, error)
	// RelayEvents passes up to limit unrelayed events, oldest first, to fn and
	// marks them relayed only when fn returns nil. Events claimed by a
	// concurrent relay are skipped.
	RelayEvents(ctx context.Context, limit int, fn func([]models.OrderEvent) error) (int, error)
}
