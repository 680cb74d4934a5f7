package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"WalletLedger/internal/lock"
	"WalletLedger/internal/models"
	"WalletLedger/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WalletService struct {
	Store              store.Store
	Locker             lock.Locker
	Logger             *zap.Logger
	Now                func() time.Time
	HistoryPageSize    int
	HistoryMaxPageSize int
}

// HistoryQuery narrows a wallet's transaction history. PageNumber is zero based.
type HistoryQuery struct {
	ParticipantWalletID *int64
	BeginTime           *time.Time
	EndTime             *time.Time
	OrderTypeID         *int64
	CurrencyID          *int64
	PageSize            int
	PageNumber          int
}

// GetWallet returns the wallet with every currency row it holds.
func (s WalletService) GetWallet(ctx context.Context, appID, walletID int64) (*models.Wallet, error) {
	w, err := s.Store.GetWallet(ctx, walletID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && w.AppID != appID) {
		return nil, fmt.Errorf("%w: wallet %d", ErrNotExists, walletID)
	}
	if err != nil {
		return nil, err
	}
	balances, err := s.Store.ListBalances(ctx, walletID)
	if err != nil {
		return nil, err
	}
	w.Currencies = balances
	return w, nil
}

// GetWalletTransactions lists the posted legs touching walletID, newest first.
func (s WalletService) GetWalletTransactions(ctx context.Context, appID, walletID int64, q HistoryQuery) ([]models.OrderItemView, error) {
	size := q.PageSize
	if size <= 0 {
		size = s.HistoryPageSize
	}
	if size <= 0 {
		size = 50
	}
	if s.HistoryMaxPageSize > 0 && size > s.HistoryMaxPageSize {
		size = s.HistoryMaxPageSize
	}
	page := q.PageNumber
	if page < 0 {
		page = 0
	}
	if q.BeginTime != nil && q.EndTime != nil && !q.EndTime.After(*q.BeginTime) {
		return nil, fmt.Errorf("%w: EndTime must be after BeginTime", ErrInvalidOperation)
	}
	if page > math.MaxInt/size {
		return []models.OrderItemView{}, nil
	}

	items, err := s.Store.ListWalletTransactions(ctx, store.TransactionFilter{
		AppID:               appID,
		WalletID:            walletID,
		ParticipantWalletID: q.ParticipantWalletID,
		BeginTime:           q.BeginTime,
		EndTime:             q.EndTime,
		OrderTypeID:         q.OrderTypeID,
		CurrencyID:          q.CurrencyID,
		Limit:               size,
		Offset:              page * size,
	})
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.OrderItemView{}
	}
	return items, nil
}

// SetMinBalance sets the floor of a wallet's currency row, creating the row
// with a zero balance when it does not exist yet.
func (s WalletService) SetMinBalance(ctx context.Context, appID, walletID, currencyID int64, floor decimal.Decimal) (*models.CurrencyBalance, error) {
	var row *models.CurrencyBalance
	err := withAppLock(ctx, s.Locker, appID, func(ctx context.Context) error {
		return s.Store.InTx(ctx, func(tx store.Tx) error {
			owners, err := tx.WalletApps(ctx, []int64{walletID})
			if err != nil {
				return err
			}
			if owner, ok := owners[walletID]; !ok || owner != appID {
				return fmt.Errorf("%w: wallet %d", ErrNotExists, walletID)
			}
			ok, err := tx.CurrencyExists(ctx, appID, currencyID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: currency %d", ErrNotExists, currencyID)
			}

			b, err := tx.GetBalanceForUpdate(ctx, walletID, currencyID)
			if errors.Is(err, store.ErrNotFound) {
				b = &models.CurrencyBalance{WalletID: walletID, CurrencyID: currencyID, Balance: decimal.Zero}
			} else if err != nil {
				return err
			}
			if b.Balance.LessThan(floor) {
				return fmt.Errorf("%w: balance %s is below requested floor %s", ErrInvalidOperation, b.Balance, floor)
			}
			b.MinBalance = floor
			b.UpdatedAt = s.now()
			if err := tx.SaveBalance(ctx, b); err != nil {
				return err
			}
			row = b
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("min balance set",
		zap.Int64("app_id", appID),
		zap.Int64("wallet_id", walletID),
		zap.Int64("currency_id", currencyID),
		zap.String("min_balance", floor.String()),
	)
	return row, nil
}

func (s WalletService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s WalletService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
