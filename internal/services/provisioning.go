package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"WalletLedger/internal/models"
	"WalletLedger/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProvisioningService creates the tenants, currencies and wallets orders run against.
type ProvisioningService struct {
	Store  store.Store
	Logger *zap.Logger
	Now    func() time.Time
	// SystemWalletMinBalance is the floor of the system wallet's row in each new currency.
	SystemWalletMinBalance decimal.Decimal
}

// CreateApp registers a tenant together with its system wallet.
func (s ProvisioningService) CreateApp(ctx context.Context) (*models.App, error) {
	now := s.now()
	app := &models.App{CreatedAt: now}
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertApp(ctx, app); err != nil {
			return err
		}
		w := &models.Wallet{AppID: app.AppID, CreatedAt: now}
		if err := tx.InsertWallet(ctx, w); err != nil {
			return err
		}
		app.SystemWalletID = w.WalletID
		return tx.SetSystemWallet(ctx, app.AppID, w.WalletID)
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("app created", zap.Int64("app_id", app.AppID), zap.Int64("system_wallet_id", app.SystemWalletID))
	return app, nil
}

// CreateCurrency adds a currency to the app and opens the system wallet's row in it.
func (s ProvisioningService) CreateCurrency(ctx context.Context, appID int64) (*models.Currency, error) {
	now := s.now()
	c := &models.Currency{AppID: appID, CreatedAt: now}
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		app, err := existingApp(ctx, tx, appID)
		if err != nil {
			return err
		}
		if err := tx.InsertCurrency(ctx, c); err != nil {
			return err
		}
		return tx.SaveBalance(ctx, &models.CurrencyBalance{
			WalletID:   app.SystemWalletID,
			CurrencyID: c.CurrencyID,
			Balance:    decimal.Zero,
			MinBalance: s.SystemWalletMinBalance,
			UpdatedAt:  now,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("currency created", zap.Int64("app_id", appID), zap.Int64("currency_id", c.CurrencyID))
	return c, nil
}

func (s ProvisioningService) CreateWallet(ctx context.Context, appID int64) (*models.Wallet, error) {
	w := &models.Wallet{AppID: appID, CreatedAt: s.now()}
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		if _, err := existingApp(ctx, tx, appID); err != nil {
			return err
		}
		return tx.InsertWallet(ctx, w)
	})
	if err != nil {
		return nil, err
	}
	s.logger().Info("wallet created", zap.Int64("app_id", appID), zap.Int64("wallet_id", w.WalletID))
	return w, nil
}

func existingApp(ctx context.Context, tx store.Tx, appID int64) (*models.App, error) {
	app, err := tx.GetApp(ctx, appID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: app %d", ErrNotExists, appID)
	}
	return app, err
}

func (s ProvisioningService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s ProvisioningService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}
