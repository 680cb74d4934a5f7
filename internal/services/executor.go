package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"WalletLedger/internal/models"
	"WalletLedger/internal/store"

	"github.com/shopspring/decimal"
)

// Executor posts order items against balance rows inside a store transaction.
type Executor struct {
	// DefaultMinBalance is the floor given to rows created by a posting.
	DefaultMinBalance decimal.Decimal
}

// Post evaluates the items of a new order in order, against running balances,
// and marks each one Applied or not. In atomic mode the first item that would
// breach its sender's floor fails the whole order. It returns the number of
// skipped items.
func (e Executor) Post(ctx context.Context, tx store.Tx, o *models.Order, now time.Time) (int, error) {
	b := newBook(tx, o.CurrencyID, e.DefaultMinBalance)
	skipped := 0
	for i := range o.Items {
		it := &o.Items[i]
		sender, err := b.row(ctx, it.SenderWalletID)
		if err != nil {
			return 0, err
		}
		if !sender.CanDebit(it.Amount) {
			if !o.AllowPartialSuccess {
				return 0, fmt.Errorf("%w: wallet %d cannot send %s", ErrInsufficientBalance, it.SenderWalletID, it.Amount)
			}
			it.Applied = false
			skipped++
			continue
		}
		if err := b.add(ctx, it.SenderWalletID, it.Amount.Neg()); err != nil {
			return 0, err
		}
		if o.TransactionType == models.TransactionSale {
			if err := b.add(ctx, it.ReceiverWalletID, it.Amount); err != nil {
				return 0, err
			}
		}
		it.Applied = true
	}
	return skipped, b.flush(ctx, now)
}

// Apply posts deltas without checking floors. Capture and Void use it.
func (e Executor) Apply(ctx context.Context, tx store.Tx, currencyID int64, ps []posting, now time.Time) error {
	b := newBook(tx, currencyID, e.DefaultMinBalance)
	for _, p := range ps {
		if err := b.add(ctx, p.walletID, p.amount); err != nil {
			return err
		}
	}
	return b.flush(ctx, now)
}

// book caches the balance rows one operation touches, in first-touch order.
type book struct {
	tx         store.Tx
	currencyID int64
	defaultMin decimal.Decimal
	rows       map[int64]*models.CurrencyBalance
	dirty      []int64
}

func newBook(tx store.Tx, currencyID int64, defaultMin decimal.Decimal) *book {
	return &book{
		tx:         tx,
		currencyID: currencyID,
		defaultMin: defaultMin,
		rows:       map[int64]*models.CurrencyBalance{},
	}
}

func (b *book) row(ctx context.Context, walletID int64) (*models.CurrencyBalance, error) {
	if r, ok := b.rows[walletID]; ok {
		return r, nil
	}
	r, err := b.tx.GetBalanceForUpdate(ctx, walletID, b.currencyID)
	if errors.Is(err, store.ErrNotFound) {
		r = &models.CurrencyBalance{
			WalletID:   walletID,
			CurrencyID: b.currencyID,
			Balance:    decimal.Zero,
			MinBalance: b.defaultMin,
		}
	} else if err != nil {
		return nil, err
	}
	b.rows[walletID] = r
	return r, nil
}

func (b *book) add(ctx context.Context, walletID int64, delta decimal.Decimal) error {
	r, err := b.row(ctx, walletID)
	if err != nil {
		return err
	}
	r.Balance = r.Balance.Add(delta)
	for _, id := range b.dirty {
		if id == walletID {
			return nil
		}
	}
	b.dirty = append(b.dirty, walletID)
	return nil
}

// flush writes every row a posting touched. Rows that were only read are left alone.
func (b *book) flush(ctx context.Context, now time.Time) error {
	for _, id := range b.dirty {
		r := b.rows[id]
		r.UpdatedAt = now
		if err := b.tx.SaveBalance(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
