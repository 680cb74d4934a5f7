package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"WalletLedger/internal/models"
	"WalletLedger/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemWalletPolicy decides where an app's system wallet may appear in an order.
type SystemWalletPolicy string

const (
	// SystemWalletSaleOnly lets the system wallet send only through Sale orders.
	SystemWalletSaleOnly SystemWalletPolicy = "sale_only"
	SystemWalletDeny     SystemWalletPolicy = "deny"
	SystemWalletAllow    SystemWalletPolicy = "allow"
)

func ParseSystemWalletPolicy(s string) (SystemWalletPolicy, error) {
	switch p := SystemWalletPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return SystemWalletSaleOnly, nil
	case SystemWalletSaleOnly, SystemWalletDeny, SystemWalletAllow:
		return p, nil
	}
	return "", fmt.Errorf("unknown system wallet policy %q", s)
}

// Allows reports whether the system wallet may take part in an order of type t.
func (p SystemWalletPolicy) Allows(t models.TransactionType, asSender bool) bool {
	switch p {
	case SystemWalletAllow:
		return true
	case SystemWalletDeny:
		return false
	}
	return !asSender || t == models.TransactionSale
}

type TransferItem struct {
	SenderWalletID   int64
	ReceiverWalletID int64
	Amount           decimal.Decimal
}

type CreateOrderRequest struct {
	OrderID             uuid.UUID
	CurrencyID          int64
	OrderTypeID         int64
	TransactionType     models.TransactionType
	AllowPartialSuccess bool
	Items               []TransferItem
}

type Validator struct {
	SystemWallet SystemWalletPolicy
}

// Validate runs the whole-order checks. Nothing is posted when it fails.
func (v Validator) Validate(ctx context.Context, tx store.Tx, appID int64, req CreateOrderRequest) error {
	ok, err := tx.CurrencyExists(ctx, appID, req.CurrencyID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: currency %d", ErrNotExists, req.CurrencyID)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: ParticipantWallets", ErrInvalidOperation)
	}
	if !req.TransactionType.Valid() {
		return fmt.Errorf("%w: unknown transaction type %q", ErrInvalidTransactionType, req.TransactionType)
	}

	for _, it := range req.Items {
		if !it.Amount.IsPositive() {
			return fmt.Errorf("%w: Amount", ErrInvalidOperation)
		}
	}
	type pair struct{ sender, receiver int64 }
	seen := make(map[pair]struct{}, len(req.Items))
	for _, it := range req.Items {
		p := pair{it.SenderWalletID, it.ReceiverWalletID}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate records", ErrInvalidOperation)
		}
		seen[p] = struct{}{}
	}
	for _, it := range req.Items {
		if it.SenderWalletID == it.ReceiverWalletID {
			return fmt.Errorf("%w: SenderWallet and ReceiverWallet can not be same.", ErrInvalidOperation)
		}
	}

	ids := walletIDs(req.Items)
	owners, err := tx.WalletApps(ctx, ids)
	if err != nil {
		return err
	}
	var foreign []string
	for _, id := range ids {
		if owner, ok := owners[id]; !ok || owner != appID {
			foreign = append(foreign, strconv.FormatInt(id, 10))
		}
	}
	if len(foreign) > 0 {
		return fmt.Errorf("%w: some wallets does not belong to the app: %s", ErrInvalidOperation, strings.Join(foreign, ", "))
	}

	app, err := tx.GetApp(ctx, appID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: app %d", ErrNotExists, appID)
	}
	if err != nil {
		return err
	}
	for _, it := range req.Items {
		if it.SenderWalletID == app.SystemWalletID && !v.SystemWallet.Allows(req.TransactionType, true) {
			return fmt.Errorf("%w: system wallet cannot send in %s orders", ErrInvalidOperation, req.TransactionType)
		}
		if it.ReceiverWalletID == app.SystemWalletID && !v.SystemWallet.Allows(req.TransactionType, false) {
			return fmt.Errorf("%w: system wallet cannot receive in %s orders", ErrInvalidOperation, req.TransactionType)
		}
	}
	return nil
}

// walletIDs lists every wallet referenced by items, first occurrence first.
func walletIDs(items []TransferItem) []int64 {
	seen := make(map[int64]struct{}, len(items)*2)
	var ids []int64
	for _, it := range items {
		for _, id := range [2]int64{it.SenderWalletID, it.ReceiverWalletID} {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
