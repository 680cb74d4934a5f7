package services

import (
	"fmt"
	"time"

	"WalletLedger/internal/models"

	"github.com/shopspring/decimal"
)

// posting is a signed balance change for one wallet.
type posting struct {
	walletID int64
	amount   decimal.Decimal
}

// capture moves an Authorized Authorize order to Captured and returns the
// receiver credits that now post. o is left untouched on error.
func capture(o *models.Order, now time.Time) ([]posting, error) {
	if o.TransactionType == models.TransactionSale {
		return nil, fmt.Errorf("%w: sale orders are captured on creation", ErrInvalidTransactionType)
	}
	switch o.Status {
	case models.OrderCaptured:
		return nil, fmt.Errorf("%w: order already captured", ErrOrderAlreadySetAsRequestedState)
	case models.OrderVoided:
		return nil, fmt.Errorf("%w: voided orders cannot be captured", ErrInvalidTransactionType)
	}

	var ps []posting
	for _, it := range o.Items {
		if it.Applied {
			ps = append(ps, posting{it.ReceiverWalletID, it.Amount})
		}
	}
	o.Status = models.OrderCaptured
	o.CapturedAt = &now
	return ps, nil
}

// void reverses whatever the order has posted: sender debits always, receiver
// credits only when they were posted. Floors are not checked.
func void(o *models.Order, now time.Time) ([]posting, error) {
	if o.Status == models.OrderVoided {
		return nil, fmt.Errorf("%w: order already voided", ErrOrderAlreadySetAsRequestedState)
	}

	credited := o.CreditPosted()
	var ps []posting
	for _, it := range o.Items {
		if !it.Applied {
			continue
		}
		ps = append(ps, posting{it.SenderWalletID, it.Amount})
		if credited {
			ps = append(ps, posting{it.ReceiverWalletID, it.Amount.Neg()})
		}
	}
	o.Status = models.OrderVoided
	o.VoidedAt = &now
	return ps, nil
}
