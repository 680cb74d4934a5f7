package services

import (
	"context"
	"errors"

	"WalletLedger/internal/lock"
)

var (
	ErrNotExists                       = errors.New("not exists")
	ErrInvalidOperation                = errors.New("invalid operation")
	ErrInsufficientBalance             = errors.New("insufficient balance")
	ErrOrderAlreadySetAsRequestedState = errors.New("order already set as requested state")
	ErrInvalidTransactionType          = errors.New("invalid transaction type")
)

// Kind names the ledger error class of err, or "" for system errors.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotExists):
		return "NotExists"
	case errors.Is(err, ErrInvalidOperation):
		return "InvalidOperation"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrOrderAlreadySetAsRequestedState):
		return "OrderAlreadySetAsRequestedState"
	case errors.Is(err, ErrInvalidTransactionType):
		return "InvalidTransactionType"
	case errors.Is(err, lock.ErrLockTimeout):
		return "LockTimeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Canceled"
	}
	return ""
}

// IsBusiness reports whether err is a caller-facing ledger error rather than a system failure.
func IsBusiness(err error) bool {
	switch Kind(err) {
	case "", "LockTimeout", "Canceled":
		return false
	}
	return true
}
