package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionAuthorize TransactionType = "Authorize"
	TransactionSale      TransactionType = "Sale"
)

func (t TransactionType) Valid() bool {
	return t == TransactionAuthorize || t == TransactionSale
}

type OrderStatus string

const (
	OrderAuthorized OrderStatus = "Authorized"
	OrderCaptured   OrderStatus = "Captured"
	OrderVoided     OrderStatus = "Voided"
)

type App struct {
	AppID          int64     `json:"appId"`
	SystemWalletID int64     `json:"systemWalletId"`
	CreatedAt      time.Time `json:"createdTime"`
}

type Currency struct {
	CurrencyID int64     `json:"currencyId"`
	AppID      int64     `json:"appId"`
	CreatedAt  time.Time `json:"createdTime"`
}

type Wallet struct {
	WalletID   int64             `json:"walletId"`
	AppID      int64             `json:"appId"`
	CreatedAt  time.Time         `json:"createdTime"`
	Currencies []CurrencyBalance `json:"currencies,omitempty"`
}

// CurrencyBalance is the posted balance of one wallet in one currency.
// A row only exists once something has been posted to it (or a floor was set).
type CurrencyBalance struct {
	WalletID   int64           `json:"walletId"`
	CurrencyID int64           `json:"currencyId"`
	Balance    decimal.Decimal `json:"balance"`
	MinBalance decimal.Decimal `json:"minBalance"`
	UpdatedAt  time.Time       `json:"updatedTime"`
}

// CanDebit reports whether amount can leave the balance without crossing the floor.
func (b CurrencyBalance) CanDebit(amount decimal.Decimal) bool {
	return b.Balance.Sub(amount).GreaterThanOrEqual(b.MinBalance)
}

type Order struct {
	AppID               int64           `json:"appId"`
	OrderID             uuid.UUID       `json:"orderId"`
	CurrencyID          int64           `json:"currencyId"`
	OrderTypeID         int64           `json:"orderTypeId"`
	TransactionType     TransactionType `json:"transactionType"`
	Status              OrderStatus     `json:"status"`
	AllowPartialSuccess bool            `json:"allowPartialSuccess"`
	CreatedAt           time.Time       `json:"createdTime"`
	CapturedAt          *time.Time      `json:"capturedTime,omitempty"`
	VoidedAt            *time.Time      `json:"voidedTime,omitempty"`
	Items               []OrderItem     `json:"items"`
}

// CreditPosted reports whether receiver legs of applied items are on the books.
func (o *Order) CreditPosted() bool {
	return o.TransactionType == TransactionSale || o.CapturedAt != nil
}

type OrderItem struct {
	OrderItemID      int64           `json:"orderItemId"`
	SenderWalletID   int64           `json:"senderWalletId"`
	ReceiverWalletID int64           `json:"receiverWalletId"`
	Amount           decimal.Decimal `json:"amount"`
	Applied          bool            `json:"applied"`
}

// OrderItemView is one posted leg of an order item as seen from a wallet's history.
type OrderItemView struct {
	OrderID          uuid.UUID       `json:"orderId"`
	CurrencyID       int64           `json:"currencyId"`
	OrderTypeID      int64           `json:"orderTypeId"`
	OrderItemID      int64           `json:"orderItemId"`
	SenderWalletID   int64           `json:"senderWalletId"`
	ReceiverWalletID int64           `json:"receiverWalletId"`
	Amount           decimal.Decimal `json:"amount"`
	Status           OrderStatus     `json:"status"`
	TransactionType  TransactionType `json:"transactionType"`
	CreatedAt        time.Time       `json:"createdTime"`
	CapturedAt       *time.Time      `json:"capturedTime,omitempty"`
	VoidedAt         *time.Time      `json:"voidedTime,omitempty"`
}

type OrderEventType string

const (
	EventOrderCreated  OrderEventType = "order.created"
	EventOrderCaptured OrderEventType = "order.captured"
	EventOrderVoided   OrderEventType = "order.voided"
)

// OrderEvent is an outbox record written in the same transaction as the change it describes.
type OrderEvent struct {
	EventID   int64          `json:"eventId"`
	AppID     int64          `json:"appId"`
	OrderID   uuid.UUID      `json:"orderId"`
	Type      OrderEventType `json:"type"`
	Status    OrderStatus    `json:"status"`
	Payload   []byte         `json:"-"`
	CreatedAt time.Time      `json:"createdTime"`
}
