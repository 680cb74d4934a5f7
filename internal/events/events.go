package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"WalletLedger/internal/models"

	"github.com/google/uuid"
)

// Publisher delivers order events to subscribers outside the ledger.
type Publisher interface {
	Publish(ctx context.Context, ev models.OrderEvent) error
}

// Message is the wire form of an OrderEvent, shared by the broker and websocket feeds.
type Message struct {
	EventID   int64                 `json:"eventId"`
	AppID     int64                 `json:"appId"`
	OrderID   uuid.UUID             `json:"orderId"`
	Type      models.OrderEventType `json:"type"`
	Status    models.OrderStatus    `json:"status"`
	CreatedAt time.Time             `json:"createdTime"`
	Order     json.RawMessage       `json:"order,omitempty"`
}

func Encode(ev models.OrderEvent) ([]byte, error) {
	msg := Message{
		EventID:   ev.EventID,
		AppID:     ev.AppID,
		OrderID:   ev.OrderID,
		Type:      ev.Type,
		Status:    ev.Status,
		CreatedAt: ev.CreatedAt,
	}
	if len(ev.Payload) > 0 {
		msg.Order = json.RawMessage(ev.Payload)
	}
	return json.Marshal(msg)
}

// New builds the outbox record for an order change. The order snapshot is the payload.
func New(typ models.OrderEventType, o *models.Order, at time.Time) (*models.OrderEvent, error) {
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	return &models.OrderEvent{
		AppID:     o.AppID,
		OrderID:   o.OrderID,
		Type:      typ,
		Status:    o.Status,
		Payload:   payload,
		CreatedAt: at,
	}, nil
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev models.OrderEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, models.OrderEvent) error { return nil }
