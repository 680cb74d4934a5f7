package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"WalletLedger/internal/events"
	"WalletLedger/internal/lock"
	"WalletLedger/internal/metrics"
	"WalletLedger/internal/models"
	"WalletLedger/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderService struct {
	Store     store.Store
	Locker    lock.Locker
	Validator Validator
	Executor  Executor
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// CreateOrder validates and posts a new order. A repeated OrderID returns the
// stored order unchanged, whatever the rest of the request says.
func (s OrderService) CreateOrder(ctx context.Context, appID int64, req CreateOrderRequest) (*models.Order, error) {
	if req.OrderID == uuid.Nil {
		return nil, fmt.Errorf("%w: OrderId", ErrInvalidOperation)
	}

	var (
		order   *models.Order
		ev      *models.OrderEvent
		skipped int
	)
	err := withAppLock(ctx, s.Locker, appID, func(ctx context.Context) error {
		return s.Store.InTx(ctx, func(tx store.Tx) error {
			existing, err := tx.GetOrder(ctx, appID, req.OrderID)
			if err == nil {
				order = existing
				return nil
			}
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}

			if err := s.Validator.Validate(ctx, tx, appID, req); err != nil {
				return err
			}

			now := s.now()
			o := newOrder(appID, req, now)
			if skipped, err = s.Executor.Post(ctx, tx, o, now); err != nil {
				return err
			}
			if err := tx.InsertOrder(ctx, o); err != nil {
				return err
			}
			if ev, err = appendEvent(ctx, tx, models.EventOrderCreated, o, now); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	s.record("create", err)
	if err != nil {
		s.logFailure("create order failed", appID, req.OrderID, err)
		return nil, err
	}

	if ev == nil {
		s.logger().Info("order replayed",
			zap.Int64("app_id", appID),
			zap.String("order_id", order.OrderID.String()),
		)
		return order, nil
	}
	s.Metrics.ItemsSkipped(skipped)
	s.logger().Info("order created",
		zap.Int64("app_id", appID),
		zap.String("order_id", order.OrderID.String()),
		zap.String("transaction_type", string(order.TransactionType)),
		zap.Int("items", len(order.Items)),
		zap.Int("skipped", skipped),
	)
	s.publish(ctx, ev)
	return order, nil
}

func (s OrderService) GetOrder(ctx context.Context, appID int64, orderID uuid.UUID) (*models.Order, error) {
	o, err := s.Store.GetOrder(ctx, appID, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: order %s", ErrNotExists, orderID)
	}
	return o, err
}

// Capture posts the deferred credits of an Authorize order.
func (s OrderService) Capture(ctx context.Context, appID int64, orderID uuid.UUID) (*models.Order, error) {
	return s.transition(ctx, "capture", models.EventOrderCaptured, appID, orderID, capture)
}

// Void reverses everything an order has posted.
func (s OrderService) Void(ctx context.Context, appID int64, orderID uuid.UUID) (*models.Order, error) {
	return s.transition(ctx, "void", models.EventOrderVoided, appID, orderID, void)
}

func (s OrderService) transition(
	ctx context.Context,
	op string,
	typ models.OrderEventType,
	appID int64,
	orderID uuid.UUID,
	step func(*models.Order, time.Time) ([]posting, error),
) (*models.Order, error) {
	var (
		order *models.Order
		ev    *models.OrderEvent
	)
	err := withAppLock(ctx, s.Locker, appID, func(ctx context.Context) error {
		return s.Store.InTx(ctx, func(tx store.Tx) error {
			o, err := tx.GetOrder(ctx, appID, orderID)
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: order %s", ErrNotExists, orderID)
			}
			if err != nil {
				return err
			}

			now := s.now()
			ps, err := step(o, now)
			if err != nil {
				return err
			}
			if err := s.Executor.Apply(ctx, tx, o.CurrencyID, ps, now); err != nil {
				return err
			}
			if err := tx.UpdateOrder(ctx, o); err != nil {
				return err
			}
			if ev, err = appendEvent(ctx, tx, typ, o, now); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	s.record(op, err)
	if err != nil {
		s.logFailure(op+" order failed", appID, orderID, err)
		return nil, err
	}

	s.logger().Info("order "+string(order.Status),
		zap.Int64("app_id", appID),
		zap.String("order_id", orderID.String()),
	)
	s.publish(ctx, ev)
	return order, nil
}

func newOrder(appID int64, req CreateOrderRequest, now time.Time) *models.Order {
	o := &models.Order{
		AppID:               appID,
		OrderID:             req.OrderID,
		CurrencyID:          req.CurrencyID,
		OrderTypeID:         req.OrderTypeID,
		TransactionType:     req.TransactionType,
		Status:              models.OrderAuthorized,
		AllowPartialSuccess: req.AllowPartialSuccess,
		CreatedAt:           now,
		Items:               make([]models.OrderItem, 0, len(req.Items)),
	}
	if req.TransactionType == models.TransactionSale {
		o.Status = models.OrderCaptured
		o.CapturedAt = &now
	}
	for _, it := range req.Items {
		o.Items = append(o.Items, models.OrderItem{
			SenderWalletID:   it.SenderWalletID,
			ReceiverWalletID: it.ReceiverWalletID,
			Amount:           it.Amount,
		})
	}
	return o
}

func appendEvent(ctx context.Context, tx store.Tx, typ models.OrderEventType, o *models.Order, now time.Time) (*models.OrderEvent, error) {
	ev, err := events.New(typ, o, now)
	if err != nil {
		return nil, err
	}
	if err := tx.AppendEvent(ctx, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// publish pushes a committed event to live subscribers. The outbox relay
// delivers it to the broker independently, so failures are only logged.
func (s OrderService) publish(ctx context.Context, ev *models.OrderEvent) {
	if s.Publisher == nil || ev == nil {
		return
	}
	if err := s.Publisher.Publish(context.WithoutCancel(ctx), *ev); err != nil {
		s.logger().Warn("publish order event failed",
			zap.Int64("event_id", ev.EventID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}

func (s OrderService) record(op string, err error) {
	result := "ok"
	if err != nil {
		if result = Kind(err); result == "" {
			result = "error"
		}
	}
	s.Metrics.OrderOperation(op, result)
}

func (s OrderService) logFailure(msg string, appID int64, orderID uuid.UUID, err error) {
	fields := []zap.Field{
		zap.Int64("app_id", appID),
		zap.String("order_id", orderID.String()),
		zap.Error(err),
	}
	if IsBusiness(err) {
		s.logger().Info(msg, fields...)
		return
	}
	s.logger().Error(msg, fields...)
}

func (s OrderService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s OrderService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// withAppLock runs fn while holding the app's lock. Once the lock is held fn
// runs to completion even if ctx is cancelled.
func withAppLock(ctx context.Context, l lock.Locker, appID int64, fn func(ctx context.Context) error) error {
	unlock, err := l.Lock(ctx, lock.AppKey(appID))
	if err != nil {
		return err
	}
	defer unlock()
	return fn(context.WithoutCancel(ctx))
}
