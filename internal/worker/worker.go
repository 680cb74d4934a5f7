package worker

import (
	"context"
	"time"

	"WalletLedger/internal/metrics"
	"WalletLedger/internal/models"
	"WalletLedger/internal/store"

	"go.uber.org/zap"
)

// Sink receives relayed outbox events. A nil error means every event was accepted.
type Sink interface {
	PublishBatch(ctx context.Context, evs []models.OrderEvent) error
}

// Worker relays the order event outbox to a Sink. Events are marked relayed
// only after the sink accepts them, so delivery is at least once.
type Worker struct {
	Store     store.Store
	Sink      Sink
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
	Interval  time.Duration
	BatchSize int
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for {
			n, err := w.SyncOnce(ctx)
			if err != nil {
				w.logger().Error("relay error", zap.Error(err))
				break
			}
			if n < w.batchSize() {
				break
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce relays at most one batch and returns how many events it delivered.
func (w *Worker) SyncOnce(ctx context.Context) (int, error) {
	var first, last int64
	n, err := w.Store.RelayEvents(ctx, w.batchSize(), func(evs []models.OrderEvent) error {
		first, last = evs[0].EventID, evs[len(evs)-1].EventID
		return w.Sink.PublishBatch(ctx, evs)
	})
	if err != nil || n == 0 {
		return 0, err
	}
	w.Metrics.EventsRelayed(n)
	w.logger().Info("relayed events",
		zap.Int("count", n),
		zap.Int64("from", first),
		zap.Int64("to", last),
	)
	return n, nil
}

func (w *Worker) batchSize() int {
	if w.BatchSize <= 0 {
		return 100
	}
	return w.BatchSize
}

func (w *Worker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}
