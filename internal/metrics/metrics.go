package metrics

import (
	"context"
	"time"

	"WalletLedger/internal/lock"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the ledger collectors. A nil *Metrics records nothing.
type Metrics struct {
	orderOps      *prometheus.CounterVec
	lockWait      *prometheus.HistogramVec
	itemsSkipped  prometheus.Counter
	eventsRelayed prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		orderOps: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_order_operations_total",
				Help: "Order operations by outcome",
			},
			[]string{"operation", "result"},
		),
		lockWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_lock_wait_seconds",
				Help:    "Time spent waiting for the per-app lock",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"backend"},
		),
		itemsSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_items_skipped_total",
			Help: "Order items skipped by partial-success orders",
		}),
		eventsRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_events_relayed_total",
			Help: "Outbox events delivered to the broker",
		}),
	}
}

// OrderOperation counts one create/capture/void call. result is an error kind or "ok".
func (m *Metrics) OrderOperation(op, result string) {
	if m == nil {
		return
	}
	m.orderOps.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ItemsSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.itemsSkipped.Add(float64(n))
}

func (m *Metrics) EventsRelayed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsRelayed.Add(float64(n))
}

// Locker wraps l so every acquisition attempt records its wait time.
func (m *Metrics) Locker(l lock.Locker, backend string) lock.Locker {
	if m == nil {
		return l
	}
	return timedLocker{next: l, wait: m.lockWait.WithLabelValues(backend)}
}

type timedLocker struct {
	next lock.Locker
	wait prometheus.Observer
}

func (t timedLocker) Lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	unlock, err := t.next.Lock(ctx, key)
	t.wait.Observe(time.Since(start).Seconds())
	return unlock, err
}
