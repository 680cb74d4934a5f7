package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"WalletLedger/internal/config"
	"WalletLedger/internal/db"
	"WalletLedger/internal/events"
	"WalletLedger/internal/logging"
	"WalletLedger/internal/metrics"
	"WalletLedger/internal/store"
	"WalletLedger/internal/worker"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// The outbox is only shared across processes through postgres.
	if cfg.DB.Driver != "postgres" {
		logger.Fatal("worker requires db.driver=postgres", zap.String("driver", cfg.DB.Driver))
	}
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Fatal("kafka.brokers is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB.DSN)
	if err != nil {
		logger.Fatal("db connect failed", zap.Error(err))
	}
	defer pool.Close()

	sink := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	defer sink.Close()

	w := &worker.Worker{
		Store:     store.NewPG(pool),
		Sink:      sink,
		Metrics:   metrics.New(prometheus.DefaultRegisterer),
		Logger:    logger,
		Interval:  cfg.WorkerInterval(),
		BatchSize: cfg.Worker.BatchSize,
	}

	logger.Info("worker started",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.Duration("interval", cfg.WorkerInterval()),
	)
	w.Run(ctx)
	logger.Info("worker stopped")
}
