package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"WalletLedger/internal/config"
	"WalletLedger/internal/db"
	"WalletLedger/internal/events"
	internalhttp "WalletLedger/internal/http"
	"WalletLedger/internal/lock"
	"WalletLedger/internal/logging"
	"WalletLedger/internal/metrics"
	"WalletLedger/internal/services"
	"WalletLedger/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
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

	policy, err := services.ParseSystemWalletPolicy(cfg.Ledger.SystemWalletPolicy)
	if err != nil {
		logger.Fatal("invalid ledger config", zap.Error(err))
	}

	ctx := context.Background()
	var st store.Store
	switch cfg.DB.Driver {
	case "memory":
		logger.Warn("using in-memory store, data is lost on exit")
		st = store.NewMemory()
	default:
		pool, err := db.Connect(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("db connect failed", zap.Error(err))
		}
		defer pool.Close()
		st = store.NewPG(pool)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var locker lock.Locker
	switch cfg.Lock.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping failed", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
		}
		locker = lock.NewRedis(rdb, cfg.LockTimeout(), cfg.LockTTL(), cfg.LockRetryInterval(), logger)
	default:
		locker = lock.NewLocal(cfg.LockTimeout())
	}
	locker = m.Locker(locker, cfg.Lock.Backend)

	hub := events.NewHub(logger)
	orderSvc := &services.OrderService{
		Store:     st,
		Locker:    locker,
		Validator: services.Validator{SystemWallet: policy},
		Executor:  services.Executor{DefaultMinBalance: cfg.DefaultMinBalance()},
		Publisher: hub,
		Metrics:   m,
		Logger:    logger,
	}
	walletSvc := &services.WalletService{
		Store:              st,
		Locker:             locker,
		Logger:             logger,
		HistoryPageSize:    cfg.Ledger.HistoryPageSize,
		HistoryMaxPageSize: cfg.Ledger.HistoryMaxPageSize,
	}
	provSvc := &services.ProvisioningService{
		Store:                  st,
		Logger:                 logger,
		SystemWalletMinBalance: cfg.SystemWalletMinBalance(),
	}

	h := internalhttp.NewHandler(orderSvc, walletSvc, provSvc, hub, logger)
	srv := internalhttp.NewServer(h, reg)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: srv.Router,
	}

	go func() {
		logger.Info("api listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("db_driver", cfg.DB.Driver),
			zap.String("lock_backend", cfg.Lock.Backend),
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("api stopped")
}
