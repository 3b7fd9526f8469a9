package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/smartpark/backend/internal/audit"
	"github.com/smartpark/backend/internal/config"
	"github.com/smartpark/backend/internal/database"
	"github.com/smartpark/backend/internal/handlers"
	"github.com/smartpark/backend/internal/metrics"
	mW "github.com/smartpark/backend/internal/middleware"
	"github.com/smartpark/backend/internal/services"
	"github.com/smartpark/backend/internal/store"
	"github.com/smartpark/backend/internal/store/memory"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger is not configured yet.
		zap.NewExample().Fatal("Invalid configuration", zap.Error(err))
	}

	logger := newLogger(cfg.LogFormat)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	st, db := openStore(startCtx, cfg)
	if db != nil {
		defer db.Close()
	}

	redisClient := database.InitRedis(startCtx)
	if redisClient != nil {
		defer redisClient.Close()
	}
	events := newEventQueue(redisClient, cfg.Parking)

	if cfg.JWTSecret == "" {
		zap.L().Warn("JWT_SECRET_KEY is empty, admin routes will reject every request")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	gateMetrics := metrics.NewGateMetrics(reg)
	auditLogger := audit.NewLogger(zap.L())

	timeout := cfg.Parking.DecisionTimeout
	slots := services.NewSlotPool(st, auditLogger, gateMetrics, timeout)
	wallet := services.NewWalletLedger(st, auditLogger, events, timeout)
	tags := services.NewTagService(st, wallet, auditLogger, timeout)
	sessions := services.NewSessionManager(st, slots, wallet, services.SessionConfig{
		RatePerMinute:   cfg.Parking.RatePerMinute,
		DecisionTimeout: timeout,
	}, auditLogger, gateMetrics, services.WithEvents(events))

	router := handlers.NewRouter(handlers.RouterConfig{
		Gate:     handlers.NewGateHandler(sessions, slots),
		Admin:    handlers.NewAdminHandler(wallet, tags),
		Auth:     mW.NewAuthenticator(cfg.JWTSecret),
		Gatherer: reg,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		zap.L().Info("Server starting",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.Parking.Store),
			zap.Int("total_slots", cfg.Parking.TotalSlots),
			zap.String("rate_per_minute", cfg.Parking.RatePerMinute.String()),
			zap.String("currency", cfg.Parking.Currency))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zap.L().Info("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Error("Server forced to shutdown", zap.Error(err))
		return
	}

	zap.L().Info("Server stopped")
}

func newLogger(format string) *zap.Logger {
	build := zap.NewProduction
	if format == "console" {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		zap.NewExample().Fatal("Failed to build logger", zap.Error(err))
	}
	return logger
}

// openStore returns the configured backend. The *sql.DB is nil for the
// memory store.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, *sql.DB) {
	if cfg.Parking.Store == config.StoreMemory {
		zap.L().Warn("Using in-memory store, state is lost on restart")
		return memory.New(cfg.Parking.TotalSlots), nil
	}

	db, err := database.InitDB(ctx, database.GetConfig())
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := database.InitSchema(ctx, db); err != nil {
		zap.L().Fatal("Failed to apply schema", zap.Error(err))
	}
	if err := database.EnsureSlots(ctx, db, cfg.Parking.TotalSlots); err != nil {
		zap.L().Fatal("Failed to seed slots", zap.Error(err))
	}
	return database.NewStore(db), db
}

func newEventQueue(client *redis.Client, p config.ParkingConfig) services.EventPublisher {
	if client == nil {
		return nil
	}
	return services.NewRedisEventQueue(client, p.EventQueue, p.EventQueueCap, p.Currency)
}
