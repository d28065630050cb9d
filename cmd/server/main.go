package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pocketbank/backend/internal/alerts"
	"github.com/pocketbank/backend/internal/audit"
	"github.com/pocketbank/backend/internal/config"
	"github.com/pocketbank/backend/internal/database"
	"github.com/pocketbank/backend/internal/handlers"
	mW "github.com/pocketbank/backend/internal/middleware"
	"github.com/pocketbank/backend/internal/scheduler"
	"github.com/pocketbank/backend/internal/services"
	"github.com/pocketbank/backend/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// @title PocketBank Ledger API
// @version 1.0
// @description Ledger, transfer and scheduled transfer API
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")
	viper.BindEnv("database.max_open_conns", "DATABASE_MAX_OPEN_CONNS")
	viper.BindEnv("database.max_idle_conns", "DATABASE_MAX_IDLE_CONNS")
	viper.BindEnv("database.conn_max_lifetime", "DATABASE_CONN_MAX_LIFETIME")
	viper.BindEnv("database.statement_timeout", "DATABASE_STATEMENT_TIMEOUT")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")

	if err := viper.ReadInConfig(); err != nil {
		logger.Info("Config file not found, using defaults", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, closeStore := openStore(ctx, logger)
	defer closeStore()

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	schedCfg := config.LoadSchedulerConfig()
	alertCfg := config.LoadAlertConfig()

	var (
		queue  alerts.Queue
		locker scheduler.Locker
	)
	if redisClient != nil {
		queue = alerts.NewRedisQueue(redisClient, alertCfg.QueueKey, alertCfg.PollTimeout)
		locker = scheduler.NewRedisLocker(redisClient, schedCfg.LockKey, schedCfg.LockTTL)
	} else {
		queue = alerts.NewChannelQueue(alertCfg.QueueBuffer, alertCfg.PollTimeout)
		locker = &scheduler.LocalLocker{}
	}

	// Initialize services
	ledgerService := services.NewLedgerService(st, queue, audit.NewLogger(logger))
	transferService := services.NewTransferService(st, ledgerService)
	scheduleService := services.NewScheduledTransferService(st, transferService, schedCfg.Location)
	alertService := services.NewAlertService(st)

	dispatcher := alerts.NewDispatcher(queue, alertService, alertCfg.Workers)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	runner := scheduler.NewRunner(scheduleService, locker, schedCfg.PollInterval)
	if schedCfg.Enabled {
		runner.Start(ctx)
		defer runner.Stop()
	}

	transferHandler := handlers.NewTransferHandler(transferService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	scheduleHandler := handlers.NewScheduledTransferHandler(scheduleService, runner)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Post("/transfers", transferHandler.CreateTransfer)

		r.Post("/transactions", ledgerHandler.RecordTransaction)
		r.Get("/accounts/{id}/transactions", ledgerHandler.ListTransactions)
		r.Get("/accounts/{id}/reconcile", ledgerHandler.Reconcile)

		r.Route("/scheduled-transfers", scheduleHandler.Routes)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Server shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// openStore picks the persistence backend from STORE_DRIVER.
func openStore(ctx context.Context, logger *zap.Logger) (store.Store, func()) {
	if config.StoreDriver() == "memory" {
		logger.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemory(), func() {}
	}

	db, err := database.Open(ctx, database.GetConfig())
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	return store.NewPostgres(db), func() {
		if err := db.Close(); err != nil {
			logger.Warn("Failed to close database", zap.Error(err))
		}
	}
}
