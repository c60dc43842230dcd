package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stellarpay-ledger/config"
	httpHandler "stellarpay-ledger/internal/adapter/http/handler"
	pgStorage "stellarpay-ledger/internal/adapter/storage/postgres"
	redisStorage "stellarpay-ledger/internal/adapter/storage/redis"
	"stellarpay-ledger/internal/core/ports"
	"stellarpay-ledger/internal/service"
	"stellarpay-ledger/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting StellarPay Ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	accountRepo := pgStorage.NewAccountRepo(pool)
	entryRepo := pgStorage.NewEntryRepo(pool)
	transferRepo := pgStorage.NewTransferRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize business services
	authSvc := service.NewAuthService(accountRepo, hashSvc, tokenSvc)
	accountStore := service.NewAccountStore(accountRepo, cfg.Ledger.MaxAccountBalance, log)
	ledgerSvc := service.NewLedgerService(
		entryRepo,
		accountStore,
		idempotencyRepo,
		idempotencyCache,
		transactor,
		cfg.Ledger.MaxTransactionAmount,
		cfg.Ledger.ReversalWindow,
		log,
	)
	transferSvc := service.NewTransferService(
		entryRepo,
		transferRepo,
		accountStore,
		ledgerSvc,
		idempotencyRepo,
		idempotencyCache,
		transactor,
		cfg.Ledger.MaxTransactionAmount,
		log,
	)
	gateway := service.NewConfirmationGateway(entryRepo, ledgerSvc, transferSvc, log)
	projectionSvc := service.NewProjectionService(accountRepo, entryRepo)

	// Background sweeper for entries stuck pending past the timeout
	timeoutWorker := service.NewTimeoutWorker(
		entryRepo,
		ledgerSvc,
		transferSvc,
		cfg.Ledger.ConfirmationTimeout,
		cfg.Ledger.SweepInterval,
		log,
	)
	timeoutWorker.Start()
	defer timeoutWorker.Stop()

	// Initialize rate limit store
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:        authSvc,
		LedgerSvc:      ledgerSvc,
		TransferSvc:    transferSvc,
		ProjectionSvc:  projectionSvc,
		Consumer:       gateway,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		TokenSvc:       tokenSvc,
		Operator:       cfg.Operator,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
