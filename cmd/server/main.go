package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/answer"
	"github.com/DukeRupert/quotaledger/internal/handler"
	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/middleware"
	"github.com/DukeRupert/quotaledger/internal/service"
	"github.com/DukeRupert/quotaledger/internal/store/memory"
	"github.com/DukeRupert/quotaledger/internal/store/postgres"
	redisstore "github.com/DukeRupert/quotaledger/internal/store/redis"
	"github.com/DukeRupert/quotaledger/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

// stores groups the storage each service depends on.
type stores struct {
	usage         service.UsageStore
	subscriptions service.SubscriptionStore
	messages      service.MessageStore
	checks        map[string]handler.Pinger
	closers       []func() error
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// openStores connects the configured backends.
func openStores(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (*stores, error) {
	s := &stores{checks: map[string]handler.Pinger{}}

	var pg *postgres.Store
	if cfg.UsesPostgres() {
		db, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		s.closers = append(s.closers, db.Close)

		if err := db.PingContext(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
		version, err := internal.RunMigrations(ctx, db)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("migration failed: %w", err)
		}
		logger.Info("Database ready", "schema_version", version)

		pg = postgres.New(db)
		s.checks["database"] = db
	}

	var mem *memory.Store
	if cfg.StoreBackend == internal.BackendMemory || cfg.UsageBackend == internal.BackendMemory {
		mem = memory.New()
		logger.Warn("Using in-memory store, data will not survive a restart")
	}

	if cfg.StoreBackend == internal.BackendMemory {
		s.subscriptions, s.messages = mem, mem
	} else {
		s.subscriptions, s.messages = pg, pg
	}

	switch cfg.UsageBackend {
	case internal.BackendMemory:
		s.usage = mem
	case internal.BackendPostgres:
		s.usage = pg
	}

	if cfg.UsageBackend == internal.BackendRedis {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		s.closers = append(s.closers, client.Close)

		if err := client.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		logger.Info("Redis ready", "addr", cfg.RedisAddr)

		s.usage = redisstore.NewUsageStore(client)
		s.checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}

	return s, nil
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	// ==========================================================================
	// Services
	// ==========================================================================

	ledger := service.NewQuotaLedger(st.usage, logger, service.WithFreeLimit(cfg.FreeMessagesPerMonth))
	allocator := service.NewSubscriptionQuotaAllocator(st.subscriptions, logger)
	coordinator := service.NewQuotaCoordinator(ledger, allocator, st.subscriptions, logger)

	subscriptionService := service.NewSubscriptionService(st.subscriptions, service.SubscriptionServiceConfig{
		Payments:         service.NewRandomChance(cfg.PaymentSuccessRate, nil),
		RenewalBatchSize: cfg.RenewalBatchSize,
	}, logger)

	answers := answer.NewTemplateProvider(cfg.AnswerDelayMin, cfg.AnswerDelayMax, logger)
	chatService := service.NewChatService(coordinator, answers, st.messages, logger)

	// ==========================================================================
	// Router
	// ==========================================================================

	validator := handler.NewValidator()
	limiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	defer limiter.Stop()
	rateLimit := middleware.NewRateLimitMiddleware(limiter, logger)

	mux := http.NewServeMux()

	handler.NewHealthHandler(st.checks, logger).RegisterRoutes(mux)
	handler.NewChatHandler(chatService, validator, logger).RegisterRoutes(mux, rateLimit.Limit)
	handler.NewSubscriptionHandler(subscriptionService, validator, logger).RegisterRoutes(mux)
	handler.NewUsageHandler(ledger, subscriptionService, logger).RegisterRoutes(mux)

	metricsAuth := middleware.NewMetricsAuthMiddleware(middleware.MetricsAuthConfig{
		Username:        cfg.MetricsUsername,
		Password:        cfg.MetricsPassword,
		TrustedNetworks: cfg.MetricsTrustedNetworks,
	}, logger)
	if !metricsAuth.Enabled() {
		logger.Warn("Metrics endpoint is unauthenticated, set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		handler.NotFoundResponse(w, r, logger)
	})

	isSecure := cfg.Env != "development"
	chain := middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		metrics.Middleware,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
	)

	// ==========================================================================
	// Renewal worker
	// ==========================================================================

	var renewals *worker.Worker
	if cfg.RenewalEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.Interval = cfg.RenewalInterval
		renewals, err = worker.New(subscriptionService, workerCfg, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		renewals.Start(ctx)
	}

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env,
			"store", cfg.StoreBackend, "usage_store", cfg.UsageBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if renewals != nil {
		renewals.Stop()
	}

	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
