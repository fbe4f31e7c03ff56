package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/dispatchd/internal/billing"
	"github.com/you/dispatchd/internal/config"
	"github.com/you/dispatchd/internal/domain"
	"github.com/you/dispatchd/internal/ops"
	"github.com/you/dispatchd/internal/pipeline"
	"github.com/you/dispatchd/internal/provider"
	"github.com/you/dispatchd/internal/ratelimit"
	"github.com/you/dispatchd/internal/sink"
	"github.com/you/dispatchd/internal/store"
	"github.com/you/dispatchd/internal/template"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := migrate(cfg); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	jobs := store.New(db)
	recipients := store.NewRecipientResolver(db)
	templates := template.NewResolver(db)
	auditSink := sink.NewAuditSink(db, cfg.SinkBatchSize, cfg.SinkFlushInterval, logger.Named("audit"))
	sendLogSink := sink.NewSendLogSink(db, cfg.SinkBatchSize, cfg.SinkFlushInterval, logger.Named("sendlog"))
	billingIngestor := billing.NewIngestor(db)
	policies := ratelimit.NewRedisPolicyStore(rdb)

	registry := pipeline.NewRegistry(cfg.SenderConcurrency, cfg.SenderRatePerSec, cfg.SenderBurst)

	transport := provider.NewHTTPTransport(map[domain.Provider]provider.Endpoint{
		domain.ProviderMeta: {
			BaseURL: getenv("META_API_BASE", "https://graph.facebook.com/v19.0"),
			Token:   os.Getenv("META_API_TOKEN"),
		},
		domain.ProviderGupshup: {
			BaseURL: getenv("GUPSHUP_API_BASE", "https://api.gupshup.io/wa"),
			Token:   os.Getenv("GUPSHUP_API_TOKEN"),
		},
	})

	pipe := pipeline.New(pipeline.Deps{
		Store:      jobs,
		Recipients: recipients,
		Templates:  templates,
		Adapters:   provider.DefaultAdapters(),
		Transport:  transport,
		Audit:      auditSink,
		SendLog:    sendLogSink,
		Billing:    billingIngestor,
		Policies:   policies,
		Registry:   registry,
	},
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithQueueCapacity(cfg.QueueCapacity),
		pipeline.WithClaimBatch(cfg.ClaimBatch),
		pipeline.WithPollInterval(cfg.PollInterval),
		pipeline.WithLeaseDuration(cfg.LeaseDuration),
		pipeline.WithMaxAttempts(cfg.MaxAttempts),
		pipeline.WithReapInterval(cfg.ReapInterval),
		pipeline.WithLogger(logger.Named("pipeline")),
	)

	refresher := ratelimit.NewRefresher(registry.Limiter, policies, cfg.PolicyRefresh, logger.Named("ratelimit"))
	opsSrv := ops.NewServer(cfg.OpsAddr, jobs, registry, pipe, logger.Named("ops"))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		auditSink.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sendLogSink.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		refresher.Run(ctx)
	}()

	go func() {
		if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server failed", zap.Error(err))
		}
	}()

	logger.Info("dispatcher started",
		zap.Int("workers", cfg.Workers),
		zap.Int("queue_capacity", cfg.QueueCapacity),
		zap.Int("sender_concurrency", cfg.SenderConcurrency))

	pipe.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := opsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops shutdown failed", zap.Error(err))
	}

	wg.Wait()
	logger.Info("dispatcher stopped")
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func migrate(cfg config.Config) error {
	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, cfg.MigrationsDir)
}
