package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/sme-lending/backend/internal/config"
	"github.com/sme-lending/backend/internal/db"
	"github.com/sme-lending/backend/internal/events"
	"github.com/sme-lending/backend/internal/jobs"
	"github.com/sme-lending/backend/internal/logger"
	"github.com/sme-lending/backend/internal/oracle"
	"github.com/sme-lending/backend/internal/repositories"
	"github.com/sme-lending/backend/internal/services"
	"go.uber.org/zap"
)

const reconcileBatch = 100

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	assetRepo := repositories.NewAssetRepo(pool)
	verificationRepo := repositories.NewVerificationRepo(pool)

	queue, err := jobs.NewQueue(jobs.Options{
		Workers:    cfg.JobWorkers,
		MaxRetries: cfg.JobMaxRetries,
		Timeout:    cfg.JobTimeout,
	}, log)
	if err != nil {
		log.Fatal("failed to start job queue", zap.Error(err))
	}

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	ledger := oracle.FromConfig(cfg, log)
	verificationService := services.NewVerificationService(assetRepo, verificationRepo, oracle.NewVerifier(cfg.OracleLatency), ledger, log)
	assetService := services.NewAssetService(assetRepo, verificationService, ledger, queue, publisher, log)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal("failed to create scheduler", zap.Error(err))
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.ReconcileInterval),
		gocron.NewTask(func() {
			runReconcile(ctx, assetService, cfg, log)
		}),
		gocron.WithName("reconcile_stale_assets"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		log.Fatal("failed to schedule reconciliation", zap.Error(err))
	}

	scheduler.Start()
	log.Info("worker started",
		zap.Duration("interval", cfg.ReconcileInterval),
		zap.Duration("stale_after", cfg.ReconcileStale),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	if err := scheduler.Shutdown(); err != nil {
		log.Warn("scheduler shutdown", zap.Error(err))
	}
	if err := queue.Close(cfg.JobTimeout); err != nil {
		log.Warn("job queue did not drain", zap.Error(err))
	}
	cancel()
}

// runReconcile re-enqueues tokenization for assets left pending by a crash
// between the insert and the job dispatch.
func runReconcile(ctx context.Context, assets *services.AssetService, cfg *config.Config, log *zap.Logger) {
	n, err := assets.ReconcileStale(ctx, cfg.ReconcileStale, reconcileBatch)
	if err != nil {
		log.Error("reconcile stale assets failed", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("re-enqueued stale assets", zap.Int("count", n))
	}
}
