package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/config"
	"github.com/sme-lending/backend/internal/db"
	"github.com/sme-lending/backend/internal/events"
	apphttp "github.com/sme-lending/backend/internal/http"
	"github.com/sme-lending/backend/internal/http/handlers"
	"github.com/sme-lending/backend/internal/jobs"
	"github.com/sme-lending/backend/internal/logger"
	"github.com/sme-lending/backend/internal/oracle"
	"github.com/sme-lending/backend/internal/repositories"
	"github.com/sme-lending/backend/internal/services"
	"github.com/sme-lending/backend/migrations"
	"go.uber.org/zap"
)

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

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, cfg.DBMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	escrowRepo := repositories.NewEscrowRepo(pool)
	activityRepo := repositories.NewActivityRepo(pool)
	assetRepo := repositories.NewAssetRepo(pool)
	verificationRepo := repositories.NewVerificationRepo(pool)
	loanRepo := repositories.NewLoanRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Background jobs
	queue, err := jobs.NewQueue(jobs.Options{
		Workers:    cfg.JobWorkers,
		MaxRetries: cfg.JobMaxRetries,
		Timeout:    cfg.JobTimeout,
	}, log)
	if err != nil {
		log.Fatal("failed to start job queue", zap.Error(err))
	}

	// Services
	ledger := oracle.FromConfig(cfg, log)
	verifier := oracle.NewVerifier(cfg.OracleLatency)
	tokenVerifier := auth.NewJWTVerifier(cfg.JWTSecret)

	authService := services.NewAuthService(userRepo, cfg, log)
	escrowService := services.NewEscrowService(escrowRepo, activityRepo, publisher, cfg, log)
	verificationService := services.NewVerificationService(assetRepo, verificationRepo, verifier, ledger, log)
	assetService := services.NewAssetService(assetRepo, verificationService, ledger, queue, publisher, log)
	loanService := services.NewLoanService(loanRepo, assetRepo, ledger, queue, publisher, log)

	// Handlers
	healthHandler := handlers.NewHealthHandler(pool, rdb)
	authHandler := handlers.NewAuthHandler(authService, log)
	userHandler := handlers.NewUserHandler(authService, log)
	escrowHandler := handlers.NewEscrowHandler(escrowService, log)
	assetHandler := handlers.NewAssetHandler(assetService, verificationService, log)
	loanHandler := handlers.NewLoanHandler(loanService, log)
	wsHub := handlers.NewWSHub(tokenVerifier, subscriber, log)

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	app := apphttp.NewApp(cfg, log)
	apphttp.SetupRouter(app, cfg, log, rdb, tokenVerifier,
		healthHandler, authHandler, userHandler, escrowHandler, assetHandler, loanHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr), zap.String("oracle", cfg.OracleMode))
	if err := app.Listen(addr); err != nil {
		log.Error("server error", zap.Error(err))
	}

	if err := queue.Close(cfg.JobTimeout); err != nil {
		log.Warn("job queue did not drain", zap.Error(err))
	}
	cancel()
	log.Info("api stopped")
}
