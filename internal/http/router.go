package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/sme-lending/backend/internal/auth"
	"github.com/sme-lending/backend/internal/config"
	"github.com/sme-lending/backend/internal/http/handlers"
	"github.com/sme-lending/backend/internal/middleware"
	"github.com/sme-lending/backend/internal/rbac"
	"go.uber.org/zap"
)

// NewApp builds the fiber app with the shared error envelope.
func NewApp(cfg *config.Config, log *zap.Logger) *fiber.App {
	return fiber.New(fiber.Config{
		AppName:      "sme-lending-api",
		ErrorHandler: handlers.ErrorHandler(cfg.IsProduction(), log),
		BodyLimit:    1 << 20,
	})
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	verifier auth.Verifier,
	healthHandler *handlers.HealthHandler,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	escrowHandler *handlers.EscrowHandler,
	assetHandler *handlers.AssetHandler,
	loanHandler *handlers.LoanHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New(recover.Config{EnableStackTrace: !cfg.IsProduction()}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", healthHandler.Health)

	api := app.Group("/api")
	limited := middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log)

	// Public
	api.Post("/auth/register", limited, authHandler.Register)
	api.Post("/auth/login", limited, authHandler.Login)
	api.Get("/escrow/token/:token", limited, escrowHandler.GetByToken)

	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/asset-types", metaHandler.GetAssetTypes)
	api.Get("/meta/roles", metaHandler.GetRoles)

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(verifier, log))

	// User
	protected.Get("/me", userHandler.GetMe)

	// Escrow
	protected.Post("/escrow/create", middleware.RequirePermission(rbac.PermCreateEscrow), escrowHandler.CreateEscrow)
	protected.Get("/escrow/invites", escrowHandler.ListInvites)
	protected.Post("/escrow/accept/:token", escrowHandler.AcceptInvite)
	protected.Get("/escrow", escrowHandler.ListEscrows)
	protected.Get("/escrow/:id", escrowHandler.GetEscrow)
	protected.Get("/escrow/:id/activities", escrowHandler.ListActivities)
	protected.Post("/escrow/:id/invite", escrowHandler.SendInvite)
	protected.Post("/escrow/:id/deposit", escrowHandler.Deposit)

	// Milestones
	protected.Post("/milestones/:id/submit", escrowHandler.SubmitMilestone)
	protected.Post("/milestones/:id/approve", escrowHandler.ApproveMilestone)
	protected.Post("/milestones/:id/reject", escrowHandler.RejectMilestone)

	// Assets
	protected.Post("/assets/create", assetHandler.CreateAsset)
	protected.Get("/assets", assetHandler.ListAssets)
	protected.Get("/assets/:id", assetHandler.GetAsset)

	// Verification
	protected.Post("/verification/verify-asset/:id", assetHandler.VerifyAsset)
	protected.Get("/verification/logs/:assetId", assetHandler.VerificationLogs)

	// Loans
	protected.Post("/loans/request", loanHandler.RequestLoan)
	protected.Get("/loans", loanHandler.ListLoans)
	protected.Get("/loans/:id", loanHandler.GetLoan)
	protected.Get("/loans/:id/history", loanHandler.History)
	protected.Post("/loans/:id/fund", loanHandler.FundLoan)

	// Lender review
	lender := protected.Group("/lender", middleware.RequirePermission(rbac.PermReviewLoan))
	lender.Post("/approve-loan/:id", loanHandler.ApproveLoan)
	lender.Post("/reject-loan/:id", loanHandler.RejectLoan)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
