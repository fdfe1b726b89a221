package server

import (
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/groeimetai/billing/internal/config"
	"github.com/groeimetai/billing/internal/domain"
	"github.com/groeimetai/billing/internal/handler"
	"github.com/groeimetai/billing/internal/middleware"
	"github.com/groeimetai/billing/internal/repository"
	"github.com/groeimetai/billing/internal/service"
	"github.com/groeimetai/billing/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// AppDependencies holds the dependencies required to start the application.
// Provider, AuthClient and Archive are injectable so tests can substitute
// mocks without touching the wiring.
type AppDependencies struct {
	Config          *config.Config
	MongoDB         *mongo.Database
	RedisClient     *redis.Client
	AuthClient      service.FirebaseAuthClient
	PaymentProvider service.PaymentProvider
	Archive         service.ReportArchive
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	// Repositories
	invoiceRepo := repository.NewMongoInvoiceRepository(deps.MongoDB)
	paymentRepo := repository.NewMongoPaymentRepository(deps.MongoDB)
	syncRunRepo := repository.NewMongoSyncRunRepository(deps.MongoDB)
	userRepo := repository.NewMongoUserRepository(deps.MongoDB)
	cacheRepo := repository.NewRedisCacheRepository(deps.RedisClient)

	// Services
	checkoutService := service.NewCheckoutService(invoiceRepo, paymentRepo, deps.PaymentProvider)
	reconcileService := service.NewReconcileService(
		invoiceRepo, paymentRepo, syncRunRepo, deps.PaymentProvider, cacheRepo, deps.Archive)
	authService := service.NewAuthService(
		userRepo, deps.AuthClient, deps.Config.JWT.Secret, deps.Config.JWT.AccessTokenExpiry)

	// Handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceRepo, checkoutService, cacheRepo)
	webhookHandler := handler.NewWebhookHandler(reconcileService)
	syncHandler := handler.NewSyncHandler(reconcileService)
	authHandler := handler.NewAuthHandler(authService)

	app := fiber.New(fiber.Config{
		AppName:      "GroeimetAI Billing API",
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Correlation-ID",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "groeimetai-billing",
		})
	})

	api := app.Group("/api")

	// Auth (public)
	api.Post("/auth/login", authHandler.Login)

	// Payment processor webhook (public, status is re-fetched server side)
	api.Post("/webhooks/mollie", webhookHandler.MollieWebhook)

	invoices := api.Group("/invoices")

	verifyToken := middleware.VerifyAccessToken(deps.Config.JWT.Secret)
	adminRole := middleware.AuthorizeRole(domain.RoleAdmin)
	operatorRole := middleware.AuthorizeRole(domain.RoleAdmin, domain.RoleConsultant)

	// Admin reconciliation endpoints. Registered before the /:id routes so
	// "sync-all-payments" is never captured as an invoice id.
	invoices.Post("/sync-all-payments", verifyToken, adminRole, syncHandler.SyncAll)
	invoices.Get("/sync-all-payments", verifyToken, adminRole, syncHandler.GetLastSync)
	invoices.Post("/:id/sync-payment", verifyToken, adminRole, syncHandler.SyncInvoice)

	// Operator invoice management
	invoices.Post("/", verifyToken, operatorRole, invoiceHandler.CreateInvoice)
	invoices.Get("/:id", verifyToken, operatorRole, invoiceHandler.GetInvoice)
	invoices.Patch("/:id/status", verifyToken, operatorRole, invoiceHandler.UpdateStatus)

	// Public pay-this-invoice endpoints (email payment links)
	invoices.Get("/:id/pay", invoiceHandler.GetPublicInvoice)
	invoices.Post("/:id/pay",
		middleware.IdempotencyMiddleware(deps.RedisClient, 15*time.Minute),
		invoiceHandler.PayInvoice)

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	log.Printf("Error: %v", err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
