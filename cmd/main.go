package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	echojwt "github.com/labstack/echo-jwt/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/random"

	"kazka/internal/caching"
	"kazka/internal/config"
	"kazka/internal/experiments"
	"kazka/internal/handlers"
	"kazka/internal/jobs"
	"kazka/internal/jobs/background"
	"kazka/internal/middleware"
	"kazka/internal/repositories"
	"kazka/internal/services"
	"kazka/pkg/database"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Server.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	pool, err := database.NewPool(cfg.Server.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.ClosePool(pool)

	jwtSecret := cfg.Server.JWTSecret
	if jwtSecret == "" {
		jwtSecret = random.String(32) // Generate random secret for development
		log.Printf("WARNING: Using generated JWT secret")
	}

	// Create cache service
	cacheSvc := caching.NewRedisCacheService(cfg.Queuing.RedisAddr, cfg.Queuing.RedisPassword, cfg.Queuing.RedisDB)

	// Initialize MinIO service for receipt storage
	minioSvc, err := services.NewMinioService(cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey, cfg.Storage.UseSSL)
	if err != nil {
		log.Fatalf("Failed to initialize MinIO service: %v", err)
	}

	// Payment gateway client
	gatewaySvc := services.NewGatewayService(
		cfg.Gateway.APIKey,
		cfg.Gateway.APISecret,
		cfg.Gateway.WebhookSecret,
		cfg.Gateway.BaseURL,
		cfg.RequestTimeout(),
	)

	// Create repositories
	intentRepo := repositories.NewPaymentIntentRepo(pool)
	subscriptionRepo := repositories.NewSubscriptionRepo(pool)
	rentalRepo := repositories.NewRentalRepo(pool)

	// Task queue client
	enqueuer := jobs.NewAsynqEnqueuer(cfg.Queuing.RedisAddr, cfg.Queuing.RedisPassword, cfg.Queuing.RedisDB)
	defer enqueuer.Close()

	// Create services
	subscriptionSvc := services.NewSubscriptionService(subscriptionRepo)
	intentSvc := services.NewIntentService(intentRepo, gatewaySvc, subscriptionSvc, cacheSvc, enqueuer, cfg.InvoiceTTL())
	rentalSvc := services.NewRentalService(rentalRepo, subscriptionSvc)
	notificationSvc := services.NewNotificationService(subscriptionRepo, rentalRepo)
	cartSvc := services.NewCartService(cacheSvc, subscriptionSvc, rentalSvc)
	receiptSvc := services.NewReceiptService(intentRepo, minioSvc)
	statusPoller := services.NewStatusPoller(intentSvc)
	assignments := experiments.NewRedisAssignmentStore(cacheSvc)

	// Task queue worker
	taskHandlers := jobs.NewTaskHandlers(intentSvc, subscriptionSvc, receiptSvc)
	worker := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Queuing.RedisAddr,
			Password: cfg.Queuing.RedisPassword,
			DB:       cfg.Queuing.RedisDB,
		},
		asynq.Config{Concurrency: cfg.Queuing.Concurrency},
	)
	go func() {
		if err := worker.Run(taskHandlers.NewServeMux()); err != nil {
			log.Fatalf("Task worker failed: %v", err)
		}
	}()
	defer worker.Shutdown()

	// Background sweeps
	scheduler := background.NewJobScheduler(intentSvc, rentalSvc)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start job scheduler: %v", err)
	}
	defer scheduler.Stop()

	// Create handlers
	paymentHandlers := handlers.NewPaymentHandlers(intentSvc, statusPoller, receiptSvc, cfg.PollInterval(), cfg.PollTimeout())
	subscriptionHandlers := handlers.NewSubscriptionHandlers(subscriptionSvc, intentSvc, assignments)
	rentalHandlers := handlers.NewRentalHandlers(rentalSvc, rentalRepo)
	cartHandlers := handlers.NewCartHandlers(cartSvc)
	notificationHandlers := handlers.NewNotificationHandlers(notificationSvc)
	webhookHandlers := handlers.NewWebhookHandlers(intentSvc, gatewaySvc, enqueuer, cacheSvc)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc)

	// Create Echo instance
	e := echo.New()

	// Global middleware
	e.Use(echoMiddleware.Logger())
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORS())
	e.Use(echoMiddleware.RemoveTrailingSlash())

	// Health endpoints (no auth required)
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/health/metrics", healthHandlers.GetMetrics)

	// Gateway callbacks (signature verified, no JWT)
	e.POST("/webhooks/payments", webhookHandlers.PaymentWebhook)

	// API routes
	v1 := e.Group("/v1")

	// Protected routes (require JWT)
	protected := v1.Group("")
	protected.Use(echojwt.WithConfig(middleware.JWTConfig(jwtSecret)))

	// Plan routes
	protected.GET("/plans", subscriptionHandlers.GetAvailablePlans)

	// Subscription routes
	protected.POST("/subscriptions", subscriptionHandlers.PurchaseSubscription)
	protected.GET("/subscriptions/me", subscriptionHandlers.GetMySubscription)
	protected.GET("/subscriptions/:id", subscriptionHandlers.GetSubscriptionByID)
	protected.POST("/subscriptions/:id/renew", subscriptionHandlers.RenewSubscription)
	protected.DELETE("/subscriptions/:id", subscriptionHandlers.CancelSubscription)
	protected.PUT("/subscriptions/:id/pause", subscriptionHandlers.PauseSubscription)
	protected.PUT("/subscriptions/:id/resume", subscriptionHandlers.ResumeSubscription)

	// Payment routes
	protected.POST("/payments/intents", paymentHandlers.CreateIntent)
	protected.GET("/payments/intents/:id", paymentHandlers.GetIntent)
	protected.GET("/payments/intents/:id/wait", paymentHandlers.WaitForIntent)
	protected.GET("/payments/intents/:id/receipt", paymentHandlers.GetReceipt)

	// Rental routes
	protected.POST("/rentals", rentalHandlers.RequestRental)
	protected.GET("/rentals", rentalHandlers.ListMyRentals)
	protected.PUT("/rentals/:id/return", rentalHandlers.ReturnRental)
	protected.PUT("/rentals/:id/exchange", rentalHandlers.ExchangeRental)

	// Cart routes
	protected.GET("/cart", cartHandlers.GetCart)
	protected.POST("/cart/items", cartHandlers.AddItem)
	protected.DELETE("/cart/items/:book_id", cartHandlers.RemoveItem)
	protected.DELETE("/cart", cartHandlers.ClearCart)
	protected.POST("/cart/checkout", cartHandlers.Checkout)

	// Operational routes (admin only)
	admin := protected.Group("", middleware.AdminOnly())
	admin.GET("/notifications", notificationHandlers.ListNotifications)

	port, err := strconv.Atoi(cfg.Server.Port)
	if err != nil {
		log.Fatalf("Invalid port %s: %v", cfg.Server.Port, err)
	}

	log.Printf("Kazka server v%s starting on port %d", version, port)

	e.Logger.Fatal(e.Start(fmt.Sprintf(":%d", port)))
}
