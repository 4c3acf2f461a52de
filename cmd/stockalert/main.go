package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/logger"

	"github.com/stockalert/stockalert/internal/config"
	"github.com/stockalert/stockalert/internal/database"
	"github.com/stockalert/stockalert/internal/email"
	"github.com/stockalert/stockalert/internal/handlers"
	"github.com/stockalert/stockalert/internal/jobs"
	"github.com/stockalert/stockalert/internal/middleware"
	"github.com/stockalert/stockalert/internal/realtime"
	"github.com/stockalert/stockalert/internal/services"
	slackutil "github.com/stockalert/stockalert/internal/slack"
)

// jobShutdownTimeout bounds how long shutdown waits for a background pass to wind down
const jobShutdownTimeout = 30 * time.Second

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting stockalert...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/auth/login",
		},
		QueryTokenPaths: []string{"/ws/*"},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize default database records
	if err := database.InitializeDefaults(cfg.AlertSettingsSeed()); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())
	defer ctxCancel()

	store := database.NewStore(database.GetDB())

	// Realtime fanout, relayed through Redis when configured
	hub := realtime.NewHub()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		relay := realtime.NewRedisRelay(redis.NewClient(opts), hub, cfg.RedisChannel)
		hub.SetForwarder(relay)
		go runRelay(ctx, relay)
	} else {
		log.Printf("Realtime relay disabled (set REDIS_URL to fan out across instances)")
	}

	// Email escalation providers
	registry := buildEmailRegistry(ctx, cfg.Email)

	// Slack escalation with hot-reload support
	slackManager := slackutil.NewManager()
	if err := slackManager.Start(); err != nil {
		log.Printf("Warning: Failed to start Slack: %v", err)
	}
	go slackManager.WatchForReloads(ctx)

	// Evaluation pipeline
	facts := services.NewGormFactSource(database.GetDB())
	recipients := services.NewGormRecipientDirectory(database.GetDB())
	dispatcher := services.NewDispatcher(store, recipients, hub,
		services.NewEmailEscalator(registry.SendTo),
		services.NewSlackEscalator(slackutil.NewNotifier(slackManager)),
	)
	healthCheckService := services.NewHealthCheckService(store, facts, dispatcher)

	settings, err := database.GetOrCreateAlertSettings(database.GetDB())
	if err != nil {
		log.Fatalf("Failed to load alert settings: %v", err)
	}
	scheduler := jobs.NewHealthCheckScheduler(store, healthCheckService, settings.HealthCheckTimeout())

	// HTTP handlers
	httpHandler := handlers.NewHTTPHandler(hub)
	apiHandler := handlers.NewAPIHandler(store, scheduler, slackManager)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)
	corsMiddleware := middleware.NewCORSMiddleware(cfg.CORSAllowedOrigins...)
	wsHandler := handlers.NewNotificationsWSHandler(store, hub, corsMiddleware.AllowsOrigin)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)
	wsHandler.SetupRoutes(mux)

	// Request ID and access log outermost, then CORS, then JWT authentication
	handler := middleware.RequestIDMiddleware(middleware.AccessLogMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux))))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Background jobs
	stopJobs := make(chan struct{})
	healthCheckJob := jobs.NewHealthCheckJob(scheduler, store)
	go healthCheckJob.Start(time.Duration(cfg.SchedulerTickSeconds)*time.Second, stopJobs)
	retentionJob := jobs.NewRetentionJob(store)
	go retentionJob.Start(time.Duration(cfg.RetentionIntervalHours)*time.Hour, stopJobs)

	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)
	log.Printf("Notifications websocket: ws://localhost:%d/ws/notifications", cfg.HTTPPort)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("Received shutdown signal, cleaning up...")

	close(stopJobs)
	hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	// Let the pass in flight and its escalations finish before the database goes away
	waitForJob("health check", healthCheckJob.Done(), jobShutdownTimeout)
	waitForJob("retention", retentionJob.Done(), jobShutdownTimeout)
	dispatcher.Wait()
	ctxCancel()
	slackManager.Stop()

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}

// waitForJob blocks until done is closed or timeout elapses
func waitForJob(name string, done <-chan struct{}, timeout time.Duration) {
	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("Warning: %s job still running after %v, closing database anyway", name, timeout)
	}
}

// buildEmailRegistry registers every provider and selects primary and fallbacks
func buildEmailRegistry(ctx context.Context, cfg config.EmailConfig) *email.Registry {
	registry := email.NewRegistry(cfg.From)
	registry.Register(email.NewSMTPProvider(email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
	}))
	registry.Register(email.NewResendProvider(cfg.ResendKey))
	registry.Register(email.NewSESProvider(ctx, cfg.SESRegion))

	if err := registry.SetPrimary(cfg.Provider); err != nil {
		log.Printf("Warning: Email: %v, using any configured provider", err)
	}
	if len(cfg.Fallback) > 0 {
		if err := registry.SetFallback(cfg.Fallback...); err != nil {
			log.Printf("Warning: Email: %v", err)
		}
	}
	if !registry.IsConfigured() {
		log.Printf("Warning: Email: no provider is configured, CRITICAL email escalation will fail")
	}
	return registry
}

// runRelay keeps the Redis relay subscribed, reconnecting after failures
func runRelay(ctx context.Context, relay *realtime.RedisRelay) {
	for {
		err := relay.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("Warning: Relay: %v, reconnecting in 5s", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}
