package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/examforge/exam-session-service/internal/codec"
	"github.com/examforge/exam-session-service/internal/config"
	"github.com/examforge/exam-session-service/internal/events"
	"github.com/examforge/exam-session-service/internal/handlers"
	"github.com/examforge/exam-session-service/internal/repositories/casdoor"
	"github.com/examforge/exam-session-service/internal/repositories/postgres"
	"github.com/examforge/exam-session-service/internal/security"
	"github.com/examforge/exam-session-service/internal/services"
	"github.com/examforge/exam-session-service/internal/utils"
	"github.com/examforge/exam-session-service/internal/validator"
	"github.com/examforge/exam-session-service/pkg"
)

// expirySweepInterval paces the background pass that finalizes sessions
// whose clients went away without reporting a timeout.
const expirySweepInterval = 30 * time.Second

const expirySweepBatch = 100

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database
	db, err := pkg.InitDatabase(cfg.DatabaseURL, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Initialize Redis (if configured)
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Printf("Warning: Failed to initialize Redis: %v", err)
		}
	}

	// At-rest encryption of question and answer text, when a key is set
	var textCodec codec.Codec = codec.Noop{}
	if cfg.EncryptionKey != "" {
		textCodec, err = codec.NewAESGCM(cfg.EncryptionKey)
		if err != nil {
			log.Fatalf("Failed to initialize text codec: %v", err)
		}
	}

	// Initialize repositories
	repoConfig := postgres.RepositoryConfig{
		DB:          db,
		RedisClient: redisClient,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
		TextCodec: textCodec,
	}
	repoManager := postgres.NewRepositoryManager(repoConfig)
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}

	// Initialize validator
	validator := validator.New()

	// Event publisher: Kafka when brokers are configured, noop otherwise
	var publisher events.EventPublisher = events.NoopEventPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = events.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize Kafka publisher: %v", err)
		}
	}

	// Bot verification on session start, when a secret is configured
	var verifier security.Verifier = security.AllowAll{}
	if cfg.BotVerifySecret != "" {
		verifier = security.NewTurnstileVerifier(cfg.BotVerifySecret, cfg.BotVerifyEndpoint)
	}

	// Initialize services
	serviceManager := services.NewServiceManager(services.ServiceManagerConfig{
		Repository: repoManager.GetRepository(),
		DB:         db,
		Logger:     slogLogger,
		Validator:  validator,
		Publisher:  publisher,
		Session:    cfg.Session,
		Verifier:   verifier,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize handlers
	handlerManager := handlers.NewHandlerManager(
		serviceManager,
		validator,
		logger,
		cfg.Casdoor,
		cfg.Rate,
		repoManager.GetRepository().User(),
		redisClient,
	)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	// Background sweeper: finalizes expired sessions nobody polled
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	go runExpirySweeper(sweepCtx, serviceManager.Session(), slogLogger)

	// Create HTTP server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweeper()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	// Shutdown services
	if err := serviceManager.Shutdown(ctx); err != nil {
		log.Printf("Failed to shutdown services: %v", err)
	}

	// Close database connection
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	// Close Redis connection
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("Server exited")
}

func runExpirySweeper(ctx context.Context, sessions services.SessionService, logger *slog.Logger) {
	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.SweepExpired(ctx, expirySweepBatch)
			if err != nil {
				logger.Error("Expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("Expiry sweep finalized sessions", "count", n)
			}
		}
	}
}
