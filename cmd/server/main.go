package main

import (
	"context" // context package is needed for Redis and S3 setup

	"vidvault/internal/api"     // Custom package for API handlers
	"vidvault/internal/billing" // Payments, webhooks and bank link
	"vidvault/internal/config"  // Custom package for configuration
	"vidvault/internal/db"      // Database connection
	"vidvault/internal/storage" // Blob storage backends

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}

	// Connect to the database
	gdb, err := db.Open(cfg.DSN())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client; listings are served uncached without one
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr, // Redis server address
			Password: cfg.RedisPass, // Redis password
			DB:       cfg.RedisDB,   // Redis database number
		})
		if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
			logrus.Fatalf("failed to connect to Redis: %v", err)
		}
	} else {
		logrus.Warn("REDIS_ADDR not set, caching disabled")
	}

	store := newStorage(cfg)

	// Webhook verification
	bypass := cfg.WebhookVerificationBypassed()
	if bypass {
		logrus.Warn("Stripe webhook signature verification is DISABLED; use only in sandbox")
	}
	reconciler := billing.NewReconciler(gdb, billing.NewStripeVerifier(cfg.StripeWebhookSecret, bypass))

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := api.NewRouter(api.Deps{
		DB:             gdb,
		Redis:          redisClient,
		Store:          store,
		Reconciler:     reconciler,
		Payments:       billing.NewStripeProvider(cfg.StripeAPIKey),
		BankLinker:     newBankLinker(cfg),
		JWTSecret:      cfg.JWTSecret,
		Currency:       cfg.Currency,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	r.MaxMultipartMemory = 32 << 20 // Larger parts spill to temp files

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	logrus.Info("Server running on " + cfg.AppPort) // Log server start
	if err := r.Run(":" + cfg.AppPort); err != nil {
		logrus.Fatalf("server stopped: %v", err)
	}
}

// newStorage picks the blob backend
func newStorage(cfg *config.Config) storage.Storage {
	switch cfg.StorageBackend {
	case config.StorageS3:
		s3Store, err := storage.NewS3Storage(context.Background(), storage.S3Options{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			logrus.Fatalf("failed to configure S3 storage: %v", err)
		}
		return s3Store
	case config.StorageLocal:
		local, err := storage.NewLocalStorage(cfg.UploadDir)
		if err != nil {
			logrus.Fatalf("failed to prepare upload dir: %v", err)
		}
		return local
	default:
		logrus.Fatalf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
		return nil
	}
}

// newBankLinker picks the bank-link implementation
func newBankLinker(cfg *config.Config) billing.BankLinker {
	switch cfg.PlaidMode {
	case config.PlaidSandbox, config.PlaidProduction:
		return billing.NewPlaidLinker(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidMode == config.PlaidProduction)
	default:
		logrus.Warn("Plaid running in mock sandbox mode")
		return billing.SandboxLinker{}
	}
}
