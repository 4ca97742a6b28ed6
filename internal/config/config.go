package config

import (
	"os"      // For environment variables
	"strconv" // For string to int conversion

	"github.com/joho/godotenv" // For loading .env files
)

// MockWebhookSecret is the placeholder secret shipped in sample .env files.
// A deployment still carrying it runs with webhook verification bypassed.
const MockWebhookSecret = "whsec_YOUR_MOCK_STRIPE_WEBHOOK_SECRET"

// Storage backends
const (
	StorageLocal = "local" // Files under UploadDir
	StorageS3    = "s3"    // Objects in an S3 compatible bucket
)

// Plaid modes
const (
	PlaidSandboxMock = "sandbox-mock" // Canned link tokens and payment sources, no network
	PlaidSandbox     = "sandbox"      // Plaid sandbox environment
	PlaidProduction  = "production"   // Plaid production environment
)

// Config holds the application configuration
type Config struct {
	AppPort    string // Application port
	DBUser     string // Database user
	DBPassword string // Database password
	DBHost     string // Database host
	DBPort     string // Database port
	DBName     string // Database name
	JWTSecret  string // JWT secret key
	RedisAddr  string // Redis server address, empty disables caching
	RedisPass  string // Redis password
	RedisDB    int    // Redis database number
	IsProd     bool   // Is production environment
	LogLevel   string // logrus level name

	UploadDir      string // Root directory for the local storage backend
	MaxUploadBytes int64  // Maximum accepted request body for uploads
	StorageBackend string // local or s3
	S3Region       string // S3 region
	S3Endpoint     string // S3 base endpoint (MinIO), empty for AWS
	S3AccessKey    string // S3 access key
	S3SecretKey    string // S3 secret key
	S3Bucket       string // S3 bucket

	StripeAPIKey        string // Stripe secret API key
	StripeWebhookSecret string // Stripe webhook signing secret
	StripeWebhookBypass bool   // Skip webhook signature checks (sandbox only)
	Currency            string // Currency used for payment intents

	PlaidMode     string // sandbox-mock, sandbox or production
	PlaidClientID string // Plaid client id
	PlaidSecret   string // Plaid secret
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	_ = godotenv.Load() // Load .env file if present
	redisDB, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	maxUpload, err := strconv.ParseInt(os.Getenv("MAX_UPLOAD_BYTES"), 10, 64)
	if err != nil || maxUpload <= 0 {
		maxUpload = 100 << 20 // 100 MiB
	}
	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),     // Application port
		DBUser:     os.Getenv("DB_USER"),           // Database user
		DBPassword: os.Getenv("DB_PASSWORD"),       // Database password
		DBHost:     os.Getenv("DB_HOST"),           // Database host
		DBPort:     os.Getenv("DB_PORT"),           // Database port
		DBName:     os.Getenv("DB_NAME"),           // Database name
		JWTSecret:  os.Getenv("JWT_SECRET"),        // JWT secret key
		RedisAddr:  os.Getenv("REDIS_ADDR"),        // Redis server address
		RedisPass:  os.Getenv("REDIS_PASS"),        // Redis password
		RedisDB:    redisDB,                        // Redis database number
		IsProd:     os.Getenv("IS_PROD") == "true", // Is production environment
		LogLevel:   getEnv("LOG_LEVEL", "info"),    // Log level

		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		MaxUploadBytes: maxUpload,
		StorageBackend: getEnv("STORAGE_BACKEND", StorageLocal),
		S3Region:       getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
		S3Bucket:       os.Getenv("S3_BUCKET"),

		StripeAPIKey:        os.Getenv("STRIPE_API_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripeWebhookBypass: os.Getenv("STRIPE_WEBHOOK_BYPASS") == "true",
		Currency:            getEnv("PAYMENT_CURRENCY", "usd"),

		PlaidMode:     getEnv("PLAID_MODE", PlaidSandboxMock),
		PlaidClientID: os.Getenv("PLAID_CLIENT_ID"),
		PlaidSecret:   os.Getenv("PLAID_SECRET"),
	}
}

// DSN builds the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}

// WebhookVerificationBypassed reports whether Stripe signatures are skipped
func (c *Config) WebhookVerificationBypassed() bool {
	return c.StripeWebhookBypass || c.StripeWebhookSecret == "" || c.StripeWebhookSecret == MockWebhookSecret
}

// getEnv returns the environment value or a fallback
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
