package api

import (
	"vidvault/internal/billing"    // Payments and unlock grants
	"vidvault/internal/middleware" // Custom package for middleware
	"vidvault/internal/storage"    // Blob storage
	"vidvault/internal/upload"     // Upload intake

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// Deps carries everything the handlers need
type Deps struct {
	DB             *gorm.DB                // Database handle
	Redis          *redis.Client           // Cache, nil disables caching
	Store          storage.Storage         // Uploaded video bytes
	Reconciler     *billing.Reconciler     // Webhook processing and grant lookups
	Payments       billing.PaymentProvider // Payment intents
	BankLinker     billing.BankLinker      // Bank-link tokens and payment sources
	JWTSecret      string                  // JWT signing secret
	Currency       string                  // Currency for payment intents
	MaxUploadBytes int64                   // Upload body cap
}

// NewRouter registers every route on a fresh engine
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	Register(r, d)
	return r
}

// Register adds the routes to r
func Register(r *gin.Engine, d Deps) {
	requireAuth := middleware.JWTAuthMiddleware(d.JWTSecret)
	optionalAuth := middleware.OptionalAuthMiddleware(d.JWTSecret)
	intake := upload.NewIntake(d.DB, d.Store)

	r.GET("/", HomeHandler()) // Landing endpoint and payment notices

	// Auth routes
	auth := r.Group("/auth")
	auth.POST("/signup", SignupHandler(d.DB))                   // Registration endpoint
	auth.POST("/login", LoginHandler(d.DB, d.JWTSecret))        // Login endpoint
	auth.GET("/protected", requireAuth, ProtectedHandler(d.DB)) // Token check endpoint

	// Video routes; page and stream accept anonymous callers
	videos := r.Group("/videos")
	videos.POST("/upload", requireAuth, UploadVideoHandler(intake, d.Redis, d.MaxUploadBytes))
	videos.GET("/user", requireAuth, ListUserVideosHandler(d.DB, d.Redis))
	videos.GET("/:id", optionalAuth, GetVideoHandler(d.DB, d.Reconciler))
	videos.GET("/:id/stream", optionalAuth, StreamVideoHandler(d.DB, d.Reconciler, d.Store))
	videos.PATCH("/:id/visibility", requireAuth, UpdateVisibilityHandler(d.DB, d.Redis))
	r.GET("/gallery", optionalAuth, GalleryHandler(d.DB, d.Redis))

	// Payment routes
	r.POST("/create-payment-intent", requireAuth, CreatePaymentIntentHandler(d.DB, d.Reconciler, d.Payments, d.Currency))
	r.GET("/payment-complete", PaymentCompleteHandler(d.Payments))
	r.POST("/create-link-token", requireAuth, CreateLinkTokenHandler(d.BankLinker))
	r.POST("/set-payment-method", requireAuth, SetPaymentMethodHandler(d.DB, d.BankLinker))
	r.POST("/stripe-webhook", StripeWebhookHandler(d.Reconciler)) // Authenticated by signature, not JWT

	// Admin routes (protected, admin only)
	admin := r.Group("/admin")
	admin.Use(requireAuth, middleware.AdminOnlyMiddleware(d.DB))
	admin.GET("/users", ListUsersHandler(d.DB, d.Redis))     // List users endpoint
	admin.GET("/unlocks", ListUnlocksHandler(d.DB, d.Redis)) // List unlock grants endpoint
}
