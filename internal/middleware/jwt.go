package middleware

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"vidvault/internal/access" // Requester identity
	"vidvault/internal/utils"  // JWT utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/golang-jwt/jwt/v5" // JWT errors
)

// Context keys set by the auth middleware
const (
	UserIDKey   = "userID"   // uint, present only for authenticated callers
	UsernameKey = "username" // string
)

// Sub-status codes that tell clients why a token was rejected
const (
	SubStatusExpired = 42 // Token expired
	SubStatusInvalid = 43 // Token malformed or badly signed
	SubStatusMissing = 44 // No token sent
)

// JWTAuthMiddleware validates JWT tokens and extracts user information.
// Requests without a valid token are rejected.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		if authHeader == "" {
			abortUnauthorized(c, SubStatusMissing, "Request does not contain an access token")
			return
		}
		if !authenticate(c, authHeader, secret) {
			return
		}
		c.Next() // Proceed to the next handler
	}
}

// OptionalAuthMiddleware resolves the caller when a token is sent and lets
// anonymous requests through. A token that is sent but invalid is still rejected.
func OptionalAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			if !authenticate(c, authHeader, secret) {
				return
			}
		}
		c.Next()
	}
}

// authenticate parses the bearer token and stores the identity in the context
func authenticate(c *gin.Context, authHeader, secret string) bool {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		abortUnauthorized(c, SubStatusInvalid, "Missing or invalid Authorization header")
		return false
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string
	claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
	if errors.Is(err, jwt.ErrTokenExpired) {
		abortUnauthorized(c, SubStatusExpired, "The token has expired")
		return false
	}
	if err != nil {
		abortUnauthorized(c, SubStatusInvalid, "Invalid token")
		return false
	}
	c.Set(UserIDKey, claims.UserID)     // Store userID in context
	c.Set(UsernameKey, claims.Username) // Store username in context
	return true
}

// abortUnauthorized stops the chain with a 401 and a sub-status
func abortUnauthorized(c *gin.Context, subStatus int, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "sub_status": subStatus})
}

// CurrentRequester returns the identity resolved by the auth middleware
func CurrentRequester(c *gin.Context) access.Requester {
	if id, ok := c.Get(UserIDKey); ok {
		if uid, ok := id.(uint); ok && uid != 0 {
			return access.User(uid)
		}
	}
	return access.Anonymous()
}
