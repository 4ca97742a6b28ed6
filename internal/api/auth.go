package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"regexp"   // Regular expressions
	"strings"  // String manipulation

	"vidvault/internal/domain"     // Importing domain models
	"vidvault/internal/middleware" // Requester identity
	"vidvault/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

// SignupRequest is the body of POST /auth/signup
type SignupRequest struct {
	Username string `json:"username"` // Unique username
	Email    string `json:"email"`    // Unique email
	Password string `json:"password"` // Plain text password, hashed before storage
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Identifier string `json:"identifier"` // Username or email
	Password   string `json:"password"`   // Plain text password
}

// AuthResponse carries the issued token
type AuthResponse struct {
	AccessToken string `json:"access_token"` // JWT token
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,80}$`)

// isValidUsername allows letters, digits and underscores
func isValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// isValidEmail is a shape check only, delivery is never attempted
func isValidEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

// isValidPassword enforces a minimum length; bcrypt reads at most 72 bytes
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 72
}

// SignupHandler registers a new user
func SignupHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignupRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		username := strings.ToLower(strings.TrimSpace(req.Username))
		email := strings.ToLower(strings.TrimSpace(req.Email))
		if username == "" || email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing username, email, or password"})
			return
		}
		if !isValidUsername(username) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username must be 3-80 letters, digits or underscores"})
			return
		}
		if !isValidEmail(email) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
			return
		}
		if !isValidPassword(req.Password) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 8-72 characters"})
			return
		}
		// Reject duplicates up front so the caller gets a precise message
		var existing int64
		if err := db.Model(&domain.User{}).Where("username = ? OR email = ?", username, email).Count(&existing).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		if existing > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Username or email already exists"})
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		user := domain.User{Username: username, Email: email, PasswordHash: string(hash), Role: domain.RoleUser}
		// The unique indexes still catch a concurrent signup with the same name
		if err := db.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "Username or email already exists"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"username": username,
				"error":    err.Error(),
			}).Error("Signup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}
		logrus.WithFields(logrus.Fields{
			"user_id":  user.ID,  // New user
			"username": username, // Username
		}).Info("User signed up")
		c.JSON(http.StatusCreated, gin.H{"msg": "User created successfully"})
	}
}

// isUniqueViolation matches driver messages when gorm's error translation is off
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || strings.Contains(msg, "unique constraint")
}

// LoginHandler authenticates by username or email and returns a JWT token
func LoginHandler(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		identifier := strings.ToLower(strings.TrimSpace(req.Identifier))
		if identifier == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing identifier or password"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.Where("username = ? OR email = ?", identifier, identifier).First(&user).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		token, err := utils.GenerateJWT(user.ID, user.Username, user.Email, jwtSecret)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		c.JSON(http.StatusOK, AuthResponse{AccessToken: token})
	}
}

// ProtectedHandler echoes the authenticated user
func ProtectedHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := middleware.CurrentRequester(c)
		var user domain.User
		if err := db.First(&user, requester.UserID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logged_in_as": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
			"role":     user.Role,
		}})
	}
}
