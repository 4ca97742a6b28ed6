package api

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation
	"time"     // Timestamps

	"vidvault/internal/domain" // Importing domain models
	"vidvault/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID                uint      `json:"id"`                  // User ID
	Username          string    `json:"username"`            // Username
	Email             string    `json:"email"`               // Email
	Role              string    `json:"role"`                // User role
	VideoCount        int64     `json:"video_count"`         // Uploaded videos
	HasPaymentAccount bool      `json:"has_payment_account"` // Bank link completed
	CreatedAt         time.Time `json:"created_at"`          // Signup time
}

// ListUsersHandler returns all users with their upload counts
func ListUsersHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p := parsePage(c)
		// Create a cache key based on pagination parameters
		cacheKey := "admin:users:page=" + c.DefaultQuery("page", "1") + ":size=" + c.DefaultQuery("page_size", "20")
		var cached struct {
			Users      []UserAdminResponse `json:"users"`       // List of users
			Page       int                 `json:"page"`        // Current page
			PageSize   int                 `json:"page_size"`   // Page size
			Total      int64               `json:"total"`       // Total number of users
			TotalPages int                 `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Users,
				"page":        cached.Page,
				"page_size":   cached.PageSize,
				"total":       cached.Total,
				"total_pages": cached.TotalPages,
				"cached":      true, // Indicate response is from cache
			})
			return
		}
		var total int64 // Total user count
		if err := db.Model(&domain.User{}).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count users"})
			return
		}
		var users []domain.User
		if err := db.Order("id").Offset(p.offset()).Limit(p.PageSize).Find(&users).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
			return
		}
		// One grouped count for the page instead of a query per user
		ids := make([]uint, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		var counts []struct {
			UserID uint
			Count  int64
		}
		if len(ids) > 0 {
			if err := db.Model(&domain.Video{}).Select("user_id, count(*) as count").
				Where("user_id IN ?", ids).Group("user_id").Scan(&counts).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count videos"})
				return
			}
		}
		videoCounts := make(map[uint]int64, len(counts))
		for _, vc := range counts {
			videoCounts[vc.UserID] = vc.Count
		}
		resp := make([]UserAdminResponse, len(users))
		for i, u := range users {
			resp[i] = UserAdminResponse{
				ID:                u.ID,
				Username:          u.Username,
				Email:             u.Email,
				Role:              u.Role,
				VideoCount:        videoCounts[u.ID],
				HasPaymentAccount: u.PaymentSourceID != nil && *u.PaymentSourceID != "",
				CreatedAt:         u.CreatedAt,
			}
		}
		respData := gin.H{
			"users":       resp,
			"page":        p.Page,
			"page_size":   p.PageSize,
			"total":       total,
			"total_pages": p.totalPages(total),
			"cached":      false, // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, cacheTTL)
		c.JSON(http.StatusOK, respData)
	}
}

// UnlockAdminResponse is one grant as shown to admins
type UnlockAdminResponse struct {
	ID               uint      `json:"id"`                // Grant ID
	UserID           uint      `json:"user_id"`           // Buyer
	VideoID          uint      `json:"video_id"`          // Unlocked video
	PaymentReference string    `json:"payment_reference"` // Provider payment id
	CreatedAt        time.Time `json:"created_at"`        // Grant time
}

// ListUnlocksHandler returns unlock grants, optionally filtered by user, video or date
func ListUnlocksHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		p := parsePage(c)
		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"user_id", "video_id", "from", "to", "page", "page_size"} {
			keyParts = append(keyParts, k+"="+c.DefaultQuery(k, ""))
		}
		cacheKey := "admin:unlocks:" + strings.Join(keyParts, ":")
		var cached struct {
			Unlocks    []UnlockAdminResponse `json:"unlocks"`     // List of grants
			Page       int                   `json:"page"`        // Current page
			PageSize   int                   `json:"page_size"`   // Page size
			Total      int64                 `json:"total"`       // Total number of grants
			TotalPages int                   `json:"total_pages"` // Total pages
		}
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"unlocks":     cached.Unlocks,
				"page":        cached.Page,
				"page_size":   cached.PageSize,
				"total":       cached.Total,
				"total_pages": cached.TotalPages,
				"cached":      true,
			})
			return
		}
		query := db.Model(&domain.UnlockGrant{}) // Start building the query
		if userID := c.Query("user_id"); userID != "" {
			query = query.Where("user_id = ?", userID) // Filter by buyer
		}
		if videoID := c.Query("video_id"); videoID != "" {
			query = query.Where("video_id = ?", videoID) // Filter by video
		}
		if from := c.Query("from"); from != "" {
			query = query.Where("created_at >= ?", from) // Filter by start date
		}
		if to := c.Query("to"); to != "" {
			query = query.Where("created_at <= ?", to) // Filter by end date
		}
		query = query.Session(&gorm.Session{}) // Count and Find each start from the filters
		var total int64
		if err := query.Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unlocks"})
			return
		}
		var grants []domain.UnlockGrant
		if err := query.Order("created_at desc").Order("id desc").Offset(p.offset()).Limit(p.PageSize).Find(&grants).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch unlocks"})
			return
		}
		unlocks := make([]UnlockAdminResponse, len(grants))
		for i, g := range grants {
			unlocks[i] = UnlockAdminResponse{
				ID:               g.ID,
				UserID:           g.UserID,
				VideoID:          g.VideoID,
				PaymentReference: g.PaymentReference,
				CreatedAt:        g.CreatedAt,
			}
		}
		respData := gin.H{
			"unlocks":     unlocks,
			"page":        p.Page,
			"page_size":   p.PageSize,
			"total":       total,
			"total_pages": p.totalPages(total),
			"cached":      false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, cacheTTL)
		c.JSON(http.StatusOK, respData)
	}
}
