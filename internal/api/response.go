package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Timestamps

	"vidvault/internal/access" // Access decisions
	"vidvault/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// cacheTTL is how long listings stay cached
const cacheTTL = 60 * time.Second

// page holds pagination parameters
type page struct {
	Page     int // 1-based page number
	PageSize int // Items per page
}

// offset returns the number of rows to skip
func (p page) offset() int {
	return (p.Page - 1) * p.PageSize
}

// totalPages returns the number of pages for total rows
func (p page) totalPages(total int64) int {
	return (int(total) + p.PageSize - 1) / p.PageSize
}

// parsePage reads page and page_size, defaulting to 1 and 20 (max 100)
func parsePage(c *gin.Context) page {
	p := page{Page: 1, PageSize: 20}
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		p.Page = v // Set page if valid
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= 100 {
		p.PageSize = v // Set page size if valid
	}
	return p
}

// parseID reads a positive numeric path parameter
func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// VideoResponse is the public view of a video
type VideoResponse struct {
	ID               uint      `json:"id"`                          // Video ID
	Title            string    `json:"title"`                       // Title
	Description      *string   `json:"description"`                 // Optional description
	Filename         string    `json:"filename"`                    // Original file name
	TotalSize        int64     `json:"total_size"`                  // Size in bytes
	UserID           uint      `json:"user_id"`                     // Owner
	UploaderUsername string    `json:"uploader_username,omitempty"` // Owner username
	Visibility       string    `json:"visibility"`                  // public or private
	IsPaidUnlock     bool      `json:"is_paid_unlock"`              // Streaming requires a purchase
	Price            *string   `json:"price"`                       // Fixed two decimals, null for free videos
	IsProcessed      bool      `json:"is_processed"`                // Reserved
	Locked           bool      `json:"locked"`                      // Caller must buy before streaming
	Purchasable      bool      `json:"purchasable"`                 // Caller can start a purchase
	CreatedAt        time.Time `json:"created_at"`                  // Creation time
	UpdatedAt        time.Time `json:"updated_at"`                  // Last update
}

// newVideoResponse maps a video to its response shape
func newVideoResponse(v *domain.Video) VideoResponse {
	resp := VideoResponse{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		Filename:     v.Filename,
		TotalSize:    v.TotalSize,
		UserID:       v.UserID,
		Visibility:   v.Visibility,
		IsPaidUnlock: v.IsPaidUnlock,
		IsProcessed:  v.IsProcessed,
		CreatedAt:    v.CreatedAt,
		UpdatedAt:    v.UpdatedAt,
	}
	if v.Uploader != nil {
		resp.UploaderUsername = v.Uploader.Username
	}
	if v.IsPaidUnlock && v.Price.Valid {
		price := v.Price.Decimal.StringFixed(2)
		resp.Price = &price
	}
	return resp
}

// writeAccessError maps an access denial to its HTTP status
func writeAccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, access.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
	case errors.Is(err, access.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Login required to view this video"})
	case errors.Is(err, access.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You do not have access to this video"})
	case errors.Is(err, access.ErrPaymentRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Unlock this video to stream it"})
	default:
		logrus.WithField("error", err.Error()).Error("Access check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check access"})
	}
}
