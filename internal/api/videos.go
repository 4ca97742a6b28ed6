package api

import (
	"context"  // Context for cache calls
	"errors"   // Error matching
	"io"       // Upload and stream bodies
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"vidvault/internal/access"     // Access decisions
	"vidvault/internal/billing"    // Unlock grants
	"vidvault/internal/domain"     // Importing domain models
	"vidvault/internal/middleware" // Requester identity
	"vidvault/internal/storage"    // Blob storage
	"vidvault/internal/upload"     // Upload intake
	"vidvault/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// Cache key prefixes for video listings
const (
	galleryCachePrefix    = "gallery:"
	userVideosCachePrefix = "videos:user:"
)

// mediaTypes maps accepted extensions to stream content types
var mediaTypes = map[string]string{
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"mkv":  "video/x-matroska",
	"webm": "video/webm",
}

// uploadErrors are reported to the client as 400s
var uploadErrors = []error{
	upload.ErrMissingTitle,
	upload.ErrMissingFile,
	upload.ErrUnsupportedType,
	upload.ErrMissingPrice,
	upload.ErrInvalidPrice,
	upload.ErrPriceTooLow,
	upload.ErrPriceWithoutPaidFlag,
	upload.ErrInvalidVisibility,
}

// isUploadError reports whether err is a validation failure
func isUploadError(err error) bool {
	for _, target := range uploadErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// parseBool accepts the checkbox values browsers and clients send
func parseBool(s string) bool {
	switch s {
	case "1", "true", "True", "TRUE", "on", "yes":
		return true
	}
	return false
}

// userVideosPrefix is the cache prefix for one user's listing
func userVideosPrefix(userID uint) string {
	return userVideosCachePrefix + strconv.FormatUint(uint64(userID), 10) + ":"
}

// invalidateVideoCaches drops listings that may show the video
func invalidateVideoCaches(ctx context.Context, rdb *redis.Client, userID uint, gallery bool) {
	if err := utils.DeleteCachePrefix(ctx, rdb, userVideosPrefix(userID)); err != nil {
		logrus.WithField("error", err.Error()).Warn("Failed to invalidate user video cache")
	}
	if !gallery {
		return
	}
	if err := utils.DeleteCachePrefix(ctx, rdb, galleryCachePrefix); err != nil {
		logrus.WithField("error", err.Error()).Warn("Failed to invalidate gallery cache")
	}
}

// loadVideo fetches a video with its uploader, nil when absent
func loadVideo(db *gorm.DB, id uint) (*domain.Video, error) {
	var video domain.Video
	err := db.Preload("Uploader").First(&video, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &video, nil
}

// UploadVideoHandler accepts a multipart upload with a file and its metadata
func UploadVideoHandler(intake *upload.Intake, rdb *redis.Client, maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := middleware.CurrentRequester(c)
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes) // Cap the request body
		if _, err := c.MultipartForm(); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a multipart form"})
			return
		}
		req := upload.Request{
			OwnerID:      requester.UserID,
			Title:        c.PostForm("title"),
			Description:  c.PostForm("description"),
			Visibility:   c.PostForm("visibility"),
			IsPaidUnlock: parseBool(c.PostForm("is_paid_unlock")),
			Price:        c.PostForm("price"),
		}
		if header, err := c.FormFile("file"); err == nil && header.Filename != "" {
			file, err := header.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read uploaded file"})
				return
			}
			defer file.Close()
			req.File = file
			req.Size = header.Size
			req.OriginalName = header.Filename
		}
		video, err := intake.Ingest(c.Request.Context(), req)
		if isUploadError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": requester.UserID, // Uploading user
				"error":   err.Error(),      // Error message
			}).Error("Upload failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Error uploading video"})
			return
		}
		invalidateVideoCaches(c.Request.Context(), rdb, requester.UserID, video.IsPublic())
		c.JSON(http.StatusCreated, gin.H{
			"msg":      "Video uploaded successfully",
			"video_id": video.ID,
			"title":    video.Title,
		})
	}
}

// GetVideoHandler renders the video page, locked when a purchase is needed
func GetVideoHandler(db *gorm.DB, rec *billing.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		video, err := loadVideo(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch video"})
			return
		}
		view, err := access.DecidePage(video, middleware.CurrentRequester(c), rec.Checker(c.Request.Context()))
		if err != nil {
			writeAccessError(c, err)
			return
		}
		resp := newVideoResponse(video)
		resp.Locked = view.Locked
		resp.Purchasable = view.Purchasable
		c.JSON(http.StatusOK, resp)
	}
}

// StreamVideoHandler serves the video bytes, honoring Range requests when the backend can seek
func StreamVideoHandler(db *gorm.DB, rec *billing.Reconciler, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		video, err := loadVideo(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch video"})
			return
		}
		requester := middleware.CurrentRequester(c)
		if err := access.DecideStream(video, requester, rec.Checker(c.Request.Context())); err != nil {
			writeAccessError(c, err)
			return
		}
		obj, err := store.Open(c.Request.Context(), video.FilePath)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"video_id": video.ID,       // Requested video
				"key":      video.FilePath, // Storage key
				"error":    err.Error(),    // Error message
			}).Error("Video file unavailable")
			if errors.Is(err, storage.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Video file not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open video"})
			return
		}
		defer obj.Close()
		contentType, ok := mediaTypes[upload.Extension(video.Filename)]
		if !ok {
			contentType = "application/octet-stream"
		}
		if rs, ok := obj.ReadCloser.(io.ReadSeeker); ok {
			c.Header("Content-Type", contentType)
			http.ServeContent(c.Writer, c.Request, video.Filename, video.UpdatedAt, rs)
			return
		}
		c.DataFromReader(http.StatusOK, obj.Size, contentType, obj, nil)
	}
}

// videoPage is the cached form of a listing page
type videoPage struct {
	Videos     []VideoResponse `json:"videos"`      // Videos on this page
	Page       int             `json:"page"`        // Current page
	PageSize   int             `json:"page_size"`   // Page size
	Total      int64           `json:"total"`       // Total matching videos
	TotalPages int             `json:"total_pages"` // Total pages
}

// listVideos loads one page of videos matching query
func listVideos(query *gorm.DB, p page) (*videoPage, error) {
	query = query.Session(&gorm.Session{}) // Count and Find each start from the filter
	var total int64
	if err := query.Model(&domain.Video{}).Count(&total).Error; err != nil {
		return nil, err
	}
	var videos []domain.Video
	if err := query.Preload("Uploader").Order("created_at desc").Order("id desc").
		Offset(p.offset()).Limit(p.PageSize).Find(&videos).Error; err != nil {
		return nil, err
	}
	resp := &videoPage{
		Videos:     make([]VideoResponse, len(videos)),
		Page:       p.Page,
		PageSize:   p.PageSize,
		Total:      total,
		TotalPages: p.totalPages(total),
	}
	for i := range videos {
		resp.Videos[i] = newVideoResponse(&videos[i])
	}
	return resp, nil
}

// ListUserVideosHandler lists the caller's own videos, both public and private
func ListUserVideosHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		requester := middleware.CurrentRequester(c)
		p := parsePage(c)
		cacheKey := userVideosPrefix(requester.UserID) + "page=" + strconv.Itoa(p.Page) + ":size=" + strconv.Itoa(p.PageSize)
		var cached videoPage
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"videos":      cached.Videos,
				"page":        cached.Page,
				"page_size":   cached.PageSize,
				"total":       cached.Total,
				"total_pages": cached.TotalPages,
				"cached":      true, // Indicate response is from cache
			})
			return
		}
		resp, err := listVideos(db.Where("user_id = ?", requester.UserID), p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch videos"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, cacheTTL)
		c.JSON(http.StatusOK, gin.H{
			"videos":      resp.Videos,
			"page":        resp.Page,
			"page_size":   resp.PageSize,
			"total":       resp.Total,
			"total_pages": resp.TotalPages,
			"cached":      false, // Indicate response is not from cache
		})
	}
}

// GalleryHandler lists public videos. Lock state is computed per caller and never cached.
func GalleryHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		requester := middleware.CurrentRequester(c)
		p := parsePage(c)
		cacheKey := galleryCachePrefix + "page=" + strconv.Itoa(p.Page) + ":size=" + strconv.Itoa(p.PageSize)
		var resp videoPage
		found, err := utils.GetCache(ctx, rdb, cacheKey, &resp)
		if err != nil || !found {
			loaded, err := listVideos(db.Where("visibility = ?", domain.VisibilityPublic), p)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch videos"})
				return
			}
			resp = *loaded
			found = false
			_ = utils.SetCache(ctx, rdb, cacheKey, resp, cacheTTL)
		}
		unlocked, err := unlockedVideoIDs(db, requester, resp.Videos)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch videos"})
			return
		}
		for i := range resp.Videos {
			v := &resp.Videos[i]
			v.Locked = v.IsPaidUnlock && !(requester.Authenticated && v.UserID == requester.UserID) && !unlocked[v.ID]
			v.Purchasable = v.Locked && requester.Authenticated
		}
		c.JSON(http.StatusOK, gin.H{
			"videos":      resp.Videos,
			"page":        resp.Page,
			"page_size":   resp.PageSize,
			"total":       resp.Total,
			"total_pages": resp.TotalPages,
			"cached":      found,
		})
	}
}

// unlockedVideoIDs returns the paid videos in the list the caller has bought
func unlockedVideoIDs(db *gorm.DB, requester access.Requester, videos []VideoResponse) (map[uint]bool, error) {
	unlocked := map[uint]bool{}
	if !requester.Authenticated {
		return unlocked, nil
	}
	var ids []uint
	for _, v := range videos {
		if v.IsPaidUnlock && v.UserID != requester.UserID {
			ids = append(ids, v.ID)
		}
	}
	if len(ids) == 0 {
		return unlocked, nil
	}
	var granted []uint
	if err := db.Model(&domain.UnlockGrant{}).
		Where("user_id = ? AND video_id IN ?", requester.UserID, ids).
		Pluck("video_id", &granted).Error; err != nil {
		return nil, err
	}
	for _, id := range granted {
		unlocked[id] = true
	}
	return unlocked, nil
}

// VisibilityRequest is the body of PATCH /videos/:id/visibility
type VisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required"` // public or private
}

// UpdateVisibilityHandler lets the owner publish or hide a video.
// Monetization is fixed at upload and cannot be changed here.
func UpdateVisibilityHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		requester := middleware.CurrentRequester(c)
		var req VisibilityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.Visibility != domain.VisibilityPublic && req.Visibility != domain.VisibilityPrivate {
			c.JSON(http.StatusBadRequest, gin.H{"error": upload.ErrInvalidVisibility.Error()})
			return
		}
		id, ok := parseID(c, "id")
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		video, err := loadVideo(db, id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch video"})
			return
		}
		if video == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
			return
		}
		if !requester.IsOwner(video) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can change visibility"})
			return
		}
		previous := video.Visibility
		if previous != req.Visibility {
			if err := db.Model(&domain.Video{}).Where("id = ?", video.ID).Update("visibility", req.Visibility).Error; err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update visibility"})
				return
			}
			video.Visibility = req.Visibility
			logrus.WithFields(logrus.Fields{
				"user_id":  requester.UserID, // Owner
				"video_id": video.ID,         // Updated video
				"from":     previous,         // Old visibility
				"to":       req.Visibility,   // New visibility
			}).Info("Video visibility changed")
			invalidateVideoCaches(c.Request.Context(), rdb, video.UserID, true)
		}
		c.JSON(http.StatusOK, newVideoResponse(video))
	}
}
