// Package upload validates uploaded videos and stores them.
package upload

import (
	"context"       // Context for storage calls
	"errors"        // Sentinel errors
	"fmt"           // Error wrapping
	"io"            // Upload body
	"path/filepath" // Filename handling
	"regexp"        // Filename sanitizing
	"strings"       // String manipulation

	"vidvault/internal/domain"  // Domain models
	"vidvault/internal/storage" // Blob storage

	"github.com/shopspring/decimal" // Decimal prices
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

// Validation errors, reported in this order
var (
	ErrMissingTitle         = errors.New("missing title")
	ErrMissingFile          = errors.New("no file uploaded")
	ErrUnsupportedType      = errors.New("file type not allowed")
	ErrMissingPrice         = errors.New("price is required for paid videos")
	ErrInvalidPrice         = errors.New("price must be a decimal number")
	ErrPriceTooLow          = errors.New("price must be at least 0.50")
	ErrPriceWithoutPaidFlag = errors.New("price can only be set for paid videos")
	ErrInvalidVisibility    = errors.New("visibility must be public or private")
)

// AllowedExtensions lists the accepted media extensions
var AllowedExtensions = map[string]bool{
	"mp4":  true,
	"mov":  true,
	"avi":  true,
	"mkv":  true,
	"webm": true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Request carries one upload
type Request struct {
	OwnerID      uint      // Uploading user
	Title        string    // Required title
	Description  string    // Optional description
	File         io.Reader // Uploaded bytes
	Size         int64     // Declared size of File
	OriginalName string    // Client supplied filename
	Visibility   string    // public, private or empty for private
	IsPaidUnlock bool      // Streaming requires a purchase
	Price        string    // Decimal price, empty when absent
}

// Intake validates uploads, stores the bytes and records the video
type Intake struct {
	db    *gorm.DB
	store storage.Storage
}

// NewIntake creates an Intake
func NewIntake(db *gorm.DB, store storage.Storage) *Intake {
	return &Intake{db: db, store: store}
}

// SanitizeFilename keeps the base name and replaces unsafe characters
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	return strings.Trim(name, "._")
}

// Extension returns the lower case extension without the dot
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// validated holds the normalized form of a Request
type validated struct {
	title      string
	filename   string
	ext        string
	visibility string
	price      decimal.NullDecimal
}

// validate checks a request without side effects
func validate(req Request) (validated, error) {
	var v validated
	v.title = strings.TrimSpace(req.Title)
	if v.title == "" {
		return v, ErrMissingTitle
	}
	if req.File == nil || req.Size <= 0 {
		return v, ErrMissingFile
	}
	v.filename = SanitizeFilename(req.OriginalName)
	v.ext = Extension(v.filename)
	if !AllowedExtensions[v.ext] {
		return v, ErrUnsupportedType
	}
	rawPrice := strings.TrimSpace(req.Price)
	if req.IsPaidUnlock {
		if rawPrice == "" {
			return v, ErrMissingPrice
		}
		price, err := decimal.NewFromString(rawPrice)
		if err != nil {
			return v, ErrInvalidPrice
		}
		if price.LessThan(domain.MinUnlockPrice) {
			return v, ErrPriceTooLow
		}
		v.price = decimal.NewNullDecimal(price.Round(2))
	} else if rawPrice != "" {
		return v, ErrPriceWithoutPaidFlag
	}
	switch strings.ToLower(strings.TrimSpace(req.Visibility)) {
	case "", domain.VisibilityPrivate:
		v.visibility = domain.VisibilityPrivate
	case domain.VisibilityPublic:
		v.visibility = domain.VisibilityPublic
	default:
		return v, ErrInvalidVisibility
	}
	return v, nil
}

// Ingest validates req, stores the file and persists the video.
// If the database insert fails the stored file is removed.
func (in *Intake) Ingest(ctx context.Context, req Request) (*domain.Video, error) {
	v, err := validate(req)
	if err != nil {
		return nil, err
	}
	key := storage.NewKey(req.OwnerID, v.ext)
	size, err := in.store.Save(ctx, key, req.File)
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}
	video := domain.Video{
		Title:        v.title,
		Filename:     v.filename,
		UserID:       req.OwnerID,
		FilePath:     key,
		TotalSize:    size,
		Visibility:   v.visibility,
		IsPaidUnlock: req.IsPaidUnlock,
		Price:        v.price,
	}
	if d := strings.TrimSpace(req.Description); d != "" {
		video.Description = &d
	}
	if err := in.db.WithContext(ctx).Create(&video).Error; err != nil {
		// Remove the orphaned upload before reporting the failure
		if derr := in.store.Delete(ctx, key); derr != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": req.OwnerID, // Uploading user
				"key":     key,         // Orphaned storage key
				"error":   derr.Error(),
			}).Error("Failed to remove orphaned upload")
		}
		return nil, fmt.Errorf("save video: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"user_id":    req.OwnerID,        // Uploading user
		"video_id":   video.ID,           // New video
		"size":       size,               // Stored bytes
		"visibility": video.Visibility,   // public or private
		"paid":       video.IsPaidUnlock, // Monetized
	}).Info("Video uploaded")
	return &video, nil
}
