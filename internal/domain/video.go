package domain

import (
	"time"

	"github.com/shopspring/decimal" // Decimal amounts
)

// Video visibility values
const (
	VisibilityPublic  = "public"  // Anyone may load the page
	VisibilityPrivate = "private" // Only the owner may load the page
)

// MinUnlockPrice is the lowest price a paid video may carry
var MinUnlockPrice = decimal.RequireFromString("0.50")

// Video Model
type Video struct {
	ID           uint                `gorm:"primaryKey" json:"id"`                                     // Primary key
	Title        string              `gorm:"size:200;not null" json:"title"`                           // Video title
	Description  *string             `gorm:"type:text" json:"description"`                             // Optional description
	Filename     string              `gorm:"size:200;not null" json:"filename"`                        // Original name of the uploaded file
	UserID       uint                `gorm:"not null;index" json:"user_id"`                            // Foreign key to the owning User
	Uploader     *User               `gorm:"foreignKey:UserID" json:"-"`                               // Owning user
	FilePath     string              `gorm:"size:512;not null" json:"-"`                               // Storage key of the uploaded bytes
	TotalSize    int64               `json:"total_size"`                                               // Size of the video in bytes
	Visibility   string              `gorm:"size:10;not null;default:private;index" json:"visibility"` // public or private
	IsPaidUnlock bool                `gorm:"not null;default:false" json:"is_paid_unlock"`             // Whether streaming requires a purchase
	Price        decimal.NullDecimal `gorm:"type:decimal(10,2)" json:"price"`                          // Unlock price, set only for paid videos
	IsProcessed  bool                `gorm:"default:false" json:"is_processed"`                        // Reserved for transcoding
	CreatedAt    time.Time           `gorm:"autoCreateTime;index" json:"created_at"`                   // Timestamp of creation
	UpdatedAt    time.Time           `gorm:"autoUpdateTime" json:"updated_at"`                         // Timestamp of last update
}

// IsPublic reports whether the video page may be loaded by anyone
func (v *Video) IsPublic() bool {
	return v.Visibility == VisibilityPublic
}

// OwnedBy reports whether userID created the video
func (v *Video) OwnedBy(userID uint) bool {
	return v.UserID == userID
}

// PriceMinorUnits returns the unlock price in cents, or 0 for free videos
func (v *Video) PriceMinorUnits() int64 {
	if !v.IsPaidUnlock || !v.Price.Valid {
		return 0
	}
	return v.Price.Decimal.Shift(2).Round(0).IntPart()
}
