package domain

import "time"

// UnlockGrant records that a user has paid for a video.
// At most one grant exists per (user, video); the index is enforced by the database.
type UnlockGrant struct {
	ID               uint      `gorm:"primaryKey" json:"id"`                                                 // Primary key
	UserID           uint      `gorm:"not null;uniqueIndex:ux_unlock_user_video,priority:1" json:"user_id"`  // Foreign key to User
	VideoID          uint      `gorm:"not null;uniqueIndex:ux_unlock_user_video,priority:2" json:"video_id"` // Foreign key to Video
	PaymentReference string    `gorm:"size:255;not null;index" json:"payment_reference"`                     // Provider payment id
	User             *User     `gorm:"foreignKey:UserID" json:"-"`                                           // Paying user
	Video            *Video    `gorm:"foreignKey:VideoID" json:"-"`                                          // Unlocked video
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`                               // Timestamp of creation
}
