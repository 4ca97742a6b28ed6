package domain

import "time"

// User Model
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`                        // Primary key
	Username        string    `gorm:"size:80;unique;not null" json:"username"`     // Unique username
	Email           string    `gorm:"size:120;unique;not null" json:"email"`       // Unique email
	PasswordHash    string    `gorm:"size:256;not null" json:"-"`                  // Hashed password, never serialized
	Role            string    `gorm:"size:20;default:user" json:"role"`            // Role: user or admin
	PaymentSourceID *string   `gorm:"size:255" json:"payment_source_id,omitempty"` // Opaque payment source from a bank-link exchange
	Videos          []Video   `gorm:"constraint:OnUpdate:CASCADE;" json:"-"`       // Videos uploaded by this user
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`            // Timestamp of creation
}

// IsAdmin reports whether the user may use the admin routes
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// User roles
const (
	RoleUser  = "user"  // Default role
	RoleAdmin = "admin" // Admin role
)
