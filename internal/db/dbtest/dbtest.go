// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vidvault/internal/db"
	"vidvault/internal/domain"
)

// Open returns a fresh migrated database backed by a file in t.TempDir()
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(gdb))
	return gdb
}

// CreateUser inserts a user with a throwaway password hash
func CreateUser(t *testing.T, gdb *gorm.DB, username string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Email: username + "@example.com", PasswordHash: "x", Role: domain.RoleUser}
	require.NoError(t, gdb.Create(u).Error)
	return u
}

// CreateVideo inserts a video owned by ownerID
func CreateVideo(t *testing.T, gdb *gorm.DB, v domain.Video) *domain.Video {
	t.Helper()
	if v.Title == "" {
		v.Title = "Test Video"
	}
	if v.Filename == "" {
		v.Filename = "test.mp4"
	}
	if v.FilePath == "" {
		v.FilePath = "users/0/test.mp4"
	}
	if v.Visibility == "" {
		v.Visibility = domain.VisibilityPrivate
	}
	require.NoError(t, gdb.Create(&v).Error)
	return &v
}
