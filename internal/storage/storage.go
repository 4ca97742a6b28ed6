// Package storage keeps uploaded video bytes outside the database.
package storage

import (
	"context" // Context for backend calls
	"errors"  // Sentinel errors
	"fmt"     // Key formatting
	"io"      // Readers
	"path"    // Slash separated keys
	"strings" // Extension normalization

	"github.com/google/uuid" // Collision resistant keys
)

// ErrNotFound is returned when a key has no stored object
var ErrNotFound = errors.New("stored object not found")

// Object is an opened stored file. Local objects also implement io.Seeker.
type Object struct {
	io.ReadCloser
	Size int64 // Size in bytes
}

// Storage saves, opens and deletes uploaded files by key
type Storage interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// NewKey returns an owner scoped key such as users/7/<uuid>.mp4
func NewKey(ownerID uint, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return path.Join("users", fmt.Sprint(ownerID), uuid.NewString()+"."+ext)
}
