// Package storage is the object store used for uploaded photos and generated
// draping images. Objects are addressed by key and served from a public base
// URL.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is an opaque blob store.
type Store interface {
	// Put uploads data under key and returns its public URL.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Get downloads the object stored under key.
	Get(ctx context.Context, key string) ([]byte, string, error)
	// PresignPut returns a URL the client can PUT the object to directly.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	// PublicURL returns the public URL of key.
	PublicURL(key string) string
	// KeyForURL maps a public URL produced by this store back to its key.
	KeyForURL(url string) (string, bool)
}

// publicURL joins base and key with exactly one slash.
func publicURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// keyForURL strips base from url.
func keyForURL(base, url string) (string, bool) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	return key, key != ""
}
