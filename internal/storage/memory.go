package storage

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"
)

type object struct {
	data        []byte
	contentType string
}

// Memory is an in-process Store for development and tests. Presigned URLs
// point at BaseURL and are not served by anything.
type Memory struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]object
	puts    int
}

// NewMemory returns an empty in-memory store.
func NewMemory(baseURL string) *Memory {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &Memory{BaseURL: baseURL, objects: map[string]object{}}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.objects[key] = object{data: cp, contentType: contentType}
	m.puts++
	m.mu.Unlock()
	return m.PublicURL(key), nil
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, "", ErrNotFound
	}
	return append([]byte(nil), o.data...), o.contentType, nil
}

// PresignPut implements Store.
func (m *Memory) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	q := url.Values{}
	q.Set("content-type", contentType)
	q.Set("expires", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
	return m.PublicURL(key) + "?" + q.Encode(), nil
}

// PublicURL implements Store.
func (m *Memory) PublicURL(key string) string { return publicURL(m.BaseURL, key) }

// KeyForURL implements Store.
func (m *Memory) KeyForURL(u string) (string, bool) { return keyForURL(m.BaseURL, u) }

// Puts returns how many uploads the store has accepted.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
