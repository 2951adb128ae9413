// Package blobstore stores uploaded X-ray images in an S3-compatible bucket
// and hands back the public URL recorded on screening results. An in-memory
// implementation backs tests and development.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrEmptyObject     = errors.New("object is empty")
	ErrObjectTooLarge  = errors.New("object exceeds maximum allowed size")
	ErrUnsupportedType = errors.New("content type is not allowed")
	ErrObjectNotFound  = errors.New("object not found")
)

// MaxObjectSize is the upload ceiling, enforced before any network call.
const MaxObjectSize = 10 * 1024 * 1024

// AllowedContentTypes lists the image MIME types accepted for X-ray uploads.
var AllowedContentTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// Store is the contract for object storage backends.
type Store interface {
	// Put stores data under key and returns a public URL for it.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	// Get retrieves a stored object by key.
	Get(ctx context.Context, key string) ([]byte, error)
}

// ObjectKey builds a collision-resistant key for an upload, prefixing the
// original name with the current unix-millisecond timestamp.
func ObjectKey(prefix, name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	if name == "" {
		name = "image.jpg"
	}
	return fmt.Sprintf("%s/%d_%s", prefix, time.Now().UnixMilli(), name)
}

// ValidateObject applies the size and content-type constraints shared by all
// backends.
func ValidateObject(contentType string, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyObject
	}
	if len(data) > MaxObjectSize {
		return ErrObjectTooLarge
	}
	if !AllowedContentTypes[contentType] {
		return fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	return nil
}

// MemoryStore is a thread-safe, in-memory Store for testing and development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &MemoryStore{
		objects: make(map[string][]byte),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *MemoryStore) Put(_ context.Context, key, contentType string, data []byte) (string, error) {
	if err := ValidateObject(contentType, data); err != nil {
		return "", err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	s.objects[key] = buf
	s.mu.Unlock()

	return s.baseURL + "/" + key, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrObjectNotFound
	}

	out := make([]byte, len(obj))
	copy(out, obj)
	return out, nil
}

// Len reports how many objects are stored. Test helper.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
