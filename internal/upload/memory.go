package upload

import (
	"context"
	"strings"
	"sync"
)

// Object is a stored blob held by MemoryStore.
type Object struct {
	Data        []byte
	ContentType string
}

// MemoryStore is an in-process Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	baseURL string

	// Err, when set, is returned by every Put.
	Err error
}

// NewMemoryStore creates an empty store whose public URLs start with baseURL.
func NewMemoryStore(baseURL string) *MemoryStore {
	if baseURL == "" {
		baseURL = "memory://blobs"
	}
	return &MemoryStore{
		objects: make(map[string]Object),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Put stores a copy of data under bucket/key.
func (m *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" {
		return ErrInvalidBucket
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	m.objects[bucket+"/"+key] = Object{Data: buf, ContentType: contentType}
	return nil
}

// PublicURL returns {base}/{bucket}/{key}.
func (m *MemoryStore) PublicURL(bucket, key string) string {
	return m.baseURL + "/" + bucket + "/" + key
}

// Get returns the object stored under bucket/key.
func (m *MemoryStore) Get(bucket, key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return Object{}, ErrObjectNotFound
	}
	return obj, nil
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Keys returns the stored "bucket/key" names.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	return keys
}
