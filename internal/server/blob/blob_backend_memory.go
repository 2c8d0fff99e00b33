package blob

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

type memoryObject struct {
	body         []byte
	etag         string
	lastModified time.Time
}

// MemoryBackend keeps objects in process memory. Used for development and tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string]*memoryObject)}
}

func (m *MemoryBackend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return &GetObjectResponse{
		Body:         bytes.Clone(obj.body),
		ETag:         obj.etag,
		Size:         int64(len(obj.body)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryBackend) HeadObject(ctx context.Context, key string) (*BlobInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return obj.info(key), nil
}

func (m *MemoryBackend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	obj := &memoryObject{
		body:         bytes.Clone(params.Body),
		etag:         etagOf(params.Body),
		lastModified: time.Now().UTC(),
	}

	m.mu.Lock()
	m.objects[params.Key] = obj
	m.mu.Unlock()

	return &PutObjectResponse{
		Key:          params.Key,
		ETag:         obj.etag,
		Size:         int64(len(obj.body)),
		LastModified: obj.lastModified,
	}, nil
}

func (m *MemoryBackend) DeleteObject(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.objects[key]
	delete(m.objects, key)
	return ok, nil
}

func (m *MemoryBackend) ListObjects(ctx context.Context) ([]*BlobInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*BlobInfo, 0, len(m.objects))
	for _, key := range slices.Sorted(maps.Keys(m.objects)) {
		out = append(out, m.objects[key].info(key))
	}
	return out, nil
}

func (o *memoryObject) info(key string) *BlobInfo {
	return &BlobInfo{
		Key:          key,
		ETag:         o.etag,
		Size:         int64(len(o.body)),
		LastModified: o.lastModified.Format(time.RFC3339),
	}
}

var _ BlobBackend = (*MemoryBackend)(nil)
