package blob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/assetsync/internal/assets"
)

var ErrContentNotFound = errors.New("content not found")

// BlobService stores asset content by its sha256.
// Objects are immutable once written, so cached reads never go stale.
type BlobService struct {
	backend BlobBackend
	cache   *lru.Cache[assets.Hash, []byte]
}

func NewBlobService(ctx context.Context, cfg *Config) (*BlobService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var backend BlobBackend
	switch cfg.Backend {
	case BackendS3:
		s3Backend, err := NewS3BackendWithConfig(ctx, &cfg.S3)
		if err != nil {
			return nil, err
		}
		backend = s3Backend
	case BackendFile:
		fileBackend, err := NewFileBackend(cfg.Dir)
		if err != nil {
			return nil, err
		}
		backend = fileBackend
	default:
		backend = NewMemoryBackend()
	}

	return NewBlobServiceWithBackend(backend, cfg.CacheSize)
}

func NewBlobServiceWithBackend(backend BlobBackend, cacheSize int) (*BlobService, error) {
	svc := &BlobService{backend: backend}
	if cacheSize > 0 {
		cache, err := lru.New[assets.Hash, []byte](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create content cache: %w", err)
		}
		svc.cache = cache
	}
	return svc, nil
}

// Backend returns the underlying blob backend instance
func (b *BlobService) Backend() BlobBackend {
	return b.backend
}

// Has reports whether content with the given hash is stored
func (b *BlobService) Has(ctx context.Context, hash assets.Hash) (bool, error) {
	if b.cache != nil && b.cache.Contains(hash) {
		return true, nil
	}
	_, err := b.backend.HeadObject(ctx, ContentKey(hash))
	if errors.Is(err, ErrObjectNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// Put stores content under its hash. Content that is already stored is not uploaded again.
func (b *BlobService) Put(ctx context.Context, content []byte) (assets.Hash, error) {
	hash := assets.HashOf(content)

	exists, err := b.Has(ctx, hash)
	if err != nil {
		return hash, fmt.Errorf("head %s: %w", hash, err)
	}
	if exists {
		return hash, nil
	}

	if _, err := b.backend.PutObject(ctx, &PutObjectParams{
		Key:         ContentKey(hash),
		Body:        content,
		ContentType: "application/octet-stream",
	}); err != nil {
		return hash, fmt.Errorf("put %s: %w", hash, err)
	}

	slog.Debug("blob put", "sha256", hash, "size", len(content))
	b.remember(hash, content)
	return hash, nil
}

// Get returns the content with the given hash, or ErrContentNotFound
func (b *BlobService) Get(ctx context.Context, hash assets.Hash) ([]byte, error) {
	if b.cache != nil {
		if content, ok := b.cache.Get(hash); ok {
			return content, nil
		}
	}

	obj, err := b.backend.GetObject(ctx, ContentKey(hash))
	if errors.Is(err, ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrContentNotFound, hash)
	} else if err != nil {
		return nil, fmt.Errorf("get %s: %w", hash, err)
	}

	if assets.HashOf(obj.Body) != hash {
		return nil, fmt.Errorf("get %s: stored content does not match its hash", hash)
	}

	b.remember(hash, obj.Body)
	return obj.Body, nil
}

// Delete removes content. Deleting missing content is not an error.
func (b *BlobService) Delete(ctx context.Context, hash assets.Hash) error {
	if b.cache != nil {
		b.cache.Remove(hash)
	}
	if _, err := b.backend.DeleteObject(ctx, ContentKey(hash)); err != nil {
		return fmt.Errorf("delete %s: %w", hash, err)
	}
	return nil
}

// Prune deletes every stored content object that is not in keep, returning the number removed.
func (b *BlobService) Prune(ctx context.Context, keep map[assets.Hash]struct{}) (int, error) {
	objects, err := b.backend.ListObjects(ctx)
	if err != nil {
		return 0, fmt.Errorf("list objects: %w", err)
	}

	removed := 0
	for _, obj := range objects {
		hash, ok := parseContentKey(obj.Key)
		if !ok {
			continue
		}
		if _, ok := keep[hash]; ok {
			continue
		}
		if err := b.Delete(ctx, hash); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (b *BlobService) remember(hash assets.Hash, content []byte) {
	if b.cache != nil {
		b.cache.Add(hash, content)
	}
}
