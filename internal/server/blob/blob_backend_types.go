package blob

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidKey     = errors.New("invalid key")
	ErrObjectNotFound = errors.New("object not found")
)

// BlobBackend stores opaque objects by key. Implementations must be safe for
// concurrent use. GetObject and HeadObject report ErrObjectNotFound for
// missing keys.
type BlobBackend interface {
	// GetObject retrieves an object from storage by its key
	GetObject(ctx context.Context, key string) (*GetObjectResponse, error)

	// HeadObject returns the metadata of an object without its body
	HeadObject(ctx context.Context, key string) (*BlobInfo, error)

	// PutObject uploads a single object to storage
	PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error)

	// DeleteObject removes an object from storage, returns true if successful
	DeleteObject(ctx context.Context, key string) (bool, error)

	// ListObjects returns a list of all objects in storage
	ListObjects(ctx context.Context) ([]*BlobInfo, error)
}

// ===================================================================================================

type GetObjectResponse struct {
	Body         []byte
	ETag         string
	Size         int64
	LastModified time.Time
}

type PutObjectParams struct {
	Key         string
	Body        []byte
	ContentType string
}

type PutObjectResponse struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

type BlobInfo struct {
	Key          string `json:"key"`
	ETag         string `json:"etag"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}
