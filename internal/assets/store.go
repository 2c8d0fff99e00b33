package assets

import (
	"context"
	"time"
)

// Store is the remote asset store as seen by the sync engine.
type Store interface {
	// List enumerates every asset key in the store.
	List(ctx context.Context) ([]string, error)

	// GetProperties returns the properties and per-encoding hashes of key,
	// or ErrAssetNotFound.
	GetProperties(ctx context.Context, key string) (*AssetProperties, error)

	CreateBatch(ctx context.Context) (*BatchHandle, error)
	CreateChunk(ctx context.Context, batchID BatchID, content []byte) (ChunkID, error)

	// CommitBatch applies args atomically. It returns ErrBatchExpired or a
	// *CommitRejectedError when nothing was applied.
	CommitBatch(ctx context.Context, args *CommitBatchArguments) error

	// ProposeCommitBatch submits args for asynchronous application. The
	// outcome is reported by CommitStatus.
	ProposeCommitBatch(ctx context.Context, args *CommitBatchArguments) error
	CommitStatus(ctx context.Context, batchID BatchID) (*CommitStatus, error)

	// DeleteBatch releases an uncommitted batch and its chunks.
	DeleteBatch(ctx context.Context, batchID BatchID) error
}

// withCallTimeout bounds a single remote call.
func withCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
