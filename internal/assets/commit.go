package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchResult describes a committed batch.
type BatchResult struct {
	BatchID  BatchID
	Chunks   int
	Restarts int
}

// BatchCommitter drives the create_batch, create_chunk, commit_batch protocol
// for one planned batch at a time.
type BatchCommitter struct {
	store    Store
	opts     CommitOptions
	progress ProgressFunc
}

func NewBatchCommitter(store Store, opts CommitOptions, progress ProgressFunc) *BatchCommitter {
	opts.applyDefaults()
	return &BatchCommitter{
		store:    store,
		opts:     opts,
		progress: progress,
	}
}

// Commit applies b. An expired batch is recreated and its chunks uploaded
// again, at most MaxBatchRestarts times. Errors are *Error.
func (c *BatchCommitter) Commit(ctx context.Context, b *PlannedBatch) (*BatchResult, error) {
	res := &BatchResult{}
	for {
		handle, err := c.createBatch(ctx)
		if err != nil {
			return nil, newError(StageCreateBatch, "", err)
		}
		res.BatchID = handle.ID
		c.progress.emit(Event{Kind: EventBatchCreated, Batch: b.Index, BatchID: handle.ID})

		err = c.commitOnce(ctx, b, handle.ID)
		if err == nil {
			res.Chunks = b.ChunkCount()
			return res, nil
		}

		if errors.Is(err, ErrBatchExpired) && res.Restarts < c.opts.MaxBatchRestarts && ctx.Err() == nil {
			res.Restarts++
			slog.Warn("batch expired, restarting", "batch", b.Index, "id", handle.ID, "restart", res.Restarts)
			c.progress.emit(Event{Kind: EventBatchRestarted, Batch: b.Index, BatchID: handle.ID, Count: res.Restarts})
			continue
		}

		var stageErr *Error
		if errors.As(err, &stageErr) {
			return nil, stageErr
		}
		return nil, newError(StageCommitBatch, "", err)
	}
}

func (c *BatchCommitter) commitOnce(ctx context.Context, b *PlannedBatch, id BatchID) (err error) {
	committed := false
	defer func() {
		if !committed {
			c.release(ctx, id)
		}
	}()

	args, err := c.uploadChunks(ctx, b, id)
	if err != nil {
		var chunkErr *ChunkUploadError
		if errors.As(err, &chunkErr) {
			return newError(StageAssembleCommitBatchArgument, chunkErr.Key, err)
		}
		return err
	}

	if c.opts.Async {
		err = c.propose(ctx, args)
	} else {
		err = c.commit(ctx, args)
	}
	if err != nil {
		return err
	}

	committed = true
	return nil
}

// uploadChunks uploads every planned chunk and returns the commit arguments
// with chunk ids filled in. b itself is left untouched so it can be replayed.
func (c *BatchCommitter) uploadChunks(ctx context.Context, b *PlannedBatch, id BatchID) (*CommitBatchArguments, error) {
	args := &CommitBatchArguments{
		BatchID:    id,
		Operations: slices.Clone(b.Operations),
	}
	if len(b.Uploads) == 0 {
		return args, nil
	}

	chunkIDs := make([][]ChunkID, len(b.Uploads))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.ChunkConcurrency)
	for i, plan := range b.Uploads {
		key := b.Operations[plan.OpIndex].AssetKey()
		chunkIDs[i] = make([]ChunkID, len(plan.Chunks))
		for j, chunk := range plan.Chunks {
			eg.Go(func() error {
				cid, err := c.uploadChunk(egCtx, id, key, j, chunk)
				if err != nil {
					return err
				}
				chunkIDs[i][j] = cid
				c.progress.emit(Event{Kind: EventChunkUploaded, Batch: b.Index, BatchID: id, Key: key, Bytes: len(chunk)})
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, plan := range b.Uploads {
		op := *b.Operations[plan.OpIndex].(*SetAssetContent)
		op.ChunkIDs = chunkIDs[i]
		args.Operations[plan.OpIndex] = &op
	}
	return args, nil
}

func (c *BatchCommitter) uploadChunk(ctx context.Context, id BatchID, key string, index int, chunk []byte) (ChunkID, error) {
	attempts := c.opts.ChunkRetries + 1
	var lastErr error
	for attempt := range attempts {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.opts.RetryBackoff<<(attempt-1)); err != nil {
				return "", err
			}
		}

		callCtx, cancel := withCallTimeout(ctx, c.opts.CallTimeout)
		cid, err := c.store.CreateChunk(callCtx, id, chunk)
		cancel()
		if err == nil {
			return cid, nil
		}
		if errors.Is(err, ErrBatchExpired) || ctx.Err() != nil {
			return "", err
		}

		lastErr = err
		slog.Warn("chunk upload failed", "key", key, "chunk", index, "attempt", attempt+1, "error", err)
	}
	return "", &ChunkUploadError{Key: key, Chunk: index, Attempts: attempts, Err: lastErr}
}

func (c *BatchCommitter) commit(ctx context.Context, args *CommitBatchArguments) error {
	callCtx, cancel := withCallTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return c.store.CommitBatch(callCtx, args)
}

// propose submits args and polls until the store reports a final outcome,
// for at most PollTimeout. Acceptance of the proposal alone is not success.
func (c *BatchCommitter) propose(ctx context.Context, args *CommitBatchArguments) error {
	callCtx, cancel := withCallTimeout(ctx, c.opts.CallTimeout)
	err := c.store.ProposeCommitBatch(callCtx, args)
	cancel()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.opts.PollTimeout)
	for {
		if err := sleepCtx(ctx, c.opts.PollInterval); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: batch %s still pending after %s", ErrCommitTimeout, args.BatchID, c.opts.PollTimeout)
		}

		callCtx, cancel := withCallTimeout(ctx, c.opts.CallTimeout)
		status, err := c.store.CommitStatus(callCtx, args.BatchID)
		cancel()
		if err != nil {
			return fmt.Errorf("commit status: %w", err)
		}

		switch status.State {
		case CommitCommitted:
			return nil
		case CommitRejected:
			return &CommitRejectedError{Reason: status.Reason}
		case CommitExpired:
			return ErrBatchExpired
		case CommitPending:
			slog.Debug("commit pending", "batch", args.BatchID)
		default:
			return fmt.Errorf("unknown commit state %q", status.State)
		}
	}
}

func (c *BatchCommitter) createBatch(ctx context.Context) (*BatchHandle, error) {
	callCtx, cancel := withCallTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return c.store.CreateBatch(callCtx)
}

// release deletes an uncommitted batch. It runs even if ctx is cancelled.
func (c *BatchCommitter) release(ctx context.Context, id BatchID) {
	callCtx, cancel := withCallTimeout(context.WithoutCancel(ctx), c.opts.CallTimeout)
	defer cancel()
	if err := c.store.DeleteBatch(callCtx, id); err != nil {
		slog.Debug("release batch", "id", id, "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
