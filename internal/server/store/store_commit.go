package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/openmined/assetsync/internal/assets"
)

// Commit validates ops against the committed state and the batch's chunks,
// then applies all of them or none. Validation failures are reported as
// *assets.CommitRejectedError and leave the batch open.
func (s *AssetStore) Commit(ctx context.Context, batchID assets.BatchID, ops []assets.Operation) error {
	if len(ops) > s.config.MaxOperations {
		return fmt.Errorf("%w: %d > %d", ErrTooManyOps, len(ops), s.config.MaxOperations)
	}

	b, err := s.acquire(batchID, false)
	if err != nil {
		return err
	}

	err = s.apply(ctx, b, ops)
	s.finish(b, err == nil)
	return err
}

// Propose applies ops in the background. The outcome is reported by Status.
func (s *AssetStore) Propose(batchID assets.BatchID, ops []assets.Operation) error {
	if len(ops) > s.config.MaxOperations {
		return fmt.Errorf("%w: %d > %d", ErrTooManyOps, len(ops), s.config.MaxOperations)
	}

	b, err := s.acquire(batchID, true)
	if err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.CommitTimeout)
		defer cancel()

		err := s.apply(ctx, b, ops)
		if err != nil {
			slog.Warn("proposal failed", "batch", b.id, "error", err)
		}
		s.finishProposal(b, outcomeOf(err))
	}()
	return nil
}

// Status reports the outcome of a proposal. Outcomes are kept for
// OutcomeTTL. Batches the store does not know are expired.
func (s *AssetStore) Status(batchID assets.BatchID) (*assets.CommitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.outcomes[batchID]; ok {
		return o.status, nil
	}

	b, ok := s.batches[batchID]
	switch {
	case !ok:
		return &assets.CommitStatus{State: assets.CommitExpired}, nil
	case b.proposed:
		return &assets.CommitStatus{State: assets.CommitPending}, nil
	default:
		return nil, ErrNoCommitPending
	}
}

type outcome struct {
	status *assets.CommitStatus
	at     time.Time
}

// finishProposal records the outcome and drops the batch in one step, so
// Status sees either the pending batch or its outcome.
func (s *AssetStore) finishProposal(b *batch, status *assets.CommitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes[b.id] = &outcome{status: status, at: s.clock.Now()}
	delete(s.batches, b.id)
}

// sweepOutcomes forgets outcomes older than OutcomeTTL
func (s *AssetStore) sweepOutcomes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	n := 0
	for id, o := range s.outcomes {
		if now.Sub(o.at) >= s.config.OutcomeTTL {
			delete(s.outcomes, id)
			n++
		}
	}
	return n
}

func outcomeOf(err error) *assets.CommitStatus {
	var rejected *assets.CommitRejectedError
	switch {
	case err == nil:
		return &assets.CommitStatus{State: assets.CommitCommitted}
	case errors.As(err, &rejected):
		return &assets.CommitStatus{State: assets.CommitRejected, Reason: rejected.Reason}
	default:
		return &assets.CommitStatus{State: assets.CommitRejected, Reason: err.Error()}
	}
}

func (s *AssetStore) acquire(batchID assets.BatchID, proposed bool) (*batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.liveBatchLocked(batchID)
	if err != nil {
		return nil, err
	}
	if b.busy {
		return nil, ErrBatchBusy
	}
	b.busy = true
	b.proposed = proposed
	return b, nil
}

// finish drops a consumed batch or reopens it
func (s *AssetStore) finish(b *batch, consumed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if consumed {
		delete(s.batches, b.id)
		return
	}
	b.busy = false
	b.proposed = false
}

func (s *AssetStore) apply(ctx context.Context, b *batch, ops []assets.Operation) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	w := &workingSet{ctx: ctx, index: s.index, batch: b, state: make(map[string]*Asset)}
	for i, op := range ops {
		if err := w.apply(op); err != nil {
			var rejected *assets.CommitRejectedError
			if errors.As(err, &rejected) {
				rejected.Reason = fmt.Sprintf("operation %d (%s): %s", i, op, rejected.Reason)
			}
			return err
		}
	}

	// content first: an orphaned blob is harmless, an asset without its content is not
	for _, content := range w.uploads {
		if _, err := s.blobs.Put(ctx, content); err != nil {
			return fmt.Errorf("store content: %w", err)
		}
	}
	if err := s.index.Apply(ctx, w.state); err != nil {
		return err
	}

	slog.Info("batch committed", "batch", b.id, "operations", len(ops), "assets", len(w.state), "contents", len(w.uploads))
	return nil
}

// workingSet replays operations over a private copy of the touched assets
type workingSet struct {
	ctx     context.Context
	index   *assetIndex
	batch   *batch
	state   map[string]*Asset // nil value: key does not exist
	uploads [][]byte
}

func reject(format string, args ...any) error {
	return &assets.CommitRejectedError{Reason: fmt.Sprintf(format, args...)}
}

func (w *workingSet) get(key string) (*Asset, error) {
	if a, ok := w.state[key]; ok {
		return a, nil
	}
	a, err := w.index.Get(w.ctx, key)
	if errors.Is(err, assets.ErrAssetNotFound) {
		a, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.state[key] = a
	return a, nil
}

func (w *workingSet) apply(op assets.Operation) error {
	key := op.AssetKey()
	if !validKey(key) {
		return reject("invalid key %q", key)
	}

	a, err := w.get(key)
	if err != nil {
		return err
	}
	if _, isCreate := op.(*assets.CreateAsset); !isCreate && a == nil {
		return reject("asset not found")
	}

	switch o := op.(type) {
	case *assets.CreateAsset:
		if a != nil {
			return reject("asset already exists")
		}
		if o.ContentType == "" {
			return reject("content type required")
		}
		w.state[key] = &Asset{
			Key: key,
			Properties: assets.Properties{
				ContentType: o.ContentType,
				MaxAge:      o.MaxAge,
				Headers:     o.Headers,
				IsAliased:   o.EnableAliasing,
			},
			Encodings: make(map[string]EncodingInfo),
		}

	case *assets.SetAssetContent:
		if o.ContentEncoding == "" {
			return reject("content encoding required")
		}
		content, err := w.content(o)
		if err != nil {
			return err
		}
		if assets.HashOf(content) != o.SHA256 {
			return reject("sha256 mismatch")
		}
		w.uploads = append(w.uploads, content)
		a.Encodings[o.ContentEncoding] = EncodingInfo{SHA256: o.SHA256, Length: int64(len(content))}

	case *assets.UnsetAssetContent:
		delete(a.Encodings, o.ContentEncoding)

	case *assets.SetAssetProperties:
		if o.MaxAge != nil {
			a.Properties.MaxAge = o.MaxAge.Value
		}
		if o.Headers != nil {
			a.Properties.Headers = o.Headers.Value
		}
		if o.IsAliased != nil {
			a.Properties.IsAliased = o.IsAliased.Value
		}

	case *assets.DeleteAsset:
		w.state[key] = nil

	default:
		return reject("unsupported operation %T", op)
	}
	return nil
}

// content returns the inline content or the concatenation of the referenced chunks
func (w *workingSet) content(op *assets.SetAssetContent) ([]byte, error) {
	if len(op.ChunkIDs) == 0 {
		return op.Content, nil
	}
	if len(op.Content) > 0 {
		return nil, reject("both inline content and chunks given")
	}

	var buf bytes.Buffer
	for _, id := range op.ChunkIDs {
		chunk, ok := w.batch.chunks[id]
		if !ok {
			return nil, reject("unknown chunk %s", id)
		}
		buf.Write(chunk)
	}
	return buf.Bytes(), nil
}

func validKey(key string) bool {
	if !strings.HasPrefix(key, "/") || len(key) > 1024 || !utf8.ValidString(key) {
		return false
	}
	for _, seg := range strings.Split(key[1:], "/") {
		if seg == "." || seg == ".." {
			return false
		}
	}
	return true
}
