package store

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/assetsync/internal/assets"
)

type batch struct {
	id        assets.BatchID
	expiresAt time.Time
	chunks    map[assets.ChunkID][]byte
	size      int64
	busy      bool // a commit or proposal is being applied
	proposed  bool
}

// CreateBatch opens a batch that expires after the configured TTL
func (s *AssetStore) CreateBatch() *assets.BatchHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &batch{
		id:        assets.BatchID(uuid.NewString()),
		expiresAt: s.clock.Now().Add(s.config.BatchTTL),
		chunks:    make(map[assets.ChunkID][]byte),
	}
	s.batches[b.id] = b

	slog.Debug("batch created", "batch", b.id, "expiresAt", b.expiresAt)
	return &assets.BatchHandle{ID: b.id, ExpiresAt: b.expiresAt}
}

// CreateChunk stores content in the batch and returns its id
func (s *AssetStore) CreateChunk(batchID assets.BatchID, content []byte) (assets.ChunkID, error) {
	if len(content) > s.config.MaxChunkSize {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrChunkTooLarge, len(content), s.config.MaxChunkSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := s.liveBatchLocked(batchID)
	if err != nil {
		return "", err
	}
	if b.busy {
		return "", ErrBatchBusy
	}
	if b.size+int64(len(content)) > s.config.MaxBatchBytes {
		return "", fmt.Errorf("%w: limit %d bytes", ErrBatchTooLarge, s.config.MaxBatchBytes)
	}

	id := assets.ChunkID(uuid.NewString())
	b.chunks[id] = bytes.Clone(content)
	b.size += int64(len(content))
	return id, nil
}

// DeleteBatch releases a batch and its chunks. A batch that is being applied cannot be released.
func (s *AssetStore) DeleteBatch(batchID assets.BatchID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.batches[batchID]
	if !ok {
		return assets.ErrBatchExpired
	}
	if b.busy {
		return ErrBatchBusy
	}
	delete(s.batches, batchID)
	slog.Debug("batch released", "batch", batchID, "chunks", len(b.chunks))
	return nil
}

// OpenBatches returns the number of batches that are neither committed nor released
func (s *AssetStore) OpenBatches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// liveBatchLocked returns the batch or assets.ErrBatchExpired. Expired batches are dropped on access.
func (s *AssetStore) liveBatchLocked(batchID assets.BatchID) (*batch, error) {
	b, ok := s.batches[batchID]
	if !ok {
		return nil, assets.ErrBatchExpired
	}
	if !b.busy && !s.clock.Now().Before(b.expiresAt) {
		delete(s.batches, batchID)
		return nil, assets.ErrBatchExpired
	}
	return b, nil
}

func (s *AssetStore) sweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	n := 0
	for id, b := range s.batches {
		if !b.busy && !now.Before(b.expiresAt) {
			delete(s.batches, id)
			n++
		}
	}
	return n
}
