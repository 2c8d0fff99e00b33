package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/server/blob"
)

// AssetStore is the server side of the asset store: a sqlite index of
// committed assets, content in the blob service, and open batches in memory.
// Commits are serialized; each one is validated in full before anything is written.
type AssetStore struct {
	config *Config
	clock  clockwork.Clock
	index  *assetIndex
	blobs  *blob.BlobService

	mu       sync.Mutex // guards batches and outcomes
	batches  map[assets.BatchID]*batch
	outcomes map[assets.BatchID]*outcome

	commitMu sync.Mutex // one commit at a time

	wg sync.WaitGroup
}

type Option func(*AssetStore)

// WithClock replaces the wall clock, used by tests to drive batch expiry
func WithClock(clock clockwork.Clock) Option {
	return func(s *AssetStore) {
		s.clock = clock
	}
}

func NewAssetStore(cfg *Config, db *sqlx.DB, blobs *blob.BlobService, opts ...Option) (*AssetStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	index, err := newAssetIndex(db)
	if err != nil {
		return nil, err
	}

	s := &AssetStore{
		config:   cfg,
		clock:    clockwork.NewRealClock(),
		index:    index,
		blobs:    blobs,
		batches:  make(map[assets.BatchID]*batch),
		outcomes: make(map[assets.BatchID]*outcome),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start runs the batch janitor until ctx is done
func (s *AssetStore) Start(ctx context.Context) error {
	slog.Debug("asset store start", "batchTTL", s.config.BatchTTL, "sweepInterval", s.config.SweepInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runJanitor(ctx)
	}()
	return nil
}

// Shutdown waits for in-flight proposals and the janitor
func (s *AssetStore) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Debug("asset store shutdown")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("asset store shutdown: %w", ctx.Err())
	}
}

func (s *AssetStore) runJanitor(ctx context.Context) {
	sweep := s.clock.NewTicker(s.config.SweepInterval)
	defer sweep.Stop()

	var pruneC <-chan time.Time
	if s.config.PruneInterval > 0 {
		prune := s.clock.NewTicker(s.config.PruneInterval)
		defer prune.Stop()
		pruneC = prune.Chan()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.Chan():
			if n := s.sweepExpired(); n > 0 {
				slog.Info("expired batches released", "count", n)
			}
			s.sweepOutcomes()
		case <-pruneC:
			if n, err := s.PruneContent(ctx); err != nil {
				slog.Warn("prune content", "error", err)
			} else if n > 0 {
				slog.Info("unreferenced content pruned", "count", n)
			}
		}
	}
}

// List returns every committed key in lexical order
func (s *AssetStore) List(ctx context.Context) ([]string, error) {
	return s.index.Keys(ctx)
}

// Get returns the committed asset under key or assets.ErrAssetNotFound
func (s *AssetStore) Get(ctx context.Context, key string) (*Asset, error) {
	return s.index.Get(ctx, key)
}

// Content returns the bytes of one encoding of a committed asset
func (s *AssetStore) Content(ctx context.Context, enc EncodingInfo) ([]byte, error) {
	return s.blobs.Get(ctx, enc.SHA256)
}

// PruneContent deletes content no committed asset references
func (s *AssetStore) PruneContent(ctx context.Context) (int, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	keep, err := s.index.Hashes(ctx)
	if err != nil {
		return 0, err
	}
	return s.blobs.Prune(ctx, keep)
}
