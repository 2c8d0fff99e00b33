package assets

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// RemoteStateFetcher snapshots the store's assets.
type RemoteStateFetcher struct {
	store       Store
	callTimeout time.Duration
	concurrency int
}

func NewRemoteStateFetcher(store Store, callTimeout time.Duration) *RemoteStateFetcher {
	return &RemoteStateFetcher{
		store:       store,
		callTimeout: callTimeout,
		concurrency: DefaultFetchConcurrency,
	}
}

func (f *RemoteStateFetcher) SetConcurrency(n int) {
	if n > 0 {
		f.concurrency = n
	}
}

// Fetch lists every key and then reads its properties. Keys that disappear
// between list and get_properties are treated as absent.
func (f *RemoteStateFetcher) Fetch(ctx context.Context) (RemoteState, error) {
	tStart := time.Now()

	keys, err := f.list(ctx)
	if err != nil {
		return nil, newError(StageListAssets, "", err)
	}

	var mu sync.Mutex
	state := make(RemoteState, len(keys))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.concurrency)
	for _, key := range keys {
		eg.Go(func() error {
			props, err := f.getProperties(egCtx, key)
			if errors.Is(err, ErrAssetNotFound) {
				slog.Debug("remote state", "key", key, "reason", "not found")
				return nil
			} else if err != nil {
				return newError(StageGetAssetProperties, key, err)
			}

			encodings := props.Encodings
			if encodings == nil {
				encodings = make(map[string]Hash)
			}

			mu.Lock()
			state[key] = &RemoteAssetState{
				Key:        key,
				Properties: props.Properties.Clone(),
				Encodings:  encodings,
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	slog.Debug("remote state", "assets", len(state), "took", time.Since(tStart))
	return state, nil
}

func (f *RemoteStateFetcher) list(ctx context.Context) ([]string, error) {
	callCtx, cancel := withCallTimeout(ctx, f.callTimeout)
	defer cancel()
	return f.store.List(callCtx)
}

func (f *RemoteStateFetcher) getProperties(ctx context.Context, key string) (*AssetProperties, error) {
	callCtx, cancel := withCallTimeout(ctx, f.callTimeout)
	defer cancel()
	return f.store.GetProperties(callCtx, key)
}
