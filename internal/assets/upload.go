package assets

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// ConsentFunc is asked once per run before any batch with destructive
// operations is committed. Returning false aborts the run.
type ConsentFunc func(ctx context.Context, summary *ChangeSummary) (bool, error)

// AlwaysConsent approves every destructive change.
func AlwaysConsent(context.Context, *ChangeSummary) (bool, error) {
	return true, nil
}

type UploadOptions struct {
	Limits            Limits
	Commit            CommitOptions
	GatherConcurrency int
	FetchConcurrency  int

	// DryRun stops after planning. Result.Plan holds the batches.
	DryRun bool

	// Consent decides destructive changes. A nil Consent declines them.
	Consent  ConsentFunc
	Progress ProgressFunc
}

func DefaultUploadOptions() UploadOptions {
	return UploadOptions{
		Limits:            DefaultLimits(),
		Commit:            DefaultCommitOptions(),
		GatherConcurrency: DefaultGatherConcurrency,
		FetchConcurrency:  DefaultFetchConcurrency,
	}
}

// Result summarizes a sync run.
type Result struct {
	Assets     int
	Operations int
	Batches    int
	Committed  []int
	Failed     []int
	Chunks     int
	Bytes      int
	Restarts   int
	Plan       []*PlannedBatch
	Duration   time.Duration
}

// Uploader makes the store mirror a set of local files.
type Uploader struct {
	fs    afero.Fs
	store Store
	opts  UploadOptions
}

func NewUploader(fs afero.Fs, store Store, opts UploadOptions) *Uploader {
	return &Uploader{
		fs:    fs,
		store: store,
		opts:  opts,
	}
}

// Sync gathers files, diffs them against the store and commits the difference.
//
// On failure the returned error is an *Error. Its Committed field lists the
// batches that were applied before the failure. A chunk upload that keeps
// failing only fails its own batch; the run continues with the next one and
// the error is reported at the end.
func (u *Uploader) Sync(ctx context.Context, files []SourceFile, rules []PropertyRule) (*Result, error) {
	tStart := time.Now()

	local, remote, err := u.load(ctx, files, rules)
	if err != nil {
		return nil, err
	}
	u.opts.Progress.emit(Event{Kind: EventGathered, Count: len(local)})
	u.opts.Progress.emit(Event{Kind: EventFetched, Count: len(remote)})

	ops := Diff(local, remote)
	batches, err := Assemble(ops, remote, u.opts.Limits)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Assets:     len(local),
		Operations: len(ops),
		Batches:    len(batches),
		Plan:       batches,
	}
	for _, b := range batches {
		res.Bytes += b.Bytes
	}
	u.opts.Progress.emit(Event{Kind: EventPlanned, Batches: len(batches), Count: len(ops), Bytes: res.Bytes})
	slog.Info("sync plan", "assets", len(local), "remote", len(remote), "operations", len(ops), "batches", len(batches))

	if u.opts.DryRun || len(batches) == 0 {
		res.Duration = time.Since(tStart)
		return res, nil
	}

	if summary := summarize(batches); !summary.Empty() {
		u.opts.Progress.emit(Event{Kind: EventConsentRequired, Count: summary.Count()})
		if err := u.consent(ctx, summary); err != nil {
			e := newError(StageConsent, "", err)
			e.Batches = len(batches)
			return res, e
		}
	}

	committer := NewBatchCommitter(u.store, u.opts.Commit, u.opts.Progress)
	var firstErr *Error
	for _, b := range batches {
		br, err := committer.Commit(ctx, b)
		if err != nil {
			res.Failed = append(res.Failed, b.Index)
			u.opts.Progress.emit(Event{Kind: EventBatchFailed, Batch: b.Index, Batches: len(batches), Err: err})
			slog.Error("batch failed", "batch", b.Index, "error", err)

			var stageErr *Error
			if !errors.As(err, &stageErr) {
				stageErr = newError(StageCommitBatch, "", err)
			}
			if firstErr == nil {
				firstErr = stageErr
			}
			if stageErr.Stage == StageAssembleCommitBatchArgument && ctx.Err() == nil {
				continue
			}
			break
		}

		res.Committed = append(res.Committed, b.Index)
		res.Chunks += br.Chunks
		res.Restarts += br.Restarts
		u.opts.Progress.emit(Event{Kind: EventBatchCommitted, Batch: b.Index, Batches: len(batches), BatchID: br.BatchID, Count: len(b.Operations), Bytes: b.Bytes})
		slog.Info("batch committed", "batch", b.Index, "of", len(batches), "operations", len(b.Operations), "id", br.BatchID)
	}
	res.Duration = time.Since(tStart)

	if firstErr != nil {
		return res, &Error{
			Stage:     firstErr.Stage,
			Key:       firstErr.Key,
			Err:       firstErr.Err,
			Batches:   len(batches),
			Committed: res.Committed,
			Failed:    res.Failed,
		}
	}
	return res, nil
}

// load runs the gatherer and the fetcher concurrently. Neither mutates anything,
// so a failure on one side simply cancels the other.
func (u *Uploader) load(ctx context.Context, files []SourceFile, rules []PropertyRule) ([]*AssetDescriptor, RemoteState, error) {
	gatherer := NewGatherer(u.fs)
	gatherer.SetConcurrency(u.opts.GatherConcurrency)
	fetcher := NewRemoteStateFetcher(u.store, u.opts.Commit.CallTimeout)
	fetcher.SetConcurrency(u.opts.FetchConcurrency)

	var local []*AssetDescriptor
	var remote RemoteState

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		local, err = gatherer.Gather(egCtx, files, rules)
		return err
	})
	eg.Go(func() (err error) {
		remote, err = fetcher.Fetch(egCtx)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return local, remote, nil
}

func (u *Uploader) consent(ctx context.Context, summary *ChangeSummary) error {
	if u.opts.Consent == nil {
		return ErrConsentDeclined
	}
	ok, err := u.opts.Consent(ctx, summary)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConsentDeclined
	}
	return nil
}
