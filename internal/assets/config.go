package assets

import (
	"errors"
	"time"
)

const (
	DefaultMaxInlineSize      = 1_900_000
	DefaultMaxChunkSize       = 1_900_000
	DefaultMaxBatchOperations = 500
	DefaultMaxBatchBytes      = 10_000_000
	DefaultChunkConcurrency   = 4
	DefaultFetchConcurrency   = 16
	DefaultGatherConcurrency  = 8
	DefaultChunkRetries       = 3
	DefaultMaxBatchRestarts   = 3
	DefaultCallTimeout        = 30 * time.Second
	DefaultPollInterval       = 500 * time.Millisecond
	DefaultPollTimeout        = 5 * time.Minute
	defaultRetryBackoff       = 200 * time.Millisecond
)

// Limits bound how operations are grouped into batches.
type Limits struct {
	MaxInlineSize      int // larger content is uploaded as chunks
	MaxChunkSize       int
	MaxBatchOperations int
	MaxBatchBytes      int // soft target on inline + chunked bytes per batch
}

func DefaultLimits() Limits {
	return Limits{
		MaxInlineSize:      DefaultMaxInlineSize,
		MaxChunkSize:       DefaultMaxChunkSize,
		MaxBatchOperations: DefaultMaxBatchOperations,
		MaxBatchBytes:      DefaultMaxBatchBytes,
	}
}

func (l Limits) Validate() error {
	if l.MaxInlineSize < 0 {
		return errors.New("max inline size must not be negative")
	}
	if l.MaxChunkSize <= 0 {
		return errors.New("max chunk size must be positive")
	}
	if l.MaxBatchOperations <= 0 {
		return errors.New("max batch operations must be positive")
	}
	if l.MaxBatchBytes <= 0 {
		return errors.New("max batch bytes must be positive")
	}
	return nil
}

// CommitOptions control how batches are pushed to the store.
type CommitOptions struct {
	CallTimeout      time.Duration
	ChunkConcurrency int
	ChunkRetries     int
	RetryBackoff     time.Duration
	MaxBatchRestarts int
	Async            bool
	PollInterval     time.Duration
	PollTimeout      time.Duration // bounds the wait for a proposed commit's outcome
}

func DefaultCommitOptions() CommitOptions {
	return CommitOptions{
		CallTimeout:      DefaultCallTimeout,
		ChunkConcurrency: DefaultChunkConcurrency,
		ChunkRetries:     DefaultChunkRetries,
		RetryBackoff:     defaultRetryBackoff,
		MaxBatchRestarts: DefaultMaxBatchRestarts,
		PollInterval:     DefaultPollInterval,
		PollTimeout:      DefaultPollTimeout,
	}
}

func (o *CommitOptions) applyDefaults() {
	def := DefaultCommitOptions()
	if o.ChunkConcurrency <= 0 {
		o.ChunkConcurrency = def.ChunkConcurrency
	}
	if o.ChunkRetries < 0 {
		o.ChunkRetries = 0
	}
	if o.MaxBatchRestarts < 0 {
		o.MaxBatchRestarts = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = def.PollTimeout
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
}
