package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/openmined/assetsync/internal/assets"
)

const (
	DefaultBatchTTL         = 5 * time.Minute
	DefaultSweepInterval    = 30 * time.Second
	DefaultMaxChunkSize     = 2 * 1024 * 1024
	DefaultMaxBatchBytes    = 512 * 1024 * 1024
	DefaultMaxOperations    = 10_000
	DefaultCommitTimeout    = 2 * time.Minute
	DefaultOutcomeTTL       = 15 * time.Minute
)

var (
	ErrBatchBusy       = errors.New("a proposal for this batch is being applied")
	ErrNoCommitPending = errors.New("no commit was proposed for this batch")
	ErrChunkTooLarge   = errors.New("chunk too large")
	ErrBatchTooLarge   = errors.New("batch too large")
	ErrTooManyOps      = errors.New("too many operations")
	ErrInvalidKey      = errors.New("invalid asset key")
)

type Config struct {
	BatchTTL         time.Duration `mapstructure:"batch_ttl"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	PruneInterval    time.Duration `mapstructure:"prune_interval"` // 0 disables pruning of unreferenced content
	MaxChunkSize     int           `mapstructure:"max_chunk_size"`
	MaxBatchBytes    int64         `mapstructure:"max_batch_bytes"`
	MaxOperations    int           `mapstructure:"max_operations"`
	CommitTimeout    time.Duration `mapstructure:"commit_timeout"`
	OutcomeTTL       time.Duration `mapstructure:"outcome_ttl"` // never shorter than BatchTTL
}

func DefaultConfig() Config {
	return Config{
		BatchTTL:         DefaultBatchTTL,
		SweepInterval:    DefaultSweepInterval,
		MaxChunkSize:     DefaultMaxChunkSize,
		MaxBatchBytes:    DefaultMaxBatchBytes,
		MaxOperations:    DefaultMaxOperations,
		CommitTimeout:    DefaultCommitTimeout,
		OutcomeTTL:       DefaultOutcomeTTL,
	}
}

// Validate fills zero values with defaults and rejects negative ones
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.BatchTTL < 0 || c.SweepInterval < 0 || c.PruneInterval < 0 || c.CommitTimeout < 0 || c.OutcomeTTL < 0 {
		return fmt.Errorf("store durations must not be negative")
	}
	if c.MaxChunkSize < 0 || c.MaxBatchBytes < 0 || c.MaxOperations < 0 {
		return fmt.Errorf("store limits must not be negative")
	}
	if c.BatchTTL == 0 {
		c.BatchTTL = def.BatchTTL
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = def.MaxChunkSize
	}
	if c.MaxBatchBytes == 0 {
		c.MaxBatchBytes = def.MaxBatchBytes
	}
	if c.MaxOperations == 0 {
		c.MaxOperations = def.MaxOperations
	}
	if c.CommitTimeout == 0 {
		c.CommitTimeout = def.CommitTimeout
	}
	if c.OutcomeTTL == 0 {
		c.OutcomeTTL = def.OutcomeTTL
	}
	// a proposal must not read as expired while its batch could still be live
	c.OutcomeTTL = max(c.OutcomeTTL, c.BatchTTL)
	return nil
}

// EncodingInfo is one stored encoding of an asset.
type EncodingInfo struct {
	SHA256 assets.Hash
	Length int64
}

// Asset is the committed state of one key.
type Asset struct {
	Key        string
	Properties assets.Properties
	Encodings  map[string]EncodingInfo
}

// AssetProperties is the wire view of an asset
func (a *Asset) AssetProperties() *assets.AssetProperties {
	hashes := make(map[string]assets.Hash, len(a.Encodings))
	for name, enc := range a.Encodings {
		hashes[name] = enc.SHA256
	}
	return &assets.AssetProperties{Properties: a.Properties.Clone(), Encodings: hashes}
}

// Aliased reports whether the asset may be served under alias paths
func (a *Asset) Aliased() bool {
	return a.Properties.IsAliased != nil && *a.Properties.IsAliased
}
