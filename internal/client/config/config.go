package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".assetsync", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".assetsync", "logs", "assetsync.log")
	DefaultServerURL   = "http://127.0.0.1:8080"
)

var ErrInvalidServerURL = errors.New("invalid server url")

type Config struct {
	Dir       string     `mapstructure:"dir"`
	ServerURL string     `mapstructure:"server_url"`
	LogFile   string     `mapstructure:"log_file"`
	Sync      SyncConfig `mapstructure:"sync"`
	Path      string     `mapstructure:"-"`
}

// SyncConfig tunes a sync run. Zero values fall back to the engine defaults.
type SyncConfig struct {
	MaxInlineSize      int           `mapstructure:"max_inline_size"`
	MaxChunkSize       int           `mapstructure:"max_chunk_size"`
	MaxBatchOperations int           `mapstructure:"max_batch_operations"`
	MaxBatchBytes      int           `mapstructure:"max_batch_bytes"`
	ChunkConcurrency   int           `mapstructure:"chunk_concurrency"`
	ChunkRetries       int           `mapstructure:"chunk_retries"`
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	PollTimeout        time.Duration `mapstructure:"poll_timeout"`
	HTTPRetries        int           `mapstructure:"http_retries"`
	Async              bool          `mapstructure:"async"`
}

func (c *Config) Validate() error {
	var err error

	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Dir, err = utils.ResolvePath(c.Dir); err != nil {
		return fmt.Errorf("dir: %w", err)
	}

	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}
	if c.LogFile != "" {
		if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
			return fmt.Errorf("log file: %w", err)
		}
	}

	if c.ServerURL == "" {
		c.ServerURL = DefaultServerURL
	}
	if err := validateURL(c.ServerURL); err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

func (s *SyncConfig) Validate() error {
	if s.MaxInlineSize < 0 || s.MaxChunkSize < 0 || s.MaxBatchOperations < 0 || s.MaxBatchBytes < 0 {
		return errors.New("limits must not be negative")
	}
	if s.ChunkConcurrency < 0 || s.ChunkRetries < 0 || s.HTTPRetries < 0 {
		return errors.New("concurrency and retries must not be negative")
	}
	if s.CallTimeout < 0 || s.PollTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	limits := s.Limits()
	return limits.Validate()
}

func (s *SyncConfig) Limits() assets.Limits {
	limits := assets.DefaultLimits()
	if s.MaxInlineSize > 0 {
		limits.MaxInlineSize = s.MaxInlineSize
	}
	if s.MaxChunkSize > 0 {
		limits.MaxChunkSize = s.MaxChunkSize
	}
	if s.MaxBatchOperations > 0 {
		limits.MaxBatchOperations = s.MaxBatchOperations
	}
	if s.MaxBatchBytes > 0 {
		limits.MaxBatchBytes = s.MaxBatchBytes
	}
	return limits
}

// UploadOptions builds the engine options. Consent and progress are left to the caller.
func (s *SyncConfig) UploadOptions() assets.UploadOptions {
	opts := assets.DefaultUploadOptions()
	opts.Limits = s.Limits()
	if s.ChunkConcurrency > 0 {
		opts.Commit.ChunkConcurrency = s.ChunkConcurrency
	}
	if s.ChunkRetries > 0 {
		opts.Commit.ChunkRetries = s.ChunkRetries
	}
	if s.CallTimeout > 0 {
		opts.Commit.CallTimeout = s.CallTimeout
	}
	if s.PollTimeout > 0 {
		opts.Commit.PollTimeout = s.PollTimeout
	}
	opts.Commit.Async = s.Async
	return opts
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidServerURL)
	}
	return nil
}
