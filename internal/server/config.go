package server

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/openmined/assetsync/internal/server/blob"
	"github.com/openmined/assetsync/internal/server/store"
	"github.com/ulule/limiter/v3"
)

const (
	DefaultAddr      = "127.0.0.1:8080"
	DefaultRateLimit = "100-S"
	dbFileName       = "assets.db"
	blobDirName      = "blobs"
)

type Config struct {
	HTTP    HTTPConfig   `mapstructure:"http"`
	Store   store.Config `mapstructure:"store"`
	Blob    blob.Config  `mapstructure:"blob"`
	DataDir string       `mapstructure:"data_dir"`
	DbPath  string       `mapstructure:"db_path"`
}

type HTTPConfig struct {
	Addr      string `mapstructure:"addr"`
	CertFile  string `mapstructure:"cert_file"`
	KeyFile   string `mapstructure:"key_file"`
	RateLimit string `mapstructure:"rate_limit"` // ulule formatted, "" disables
	HSTS      bool   `mapstructure:"hsts"`
}

func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if c.Blob.Backend == blob.BackendFile && c.Blob.Dir == "" && c.DataDir != "" {
		c.Blob.Dir = filepath.Join(c.DataDir, blobDirName)
	}
	if err := c.Blob.Validate(); err != nil {
		return fmt.Errorf("blob config: %w", err)
	}

	if c.DbPath == "" {
		if c.DataDir == "" {
			return errors.New("one of data_dir or db_path is required")
		}
		c.DbPath = filepath.Join(c.DataDir, dbFileName)
	}
	return nil
}

func (h *HTTPConfig) Validate() error {
	if h.Addr == "" {
		h.Addr = DefaultAddr
	}
	if (h.CertFile == "") != (h.KeyFile == "") {
		return errors.New("cert_file and key_file must be set together")
	}
	if h.HSTS && !h.TLS() {
		return errors.New("hsts requires tls")
	}
	if h.RateLimit != "" {
		if _, err := limiter.NewRateFromFormatted(h.RateLimit); err != nil {
			return fmt.Errorf("invalid rate_limit %q: %w", h.RateLimit, err)
		}
	}
	return nil
}

func (h *HTTPConfig) TLS() bool {
	return h.CertFile != "" && h.KeyFile != ""
}
