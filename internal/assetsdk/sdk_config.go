package assetsdk

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultBaseURL       = "http://127.0.0.1:8080"
	DefaultRetryCount    = 3
	DefaultRetryInterval = time.Second
)

// Config is the configuration for the AssetSDK
type Config struct {
	BaseURL       string        // BaseURL is required
	RetryCount    int           // retries for idempotent requests
	RetryInterval time.Duration // fixed wait between retries
	Debug         bool          // dump requests and responses
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrNoServerURL
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidServerURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServerURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidServerURL)
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")

	if c.RetryCount < 0 {
		c.RetryCount = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}

	return nil
}
