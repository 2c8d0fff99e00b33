package blob

import (
	"fmt"
	"net/url"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendS3     = "s3"

	DefaultCacheSize = 1024
)

type Config struct {
	Backend   string   `mapstructure:"backend"`
	CacheSize int      `mapstructure:"cache_size"` // cached content objects, 0 disables the cache
	Dir       string   `mapstructure:"dir"`        // file backend root
	S3        S3Config `mapstructure:"s3"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case "", BackendMemory:
		c.Backend = BackendMemory
	case BackendFile:
		if c.Dir == "" {
			return fmt.Errorf("file: dir required")
		}
	case BackendS3:
		if err := c.S3.Validate(); err != nil {
			return fmt.Errorf("s3: %w", err)
		}
	default:
		return fmt.Errorf("unknown blob backend %q", c.Backend)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	return nil
}

type S3Config struct {
	BucketName    string `mapstructure:"bucket_name"`
	Region        string `mapstructure:"region"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	Endpoint      string `mapstructure:"endpoint"`
	Prefix        string `mapstructure:"prefix"`
	UseAccelerate bool   `mapstructure:"use_accelerate"`
}

func (c *S3Config) Validate() error {
	if c.BucketName == "" {
		return fmt.Errorf("bucket_name required")
	}
	if c.Region == "" {
		return fmt.Errorf("region required")
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access_key required")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key required")
	}
	if c.Endpoint != "" {
		if u, err := url.Parse(c.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid endpoint URL %q", c.Endpoint)
		}
	}
	return nil
}
