package assetsdk

import (
	"context"
	"errors"
	"net/http"

	"github.com/imroc/req/v3"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/version"
)

// AssetSDK is the HTTP client for the asset store. It implements assets.Store.
type AssetSDK struct {
	client  *req.Client
	baseURL string
	stats   *httpStats
}

var _ assets.Store = (*AssetSDK)(nil)

// New creates a new AssetSDK client
func New(cfg *Config) (*AssetSDK, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stats := newHTTPStats()
	client := req.C().
		SetBaseURL(cfg.BaseURL).
		SetCommonRetryCount(cfg.RetryCount).
		SetCommonRetryFixedInterval(cfg.RetryInterval).
		SetCommonRetryCondition(shouldRetry).
		SetUserAgent(AssetSyncUserAgent).
		SetCommonHeader(HeaderAssetSyncVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUmarshal).
		OnAfterResponse(stats.middleware)

	if cfg.Debug {
		client.EnableDumpAll()
	}

	return &AssetSDK{
		client:  client,
		baseURL: cfg.BaseURL,
		stats:   stats,
	}, nil
}

// BaseURL returns the server the sdk talks to
func (s *AssetSDK) BaseURL() string {
	return s.baseURL
}

// Stats returns a snapshot of the traffic sent through this client
func (s *AssetSDK) Stats() HTTPStatsSnapshot {
	return s.stats.snapshot()
}

// Close releases idle connections
func (s *AssetSDK) Close() {
	s.client.GetClient().CloseIdleConnections()
}

// shouldRetry retries transport failures and server-side hiccups, never client errors
func shouldRetry(resp *req.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil || resp.Response == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
}
