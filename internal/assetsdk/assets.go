package assetsdk

import (
	"context"

	"github.com/openmined/assetsync/internal/assets"
)

const (
	v1Assets          = "/api/v1/assets"
	v1AssetProperties = "/api/v1/assets/properties"
)

// List returns every asset key known to the store
func (s *AssetSDK) List(ctx context.Context) ([]string, error) {
	var apiResp ListAssetsResponse

	resp, err := s.client.R().
		SetContext(ctx).
		SetSuccessResult(&apiResp).
		Get(v1Assets)

	if err := handleAPIError(resp, err, "list assets"); err != nil {
		return nil, err
	}

	return apiResp.Keys, nil
}

// GetProperties returns the properties and encoding hashes of one asset.
// A missing asset is reported as assets.ErrAssetNotFound.
func (s *AssetSDK) GetProperties(ctx context.Context, key string) (*assets.AssetProperties, error) {
	var apiResp assets.AssetProperties

	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParam("key", key).
		SetSuccessResult(&apiResp).
		Get(v1AssetProperties)

	if err := handleAPIError(resp, err, "get asset properties"); err != nil {
		return nil, err
	}

	if apiResp.Encodings == nil {
		apiResp.Encodings = make(map[string]assets.Hash)
	}
	return &apiResp, nil
}
