package assetsdk

import (
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/version"
)

const (
	HeaderUserAgent        = "User-Agent"
	HeaderAssetSyncVersion = "X-AssetSync-Version"
)

var AssetSyncUserAgent = version.UserAgent()

type ListAssetsResponse struct {
	Keys []string `json:"keys"`
}

type CreateChunkResponse struct {
	ChunkID assets.ChunkID `json:"chunk_id"`
}

type CommitRequest struct {
	Operations []assets.OperationEnvelope `json:"operations"`
}
