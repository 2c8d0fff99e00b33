package batch

import "github.com/openmined/assetsync/internal/assets"

type BatchURI struct {
	ID string `uri:"id" binding:"required"`
}

type CommitRequest struct {
	Operations []assets.OperationEnvelope `json:"operations"`
}

type CreateChunkResponse struct {
	ChunkID assets.ChunkID `json:"chunk_id"`
}
