package batch

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/server/handlers/api"
	"github.com/openmined/assetsync/internal/server/store"
)

type BatchHandler struct {
	store        *store.AssetStore
	maxChunkSize int64
}

func New(store *store.AssetStore, maxChunkSize int) *BatchHandler {
	return &BatchHandler{store: store, maxChunkSize: int64(maxChunkSize)}
}

func (h *BatchHandler) Create(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, h.store.CreateBatch())
}

func (h *BatchHandler) CreateChunk(ctx *gin.Context) {
	id, ok := bindBatchID(ctx)
	if !ok {
		return
	}

	// one byte over the limit is enough to tell
	body, err := io.ReadAll(io.LimitReader(ctx.Request.Body, h.maxChunkSize+1))
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("read chunk: %w", err))
		return
	}
	if int64(len(body)) > h.maxChunkSize {
		api.AbortWithError(ctx, http.StatusRequestEntityTooLarge, api.CodeChunkTooLarge,
			fmt.Errorf("chunk exceeds %d bytes", h.maxChunkSize))
		return
	}

	chunkID, err := h.store.CreateChunk(id, body)
	if err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &CreateChunkResponse{ChunkID: chunkID})
}

func (h *BatchHandler) Commit(ctx *gin.Context) {
	id, ops, ok := bindCommit(ctx)
	if !ok {
		return
	}

	if err := h.store.Commit(ctx.Request.Context(), id, ops); err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &assets.CommitStatus{State: assets.CommitCommitted})
}

func (h *BatchHandler) Propose(ctx *gin.Context) {
	id, ops, ok := bindCommit(ctx)
	if !ok {
		return
	}

	if err := h.store.Propose(id, ops); err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusAccepted, &assets.CommitStatus{State: assets.CommitPending})
}

func (h *BatchHandler) Status(ctx *gin.Context) {
	id, ok := bindBatchID(ctx)
	if !ok {
		return
	}

	status, err := h.store.Status(id)
	if err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, status)
}

func (h *BatchHandler) Delete(ctx *gin.Context) {
	id, ok := bindBatchID(ctx)
	if !ok {
		return
	}

	if err := h.store.DeleteBatch(id); err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func bindBatchID(ctx *gin.Context) (assets.BatchID, bool) {
	var uri BatchURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, errors.New("batch id is required"))
		return "", false
	}
	return assets.BatchID(uri.ID), true
}

func bindCommit(ctx *gin.Context) (assets.BatchID, []assets.Operation, bool) {
	id, ok := bindBatchID(ctx)
	if !ok {
		return "", nil, false
	}

	var req CommitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("invalid commit request: %w", err))
		return "", nil, false
	}

	ops, err := assets.UnwrapAll(req.Operations)
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return "", nil, false
	}
	return id, ops, true
}
