package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/server/store"
)

func AbortWithError(ctx *gin.Context, status int, code string, err error) {
	ctx.Abort()
	ctx.Error(err)
	ctx.PureJSON(status, APIError{
		Code:    code,
		Message: err.Error(),
	})
}

// AbortWithStoreError maps asset store errors onto status codes
func AbortWithStoreError(ctx *gin.Context, err error) {
	var rejected *assets.CommitRejectedError
	switch {
	case errors.As(err, &rejected):
		AbortWithError(ctx, http.StatusConflict, CodeCommitRejected, errors.New(rejected.Reason))
	case errors.Is(err, assets.ErrAssetNotFound):
		AbortWithError(ctx, http.StatusNotFound, CodeAssetNotFound, err)
	case errors.Is(err, assets.ErrBatchExpired):
		AbortWithError(ctx, http.StatusGone, CodeBatchExpired, err)
	case errors.Is(err, store.ErrBatchBusy):
		AbortWithError(ctx, http.StatusConflict, CodeBatchBusy, err)
	case errors.Is(err, store.ErrNoCommitPending):
		AbortWithError(ctx, http.StatusConflict, CodeNoCommitPending, err)
	case errors.Is(err, store.ErrChunkTooLarge), errors.Is(err, store.ErrBatchTooLarge):
		AbortWithError(ctx, http.StatusRequestEntityTooLarge, CodeChunkTooLarge, err)
	case errors.Is(err, store.ErrTooManyOps):
		AbortWithError(ctx, http.StatusBadRequest, CodeInvalidRequest, err)
	default:
		AbortWithError(ctx, http.StatusInternalServerError, CodeInternalError, err)
	}
}
