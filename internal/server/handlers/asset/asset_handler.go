package asset

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/assetsync/internal/server/handlers/api"
	"github.com/openmined/assetsync/internal/server/store"
)

type AssetHandler struct {
	store *store.AssetStore
}

func New(store *store.AssetStore) *AssetHandler {
	return &AssetHandler{store: store}
}

type PropertiesRequest struct {
	Key string `form:"key" binding:"required"`
}

func (h *AssetHandler) List(ctx *gin.Context) {
	keys, err := h.store.List(ctx.Request.Context())
	if err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, gin.H{
		"keys": keys,
	})
}

func (h *AssetHandler) Properties(ctx *gin.Context) {
	var req PropertiesRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, errors.New("key is required"))
		return
	}

	asset, err := h.store.Get(ctx.Request.Context(), req.Key)
	if err != nil {
		api.AbortWithStoreError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, asset.AssetProperties())
}
