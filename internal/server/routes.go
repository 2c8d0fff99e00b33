package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openmined/assetsync/internal/server/handlers/api"
	"github.com/openmined/assetsync/internal/server/handlers/asset"
	"github.com/openmined/assetsync/internal/server/handlers/batch"
	"github.com/openmined/assetsync/internal/server/handlers/serve"
	"github.com/openmined/assetsync/internal/server/middlewares"
	"github.com/openmined/assetsync/internal/version"
)

func SetupRoutes(cfg *Config, svc *Services) (http.Handler, error) {
	r := gin.New()

	assetH := asset.New(svc.Store)
	batchH := batch.New(svc.Store, cfg.Store.MaxChunkSize)
	serveH := serve.New(svc.Store)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	if cfg.HTTP.HSTS {
		r.Use(middlewares.HSTS())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)
	r.GET("/_index", serveH.Index)

	r.GET("/assets/*key", serveH.Serve)
	r.HEAD("/assets/*key", serveH.Serve)

	v1 := r.Group("/api/v1")
	if cfg.HTTP.RateLimit != "" {
		limit, err := middlewares.RateLimiter(cfg.HTTP.RateLimit)
		if err != nil {
			return nil, err
		}
		v1.Use(limit)
	}
	{
		// assets
		v1.GET("/assets", assetH.List)
		v1.GET("/assets/properties", assetH.Properties)

		// batches
		v1.POST("/batches", batchH.Create)
		v1.POST("/batches/:id/chunks", batchH.CreateChunk)
		v1.POST("/batches/:id/commit", batchH.Commit)
		v1.POST("/batches/:id/propose", batchH.Propose)
		v1.GET("/batches/:id/status", batchH.Status)
		v1.DELETE("/batches/:id", batchH.Delete)
	}

	r.HandleMethodNotAllowed = true
	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, api.APIError{
			Code:    api.CodeNotFound,
			Message: "not found",
		})
	})
	r.NoMethod(func(c *gin.Context) {
		c.PureJSON(http.StatusMethodNotAllowed, api.APIError{
			Code:    api.CodeInvalidRequest,
			Message: "method not allowed",
		})
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
