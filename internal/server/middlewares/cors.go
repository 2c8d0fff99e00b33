package middlewares

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS allows any origin to read served assets and call the api without credentials
func CORS() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Accept", "Accept-Encoding", "Content-Type", "Content-Length", "If-None-Match", "X-AssetSync-Version"},
		AllowMethods:     []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"},
		ExposeHeaders:    []string{"ETag", "Content-Encoding", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	})
}
