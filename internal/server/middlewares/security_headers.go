package middlewares

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds headers every response should carry. Asset-specific
// headers set later by the serve handler take precedence.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Control referrer information
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		c.Next()
	}
}
