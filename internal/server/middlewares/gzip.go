package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var (
	// assets carry their own precompressed encodings, chunks are opaque bytes
	excludedPaths = []string{
		"/healthz",
		"/assets/",
	}
	excludedPathRegexes = []string{
		`^/api/v1/batches/[^/]+/chunks$`,
	}
	excludedExtensions = []string{
		".png", ".gif", ".jpeg", ".jpg", ".webp", ".ico",
		".zip", ".tar", ".gz", ".br", ".bz2", ".7z",
		".woff", ".woff2",
	}
)

func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths(excludedPaths),
		gzip.WithExcludedPathsRegexs(excludedPathRegexes),
		gzip.WithExcludedExtensions(excludedExtensions),
	)
}
