package utils

import (
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// DetectContentType resolves the content type of key by extension first and
// falls back to sniffing content.
func DetectContentType(key string, content []byte) string {
	if isTextLike(key) {
		return "text/plain; charset=utf-8"
	} else if mimeType := mime.TypeByExtension(path.Ext(key)); mimeType != "" {
		return mimeType
	}
	if len(content) == 0 {
		return defaultContentType
	}
	return mimetype.Detect(content).String()
}

func isTextLike(key string) bool {
	return strings.HasSuffix(key, ".yaml") ||
		strings.HasSuffix(key, ".yml") ||
		strings.HasSuffix(key, ".toml") ||
		strings.HasSuffix(key, ".md")
}
