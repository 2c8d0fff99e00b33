package blob

import (
	"regexp"
	"unicode/utf8"

	"github.com/openmined/assetsync/internal/assets"
)

// Match: starts with one or more / OR contains \ OR contains ..
var regexForbiddenPatterns = regexp.MustCompile(`^/+|\\+|\.\.`)

// ValidateKey checks a key for S3 and local file system compatibility
func ValidateKey(key string) bool {
	if len(key) == 0 || len(key) > 1024 {
		return false
	} else if key == "." || key == ".." {
		return false
	}

	if regexForbiddenPatterns.MatchString(key) {
		return false
	}

	return utf8.ValidString(key)
}

// ContentKey is where content with the given hash lives, e.g. "sha256/ab/abcdef...".
func ContentKey(hash assets.Hash) string {
	hex := hash.String()
	return "sha256/" + hex[:2] + "/" + hex
}

func parseContentKey(key string) (assets.Hash, bool) {
	var hash assets.Hash
	if len(key) < 64 {
		return hash, false
	}
	if err := hash.UnmarshalText([]byte(key[len(key)-64:])); err != nil {
		return hash, false
	}
	return hash, ContentKey(hash) == key
}
