package assets

import (
	"errors"
	"fmt"
	"maps"
	"mime"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	ErrInvalidRule = errors.New("invalid property rule")
)

// PropertyRule declares properties for every asset whose key matches Match.
// Rules are applied in order; later matches override earlier ones field by field.
type PropertyRule struct {
	Match          string            `yaml:"match" json:"match"`
	ContentType    *string           `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Cache          *CacheRule        `yaml:"cache,omitempty" json:"cache,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	EnableAliasing *bool             `yaml:"enable_aliasing,omitempty" json:"enable_aliasing,omitempty"`
	Encodings      []string          `yaml:"encodings,omitempty" json:"encodings,omitempty"`
}

type CacheRule struct {
	MaxAge *uint64 `yaml:"max_age,omitempty" json:"max_age,omitempty"`
}

var knownEncodings = []string{EncodingIdentity, EncodingGzip, EncodingBrotli}

func (r *PropertyRule) Validate() error {
	if r.Match == "" {
		return fmt.Errorf("%w: empty match", ErrInvalidRule)
	}
	if !doublestar.ValidatePattern(matchPattern(r.Match)) {
		return fmt.Errorf("%w: bad pattern %q", ErrInvalidRule, r.Match)
	}
	if r.ContentType != nil {
		if _, _, err := mime.ParseMediaType(*r.ContentType); err != nil {
			return fmt.Errorf("%w: content type %q: %w", ErrInvalidRule, *r.ContentType, err)
		}
	}
	for name := range r.Headers {
		if !validHeaderName(name) {
			return fmt.Errorf("%w: header name %q", ErrInvalidRule, name)
		}
	}
	for i, enc := range r.Encodings {
		if !slices.Contains(knownEncodings, enc) {
			return fmt.Errorf("%w: unknown encoding %q", ErrInvalidRule, enc)
		}
		if slices.Contains(r.Encodings[:i], enc) {
			return fmt.Errorf("%w: duplicate encoding %q", ErrInvalidRule, enc)
		}
	}
	return nil
}

func (r *PropertyRule) Matches(key string) bool {
	ok, _ := doublestar.Match(matchPattern(r.Match), strings.TrimPrefix(key, "/"))
	return ok
}

// resolvedRules is the merge of every rule matching one key.
type resolvedRules struct {
	contentType *string
	maxAge      *uint64
	headers     map[string]string
	aliasing    *bool
	encodings   []string
}

func resolveRules(rules []PropertyRule, key string) resolvedRules {
	var out resolvedRules
	for i := range rules {
		r := &rules[i]
		if !r.Matches(key) {
			continue
		}
		if r.ContentType != nil {
			out.contentType = r.ContentType
		}
		if r.Cache != nil && r.Cache.MaxAge != nil {
			out.maxAge = r.Cache.MaxAge
		}
		if r.Headers != nil {
			if out.headers == nil {
				out.headers = make(map[string]string, len(r.Headers))
			}
			maps.Copy(out.headers, r.Headers)
		}
		if r.EnableAliasing != nil {
			out.aliasing = r.EnableAliasing
		}
		if len(r.Encodings) > 0 {
			out.encodings = r.Encodings
		}
	}
	return out
}

func matchPattern(pattern string) string {
	return strings.TrimPrefix(pattern, "/")
}

func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for _, c := range name {
		if c <= ' ' || c >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", c) {
			return false
		}
	}
	return true
}
