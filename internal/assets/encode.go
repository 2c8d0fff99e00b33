package assets

import (
	"bytes"
	"fmt"
	"mime"
	"slices"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

var compressibleTypes = []string{
	"application/javascript",
	"application/json",
	"application/manifest+json",
	"application/wasm",
	"application/xml",
	"application/x-javascript",
	"image/svg+xml",
}

func isCompressible(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "text/") || slices.Contains(compressibleTypes, mediaType)
}

// defaultEncodings picks the encodings produced when no rule pins them.
func defaultEncodings(contentType string) []string {
	if isCompressible(contentType) {
		return []string{EncodingIdentity, EncodingGzip, EncodingBrotli}
	}
	return []string{EncodingIdentity}
}

// buildEncodings produces the requested encodings of content, sorted by name.
// Unless the names were pinned by a rule, compressed encodings that are not
// smaller than identity are dropped.
func buildEncodings(content []byte, names []string, pinned bool) ([]*Encoding, error) {
	out := make([]*Encoding, 0, len(names))
	for _, name := range names {
		var encoded []byte
		var err error
		switch name {
		case EncodingIdentity:
			encoded = content
		case EncodingGzip:
			encoded, err = gzipBytes(content)
		case EncodingBrotli:
			encoded, err = brotliBytes(content)
		default:
			return nil, fmt.Errorf("unknown encoding %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		if !pinned && name != EncodingIdentity && len(encoded) >= len(content) {
			continue
		}
		out = append(out, NewEncoding(name, encoded))
	}
	slices.SortFunc(out, func(a, b *Encoding) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

func gzipBytes(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(content); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliBytes(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := bw.Write(content); err != nil {
		return nil, err
	}
	if err := bw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
