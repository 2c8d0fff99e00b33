package assets

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func sources(paths ...string) []SourceFile {
	out := make([]SourceFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, SourceFile{Key: strings.TrimPrefix(p, "/site"), Path: p})
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}

func TestGatherDescribesFiles(t *testing.T) {
	html := strings.Repeat("<p>hello world</p>\n", 50)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}
	fs := memFs(t, map[string]string{
		"/site/index.html":   html,
		"/site/img/logo.png": string(png),
	})

	got, err := NewGatherer(fs).Gather(context.Background(), sources("/site/index.html", "/site/img/logo.png"), nil)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// sorted by key
	assert.Equal(t, "/img/logo.png", got[0].Key)
	assert.Equal(t, "/index.html", got[1].Key)

	logo := got[0]
	assert.Equal(t, "image/png", logo.Properties.ContentType)
	require.Len(t, logo.Encodings, 1)
	assert.Equal(t, EncodingIdentity, logo.Encodings[0].Name)
	assert.Equal(t, png, logo.Encodings[0].Content)

	index := got[1]
	assert.Equal(t, "text/html; charset=utf-8", index.Properties.ContentType)
	require.Len(t, index.Encodings, 3)
	assert.Equal(t, EncodingBrotli, index.Encodings[0].Name)
	assert.Equal(t, EncodingGzip, index.Encodings[1].Name)
	assert.Equal(t, EncodingIdentity, index.Encodings[2].Name)
	assert.Equal(t, HashOf([]byte(html)), index.Encoding(EncodingIdentity).SHA256)

	zr, err := gzip.NewReader(bytes.NewReader(index.Encoding(EncodingGzip).Content))
	require.NoError(t, err)
	unzipped, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, html, string(unzipped))

	unbr, err := io.ReadAll(brotli.NewReader(bytes.NewReader(index.Encoding(EncodingBrotli).Content)))
	require.NoError(t, err)
	assert.Equal(t, html, string(unbr))
}

func TestGatherAppliesRules(t *testing.T) {
	fs := memFs(t, map[string]string{
		"/site/docs/a.html": "<p>a</p>",
		"/site/data.bin":    "raw",
	})
	rules := []PropertyRule{
		{Match: "**/*", Cache: &CacheRule{MaxAge: ptr(uint64(60))}, Headers: map[string]string{"X-A": "1"}},
		{Match: "docs/**", Cache: &CacheRule{MaxAge: ptr(uint64(600))}, Headers: map[string]string{"X-B": "2"}, EnableAliasing: ptr(true), Encodings: []string{EncodingIdentity}},
		{Match: "/data.bin", ContentType: ptr("application/x-custom")},
	}

	got, err := NewGatherer(fs).Gather(context.Background(), sources("/site/docs/a.html", "/site/data.bin"), rules)
	require.NoError(t, err)
	require.Len(t, got, 2)

	data, doc := got[0], got[1]
	assert.Equal(t, "application/x-custom", data.Properties.ContentType)
	assert.Equal(t, uint64(60), *data.Properties.MaxAge)
	assert.Nil(t, data.Properties.IsAliased)

	assert.Equal(t, uint64(600), *doc.Properties.MaxAge)
	assert.Equal(t, map[string]string{"X-A": "1", "X-B": "2"}, doc.Properties.Headers)
	assert.True(t, *doc.Properties.IsAliased)
	require.Len(t, doc.Encodings, 1, "rule pins the encodings")
}

func TestGatherFailures(t *testing.T) {
	fs := memFs(t, map[string]string{"/site/a.txt": "a", "/site/b.txt": "b"})

	tests := []struct {
		name  string
		files []SourceFile
		rules []PropertyRule
		want  error
	}{
		{
			name:  "key collision",
			files: []SourceFile{{Key: "/a.txt", Path: "/site/a.txt"}, {Key: "/a.txt", Path: "/site/b.txt"}},
			want:  ErrKeyCollision,
		},
		{
			name:  "relative key",
			files: []SourceFile{{Key: "a.txt", Path: "/site/a.txt"}},
			want:  ErrInvalidKey,
		},
		{
			name:  "bad rule",
			files: sources("/site/a.txt"),
			rules: []PropertyRule{{Match: "[", Headers: map[string]string{"X": "1"}}},
			want:  ErrInvalidRule,
		},
		{
			name:  "unknown encoding",
			files: sources("/site/a.txt"),
			rules: []PropertyRule{{Match: "*", Encodings: []string{"zstd"}}},
			want:  ErrInvalidRule,
		},
		{
			name:  "unreadable file",
			files: sources("/site/missing.txt"),
			want:  afero.ErrFileNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGatherer(fs).Gather(context.Background(), tt.files, tt.rules)
			require.Error(t, err)
			assert.Equal(t, StageGatherAssetDescriptors, StageOf(err))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRuleValidate(t *testing.T) {
	assert.NoError(t, (&PropertyRule{Match: "**/*.css", ContentType: ptr("text/css; charset=utf-8")}).Validate())
	assert.ErrorIs(t, (&PropertyRule{}).Validate(), ErrInvalidRule)
	assert.ErrorIs(t, (&PropertyRule{Match: "*", ContentType: ptr("not a type")}).Validate(), ErrInvalidRule)
	assert.ErrorIs(t, (&PropertyRule{Match: "*", Headers: map[string]string{"Bad Header": "x"}}).Validate(), ErrInvalidRule)
	assert.ErrorIs(t, (&PropertyRule{Match: "*", Encodings: []string{EncodingGzip, EncodingGzip}}).Validate(), ErrInvalidRule)
}

func TestBuildEncodingsDropsLargerCompression(t *testing.T) {
	encs, err := buildEncodings([]byte("x"), []string{EncodingIdentity, EncodingGzip}, false)
	require.NoError(t, err)
	require.Len(t, encs, 1)
	assert.Equal(t, EncodingIdentity, encs[0].Name)

	encs, err = buildEncodings([]byte("x"), []string{EncodingIdentity, EncodingGzip}, true)
	require.NoError(t, err)
	require.Len(t, encs, 2, "pinned encodings are kept")
	assert.Equal(t, EncodingGzip, encs[0].Name)
	assert.Equal(t, EncodingIdentity, encs[1].Name)
}

func TestGatherKeepsPinnedEncodingsOfIncompressibleContent(t *testing.T) {
	noise := make([]byte, 4<<10)
	_, err := rand.Read(noise)
	require.NoError(t, err)
	fs := memFs(t, map[string]string{"/site/x.bin": string(noise)})

	tests := []struct {
		name      string
		encodings []string
		want      []string
		wantErr   error
	}{
		{
			name:      "compressed only",
			encodings: []string{EncodingGzip, EncodingBrotli},
			want:      []string{EncodingBrotli, EncodingGzip},
		},
		{
			name:      "identity and gzip",
			encodings: []string{EncodingIdentity, EncodingGzip},
			want:      []string{EncodingGzip, EncodingIdentity},
		},
		{
			name:      "duplicate",
			encodings: []string{EncodingGzip, EncodingGzip},
			wantErr:   ErrInvalidRule,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := []PropertyRule{{Match: "**/*.bin", Encodings: tt.encodings}}
			got, err := NewGatherer(fs).Gather(context.Background(), sources("/site/x.bin"), rules)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.Equal(t, StageGatherAssetDescriptors, StageOf(err))
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
			names := make([]string, 0, len(got[0].Encodings))
			for _, enc := range got[0].Encodings {
				names = append(names, enc.Name)
			}
			assert.Equal(t, tt.want, names)

			ops := Diff(got, remoteOf())
			require.Len(t, ops, 1+len(tt.want))
			assert.IsType(t, &CreateAsset{}, ops[0])
		})
	}
}
