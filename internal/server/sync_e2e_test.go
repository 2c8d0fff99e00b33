package server_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/assetsdk"
	"github.com/openmined/assetsync/internal/server"
	"github.com/openmined/assetsync/internal/server/blob"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncEnv struct {
	fs      afero.Fs
	handler http.Handler
	sdk     *assetsdk.AssetSDK
}

func newSyncEnv(t *testing.T, chunkSize int) *syncEnv {
	t.Helper()
	cfg := &server.Config{
		Blob:    blob.Config{Backend: blob.BackendMemory},
		DataDir: t.TempDir(),
	}
	cfg.Store.MaxChunkSize = chunkSize

	srv, err := server.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Stop(context.Background()) })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	sdk, err := assetsdk.New(&assetsdk.Config{BaseURL: ts.URL, RetryCount: 1})
	require.NoError(t, err)
	t.Cleanup(sdk.Close)

	return &syncEnv{fs: afero.NewMemMapFs(), handler: srv.Handler(), sdk: sdk}
}

func (e *syncEnv) write(t *testing.T, files map[string]string) []assets.SourceFile {
	t.Helper()
	var out []assets.SourceFile
	for key, content := range files {
		path := "/site" + key
		require.NoError(t, afero.WriteFile(e.fs, path, []byte(content), 0o644))
		out = append(out, assets.SourceFile{Key: key, Path: path})
	}
	return out
}

func (e *syncEnv) sync(t *testing.T, files []assets.SourceFile, rules []assets.PropertyRule, limits assets.Limits) *assets.Result {
	t.Helper()
	opts := assets.DefaultUploadOptions()
	opts.Limits = limits
	opts.Consent = assets.AlwaysConsent
	res, err := assets.NewUploader(e.fs, e.sdk, opts).Sync(context.Background(), files, rules)
	require.NoError(t, err)
	return res
}

func (e *syncEnv) get(t *testing.T, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func TestSyncAgainstServer(t *testing.T) {
	env := newSyncEnv(t, 64)
	page := strings.Repeat("<p>hello assets</p>\n", 40)
	big := bytes.Repeat([]byte("0123456789abcdef"), 30)

	files := env.write(t, map[string]string{
		"/index.html":      page,
		"/docs/index.html": "<h1>docs</h1>",
		"/data.bin":        string(big),
	})
	rules := []assets.PropertyRule{
		{Match: "**/*.html", EnableAliasing: ptr(true), Cache: &assets.CacheRule{MaxAge: ptr(uint64(300))}},
		{Match: "/data.bin", Encodings: []string{assets.EncodingIdentity}, Headers: map[string]string{"X-Data": "yes"}},
	}
	limits := assets.DefaultLimits()
	limits.MaxInlineSize = 64
	limits.MaxChunkSize = 64

	res := env.sync(t, files, rules, limits)
	assert.Equal(t, 3, res.Assets)
	assert.NotZero(t, res.Chunks, "data.bin is uploaded in chunks")

	keys, err := env.sdk.List(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/index.html", "/docs/index.html", "/data.bin"}, keys)

	t.Run("identity", func(t *testing.T) {
		w := env.get(t, http.MethodGet, "/assets/data.bin", map[string]string{"Accept-Encoding": "identity"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, big, w.Body.Bytes())
		assert.Equal(t, "yes", w.Header().Get("X-Data"))
		assert.Empty(t, w.Header().Get("Content-Encoding"))
	})

	t.Run("brotli preferred", func(t *testing.T) {
		w := env.get(t, http.MethodGet, "/assets/index.html", map[string]string{"Accept-Encoding": "gzip, br"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, assets.EncodingBrotli, w.Header().Get("Content-Encoding"))
		assert.Equal(t, "public, max-age=300", w.Header().Get("Cache-Control"))
		decoded, err := io.ReadAll(brotli.NewReader(w.Body))
		require.NoError(t, err)
		assert.Equal(t, page, string(decoded))
	})

	t.Run("alias and etag", func(t *testing.T) {
		w := env.get(t, http.MethodGet, "/assets/docs/", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "<h1>docs</h1>", w.Body.String())

		etag := w.Header().Get("ETag")
		require.NotEmpty(t, etag)
		w = env.get(t, http.MethodGet, "/assets/docs", map[string]string{"If-None-Match": etag})
		assert.Equal(t, http.StatusNotModified, w.Code)
	})

	t.Run("head", func(t *testing.T) {
		w := env.get(t, http.MethodHead, "/assets/data.bin", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "480", w.Header().Get("Content-Length"))
		assert.Zero(t, w.Body.Len())
	})

	t.Run("index page", func(t *testing.T) {
		w := env.get(t, http.MethodGet, "/_index", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/docs/index.html")
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		res := env.sync(t, files, rules, limits)
		assert.Zero(t, res.Operations)
	})
}

func TestSyncRemovesAndUpdates(t *testing.T) {
	env := newSyncEnv(t, 1024)
	files := env.write(t, map[string]string{"/a.txt": "first", "/old.txt": "bye"})
	env.sync(t, files, nil, assets.DefaultLimits())

	files = env.write(t, map[string]string{"/a.txt": "second"})
	res := env.sync(t, files, nil, assets.DefaultLimits())
	assert.NotZero(t, res.Operations)

	keys, err := env.sdk.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.txt"}, keys)

	w := env.get(t, http.MethodGet, "/assets/a.txt", map[string]string{"Accept-Encoding": "identity"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "second", w.Body.String())

	_, err = env.sdk.GetProperties(context.Background(), "/old.txt")
	assert.ErrorIs(t, err, assets.ErrAssetNotFound)
}

func TestSyncAsyncCommit(t *testing.T) {
	env := newSyncEnv(t, 1024)
	files := env.write(t, map[string]string{"/a.txt": "async"})

	opts := assets.DefaultUploadOptions()
	opts.Consent = assets.AlwaysConsent
	opts.Commit.Async = true
	opts.Commit.PollInterval = 10 * time.Millisecond
	res, err := assets.NewUploader(env.fs, env.sdk, opts).Sync(context.Background(), files, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Committed)

	props, err := env.sdk.GetProperties(context.Background(), "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, assets.HashOf([]byte("async")), props.Encodings[assets.EncodingIdentity])
}

func ptr[T any](v T) *T {
	return &v
}
