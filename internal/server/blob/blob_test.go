package blob

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openmined/assetsync/internal/assets"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cacheSize int) (*BlobService, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	svc, err := NewBlobServiceWithBackend(backend, cacheSize)
	require.NoError(t, err)
	return svc, backend
}

func TestBlobServicePutGet(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t, 0)

	hash, err := svc.Put(ctx, []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, assets.HashOf([]byte("hello")), hash)

	got, err := svc.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	objects, err := backend.ListObjects(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, ContentKey(hash), objects[0].Key)
	assert.Equal(t, int64(5), objects[0].Size)
}

func TestBlobServicePutIsContentAddressed(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t, 0)

	first, err := svc.Put(ctx, []byte("same"))
	require.NoError(t, err)
	before, err := backend.HeadObject(ctx, ContentKey(first))
	require.NoError(t, err)

	second, err := svc.Put(ctx, []byte("same"))
	require.NoError(t, err)
	after, err := backend.HeadObject(ctx, ContentKey(second))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, before.LastModified, after.LastModified, "existing content is not rewritten")
}

func TestBlobServiceGetMissing(t *testing.T) {
	svc, _ := newTestService(t, 8)

	_, err := svc.Get(context.Background(), assets.HashOf([]byte("nope")))
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestBlobServiceCacheServesReads(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t, 8)

	hash, err := svc.Put(ctx, []byte("cached"))
	require.NoError(t, err)

	// gone from the backend, still served from the cache
	_, err = backend.DeleteObject(ctx, ContentKey(hash))
	require.NoError(t, err)

	got, err := svc.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), got)

	require.NoError(t, svc.Delete(ctx, hash))
	_, err = svc.Get(ctx, hash)
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestBlobServiceDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t, 0)

	hash := assets.HashOf([]byte("original"))
	_, err := backend.PutObject(ctx, &PutObjectParams{Key: ContentKey(hash), Body: []byte("tampered")})
	require.NoError(t, err)

	_, err = svc.Get(ctx, hash)
	assert.ErrorContains(t, err, "does not match")
}

func TestBlobServicePrune(t *testing.T) {
	ctx := context.Background()
	svc, backend := newTestService(t, 8)

	keep, err := svc.Put(ctx, []byte("keep"))
	require.NoError(t, err)
	_, err = svc.Put(ctx, []byte("drop"))
	require.NoError(t, err)
	_, err = backend.PutObject(ctx, &PutObjectParams{Key: "other/object", Body: []byte("x")})
	require.NoError(t, err)

	removed, err := svc.Prune(ctx, map[assets.Hash]struct{}{keep: {}})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	objects, err := backend.ListObjects(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "other/object", objects[0].Key)
	assert.Equal(t, ContentKey(keep), objects[1].Key)
}

func TestValidateKey(t *testing.T) {
	assert.True(t, ValidateKey("sha256/ab/abcdef"))
	assert.False(t, ValidateKey(""))
	assert.False(t, ValidateKey("/leading"))
	assert.False(t, ValidateKey("a/../b"))
	assert.False(t, ValidateKey(`a\b`))
}

func TestConfigValidate(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Backend)

	cfg = &Config{Backend: BackendS3, S3: S3Config{BucketName: "b", Region: "us-east-1", AccessKey: "a", SecretKey: "s", Endpoint: "not a url"}}
	assert.ErrorContains(t, cfg.Validate(), "invalid endpoint")

	cfg.S3.Endpoint = "http://127.0.0.1:9000"
	assert.NoError(t, cfg.Validate())

	cfg = &Config{Backend: BackendFile}
	assert.ErrorContains(t, cfg.Validate(), "dir required")

	cfg = &Config{Backend: "ftp"}
	assert.Error(t, cfg.Validate())
}

func TestFileBackend(t *testing.T) {
	ctx := context.Background()
	backends := map[string]BlobBackend{
		"memfs": NewFileBackendWithFs(afero.NewMemMapFs()),
	}
	osBackend, err := NewFileBackend(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)
	backends["osfs"] = osBackend

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			_, err := backend.GetObject(ctx, "sha256/aa/missing")
			assert.ErrorIs(t, err, ErrObjectNotFound)
			_, err = backend.PutObject(ctx, &PutObjectParams{Key: "../escape", Body: []byte("x")})
			assert.ErrorIs(t, err, ErrInvalidKey)

			put, err := backend.PutObject(ctx, &PutObjectParams{Key: "sha256/ab/abc", Body: []byte("hello")})
			require.NoError(t, err)
			assert.Equal(t, int64(5), put.Size)

			got, err := backend.GetObject(ctx, "sha256/ab/abc")
			require.NoError(t, err)
			assert.Equal(t, []byte("hello"), got.Body)
			assert.Equal(t, put.ETag, got.ETag)

			head, err := backend.HeadObject(ctx, "sha256/ab/abc")
			require.NoError(t, err)
			assert.Equal(t, int64(5), head.Size)

			_, err = backend.PutObject(ctx, &PutObjectParams{Key: "sha256/cd/cde", Body: []byte("x")})
			require.NoError(t, err)
			list, err := backend.ListObjects(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "sha256/ab/abc", list[0].Key)
			assert.Equal(t, "sha256/cd/cde", list[1].Key)

			deleted, err := backend.DeleteObject(ctx, "sha256/ab/abc")
			require.NoError(t, err)
			assert.True(t, deleted)
			deleted, err = backend.DeleteObject(ctx, "sha256/ab/abc")
			require.NoError(t, err)
			assert.False(t, deleted)
		})
	}
}

func TestFileBackendSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	svc, err := NewBlobService(ctx, &Config{Backend: BackendFile, Dir: dir})
	require.NoError(t, err)
	hash, err := svc.Put(ctx, []byte("persisted"))
	require.NoError(t, err)

	reopened, err := NewBlobService(ctx, &Config{Backend: BackendFile, Dir: dir})
	require.NoError(t, err)
	got, err := reopened.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}
