package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

const tmpSuffix = ".tmp"

// FileBackend stores objects as files below a directory. Writes go to a
// temporary file first and are renamed into place.
type FileBackend struct {
	fs afero.Fs
}

// NewFileBackend stores objects below dir on the os filesystem
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return NewFileBackendWithFs(afero.NewBasePathFs(afero.NewOsFs(), dir)), nil
}

func NewFileBackendWithFs(fsys afero.Fs) *FileBackend {
	return &FileBackend{fs: fsys}
}

func (f *FileBackend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	if !ValidateKey(key) {
		return nil, ErrInvalidKey
	}
	body, err := afero.ReadFile(f.fs, f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, err
	}
	info, err := f.fs.Stat(f.path(key))
	if err != nil {
		return nil, err
	}
	return &GetObjectResponse{
		Body:         body,
		ETag:         etagOf(body),
		Size:         int64(len(body)),
		LastModified: info.ModTime().UTC(),
	}, nil
}

func (f *FileBackend) HeadObject(ctx context.Context, key string) (*BlobInfo, error) {
	if !ValidateKey(key) {
		return nil, ErrInvalidKey
	}
	info, err := f.fs.Stat(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	} else if err != nil {
		return nil, err
	}
	return &BlobInfo{
		Key:          key,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC().Format(time.RFC3339),
	}, nil
}

func (f *FileBackend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	target := f.path(params.Key)
	if err := f.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return nil, err
	}
	tmp := target + tmpSuffix
	if err := afero.WriteFile(f.fs, tmp, params.Body, 0o644); err != nil {
		return nil, err
	}
	if err := f.fs.Rename(tmp, target); err != nil {
		f.fs.Remove(tmp)
		return nil, err
	}

	return &PutObjectResponse{
		Key:          params.Key,
		ETag:         etagOf(params.Body),
		Size:         int64(len(params.Body)),
		LastModified: time.Now().UTC(),
	}, nil
}

func (f *FileBackend) DeleteObject(ctx context.Context, key string) (bool, error) {
	if !ValidateKey(key) {
		return false, ErrInvalidKey
	}
	err := f.fs.Remove(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

func (f *FileBackend) ListObjects(ctx context.Context) ([]*BlobInfo, error) {
	var out []*BlobInfo
	err := afero.Walk(f.fs, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || strings.HasSuffix(p, tmpSuffix) {
			return nil
		}
		out = append(out, &BlobInfo{
			Key:          strings.TrimPrefix(filepath.ToSlash(p), "/"),
			Size:         info.Size(),
			LastModified: info.ModTime().UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *FileBackend) path(key string) string {
	return "/" + key
}

// same etag as s3 for single part uploads
func etagOf(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}

var _ BlobBackend = (*FileBackend)(nil)
