package utils

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	_, err = ResolvePath("")
	assert.Error(t, err)

	got, err := ResolvePath("~/site")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "site"), got)

	got, err = ResolvePath("./a/../b")
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "b", filepath.Base(got))

	got, err = ResolvePath("~user/x")
	require.NoError(t, err)
	assert.Equal(t, "~user", filepath.Base(filepath.Dir(got)), "only the current user's home is expanded")
}

func TestEnsureParent(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a", "b", "c.log")

	require.NoError(t, EnsureParent(file))
	assert.True(t, DirExists(filepath.Dir(file)))
	assert.False(t, FileExists(file))

	require.NoError(t, os.WriteFile(file, nil, 0o644))
	assert.True(t, FileExists(file))
	assert.False(t, DirExists(file))
}

func TestDetectContentType(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	tests := []struct {
		key     string
		content []byte
		want    string
	}{
		{"/index.html", nil, "text/html; charset=utf-8"},
		{"/style.css", nil, "text/css; charset=utf-8"},
		{"/README.md", nil, "text/plain; charset=utf-8"},
		{"/config.yaml", nil, "text/plain; charset=utf-8"},
		{"/logo", png, "image/png"},
		{"/empty", nil, "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContentType(tt.key, tt.content))
		})
	}
}

func TestMultiLogHandler(t *testing.T) {
	var debug, info bytes.Buffer
	h := NewMultiLogHandler(
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)
	logger := slog.New(h).WithGroup("sync").With("run", 1)

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("planned", "batches", 2)
	logger.Info("committed", "batch", 0)

	assert.Contains(t, debug.String(), "sync.run=1")
	assert.Contains(t, debug.String(), "planned")
	assert.Contains(t, debug.String(), "committed")
	assert.NotContains(t, info.String(), "planned")
	assert.Contains(t, info.String(), "sync.batch=0")
}

func TestLogInterceptor(t *testing.T) {
	var out bytes.Buffer
	li := NewLogInterceptor(&out)
	li.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	n, err := li.Write([]byte("first\r\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	_, err = li.Write([]byte("ond\ntail"))
	require.NoError(t, err)
	require.NoError(t, li.Close())

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"line=1 time=2026-01-02T03:04:05Z first",
		"line=2 time=2026-01-02T03:04:05Z second",
		"line=3 time=2026-01-02T03:04:05Z tail",
	}, lines)
}
