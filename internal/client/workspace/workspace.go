package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/openmined/assetsync/internal/assets"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/spf13/afero"
)

const (
	RulesFileName  = ".assetsync.yaml"
	IgnoreFileName = ".assetsyncignore"
	metadataDir    = ".assetsync"
	lockFile       = "assetsync.lock"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
	ErrNotADirectory   = errors.New("workspace root is not a directory")
)

// Workspace is a local directory whose files are synced as assets.
// The key of a file is "/" followed by its slash separated path below Root.
type Workspace struct {
	Root        string
	MetadataDir string

	fs     afero.Fs
	ignore *IgnoreList
	flock  *flock.Flock
}

type Option func(*Workspace)

// WithFs reads files through fs instead of the os filesystem. Locking still uses the os.
func WithFs(fs afero.Fs) Option {
	return func(w *Workspace) {
		w.fs = fs
	}
}

func NewWorkspace(rootDir string, opts ...Option) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	w := &Workspace{
		Root:        root,
		MetadataDir: filepath.Join(root, metadataDir),
		fs:          afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(w)
	}

	info, err := w.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("workspace %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	w.flock = flock.New(filepath.Join(w.MetadataDir, lockFile))
	w.ignore = NewIgnoreList(w.fs, root)
	if err := w.ignore.Load(); err != nil {
		return nil, err
	}
	return w, nil
}

// Fs is the filesystem the workspace files are read from
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Lock makes sure only one process syncs this workspace at a time
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.MetadataDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.MetadataDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// not ours to remove
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}

// Files lists every regular file below Root that is not ignored, sorted by key
func (w *Workspace) Files() ([]assets.SourceFile, error) {
	var files []assets.SourceFile
	err := afero.Walk(w.fs, w.Root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == w.Root {
			return nil
		}

		rel, err := w.relPath(path)
		if err != nil {
			return err
		}

		if info.IsDir() {
			if w.ignore.ShouldIgnore(rel + "/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			slog.Debug("workspace skip", "path", rel, "mode", info.Mode())
			return nil
		}
		if w.ignore.ShouldIgnore(rel) {
			return nil
		}

		files = append(files, assets.SourceFile{Key: KeyOf(rel), Path: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return files, nil
}

// IsIgnored reports whether an absolute path inside the workspace is excluded from sync
func (w *Workspace) IsIgnored(path string) bool {
	rel, err := w.relPath(path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "../") {
		return true
	}
	return w.ignore.ShouldIgnore(rel)
}

func (w *Workspace) relPath(path string) (string, error) {
	rel, err := filepath.Rel(w.Root, path)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// KeyOf turns a slash separated path relative to the workspace root into an asset key
func KeyOf(rel string) string {
	return "/" + strings.TrimLeft(filepath.ToSlash(filepath.Clean(rel)), "/")
}
