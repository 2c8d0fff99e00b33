package workspace

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

var defaultIgnoreLines = []string{
	// hidden files, except the well-known directory
	".*",
	"!.well-known",
	// editors
	"*.swp",
	"*~",
	// general excludes
	"*.tmp",
	"node_modules/",
	// OS-specific
	"Thumbs.db",
	"desktop.ini",
}

// IgnoreList holds the default patterns plus those in the .assetsyncignore file of a workspace
type IgnoreList struct {
	fs      afero.Fs
	baseDir string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(fs afero.Fs, baseDir string) *IgnoreList {
	return &IgnoreList{
		fs:      fs,
		baseDir: baseDir,
		ignore:  gitignore.CompileIgnoreLines(defaultIgnoreLines...),
	}
}

func (l *IgnoreList) Load() error {
	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	lines := append([]string(nil), defaultIgnoreLines...)

	file, err := l.fs.Open(ignorePath)
	if errors.Is(err, fs.ErrNotExist) {
		l.ignore = gitignore.CompileIgnoreLines(lines...)
		return nil
	} else if err != nil {
		return fmt.Errorf("open %s: %w", IgnoreFileName, err)
	}
	defer file.Close()

	rules := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
		rules++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", IgnoreFileName, err)
	}

	slog.Debug("loaded ignore file", "path", ignorePath, "rules", rules)
	l.ignore = gitignore.CompileIgnoreLines(lines...)
	return nil
}

// ShouldIgnore matches a slash separated path relative to the base dir.
// Directories are passed with a trailing slash.
func (l *IgnoreList) ShouldIgnore(rel string) bool {
	return l.ignore.MatchesPath(rel)
}
