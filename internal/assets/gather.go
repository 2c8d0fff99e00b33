package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/openmined/assetsync/internal/utils"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

var (
	ErrKeyCollision = errors.New("asset key collision")
	ErrInvalidKey   = errors.New("invalid asset key")
	ErrNoEncodings  = errors.New("asset has no encodings")
)

// SourceFile is a resolved local file and the key it is published under.
type SourceFile struct {
	Key  string
	Path string
}

// Gatherer builds asset descriptors from local files. It never touches the network.
type Gatherer struct {
	fs          afero.Fs
	concurrency int
}

func NewGatherer(fs afero.Fs) *Gatherer {
	return &Gatherer{
		fs:          fs,
		concurrency: DefaultGatherConcurrency,
	}
}

func (g *Gatherer) SetConcurrency(n int) {
	if n > 0 {
		g.concurrency = n
	}
}

// Gather reads, hashes and encodes every file. The result is sorted by key.
func (g *Gatherer) Gather(ctx context.Context, files []SourceFile, rules []PropertyRule) ([]*AssetDescriptor, error) {
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, newError(StageGatherAssetDescriptors, "", fmt.Errorf("rule %d: %w", i, err))
		}
	}

	seen := make(map[string]string, len(files))
	for _, f := range files {
		if err := validateKey(f.Key); err != nil {
			return nil, newError(StageGatherAssetDescriptors, f.Key, err)
		}
		if prev, ok := seen[f.Key]; ok {
			return nil, newError(StageGatherAssetDescriptors, f.Key,
				fmt.Errorf("%w: %s and %s", ErrKeyCollision, prev, f.Path))
		}
		seen[f.Key] = f.Path
	}

	descriptors := make([]*AssetDescriptor, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, f := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			d, err := g.describe(f, rules)
			if err != nil {
				return newError(StageGatherAssetDescriptors, f.Key, err)
			}
			descriptors[i] = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		var stageErr *Error
		if errors.As(err, &stageErr) {
			return nil, stageErr
		}
		return nil, newError(StageGatherAssetDescriptors, "", err)
	}

	slices.SortFunc(descriptors, func(a, b *AssetDescriptor) int {
		return strings.Compare(a.Key, b.Key)
	})

	slog.Debug("gather", "assets", len(descriptors))
	return descriptors, nil
}

func (g *Gatherer) describe(f SourceFile, rules []PropertyRule) (*AssetDescriptor, error) {
	content, err := afero.ReadFile(g.fs, f.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}

	resolved := resolveRules(rules, f.Key)

	props := Properties{
		MaxAge:    resolved.maxAge,
		Headers:   resolved.headers,
		IsAliased: resolved.aliasing,
	}
	if resolved.contentType != nil {
		props.ContentType = *resolved.contentType
	} else {
		props.ContentType = utils.DetectContentType(f.Key, content)
	}

	names, pinned := resolved.encodings, true
	if len(names) == 0 {
		names, pinned = defaultEncodings(props.ContentType), false
	}

	encodings, err := buildEncodings(content, names, pinned)
	if err != nil {
		return nil, err
	}
	if len(encodings) == 0 {
		return nil, ErrNoEncodings
	}

	return &AssetDescriptor{
		Key:        f.Key,
		Encodings:  encodings,
		Properties: props.Clone(),
	}, nil
}

func validateKey(key string) error {
	if key == "" || !strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidKey, key)
	}
	if strings.Contains(key, "//") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
