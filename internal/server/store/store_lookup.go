package store

import (
	"context"
	"errors"
	"strings"

	"github.com/openmined/assetsync/internal/assets"
)

// Resolve finds the asset served under a request path. Exact keys win;
// aliased assets also answer for "/about" (as /about.html or /about/index.html)
// and "/docs/" (as /docs/index.html).
func (s *AssetStore) Resolve(ctx context.Context, path string) (*Asset, error) {
	if path == "" {
		path = "/"
	}

	if !strings.HasSuffix(path, "/") {
		a, err := s.index.Get(ctx, path)
		if !errors.Is(err, assets.ErrAssetNotFound) {
			return a, err
		}
	}

	for _, candidate := range aliasCandidates(path) {
		a, err := s.index.Get(ctx, candidate)
		if errors.Is(err, assets.ErrAssetNotFound) {
			continue
		} else if err != nil {
			return nil, err
		}
		if a.Aliased() {
			return a, nil
		}
	}
	return nil, assets.ErrAssetNotFound
}

func aliasCandidates(path string) []string {
	if strings.HasSuffix(path, "/") {
		return []string{path + "index.html"}
	}
	if strings.HasSuffix(path, ".html") {
		return nil
	}
	return []string{path + ".html", path + "/index.html"}
}
