package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/openmined/assetsync/internal/assets"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Rules loads the property rules of the workspace. The rules file holds a
// list of rules; later rules override earlier ones. A missing file means no rules.
//
//	- match: "**/*.html"
//	  enable_aliasing: true
//	  cache:
//	    max_age: 300
//	- match: "/assets/**"
//	  headers:
//	    X-Frame-Options: DENY
func (w *Workspace) Rules() ([]assets.PropertyRule, error) {
	return LoadRules(w.fs, filepath.Join(w.Root, RulesFileName))
}

func LoadRules(fsys afero.Fs, path string) ([]assets.PropertyRule, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var rules []assets.PropertyRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return nil, fmt.Errorf("%s: rule %d: %w", path, i, err)
		}
	}
	return rules, nil
}
