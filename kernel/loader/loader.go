// Package loader reads the tool's YAML inputs: the top-level config, the
// repo catalog and the optional tree spec, plus JSON manifest templates.
package loader

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/openimage/osbuildctl/kernel/model"
)

// LoadConfig reads a config file and overlays it on the defaults rooted at
// the file's directory.
func LoadConfig(path string) (model.Config, error) {
	cfg := model.DefaultConfig(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Config{}, errors.Wrapf(model.ErrConfiguration, "reading config %s: %v", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.Config{}, errors.Wrapf(model.ErrConfiguration, "parsing config %s: %v", path, err)
	}
	return cfg, nil
}

// LoadRepos reads every repo definition in the repos directory, in file
// name order so the catalog order is stable.
func LoadRepos(dir string) ([]model.RepoConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(model.ErrConfiguration, "reading repos dir %s: %v", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	repos := make([]model.RepoConfig, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(model.ErrConfiguration, "reading repo %s: %v", path, err)
		}
		repo := model.RepoConfig{}
		if err := yaml.Unmarshal(data, &repo); err != nil {
			return nil, errors.Wrapf(model.ErrConfiguration, "parsing repo %s: %v", path, err)
		}
		if repo.ID == "" {
			repo.ID = strings.TrimSuffix(name, ".yaml")
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// LoadTreeSpec reads the per-tree customization. A missing file is fine;
// the commit composes from the bare template then.
func LoadTreeSpec(path string) (*model.TreeSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(model.ErrConfiguration, "reading tree spec %s: %v", path, err)
	}
	tree := &model.TreeSpec{}
	if err := yaml.Unmarshal(data, tree); err != nil {
		return nil, errors.Wrapf(model.ErrConfiguration, "parsing tree spec %s: %v", path, err)
	}
	return tree, nil
}

// LoadTemplate reads a JSON manifest template.
func LoadTemplate(path string) (*model.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(model.ErrConfiguration, "reading template %s: %v", path, err)
	}
	m, err := model.UnmarshalManifest(data)
	if err != nil {
		return nil, errors.Wrapf(model.ErrConfiguration, "template %s: %v", path, err)
	}
	return m, nil
}
