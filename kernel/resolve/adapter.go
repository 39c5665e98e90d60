package resolve

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/openimage/osbuildctl/kernel/model"
)

// Adapter resolves repo specs against a fixed repo catalog.
type Adapter struct {
	cfg    model.Config
	repos  map[string]model.RepoConfig
	order  []string
	solver Depsolver
	client *http.Client
}

func NewAdapter(cfg model.Config, repos []model.RepoConfig, solver Depsolver) *Adapter {
	byID := make(map[string]model.RepoConfig, len(repos))
	order := make([]string, 0, len(repos))
	for _, r := range repos {
		byID[r.ID] = r
		order = append(order, r.ID)
	}
	return &Adapter{
		cfg:    cfg,
		repos:  byID,
		order:  order,
		solver: solver,
		client: http.DefaultClient,
	}
}

// Resolve depsolves the spec into a DependencySet. The result's dependency
// order is the solver's transaction order filtered to forward actions, and
// is stable for identical repo state; the composer relies on that for
// byte-identical manifests.
func (a *Adapter) Resolve(ctx context.Context, spec model.RepoSpec) (*model.DependencySet, error) {
	selected := make([]model.RepoConfig, 0, len(spec.Repos))
	for _, id := range spec.Repos {
		repo, ok := a.repos[id]
		if !ok {
			return nil, errors.Wrapf(model.ErrConfiguration, "unknown repo id %q", id)
		}
		selected = append(selected, repo)
	}

	// An unverifiable package set must never reach a commit, so key
	// fetching happens before solving and any failure is fatal.
	keys, err := a.fetchKeys(ctx, selected)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(a.cfg.BuildDir, 0755); err != nil {
		return nil, errors.Wrap(err, "creating build directory")
	}
	cacheDir, err := os.MkdirTemp(a.cfg.BuildDir, "dnf-cache-")
	if err != nil {
		return nil, errors.Wrap(err, "creating resolver cache dir")
	}
	defer os.RemoveAll(cacheDir)

	persistDir, err := os.MkdirTemp(a.cfg.BuildDir, "dnf-persist-")
	if err != nil {
		return nil, errors.Wrap(err, "creating resolver persist dir")
	}
	defer os.RemoveAll(persistDir)

	transaction, err := a.solver.Depsolve(ctx, Request{
		Arch:       a.cfg.Arch,
		Release:    a.cfg.Release,
		CacheDir:   cacheDir,
		PersistDir: persistDir,
		Repos:      selected,
		Include:    spec.Include,
		Exclude:    spec.Exclude,
	})
	if err != nil {
		return nil, err
	}

	deps := forwardActions(transaction)
	logrus.Infof("resolved %d package(s) from %d repo(s)", len(deps), len(selected))

	return &model.DependencySet{
		Dependencies: deps,
		GPGKeys:      keys,
	}, nil
}

// forwardActions keeps installs and upgrades in transaction order.
// Removals and any helper bookkeeping the solver emits carry no ordering
// guarantee and never appear in a manifest.
func forwardActions(t *Transaction) []model.PackageRef {
	deps := make([]model.PackageRef, 0, len(t.Packages))
	for _, entry := range t.Packages {
		switch entry.Action {
		case "install", "upgrade":
			deps = append(deps, entry.Package)
		}
	}
	return deps
}

// fetchKeys collects every selected repo's signing keys. Fetches run in
// parallel but the returned order is repo declaration order, then each
// repo's key-URL order.
func (a *Adapter) fetchKeys(ctx context.Context, repos []model.RepoConfig) ([]string, error) {
	type slot struct {
		repo int
		key  int
	}
	slots := make(map[slot]*string)
	grp, ctx := errgroup.WithContext(ctx)

	for i, repo := range repos {
		for j, url := range repo.GPGKeys {
			key := new(string)
			slots[slot{i, j}] = key
			repoID, url := repo.ID, url
			grp.Go(func() error {
				armored, err := a.fetchKey(ctx, url)
				if err != nil {
					return errors.Wrapf(model.ErrResolution, "fetching gpg key for repo %q: %v", repoID, err)
				}
				*key = armored
				return nil
			})
		}
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(slots))
	for i, repo := range repos {
		for j := range repo.GPGKeys {
			keys = append(keys, *slots[slot{i, j}])
		}
	}
	return keys, nil
}

func (a *Adapter) fetchKey(ctx context.Context, url string) (string, error) {
	if strings.HasPrefix(url, "file://") {
		data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("unexpected status %s for %s", resp.Status, url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
