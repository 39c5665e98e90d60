package ostree

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openimage/osbuildctl/kernel/model"
	"github.com/openimage/osbuildctl/kernel/store"
)

// RemoteName is the synthetic remote the rebase workflow points at the
// locally served repository.
const RemoteName = "osbuild"

// Update targets, in their default order.
const (
	TargetSetup   = "setup"
	TargetPrepare = "prepare"
	TargetFinish  = "finish"
)

// RefResolver locates engine outputs on disk (kernel/refstore).
type RefResolver interface {
	ResolveRef(id model.ContentID) (string, error)
}

// Rebase rewires the manifest templates and the serving repository so the
// next build chains directly onto the last one and a running deployment can
// pull the result.
type Rebase struct {
	cfg    model.Config
	cli    CLI
	states store.StateStore
	refs   RefResolver
}

func NewRebase(cfg model.Config, cli CLI, states store.StateStore, refs RefResolver) *Rebase {
	return &Rebase{cfg: cfg, cli: cli, states: states, refs: refs}
}

// Run executes the requested update targets in order.
func (r *Rebase) Run(ctx context.Context, targets []string) error {
	for _, target := range targets {
		var err error
		switch target {
		case TargetSetup:
			err = r.Setup(ctx)
		case TargetPrepare:
			err = r.Prepare(ctx)
		case TargetFinish:
			err = r.Finish(ctx)
		default:
			err = errors.Wrapf(model.ErrConfiguration, "unknown update target %q", target)
		}
		if err != nil {
			return errors.Wrapf(err, "target %q", target)
		}
	}
	return nil
}

// Setup namespaces the image template's tree-commit ref under the osbuild
// remote and points that remote at the locally served repository. Running
// it again replaces the remote entry, never duplicates it. The serving
// repository is initialized here so later pulls have a target.
func (r *Rebase) Setup(ctx context.Context) error {
	m, err := loadManifestFile(r.cfg.ImageTemplate())
	if err != nil {
		return err
	}

	stage := m.Pipeline.FindStage(model.StageOSTreePull)
	if stage == nil {
		return errors.Wrap(model.ErrConfiguration, "image template has no tree-commit stage")
	}
	decoded, _, err := stage.DecodeOptions()
	if err != nil {
		return err
	}
	opts := decoded.(*model.OSTreePullOptions)

	oldRemote, bare := model.ParseRef(opts.Ref)
	if oldRemote != "" && oldRemote != RemoteName {
		opts.RemoveRemote(oldRemote)
	}
	opts.Ref = model.JoinRef(RemoteName, bare)
	opts.SetRemote(model.RemoteSpec{Name: RemoteName, URL: r.cfg.ServeURL})

	if err := stage.SetOptions(opts); err != nil {
		return err
	}
	if err := saveManifestFile(r.cfg.ImageTemplate(), m); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.cfg.ServeRepo), 0755); err != nil {
		return errors.Wrap(err, "creating serve directory")
	}
	if _, err := os.Stat(filepath.Join(r.cfg.ServeRepo, "config")); os.IsNotExist(err) {
		if err := r.cli.Init(ctx, r.cfg.ServeRepo); err != nil {
			return err
		}
	}

	logrus.Infof("image template rebased onto remote %q at %s", RemoteName, r.cfg.ServeURL)
	return nil
}

// Prepare copies the just-built commit into the serving repository and
// stamps the commit template's assembler with the built commit as parent,
// so the next commit is composed as its direct successor.
func (r *Rebase) Prepare(ctx context.Context) error {
	repo, ref, commitID, err := r.builtCommit(ctx)
	if err != nil {
		return err
	}
	if err := r.cli.PullLocal(ctx, repo, ref, r.cfg.ServeRepo); err != nil {
		return err
	}

	m, err := loadManifestFile(r.cfg.CommitTemplate())
	if err != nil {
		return err
	}
	if m.Pipeline.Assembler == nil || m.Pipeline.Assembler.Name != model.AssemblerOSTreeCommit {
		return errors.Wrap(model.ErrConfiguration, "commit template has no tree-commit assembler")
	}
	decoded, _, err := m.Pipeline.Assembler.DecodeOptions()
	if err != nil {
		return err
	}
	opts := decoded.(*model.OSTreeCommitOptions)
	opts.Parent = commitID.String()
	if err := m.Pipeline.Assembler.SetOptions(opts); err != nil {
		return err
	}
	if err := saveManifestFile(r.cfg.CommitTemplate(), m); err != nil {
		return err
	}

	logrus.Infof("next commit will chain onto parent %s", commitID)
	return nil
}

// Finish copies the commit into the serving repository and refreshes its
// summary so pull clients discover the new head.
func (r *Rebase) Finish(ctx context.Context) error {
	repo, ref, _, err := r.builtCommit(ctx)
	if err != nil {
		return err
	}
	if err := r.cli.PullLocal(ctx, repo, ref, r.cfg.ServeRepo); err != nil {
		return err
	}
	return r.cli.UpdateSummary(ctx, r.cfg.ServeRepo)
}

// builtCommit locates the last built commit's repository and its single
// ref. Anything other than exactly one ref is ambiguous and rejected.
func (r *Rebase) builtCommit(ctx context.Context) (repo, ref string, commitID model.ContentID, err error) {
	state := r.states.Load()
	ostree, ok := state.Result(model.StateOSTree)
	if !ok || ostree.CommitID == "" {
		return "", "", "", errors.Wrap(model.ErrConfiguration, "no commit built yet, run the build workflow first")
	}

	dir, err := r.refs.ResolveRef(ostree.OutputID)
	if err != nil {
		return "", "", "", err
	}
	repo = filepath.Join(dir, "repo")

	refs, err := r.cli.Refs(ctx, repo)
	if err != nil {
		return "", "", "", err
	}
	if len(refs) != 1 {
		return "", "", "", errors.Errorf("expected exactly one ref in %s, found %d", repo, len(refs))
	}
	return repo, refs[0], ostree.CommitID, nil
}

func loadManifestFile(path string) (*model.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(model.ErrConfiguration, "reading template %s: %v", path, err)
	}
	return model.UnmarshalManifest(data)
}

func saveManifestFile(path string, m *model.Manifest) error {
	data, err := m.MarshalPretty()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing template %s", path)
	}
	return nil
}
