package engine

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openimage/osbuildctl/kernel/compose"
	"github.com/openimage/osbuildctl/kernel/model"
	"github.com/openimage/osbuildctl/kernel/sign"
	"github.com/openimage/osbuildctl/kernel/store"
)

// Build targets, in their default order.
const (
	TargetCommit = "commit"
	TargetSign   = "sign"
	TargetImage  = "image"
)

// DefaultTargets is the full build sequence.
var DefaultTargets = []string{TargetCommit, TargetSign, TargetImage}

// Composer is the manifest composition surface the orchestrator drives
// (kernel/compose).
type Composer interface {
	ComposeBuildRoot(ctx context.Context, spec model.RepoSpec) (*compose.BuildRoot, error)
	ComposeCommit(ctx context.Context, template *model.Manifest, br *compose.BuildRoot, tree *model.TreeSpec) (*model.Manifest, error)
	ComposeImage(template *model.Manifest, br *compose.BuildRoot, commitID, outputID model.ContentID, gpg model.SignatureMetadata) (*model.Manifest, error)
}

// RefResolver locates engine outputs on disk (kernel/refstore).
type RefResolver interface {
	ResolveRef(id model.ContentID) (string, error)
}

// BuildRequest is everything one build invocation needs.
type BuildRequest struct {
	CommitTemplate *model.Manifest
	ImageTemplate  *model.Manifest
	BuildRoot      model.RepoSpec
	Tree           *model.TreeSpec
	Interactive    bool
}

// Orchestrator sequences build targets. Each completed target merges its
// result into the persisted state before the next one starts, so a rerun
// with a narrower target list resumes where the last run got to.
type Orchestrator struct {
	cfg       model.Config
	composer  Composer
	runner    Runner
	signer    sign.Signer
	states    store.StateStore
	manifests store.ManifestStore
	refs      RefResolver
}

func NewOrchestrator(cfg model.Config, composer Composer, runner Runner, signer sign.Signer, states store.StateStore, manifests store.ManifestStore, refs RefResolver) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		composer:  composer,
		runner:    runner,
		signer:    signer,
		states:    states,
		manifests: manifests,
		refs:      refs,
	}
}

// Run executes the requested targets in order, stopping at the first
// failure. State persisted by completed targets survives the failure of a
// later one.
func (o *Orchestrator) Run(ctx context.Context, req BuildRequest, targets []string) error {
	for _, target := range targets {
		logrus.Infof("starting target %q", target)
		var err error
		switch target {
		case TargetCommit:
			err = o.runCommit(ctx, req)
		case TargetSign:
			err = o.runSign(ctx)
		case TargetImage:
			err = o.runImage(ctx, req)
		default:
			err = errors.Wrapf(model.ErrConfiguration, "unknown target %q", target)
		}
		if err != nil {
			return errors.Wrapf(err, "target %q", target)
		}
		logrus.Infof("target %q done", target)
	}
	return nil
}

func (o *Orchestrator) runCommit(ctx context.Context, req BuildRequest) error {
	br, err := o.composer.ComposeBuildRoot(ctx, req.BuildRoot)
	if err != nil {
		return err
	}
	m, err := o.composer.ComposeCommit(ctx, req.CommitTemplate, br, req.Tree)
	if err != nil {
		return err
	}
	if err := o.manifests.SaveManifest(model.StateOSTree, m); err != nil {
		return err
	}

	result, err := o.run(ctx, m, req.Interactive)
	if err != nil {
		return err
	}

	commitID, err := o.readCommitID(result.OutputID)
	if err != nil {
		return err
	}

	// Replace, never merge: a signature recorded for a previous commit
	// must not carry over to this one.
	state := o.states.Load()
	state.Set(model.StateOSTree, model.StageResult{
		OutputID: result.OutputID,
		CommitID: commitID,
	})
	return o.states.Save(state)
}

func (o *Orchestrator) runSign(ctx context.Context) error {
	state := o.states.Load()
	ostree, ok := state.Result(model.StateOSTree)
	if !ok || ostree.CommitID == "" {
		return errors.Wrap(model.ErrConfiguration, "no commit to sign, run the commit target first")
	}

	repoDir, err := o.refs.ResolveRef(ostree.OutputID)
	if err != nil {
		return err
	}
	meta, err := o.signer.Sign(ctx, sign.Request{
		BuildDir: o.cfg.BuildDir,
		Repo:     filepath.Join(repoDir, "repo"),
		OutputID: ostree.OutputID,
		CommitID: ostree.CommitID,
	})
	if err != nil {
		return err
	}

	state.Merge(model.StateOSTree, model.StageResult{GPG: meta})
	return o.states.Save(state)
}

func (o *Orchestrator) runImage(ctx context.Context, req BuildRequest) error {
	state := o.states.Load()
	ostree, ok := state.Result(model.StateOSTree)
	if !ok || ostree.CommitID == "" {
		return errors.Wrap(model.ErrConfiguration, "no commit to image, run the commit target first")
	}
	if ostree.GPG == nil {
		return errors.Wrap(model.ErrConfiguration, "commit is unsigned, run the sign target first")
	}

	// The image gets its own freshly composed build root, never a
	// leftover from the commit composition.
	br, err := o.composer.ComposeBuildRoot(ctx, req.BuildRoot)
	if err != nil {
		return err
	}
	m, err := o.composer.ComposeImage(req.ImageTemplate, br, ostree.CommitID, ostree.OutputID, ostree.GPG)
	if err != nil {
		return err
	}
	if err := o.manifests.SaveManifest(model.StateImage, m); err != nil {
		return err
	}

	imageName, err := compose.ImageFilename(m)
	if err != nil {
		return err
	}

	result, err := o.run(ctx, m, req.Interactive)
	if err != nil {
		return err
	}

	state = o.states.Load()
	state.Merge(model.StateImage, model.StageResult{
		OutputID:  result.OutputID,
		ImageName: imageName,
	})
	return o.states.Save(state)
}

// run invokes the engine and classifies its answer.
func (o *Orchestrator) run(ctx context.Context, m *model.Manifest, interactive bool) (*Result, error) {
	result, err := o.runner.Run(ctx, m, RunOptions{Interactive: interactive})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		if result.Error != "" {
			return nil, errors.Wrap(ErrBuildFailed, result.Error)
		}
		return nil, ErrBuildFailed
	}
	return result, nil
}

// readCommitID extracts the commit id from the metadata file the
// tree-commit assembler leaves next to the repo.
func (o *Orchestrator) readCommitID(outputID model.ContentID) (model.ContentID, error) {
	dir, err := o.refs.ResolveRef(outputID)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, "compose.json"))
	if err != nil {
		return "", errors.Wrap(err, "reading commit metadata")
	}
	meta := struct {
		Commit model.ContentID `json:"ostree-commit"`
	}{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", errors.Wrap(err, "parsing commit metadata")
	}
	if meta.Commit == "" {
		return "", errors.New("commit metadata carries no ostree-commit id")
	}
	return meta.Commit, nil
}
