// Package compose turns manifest templates plus upstream identifiers into
// the concrete manifests handed to the execution engine. Templates are
// cloned before any rewrite, and every rewrite is an overwrite, so the same
// inputs always compose to the same bytes.
package compose

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openimage/osbuildctl/kernel/model"
)

// PackageResolver supplies depsolved package sets (kernel/resolve).
type PackageResolver interface {
	Resolve(ctx context.Context, spec model.RepoSpec) (*model.DependencySet, error)
}

// RefResolver locates materialized artifacts (kernel/refstore).
type RefResolver interface {
	ResolveRef(id model.ContentID) (string, error)
}

// BuildRoot is a composed build-root sub-pipeline together with the package
// sources it needs from the top-level manifest.
type BuildRoot struct {
	Build   *model.Build
	Sources model.Sources
}

type Composer struct {
	cfg      model.Config
	resolver PackageResolver
	refs     RefResolver
}

func NewComposer(cfg model.Config, resolver PackageResolver, refs RefResolver) *Composer {
	return &Composer{cfg: cfg, resolver: resolver, refs: refs}
}

// runner returns the engine runner identity for the configured release.
func (c *Composer) runner() string {
	return fmt.Sprintf("org.osbuild.fedora%s", c.cfg.Release)
}

// ComposeBuildRoot resolves the build-root repo spec into a single-stage
// pipeline that installs exactly the resolved package set. This is the root
// of the composition chain: it needs no upstream state.
func (c *Composer) ComposeBuildRoot(ctx context.Context, spec model.RepoSpec) (*BuildRoot, error) {
	deps, err := c.resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}

	stage := &model.Stage{Name: model.StageRPM}
	if err := stage.SetOptions(&model.RPMOptions{
		GPGKeys:  deps.GPGKeys,
		Packages: deps.Checksums(),
	}); err != nil {
		return nil, err
	}

	return &BuildRoot{
		Build: &model.Build{
			Pipeline: model.Pipeline{Stages: []*model.Stage{stage}},
			Runner:   c.runner(),
		},
		Sources: model.Sources{
			model.SourceFiles: model.Options{"urls": deps.URLs()},
		},
	}, nil
}

// ComposeCommit builds the concrete tree-commit manifest: the template with
// the build root grafted in, the main tree's package set injected, and any
// tree-spec overrides applied. Overrides targeting a stage the template
// does not carry are no-ops.
func (c *Composer) ComposeCommit(ctx context.Context, template *model.Manifest, br *BuildRoot, tree *model.TreeSpec) (*model.Manifest, error) {
	m, err := template.Clone()
	if err != nil {
		return nil, err
	}
	if err := graftBuildRoot(m, br); err != nil {
		return nil, err
	}

	var spec model.RepoSpec
	if tree != nil {
		spec = tree.Packages
	}
	deps, err := c.resolver.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}
	if err := UpdatePackages(m, deps); err != nil {
		return nil, err
	}

	if m.Pipeline.Assembler == nil || m.Pipeline.Assembler.Name != model.AssemblerOSTreeCommit {
		return nil, errors.Wrap(model.ErrConfiguration, "commit template has no tree-commit assembler")
	}

	if tree != nil {
		if err := applyTreeSpec(m, tree); err != nil {
			return nil, err
		}
	}

	logrus.Infof("composed commit manifest: %d package(s), %d stage(s)",
		len(deps.Dependencies), len(m.Pipeline.Stages))
	return m, nil
}

// ComposeImage builds the concrete image manifest from the image template:
// the build root grafted in, every commit reference rewritten to the given
// commit id, and an ostree source injected that points the engine at the
// commit stage's on-disk repository, with the commit's signature metadata
// carried along so the fetch is verified like a remote pull.
func (c *Composer) ComposeImage(template *model.Manifest, br *BuildRoot, commitID, outputID model.ContentID, gpg model.SignatureMetadata) (*model.Manifest, error) {
	m, err := template.Clone()
	if err != nil {
		return nil, err
	}
	if err := graftBuildRoot(m, br); err != nil {
		return nil, err
	}

	if m.Pipeline.Assembler == nil {
		return nil, errors.Wrap(model.ErrConfiguration, "image template has no assembler")
	}

	if err := rewriteCommitRefs(m, commitID); err != nil {
		return nil, err
	}

	repoPath, err := c.refs.ResolveRef(outputID)
	if err != nil {
		return nil, err
	}
	source, err := model.ToOptions(&model.OSTreeSource{
		Commits: map[string]model.OSTreeSourceCommit{
			commitID.String(): {
				Remote: model.OSTreeSourceRemote{
					URL: "file://" + repoPath + "/repo",
					GPG: gpg,
				},
			},
		},
	})
	if err != nil {
		return nil, err
	}
	if m.Sources == nil {
		m.Sources = model.Sources{}
	}
	m.Sources[model.SourceOSTree] = source

	logrus.Infof("composed image manifest for commit %s", commitID)
	return m, nil
}

// ImageFilename extracts the output image name from the manifest's
// assembler options.
func ImageFilename(m *model.Manifest) (string, error) {
	if m.Pipeline.Assembler == nil {
		return "", errors.Wrap(model.ErrConfiguration, "manifest has no assembler")
	}
	opts, known, err := m.Pipeline.Assembler.DecodeOptions()
	if err != nil {
		return "", err
	}
	if qemu, ok := opts.(*model.QEMUOptions); known && ok {
		return qemu.Filename, nil
	}
	return "", errors.Wrapf(model.ErrConfiguration, "assembler %s carries no image filename", m.Pipeline.Assembler.Name)
}

// UpdatePackages overwrites the manifest's package-install stage and files
// source with the given dependency set. Applying the same set twice leaves
// the manifest unchanged.
func UpdatePackages(m *model.Manifest, deps *model.DependencySet) error {
	stage := m.Pipeline.FindStage(model.StageRPM)
	if stage == nil {
		return errors.Wrap(model.ErrConfiguration, "template has no package-install stage")
	}
	if err := stage.SetOptions(&model.RPMOptions{
		GPGKeys:  deps.GPGKeys,
		Packages: deps.Checksums(),
	}); err != nil {
		return err
	}

	if m.Sources == nil {
		m.Sources = model.Sources{}
	}
	m.Sources[model.SourceFiles] = model.Options{"urls": deps.URLs()}
	return nil
}

// graftBuildRoot installs the build-root sub-pipeline, runner identity
// included, and merges its package sources into the manifest. The build
// root is deep-copied so one composition cannot corrupt the next.
func graftBuildRoot(m *model.Manifest, br *BuildRoot) error {
	build, err := br.Build.Clone()
	if err != nil {
		return err
	}
	m.Pipeline.Build = build
	if m.Sources == nil {
		m.Sources = model.Sources{}
	}
	for name, opts := range br.Sources {
		copied, err := opts.Clone()
		if err != nil {
			return err
		}
		m.Sources[name] = copied
	}
	return nil
}

// applyTreeSpec applies the optional per-tree overrides. Each one requires
// both the spec field and the target stage to be present.
func applyTreeSpec(m *model.Manifest, tree *model.TreeSpec) error {
	if tree.Ref != "" {
		decoded, _, err := m.Pipeline.Assembler.DecodeOptions()
		if err != nil {
			return err
		}
		opts := decoded.(*model.OSTreeCommitOptions)
		opts.Ref = tree.Ref
		if err := m.Pipeline.Assembler.SetOptions(opts); err != nil {
			return err
		}
	}

	if len(tree.EnabledServices) > 0 || tree.DefaultTarget != "" {
		if stage := m.Pipeline.FindStage(model.StageSystemd); stage != nil {
			decoded, _, err := stage.DecodeOptions()
			if err != nil {
				return err
			}
			opts := decoded.(*model.SystemdOptions)
			if len(tree.EnabledServices) > 0 {
				opts.EnabledServices = tree.EnabledServices
			}
			if tree.DefaultTarget != "" {
				opts.DefaultTarget = tree.DefaultTarget
			}
			if err := stage.SetOptions(opts); err != nil {
				return err
			}
		}
	}

	if len(tree.EtcGroupMembers) > 0 {
		if stage := m.Pipeline.FindStage(model.StageRPMOSTree); stage != nil {
			decoded, _, err := stage.DecodeOptions()
			if err != nil {
				return err
			}
			opts := decoded.(*model.RPMOSTreeOptions)
			opts.EtcGroupMembers = tree.EtcGroupMembers
			if err := stage.SetOptions(opts); err != nil {
				return err
			}
		}
	}

	return nil
}

// rewriteCommitRefs points every stage option named "commit" at the
// concrete commit id, including the nested ostree block of a
// selinux-labeling stage.
func rewriteCommitRefs(m *model.Manifest, commitID model.ContentID) error {
	stages := append([]*model.Stage{}, m.Pipeline.Stages...)
	stages = append(stages, m.Pipeline.Assembler)

	for _, stage := range stages {
		if stage == nil {
			continue
		}
		if stage.Name == model.StageSELinux {
			decoded, _, err := stage.DecodeOptions()
			if err != nil {
				return err
			}
			opts := decoded.(*model.SELinuxOptions)
			if opts.OSTree != nil {
				opts.OSTree.Commit = commitID.String()
				if err := stage.SetOptions(opts); err != nil {
					return err
				}
			}
			continue
		}
		if stage.Options == nil {
			continue
		}
		if _, ok := stage.Options["commit"]; ok {
			stage.Options["commit"] = commitID.String()
		}
	}
	return nil
}
