package compose

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openimage/osbuildctl/kernel/model"
)

type fakeResolver struct {
	deps *model.DependencySet
	err  error
}

func (f *fakeResolver) Resolve(context.Context, model.RepoSpec) (*model.DependencySet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.deps, nil
}

type fakeRefs struct {
	paths map[model.ContentID]string
}

func (f *fakeRefs) ResolveRef(id model.ContentID) (string, error) {
	path, ok := f.paths[id]
	if !ok {
		return "", model.ErrConfiguration
	}
	return path, nil
}

func testDeps() *model.DependencySet {
	return &model.DependencySet{
		Dependencies: []model.PackageRef{
			{Name: "kernel", Checksum: "sha256:aa", RemoteLocation: "https://example.com/kernel.rpm"},
			{Name: "glibc", Checksum: "sha256:bb", RemoteLocation: "https://example.com/glibc.rpm"},
		},
		GPGKeys: []string{"KEY1"},
	}
}

func testComposer(deps *model.DependencySet) *Composer {
	cfg := model.DefaultConfig("/tmp/osbuildctl-test")
	return NewComposer(cfg, &fakeResolver{deps: deps}, &fakeRefs{
		paths: map[model.ContentID]string{"O1": "/store/objects/O1"},
	})
}

func commitTemplate() *model.Manifest {
	return &model.Manifest{
		Pipeline: model.Pipeline{
			Stages: []*model.Stage{
				{Name: model.StageRPM, Options: model.Options{}},
				{Name: model.StageSystemd, Options: model.Options{}},
				{Name: model.StageRPMOSTree, Options: model.Options{}},
			},
			Assembler: &model.Stage{
				Name:    model.AssemblerOSTreeCommit,
				Options: model.Options{"ref": "os/base"},
			},
		},
	}
}

func imageTemplate() *model.Manifest {
	return &model.Manifest{
		Pipeline: model.Pipeline{
			Stages: []*model.Stage{
				{Name: model.StageOSTreePull, Options: model.Options{"commit": "@commit@"}},
				{Name: model.StageSELinux, Options: model.Options{
					"file_contexts": "etc/selinux/targeted/contexts/files/file_contexts",
					"ostree":        map[string]interface{}{"commit": "@commit@"},
				}},
			},
			Assembler: &model.Stage{
				Name:    model.AssemblerQEMU,
				Options: model.Options{"format": "qcow2", "filename": "disk.qcow2"},
			},
		},
	}
}

func TestComposeBuildRoot(t *testing.T) {
	c := testComposer(testDeps())

	br, err := c.ComposeBuildRoot(context.Background(), model.RepoSpec{})
	require.NoError(t, err)
	require.Len(t, br.Build.Pipeline.Stages, 1)
	require.Nil(t, br.Build.Pipeline.Assembler, "build-root pipeline must not assemble")
	require.NotEmpty(t, br.Build.Runner)

	decoded, known, err := br.Build.Pipeline.Stages[0].DecodeOptions()
	require.NoError(t, err)
	require.True(t, known)
	rpm := decoded.(*model.RPMOptions)
	require.Equal(t, []string{"sha256:aa", "sha256:bb"}, rpm.Packages)
	require.Equal(t, []string{"KEY1"}, rpm.GPGKeys)

	urls := br.Sources[model.SourceFiles]["urls"].(map[string]string)
	require.Contains(t, urls, "sha256:aa")
	require.Contains(t, urls, "sha256:bb")
}

func TestComposeCommit_Idempotent(t *testing.T) {
	c := testComposer(testDeps())
	ctx := context.Background()

	br, err := c.ComposeBuildRoot(ctx, model.RepoSpec{})
	require.NoError(t, err)

	template := commitTemplate()
	first, err := c.ComposeCommit(ctx, template, br, nil)
	require.NoError(t, err)
	second, err := c.ComposeCommit(ctx, template, br, nil)
	require.NoError(t, err)

	firstBytes, err := first.MarshalPretty()
	require.NoError(t, err)
	secondBytes, err := second.MarshalPretty()
	require.NoError(t, err)
	require.Equal(t, string(firstBytes), string(secondBytes))
}

func TestComposeCommit_DoesNotMutateTemplate(t *testing.T) {
	c := testComposer(testDeps())
	ctx := context.Background()

	br, err := c.ComposeBuildRoot(ctx, model.RepoSpec{})
	require.NoError(t, err)

	template := commitTemplate()
	before, err := template.MarshalPretty()
	require.NoError(t, err)

	_, err = c.ComposeCommit(ctx, template, br, &model.TreeSpec{Ref: "os/custom"})
	require.NoError(t, err)

	after, err := template.MarshalPretty()
	require.NoError(t, err)
	require.Equal(t, string(before), string(after))
}

func TestComposeCommit_TreeSpecOverrides(t *testing.T) {
	c := testComposer(testDeps())
	ctx := context.Background()

	br, err := c.ComposeBuildRoot(ctx, model.RepoSpec{})
	require.NoError(t, err)

	m, err := c.ComposeCommit(ctx, commitTemplate(), br, &model.TreeSpec{
		Ref:             "os/custom",
		EnabledServices: []string{"sshd.service"},
		DefaultTarget:   "multi-user.target",
		EtcGroupMembers: []string{"wheel"},
	})
	require.NoError(t, err)

	decoded, _, err := m.Pipeline.Assembler.DecodeOptions()
	require.NoError(t, err)
	require.Equal(t, "os/custom", decoded.(*model.OSTreeCommitOptions).Ref)

	decoded, _, err = m.Pipeline.FindStage(model.StageSystemd).DecodeOptions()
	require.NoError(t, err)
	systemd := decoded.(*model.SystemdOptions)
	require.Equal(t, []string{"sshd.service"}, systemd.EnabledServices)
	require.Equal(t, "multi-user.target", systemd.DefaultTarget)

	decoded, _, err = m.Pipeline.FindStage(model.StageRPMOSTree).DecodeOptions()
	require.NoError(t, err)
	require.Equal(t, []string{"wheel"}, decoded.(*model.RPMOSTreeOptions).EtcGroupMembers)
}

func TestComposeCommit_OverridesSkipAbsentStages(t *testing.T) {
	c := testComposer(testDeps())
	ctx := context.Background()

	br, err := c.ComposeBuildRoot(ctx, model.RepoSpec{})
	require.NoError(t, err)

	template := commitTemplate()
	template.Pipeline.Stages = template.Pipeline.Stages[:1] // rpm only

	m, err := c.ComposeCommit(ctx, template, br, &model.TreeSpec{
		EnabledServices: []string{"sshd.service"},
		EtcGroupMembers: []string{"wheel"},
	})
	require.NoError(t, err)
	require.Nil(t, m.Pipeline.FindStage(model.StageSystemd))
}

func TestComposeCommit_MissingInstallStage(t *testing.T) {
	c := testComposer(testDeps())
	ctx := context.Background()

	br, err := c.ComposeBuildRoot(ctx, model.RepoSpec{})
	require.NoError(t, err)

	template := commitTemplate()
	template.Pipeline.Stages = nil

	_, err = c.ComposeCommit(ctx, template, br, nil)
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestComposeCommit_MissingAssembler(t *testing.T) {
	c := testComposer(testDeps())
	ctx := context.Background()

	br, err := c.ComposeBuildRoot(ctx, model.RepoSpec{})
	require.NoError(t, err)

	template := commitTemplate()
	template.Pipeline.Assembler = nil

	_, err = c.ComposeCommit(ctx, template, br, nil)
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestUpdatePackages_ChecksumOrderAndSources(t *testing.T) {
	m := commitTemplate()
	deps := testDeps()

	require.NoError(t, UpdatePackages(m, deps))

	decoded, _, err := m.Pipeline.FindStage(model.StageRPM).DecodeOptions()
	require.NoError(t, err)
	require.Equal(t, []string{"sha256:aa", "sha256:bb"}, decoded.(*model.RPMOptions).Packages)

	urls := m.Sources[model.SourceFiles]["urls"].(map[string]string)
	require.Len(t, urls, 2)
}

func TestUpdatePackages_OverwriteNotAppend(t *testing.T) {
	m := commitTemplate()
	deps := testDeps()

	require.NoError(t, UpdatePackages(m, deps))
	first, err := m.MarshalPretty()
	require.NoError(t, err)

	require.NoError(t, UpdatePackages(m, deps))
	second, err := m.MarshalPretty()
	require.NoError(t, err)
	require.Equal(t, string(first), string(second))

	decoded, _, err := m.Pipeline.FindStage(model.StageRPM).DecodeOptions()
	require.NoError(t, err)
	require.Len(t, decoded.(*model.RPMOptions).Packages, 2)
}

func TestComposeImage(t *testing.T) {
	c := testComposer(testDeps())
	ctx := context.Background()

	br, err := c.ComposeBuildRoot(ctx, model.RepoSpec{})
	require.NoError(t, err)

	gpg := model.SignatureMetadata{"keyid": "ABCD"}
	m, err := c.ComposeImage(imageTemplate(), br, "C1", "O1", gpg)
	require.NoError(t, err)

	require.Equal(t, "C1", m.Pipeline.FindStage(model.StageOSTreePull).Options["commit"])

	decoded, _, err := m.Pipeline.FindStage(model.StageSELinux).DecodeOptions()
	require.NoError(t, err)
	require.Equal(t, "C1", decoded.(*model.SELinuxOptions).OSTree.Commit)

	var source model.OSTreeSource
	require.NoError(t, m.Sources[model.SourceOSTree].Decode(&source))
	commit, ok := source.Commits["C1"]
	require.True(t, ok, "source must be keyed by the commit id")
	require.Equal(t, "file:///store/objects/O1/repo", commit.Remote.URL)
	require.Equal(t, "ABCD", commit.Remote.GPG["keyid"])

	require.NotNil(t, m.Pipeline.Build, "image pipeline gets its own build root")
}

func TestComposeImage_MissingAssembler(t *testing.T) {
	c := testComposer(testDeps())

	br, err := c.ComposeBuildRoot(context.Background(), model.RepoSpec{})
	require.NoError(t, err)

	template := imageTemplate()
	template.Pipeline.Assembler = nil

	_, err = c.ComposeImage(template, br, "C1", "O1", nil)
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestImageFilename(t *testing.T) {
	name, err := ImageFilename(imageTemplate())
	require.NoError(t, err)
	require.Equal(t, "disk.qcow2", name)
}
