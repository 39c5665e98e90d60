package subcmd

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/openimage/osbuildctl/kernel/compose"
	"github.com/openimage/osbuildctl/kernel/engine"
	"github.com/openimage/osbuildctl/kernel/loader"
	"github.com/openimage/osbuildctl/kernel/refstore"
	"github.com/openimage/osbuildctl/kernel/resolve"
	"github.com/openimage/osbuildctl/kernel/sign"
	"github.com/openimage/osbuildctl/kernel/store"
)

func init() {
	RootCmd.AddCommand(NewBuildCommand())
}

type BuildCommand struct {
	Commit bool
	Sign   bool
	Image  bool
}

func NewBuildCommand() *cobra.Command {
	buildCmd := &BuildCommand{}

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the build stages: commit, sign, image",
		Long: `Run the requested build stages in order. With no stage flags, all
stages run. Completed stages persist their identifiers under the build
directory, so a later invocation with fewer stages resumes from there.`,
		RunE: buildCmd.run,
	}

	cmd.Flags().BoolVar(&buildCmd.Commit, "commit", false, "build the ostree commit")
	cmd.Flags().BoolVar(&buildCmd.Sign, "sign", false, "sign the built commit")
	cmd.Flags().BoolVar(&buildCmd.Image, "image", false, "assemble the bootable image")

	return cmd
}

func (b *BuildCommand) targets() []string {
	if !b.Commit && !b.Sign && !b.Image {
		return engine.DefaultTargets
	}
	var targets []string
	if b.Commit {
		targets = append(targets, engine.TargetCommit)
	}
	if b.Sign {
		targets = append(targets, engine.TargetSign)
	}
	if b.Image {
		targets = append(targets, engine.TargetImage)
	}
	return targets
}

func (b *BuildCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	repos, err := loader.LoadRepos(cfg.ReposDir)
	if err != nil {
		return err
	}
	commitTemplate, err := loader.LoadTemplate(cfg.CommitTemplate())
	if err != nil {
		return err
	}
	imageTemplate, err := loader.LoadTemplate(cfg.ImageTemplate())
	if err != nil {
		return err
	}
	tree, err := loader.LoadTreeSpec(cfg.TreeSpecPath())
	if err != nil {
		return err
	}

	refs := refstore.New(cfg.StoreDir)
	states := store.NewFileStore(cfg.BuildDir)
	resolver := resolve.NewAdapter(cfg, repos, &resolve.ExecDepsolver{Helper: cfg.Depsolver})
	composer := compose.NewComposer(cfg, resolver, refs)
	runner := engine.NewOSBuildRunner(cfg)
	signer := &sign.ExecSigner{Helper: cfg.Signer}

	orch := engine.NewOrchestrator(cfg, composer, runner, signer, states, states, refs)

	return orch.Run(cmd.Context(), engine.BuildRequest{
		CommitTemplate: commitTemplate,
		ImageTemplate:  imageTemplate,
		BuildRoot:      cfg.BuildRoot,
		Tree:           tree,
		Interactive:    term.IsTerminal(int(os.Stderr.Fd())),
	}, b.targets())
}
