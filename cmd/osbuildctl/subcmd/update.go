package subcmd

import (
	"github.com/spf13/cobra"

	"github.com/openimage/osbuildctl/kernel/ostree"
	"github.com/openimage/osbuildctl/kernel/refstore"
	"github.com/openimage/osbuildctl/kernel/store"
)

func init() {
	RootCmd.AddCommand(
		newUpdateCommand(ostree.TargetSetup, "Rebase the image template onto the locally served repository"),
		newUpdateCommand(ostree.TargetPrepare, "Publish the built commit and chain the next commit onto it"),
		newUpdateCommand(ostree.TargetFinish, "Publish the built commit and refresh the repository summary"),
	)
}

func newUpdateCommand(target, short string) *cobra.Command {
	return &cobra.Command{
		Use:   target,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rebase := ostree.NewRebase(
				cfg,
				ostree.NewExecCLI(),
				store.NewFileStore(cfg.BuildDir),
				refstore.New(cfg.StoreDir),
			)
			return rebase.Run(cmd.Context(), []string{target})
		},
	}
}
