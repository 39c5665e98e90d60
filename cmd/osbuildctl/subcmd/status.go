package subcmd

import (
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/openimage/osbuildctl/kernel/store"
)

func init() {
	RootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what the build directory's completed stages produced",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		state := store.NewFileStore(cfg.BuildDir).Load()

		names := make([]string, 0, len(state.Stages))
		for name := range state.Stages {
			names = append(names, name)
		}
		sort.Strings(names)

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Stage", "Output", "Commit", "Signed", "Image"})
		for _, name := range names {
			result := state.Stages[name]
			if result.OutputID == "" {
				t.AppendRow(table.Row{name, "-", "-", "-", "-"})
				continue
			}
			signed := "no"
			if result.GPG != nil {
				signed = "yes"
			}
			image := result.ImageName
			if image == "" {
				image = "-"
			}
			commit := result.CommitID.String()
			if commit == "" {
				commit = "-"
			}
			t.AppendRow(table.Row{name, result.OutputID, commit, signed, image})
		}
		t.Render()
		return nil
	},
}
