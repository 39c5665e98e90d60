package subcmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	RootCmd.AddCommand(NewCleanCommand())
}

type CleanCommand struct {
	All     bool
	DNF     bool
	Store   bool
	Objects bool
}

func NewCleanCommand() *cobra.Command {
	cleanCmd := &CleanCommand{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build artifacts (destructive, asks for confirmation)",
		RunE:  cleanCmd.run,
	}

	cmd.Flags().BoolVar(&cleanCmd.All, "all", false, "remove the build directory and the object store")
	cmd.Flags().BoolVar(&cleanCmd.DNF, "dnf", false, "remove resolver caches")
	cmd.Flags().BoolVar(&cleanCmd.Store, "store", false, "remove the whole object store")
	cmd.Flags().BoolVar(&cleanCmd.Objects, "objects", false, "remove store objects and refs, keeping the store directory")

	return cmd
}

// paths returns what the selected flags would remove.
func (c *CleanCommand) paths(build, storeDir string) []string {
	switch {
	case c.All:
		return []string{build, storeDir}
	case c.Store:
		return []string{storeDir}
	case c.Objects:
		return []string{filepath.Join(storeDir, "objects"), filepath.Join(storeDir, "refs")}
	case c.DNF:
		return globDirs(filepath.Join(build, "dnf-*"))
	}
	return nil
}

// confirmed accepts only a literal "Y". Destructive removal wants a
// deliberate answer, not a reflexive lowercase one.
func confirmed(answer string) bool {
	return strings.TrimSpace(answer) == "Y"
}

func globDirs(pattern string) []string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil
	}
	return matches
}

func (c *CleanCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	targets := c.paths(cfg.BuildDir, cfg.StoreDir)
	if len(targets) == 0 {
		logrus.Info("nothing selected, use --all, --dnf, --store or --objects")
		return nil
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("clean needs an interactive terminal to confirm")
	}
	fmt.Printf("About to remove:\n")
	for _, path := range targets {
		fmt.Printf("  %s\n", path)
	}
	fmt.Printf("Continue? [Y/N] ")
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return errors.Wrap(err, "reading confirmation")
	}
	if !confirmed(answer) {
		return errors.New("clean declined")
	}

	for _, path := range targets {
		logrus.Infof("removing %s", path)
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "removing %s", path)
		}
	}
	return nil
}
