package subcmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/openimage/osbuildctl/kernel/engine"
	"github.com/openimage/osbuildctl/kernel/loader"
	"github.com/openimage/osbuildctl/kernel/model"
)

// ConfigFileName is looked up under the workspace root when --config is
// not given.
const ConfigFileName = "osbuildctl.yaml"

// Exit codes surfaced by Execute.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

var (
	rootDir    string
	configPath string
	verbose    bool
)

var RootCmd = &cobra.Command{
	Use:   "osbuildctl",
	Short: "Build OS trees and bootable images through resumable osbuild stages",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "workspace root directory")
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default <root>/"+ConfigFileName+")")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the CLI and maps its outcome to an exit code: 0 on success,
// 130 on operator interruption, 1 on anything else.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := RootCmd.ExecuteContext(ctx)
	if err != nil && ctx.Err() != nil {
		err = errors.Wrap(engine.ErrInterrupted, err.Error())
	}

	code := exitCode(err)
	switch code {
	case ExitInterrupted:
		logrus.Warn("interrupted")
	case ExitFailure:
		logrus.WithError(err).Error("failed")
	}
	return code
}

// exitCode maps a command outcome to the process exit code: 0 on success,
// 130 on operator interruption, 1 on anything else.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(err, engine.ErrInterrupted) {
		return ExitInterrupted
	}
	return ExitFailure
}

// loadConfig resolves the effective configuration: an explicit --config
// file, the workspace config file if present, or bare defaults.
func loadConfig() (model.Config, error) {
	if configPath != "" {
		return loader.LoadConfig(configPath)
	}

	root, err := filepath.Abs(rootDir)
	if err != nil {
		return model.Config{}, errors.Wrap(err, "resolving workspace root")
	}
	path := filepath.Join(root, ConfigFileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return model.DefaultConfig(root), nil
	}
	return loader.LoadConfig(path)
}
