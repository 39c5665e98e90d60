package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openimage/osbuildctl/kernel/model"
)

// Result is what one engine run produced.
type Result struct {
	Success  bool            `json:"success"`
	OutputID model.ContentID `json:"output_id"`
	Error    string          `json:"error,omitempty"`
}

// RunOptions tunes a single engine invocation.
type RunOptions struct {
	// Interactive connects the engine's stderr to the operator's
	// terminal for progress output.
	Interactive bool
}

// Runner executes one composed manifest to completion. A call blocks until
// the engine finishes or the context is canceled; there are no partial
// results. Content addressing inside the engine makes repeat runs of
// already-built manifests cheap.
type Runner interface {
	Run(ctx context.Context, m *model.Manifest, opts RunOptions) (*Result, error)
}

// OSBuildRunner drives the osbuild executable.
type OSBuildRunner struct {
	Binary   string
	StoreDir string
	LibDir   string
}

func NewOSBuildRunner(cfg model.Config) *OSBuildRunner {
	return &OSBuildRunner{
		Binary:   cfg.OSBuild,
		StoreDir: cfg.StoreDir,
		LibDir:   cfg.LibDir,
	}
}

func (r *OSBuildRunner) Run(ctx context.Context, m *model.Manifest, opts RunOptions) (*Result, error) {
	manifest, err := m.MarshalPretty()
	if err != nil {
		return nil, err
	}

	args := []string{"--store", r.StoreDir, "--json", "-"}
	if r.LibDir != "" {
		args = append(args, "--libdir", r.LibDir)
	}

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	cmd.Stdin = bytes.NewReader(manifest)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if opts.Interactive {
		cmd.Stderr = os.Stderr
	}

	logrus.WithField("store", r.StoreDir).Infof("running %s", r.Binary)
	runErr := cmd.Run()

	// An operator abort cancels the context, which kills the engine;
	// report that as an interruption, not a build failure.
	if ctx.Err() != nil {
		return nil, errors.Wrap(ErrInterrupted, "engine run canceled")
	}
	if runErr != nil {
		// The engine exits nonzero for failed builds but still emits
		// its result JSON; fall through to parsing when it did.
		if stdout.Len() == 0 {
			return nil, errors.Wrapf(runErr, "running %s", r.Binary)
		}
	}

	result := &Result{}
	if err := json.Unmarshal(stdout.Bytes(), result); err != nil {
		return nil, errors.Wrapf(err, "parsing %s output", r.Binary)
	}
	return result, nil
}
