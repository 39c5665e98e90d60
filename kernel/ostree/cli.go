// Package ostree drives the content-store CLI and the update/rebase
// workflow that chains newly built commits into a serving repository.
package ostree

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CLI is the ostree command-line surface this tool depends on.
type CLI interface {
	Init(ctx context.Context, repo string) error
	Refs(ctx context.Context, repo string) ([]string, error)
	PullLocal(ctx context.Context, src, ref, repo string) error
	UpdateSummary(ctx context.Context, repo string) error
}

// ExecCLI shells out to the ostree binary.
type ExecCLI struct {
	Binary string
}

func NewExecCLI() *ExecCLI {
	return &ExecCLI{Binary: "ostree"}
}

func (c *ExecCLI) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.Debugf("ostree %s", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "ostree %s: %s", args[0], strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func (c *ExecCLI) Init(ctx context.Context, repo string) error {
	_, err := c.run(ctx, "init", "--mode=archive-z2", "--repo="+repo)
	return err
}

func (c *ExecCLI) Refs(ctx context.Context, repo string) ([]string, error) {
	out, err := c.run(ctx, "refs", "--repo="+repo)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}

func (c *ExecCLI) PullLocal(ctx context.Context, src, ref, repo string) error {
	_, err := c.run(ctx, "pull-local", src, ref, "--repo="+repo)
	return err
}

func (c *ExecCLI) UpdateSummary(ctx context.Context, repo string) error {
	_, err := c.run(ctx, "summary", "--update", "--repo="+repo)
	return err
}
