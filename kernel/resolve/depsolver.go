// Package resolve turns a declarative package/repo spec into the
// deterministic, checksum-addressed dependency set the composer needs.
// The constraint solving itself happens in an external helper; this
// package owns repo selection, signing-key collection and the ordering
// guarantees composed manifests depend on.
package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/openimage/osbuildctl/kernel/model"
)

// Request is the payload handed to the external depsolver.
type Request struct {
	Arch       string             `json:"arch"`
	Release    string             `json:"releasever"`
	CacheDir   string             `json:"cachedir"`
	PersistDir string             `json:"persistdir"`
	Repos      []model.RepoConfig `json:"repos"`
	Include    []string           `json:"include"`
	Exclude    []string           `json:"exclude,omitempty"`
}

// TransactionEntry is one action in the solver's transaction, in the
// solver's own order.
type TransactionEntry struct {
	Action  string           `json:"action"`
	Package model.PackageRef `json:"package"`
}

// Transaction is the solver's full answer, removals included.
type Transaction struct {
	Packages []TransactionEntry `json:"packages"`
}

// Depsolver is the external constraint solver.
type Depsolver interface {
	Depsolve(ctx context.Context, req Request) (*Transaction, error)
}

// ExecDepsolver runs a helper binary speaking JSON on stdin/stdout.
type ExecDepsolver struct {
	Helper string
}

func (d *ExecDepsolver) Depsolve(ctx context.Context, req Request) (*Transaction, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encoding depsolve request")
	}

	cmd := exec.CommandContext(ctx, d.Helper)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(model.ErrResolution, "depsolver %s: %v: %s", d.Helper, err, stderr.String())
	}

	transaction := &Transaction{}
	if err := json.Unmarshal(stdout.Bytes(), transaction); err != nil {
		return nil, errors.Wrapf(model.ErrResolution, "depsolver %s: malformed output: %v", d.Helper, err)
	}
	return transaction, nil
}
