// Package sign invokes the external commit-signing helper.
package sign

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openimage/osbuildctl/kernel/model"
)

// Request is the payload the helper receives on standard input.
type Request struct {
	BuildDir string          `json:"builddir"`
	Repo     string          `json:"repo"`
	OutputID model.ContentID `json:"output_id"`
	CommitID model.ContentID `json:"commit_id"`
}

// Signer produces signature metadata for a built commit.
type Signer interface {
	Sign(ctx context.Context, req Request) (model.SignatureMetadata, error)
}

// ExecSigner shells out to a helper executable: JSON request on stdin,
// JSON signature metadata on stdout, nonzero exit is fatal.
type ExecSigner struct {
	Helper string
}

func (s *ExecSigner) Sign(ctx context.Context, req Request) (model.SignatureMetadata, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encoding signing request")
	}

	cmd := exec.CommandContext(ctx, s.Helper)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logrus.Infof("signing commit %s", req.CommitID)
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "signing helper %s: %s", s.Helper, stderr.String())
	}

	meta := model.SignatureMetadata{}
	if err := json.Unmarshal(stdout.Bytes(), &meta); err != nil {
		return nil, errors.Wrapf(err, "signing helper %s: malformed output", s.Helper)
	}
	return meta, nil
}
