package sign

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeHelper(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func TestExecSigner_Sign(t *testing.T) {
	// The helper must receive the request on stdin and answer with
	// metadata on stdout.
	helper := writeHelper(t, `
request=$(cat)
echo "$request" | grep -q '"commit_id":"C1"' || exit 1
echo '{"keyid": "ABCD", "sig": "deadbeef"}'
`)
	s := &ExecSigner{Helper: helper}

	meta, err := s.Sign(context.Background(), Request{
		BuildDir: "/work/build",
		Repo:     "/store/objects/O1/repo",
		OutputID: "O1",
		CommitID: "C1",
	})
	require.NoError(t, err)
	require.Equal(t, "ABCD", meta["keyid"])
	require.Equal(t, "deadbeef", meta["sig"])
}

func TestExecSigner_NonzeroExitIsFatal(t *testing.T) {
	helper := writeHelper(t, "echo 'boom' >&2\nexit 3\n")
	s := &ExecSigner{Helper: helper}

	_, err := s.Sign(context.Background(), Request{CommitID: "C1"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestExecSigner_MalformedOutput(t *testing.T) {
	helper := writeHelper(t, "echo 'not json'\n")
	s := &ExecSigner{Helper: helper}

	_, err := s.Sign(context.Background(), Request{CommitID: "C1"})
	require.Error(t, err)
}
