package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openimage/osbuildctl/kernel/model"
)

func writeEngine(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "osbuild.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755))
	return path
}

func testManifest() *model.Manifest {
	return &model.Manifest{
		Pipeline: model.Pipeline{
			Stages: []*model.Stage{{Name: model.StageRPM, Options: model.Options{}}},
		},
	}
}

func TestOSBuildRunner_Success(t *testing.T) {
	engine := writeEngine(t, `
cat > /dev/null
echo '{"success": true, "output_id": "O1"}'
`)
	r := &OSBuildRunner{Binary: engine, StoreDir: t.TempDir()}

	result, err := r.Run(context.Background(), testManifest(), RunOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, model.ContentID("O1"), result.OutputID)
}

func TestOSBuildRunner_FailureStillParsed(t *testing.T) {
	// The engine exits nonzero on a failed build but still reports JSON.
	engine := writeEngine(t, `
cat > /dev/null
echo '{"success": false, "error": "stage exploded"}'
exit 1
`)
	r := &OSBuildRunner{Binary: engine, StoreDir: t.TempDir()}

	result, err := r.Run(context.Background(), testManifest(), RunOptions{})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Equal(t, "stage exploded", result.Error)
}

func TestOSBuildRunner_NoOutputIsAnError(t *testing.T) {
	engine := writeEngine(t, "cat > /dev/null\nexit 1\n")
	r := &OSBuildRunner{Binary: engine, StoreDir: t.TempDir()}

	_, err := r.Run(context.Background(), testManifest(), RunOptions{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInterrupted)
}

func TestOSBuildRunner_CanceledIsInterrupted(t *testing.T) {
	engine := writeEngine(t, "cat > /dev/null\necho '{}'\n")
	r := &OSBuildRunner{Binary: engine, StoreDir: t.TempDir()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, testManifest(), RunOptions{})
	require.ErrorIs(t, err, ErrInterrupted)
}
