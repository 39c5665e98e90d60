package engine

import "github.com/pkg/errors"

var (
	// ErrBuildFailed is the engine reporting an unsuccessful run. State
	// persisted by earlier stages stays valid; exit code 1.
	ErrBuildFailed = errors.New("build failed")

	// ErrInterrupted is an operator abort, kept distinct from a build
	// failure so the CLI can exit 130 after persisting captured state.
	ErrInterrupted = errors.New("interrupted")
)
