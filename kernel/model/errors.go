package model

import "github.com/pkg/errors"

var (
	// ErrConfiguration marks operator-fixable input problems: a template
	// missing a structurally required stage, an unknown repo id, a target
	// whose upstream stage never ran. Never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrResolution marks depsolve failures: unfetchable signing keys or
	// an unsatisfiable package spec. Fatal for the current stage only;
	// state persisted by earlier stages stays valid.
	ErrResolution = errors.New("resolution error")
)
