package store

import "github.com/openimage/osbuildctl/kernel/model"

// StateStore persists the build state across invocations. Load never
// fails: missing or unreadable state reads as "nothing built yet".
type StateStore interface {
	Load() *model.BuildState
	Save(state *model.BuildState) error
}

// ManifestStore keeps pretty-printed copies of composed manifests for
// inspection.
type ManifestStore interface {
	SaveManifest(stage string, m *model.Manifest) error
}
