package model

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
)

// Options is the parameter bag of a stage, source or assembler. Kept as a
// plain map so unrecognized stage kinds round-trip untouched; known kinds
// get typed views via Decode/Encode (stages.go).
type Options map[string]interface{}

// Sources maps a source name (e.g. "org.osbuild.files") to its options.
type Sources map[string]Options

// Stage is one named, parameterized unit of work inside a pipeline. ID is
// filled in by the execution engine after a run, never set ahead of time.
type Stage struct {
	Name    string  `json:"name"`
	Options Options `json:"options,omitempty"`
	ID      string  `json:"id,omitempty"`
}

// Build is a nested build-root pipeline together with the runner identity
// used to execute stages inside it.
type Build struct {
	Pipeline Pipeline `json:"pipeline"`
	Runner   string   `json:"runner"`
}

// Pipeline is an ordered stage list with an optional nested build root and
// an optional terminal assembler. A build-root pipeline carries stages only.
type Pipeline struct {
	Build     *Build   `json:"build,omitempty"`
	Stages    []*Stage `json:"stages,omitempty"`
	Assembler *Stage   `json:"assembler,omitempty"`
}

// Manifest is the concrete input handed to the execution engine.
type Manifest struct {
	Pipeline Pipeline `json:"pipeline"`
	Sources  Sources  `json:"sources,omitempty"`
}

// FindStage returns the first stage with the given name, or nil. Composer
// overrides that target an absent stage are defined as no-ops, so callers
// must tolerate nil.
func (p *Pipeline) FindStage(name string) *Stage {
	for _, s := range p.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Clone returns a deep copy of the manifest via a JSON round trip.
// Templates are cloned before every composition so no invocation can
// corrupt the shared template for the next one.
func (m *Manifest) Clone() (*Manifest, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "cloning manifest")
	}
	out := &Manifest{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, errors.Wrap(err, "cloning manifest")
	}
	return out, nil
}

// Clone returns a deep copy of the build-root sub-pipeline.
func (b *Build) Clone() (*Build, error) {
	out := &Build{}
	if err := remarshal(b, out); err != nil {
		return nil, errors.Wrap(err, "cloning build root")
	}
	return out, nil
}

// Clone returns a deep copy of the source options.
func (o Options) Clone() (Options, error) {
	var out Options
	if err := remarshal(o, &out); err != nil {
		return nil, errors.Wrap(err, "cloning options")
	}
	return out, nil
}

// MarshalPretty renders the manifest as indented JSON with stable key
// order, suitable both for the engine and for the on-disk debug dumps.
func (m *Manifest) MarshalPretty() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return nil, errors.Wrap(err, "encoding manifest")
	}
	return buf.Bytes(), nil
}

// UnmarshalManifest parses manifest JSON.
func UnmarshalManifest(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return m, nil
}
