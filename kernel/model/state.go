package model

// ContentID is an identifier the execution engine derives from a manifest's
// content. It is the cache key into the object store; this tool never
// computes one itself, it only threads them between stages.
type ContentID string

func (id ContentID) String() string {
	return string(id)
}

// Stage names used as keys in the persisted build state.
const (
	StateOSTree = "ostree"
	StateImage  = "image"
)

// SignatureMetadata is whatever the signing helper emitted for a commit.
// The composer forwards it verbatim into the image manifest's ostree source
// so the engine can verify the commit as if pulled from a signed remote.
type SignatureMetadata map[string]interface{}

// StageResult records what one successfully completed stage produced.
type StageResult struct {
	OutputID  ContentID         `json:"output_id"`
	CommitID  ContentID         `json:"commit_id,omitempty"`
	GPG       SignatureMetadata `json:"gpg,omitempty"`
	ImageName string            `json:"image_name,omitempty"`
}

// BuildState is the durable record of everything completed stages have
// produced in one build directory. A stage's entry exists only after that
// stage has succeeded at least once; later stages read earlier entries but
// never modify them.
type BuildState struct {
	Stages map[string]StageResult `json:"stages"`
}

// NewBuildState returns the empty default shape: an "ostree" key is always
// present so readers can distinguish "never ran" from "file missing".
func NewBuildState() *BuildState {
	return &BuildState{
		Stages: map[string]StageResult{
			StateOSTree: {},
		},
	}
}

// Result returns the recorded result for a stage name. ok is false when the
// stage has not completed yet.
func (s *BuildState) Result(name string) (StageResult, bool) {
	r, ok := s.Stages[name]
	if !ok || r.OutputID == "" {
		return StageResult{}, false
	}
	return r, true
}

// Set replaces a stage's entry outright. A rebuilt stage must not inherit
// anything from the previous run; in particular a signature made for the
// old commit must not survive bound to the new one.
func (s *BuildState) Set(name string, r StageResult) {
	if s.Stages == nil {
		s.Stages = map[string]StageResult{}
	}
	s.Stages[name] = r
}

// Merge records a stage result, preserving fields already present that the
// update leaves zero. The sign stage merges GPG metadata into the ostree
// entry without clobbering the ids the commit stage wrote.
func (s *BuildState) Merge(name string, r StageResult) {
	if s.Stages == nil {
		s.Stages = map[string]StageResult{}
	}
	prev := s.Stages[name]
	if r.OutputID == "" {
		r.OutputID = prev.OutputID
	}
	if r.CommitID == "" {
		r.CommitID = prev.CommitID
	}
	if r.GPG == nil {
		r.GPG = prev.GPG
	}
	if r.ImageName == "" {
		r.ImageName = prev.ImageName
	}
	s.Stages[name] = r
}
