package store

import (
	"sync"

	"github.com/openimage/osbuildctl/kernel/model"
)

// MemoryStore is an in-memory StateStore for tests.
type MemoryStore struct {
	mu        sync.Mutex
	state     *model.BuildState
	manifests map[string]*model.Manifest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		manifests: make(map[string]*model.Manifest),
	}
}

func (s *MemoryStore) Load() *model.BuildState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == nil {
		return model.NewBuildState()
	}
	// Copy so callers cannot mutate the stored record in place.
	copied := &model.BuildState{Stages: make(map[string]model.StageResult, len(s.state.Stages))}
	for k, v := range s.state.Stages {
		copied.Stages[k] = v
	}
	return copied
}

func (s *MemoryStore) Save(state *model.BuildState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := &model.BuildState{Stages: make(map[string]model.StageResult, len(state.Stages))}
	for k, v := range state.Stages {
		copied.Stages[k] = v
	}
	s.state = copied
	return nil
}

func (s *MemoryStore) SaveManifest(stage string, m *model.Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifests[stage] = m
	return nil
}

// Manifest returns the last manifest saved for a stage, for assertions.
func (s *MemoryStore) Manifest(stage string) *model.Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.manifests[stage]
}
