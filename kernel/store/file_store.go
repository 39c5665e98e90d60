package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openimage/osbuildctl/kernel/model"
	"github.com/sirupsen/logrus"
)

// InfoFileName is the state file kept under each build directory.
const InfoFileName = "info.json"

// FileStore keeps one info.json per build directory. No cross-directory
// sharing: a store instance is bound to a single build directory, and only
// one orchestrator process may write to it at a time.
type FileStore struct {
	buildDir string
	mu       sync.Mutex
}

func NewFileStore(buildDir string) *FileStore {
	return &FileStore{buildDir: buildDir}
}

func (s *FileStore) infoPath() string {
	return filepath.Join(s.buildDir, InfoFileName)
}

// Load reads the persisted state. A missing or malformed file is not an
// error: it reads as the empty default, which is what makes a first run and
// a re-run after corruption behave identically.
func (s *FileStore) Load() *model.BuildState {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.infoPath())
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.WithError(err).Warnf("unable to read %s, assuming fresh build", InfoFileName)
		}
		return model.NewBuildState()
	}

	state := &model.BuildState{}
	if err := json.Unmarshal(data, state); err != nil {
		logrus.WithError(err).Warnf("corrupt %s, assuming fresh build", InfoFileName)
		return model.NewBuildState()
	}
	if state.Stages == nil {
		return model.NewBuildState()
	}
	return state
}

// Save writes the state via a temp file and rename, so a reader never sees
// a half-written record.
func (s *FileStore) Save(state *model.BuildState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.buildDir, 0755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal build state: %w", err)
	}

	return writeFileAtomic(s.infoPath(), data, 0644)
}

// SaveManifest dumps a composed manifest as <stage>-manifest.json in the
// build directory. Debug artifact only, nothing reads it back.
func (s *FileStore) SaveManifest(stage string, m *model.Manifest) error {
	if err := os.MkdirAll(s.buildDir, 0755); err != nil {
		return fmt.Errorf("failed to create build directory: %w", err)
	}
	data, err := m.MarshalPretty()
	if err != nil {
		return err
	}
	path := filepath.Join(s.buildDir, stage+"-manifest.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest dump: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
