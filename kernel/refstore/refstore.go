// Package refstore resolves content ids against the execution engine's
// object store. The store is laid out as objects/<id> directories with a
// refs/<id> link per committed artifact; this adapter only reads it.
package refstore

import (
	"os"
	"path/filepath"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"

	"github.com/openimage/osbuildctl/kernel/model"
)

type Store struct {
	dir string

	// Resolved ref paths never change for a given id, so they are cached
	// for the life of the process.
	cache cmap.ConcurrentMap[string, string]
}

func New(dir string) *Store {
	return &Store{
		dir:   dir,
		cache: cmap.New[string](),
	}
}

// Dir returns the store root, as handed to the execution engine.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) refPath(id model.ContentID) string {
	return filepath.Join(s.dir, "refs", id.String())
}

// Contains reports whether the artifact for the given id is already
// materialized in the store.
func (s *Store) Contains(id model.ContentID) bool {
	if _, ok := s.cache.Get(id.String()); ok {
		return true
	}
	_, err := os.Stat(s.refPath(id))
	return err == nil
}

// ResolveRef returns the on-disk location of an artifact.
func (s *Store) ResolveRef(id model.ContentID) (string, error) {
	if path, ok := s.cache.Get(id.String()); ok {
		return path, nil
	}

	path, err := filepath.EvalSymlinks(s.refPath(id))
	if err != nil {
		return "", errors.Wrapf(err, "resolving ref %s", id)
	}
	s.cache.Set(id.String(), path)
	return path, nil
}
