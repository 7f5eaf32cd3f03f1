package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrArtifactMissing is returned by Store.ReadArtifact when nothing exists at
// the requested path.
var ErrArtifactMissing = errors.New("artifact: missing")

// Store is the document backend artifact callers read from and write to. The
// resolver decides where; the store decides how.
type Store interface {
	ReadArtifact(path string) ([]byte, error)
	WriteArtifact(path string, data []byte) error
}

// FileStore persists artifacts on the local filesystem.
type FileStore struct {
	dirMode  os.FileMode
	fileMode os.FileMode
}

// FileStoreOption customizes a FileStore during construction.
type FileStoreOption func(*FileStore)

// WithFileMode overrides the permissions used for written files.
func WithFileMode(mode os.FileMode) FileStoreOption {
	return func(s *FileStore) {
		s.fileMode = mode
	}
}

// NewFileStore builds a filesystem-backed store.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	store := &FileStore{dirMode: 0o755, fileMode: 0o644}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// ReadArtifact returns the file contents or ErrArtifactMissing.
func (s *FileStore) ReadArtifact(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("artifact: read: empty path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, path)
		}
		return nil, fmt.Errorf("artifact: read %s: %w", path, err)
	}
	return data, nil
}

// WriteArtifact writes data through a temporary file renamed into place so
// readers never observe a partial document.
func (s *FileStore) WriteArtifact(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("artifact: write: empty path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.dirMode); err != nil {
		return fmt.Errorf("artifact: ensure dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("artifact: create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("artifact: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact: close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, s.fileMode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("artifact: rename into %s: %w", path, err)
	}
	return nil
}

// ReadFirst returns the contents of the first path that exists, with that
// path. Only ErrArtifactMissing moves on to the next candidate; any other read
// error is returned immediately.
func ReadFirst(store Store, paths ...string) ([]byte, string, error) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := store.ReadArtifact(path)
		if err == nil {
			return data, path, nil
		}
		if !errors.Is(err, ErrArtifactMissing) {
			return nil, path, err
		}
	}
	return nil, "", ErrArtifactMissing
}

// ReadVerification reads the verification document of a work item, honoring
// the resolver's primary/fallback order.
func ReadVerification(store Store, r *Resolver, item WorkItem) ([]byte, string, error) {
	candidates := r.PrimaryAndFallback(item.Feature, item.Stage, item.ID)
	return ReadFirst(store, candidates.Paths()...)
}

// Locate probes every stage for kind and returns the resolved location of the
// first one present.
func Locate(store Store, r *Resolver, feature, id string, kind Kind) (ResolvedArtifact, error) {
	_, path, err := ReadFirst(store, r.SearchPaths(feature, id, kind)...)
	if err != nil {
		return ResolvedArtifact{}, err
	}
	resolved, ok := r.ParsePath(path)
	if !ok {
		return ResolvedArtifact{}, fmt.Errorf("artifact: located path %s does not parse", path)
	}
	return resolved, nil
}
