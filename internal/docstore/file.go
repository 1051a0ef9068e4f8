package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/jwulff/echo/internal/errs"
)

// FileStore keeps the document as one JSON object in a file. Reads always go
// to the file; writes replace it through a temp file and rename.
type FileStore struct {
	fs   afero.Fs
	path string
	flk  *flock.Flock // nil when no cross-process lock is wanted

	mu sync.Mutex
}

// NewFileStore returns a store for path on fsys without a cross-process lock.
func NewFileStore(fsys afero.Fs, path string) *FileStore {
	return &FileStore{fs: fsys, path: path}
}

// OpenFile returns a store for path on the OS filesystem. Updates hold an
// exclusive lock on path+".lock" from the read to the rename.
func OpenFile(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrap(errs.ErrPersistence, "open document", fmt.Errorf("create directory %s: %w", dir, err))
		}
	}
	s := NewFileStore(afero.NewOsFs(), path)
	s.flk = flock.New(path + ".lock")
	return s, nil
}

// Path returns the document path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) read() (map[string]json.RawMessage, error) {
	doc := make(map[string]json.RawMessage)
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.ErrPersistence, "read document", err)
	}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, errs.Wrap(errs.ErrPersistence, "parse document", fmt.Errorf("%s: %w", s.path, err))
		}
	}
	return doc, nil
}

func (s *FileStore) Get(key string, v any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return false, err
	}
	return decode(doc, key, v)
}

func (s *FileStore) Update(key string, v any, fn func(found bool) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flk != nil {
		if err := s.flk.Lock(); err != nil {
			return errs.Wrap(errs.ErrPersistence, "update document", fmt.Errorf("lock %s: %w", s.path, err))
		}
		defer func() { _ = s.flk.Unlock() }()
	}

	doc, err := s.read()
	if err != nil {
		return err
	}
	found, err := decode(doc, key, v)
	if err != nil {
		return err
	}
	changed, err := fn(found)
	if err != nil || !changed {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, "encode "+key, err)
	}
	doc[key] = data
	return s.write(doc)
}

// write replaces the document through a temp file and rename.
func (s *FileStore) write(doc map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(errs.ErrPersistence, "save document", err)
	}

	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return errs.Wrap(errs.ErrPersistence, "save document", fmt.Errorf("create directory %s: %w", dir, err))
		}
	}

	tmp := s.path + ".tmp"
	defer func() { _ = s.fs.Remove(tmp) }()
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return errs.Wrap(errs.ErrPersistence, "save document", fmt.Errorf("write %s: %w", tmp, err))
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return errs.Wrap(errs.ErrPersistence, "save document", fmt.Errorf("rename %s: %w", tmp, err))
	}
	return nil
}

// Close releases the lock file, if any.
func (s *FileStore) Close() error {
	if s.flk == nil {
		return nil
	}
	return s.flk.Close()
}

func decode(doc map[string]json.RawMessage, key string, v any) (bool, error) {
	raw, ok := doc[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, errs.Wrap(errs.ErrPersistence, "decode "+key, err)
	}
	return true, nil
}
