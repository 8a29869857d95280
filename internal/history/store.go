package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ErrCorruptHistory indicates the persisted log exists but cannot be decoded.
// The file is left untouched so no recorded observation is lost.
var ErrCorruptHistory = errors.New("history: persisted log is corrupt")

// Store is the append-only observation log consumed by the sampling loop.
type Store interface {
	Append(ctx context.Context, obs Observation) error
}

// FileStore keeps the log as a single JSON array on disk. Every append rewrites
// the whole document through a temp file and an atomic rename.
//
// Only one process may write to a given path; the mutex covers callers within
// this process.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file is created on first append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads every persisted observation in insertion order. A missing file yields an empty log.
func (s *FileStore) Load(ctx context.Context) ([]Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Len reports how many observations are persisted.
func (s *FileStore) Len(ctx context.Context) (int, error) {
	observations, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(observations), nil
}

// Append adds obs to the end of the log, preserving all earlier observations.
func (s *FileStore) Append(ctx context.Context, obs Observation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	observations, err := s.load()
	if err != nil {
		return err
	}
	observations = append(observations, obs)

	payload, err := json.MarshalIndent(observations, "", "    ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return writeAtomic(s.path, payload)
}

func (s *FileStore) load() ([]Observation, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorruptHistory, s.path)
	}

	var observations []Observation
	if err := json.Unmarshal(data, &observations); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptHistory, s.path, err)
	}
	return observations, nil
}

func writeAtomic(path string, payload []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp history: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp history: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}

var _ Store = (*FileStore)(nil)
