package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	indexFileName = "index.json"
	// FormatVersion is the snapshot schema version written by Save.
	FormatVersion = "1"
)

// Store is a directory of named artifacts. It is owned by a single pipeline
// run; concurrent runs against the same directory are not supported.
type Store struct {
	dir string
}

// NewStore creates dir if needed and returns a store rooted there.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache directory must be set")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store root.
func (s *Store) Dir() string { return s.dir }

// Path returns the canonical path of the artifact called name.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Exists reports whether the artifact is present.
func (s *Store) Exists(name string) (bool, error) {
	_, err := os.Stat(s.Path(name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Install runs write against a temporary path next to the artifact and
// renames the result into place. When write fails the temporary file is
// removed and any previous artifact is left as it was.
func (s *Store) Install(name string, write func(tmpPath string) error) error {
	tmp, f, err := createTempFile(s.dir, name)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := write(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.Path(name)); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// InstallBytes installs data as the artifact called name.
func (s *Store) InstallBytes(name string, data []byte) error {
	return s.Install(name, func(tmp string) error {
		return os.WriteFile(tmp, data, 0o644)
	})
}

// Remove deletes the named artifacts. Missing ones are ignored.
func (s *Store) Remove(names ...string) error {
	for _, n := range names {
		if err := os.Remove(s.Path(n)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Hash returns the sha256 hex digest and size of an artifact.
func (s *Store) Hash(name string) (string, int64, error) {
	f, err := os.Open(s.Path(name))
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Capture hashes the named artifacts that exist and returns a snapshot
// stamped with runID.
func (s *Store) Capture(runID, pipelineVersion string, names []string) (*Snapshot, error) {
	snap := &Snapshot{
		RunID:           runID,
		Created:         time.Now().UTC().Format(time.RFC3339),
		FormatVersion:   FormatVersion,
		PipelineVersion: pipelineVersion,
		Artifacts:       make([]Artifact, 0, len(names)),
	}
	for _, n := range names {
		ok, err := s.Exists(n)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		hash, size, err := s.Hash(n)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", n, err)
		}
		snap.Artifacts = append(snap.Artifacts, Artifact{Name: n, Hash: hash, Size: size})
	}
	return snap, nil
}

// Load returns the snapshot stored in dir, or (nil, nil) when the cache has
// never been captured.
func (s *Store) Load() (*Snapshot, error) {
	b, err := os.ReadFile(s.Path(indexFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode %s: %w", indexFileName, err)
	}
	return &snap, nil
}

// Save replaces the index file in dir via a temp file and rename.
func (s *Store) Save(snap *Snapshot) error {
	return s.Install(indexFileName, func(tmp string) error {
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(snap); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	})
}

// Clear removes every artifact, the snapshot and any leftover temporary
// files, keeping the directory itself.
func (s *Store) Clear() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// Leftovers lists temporary files from interrupted installs.
func (s *Store) Leftovers() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// SweepLeftovers deletes the temporary files of interrupted installs and
// returns their names.
func (s *Store) SweepLeftovers() ([]string, error) {
	left, err := s.Leftovers()
	if err != nil {
		return nil, err
	}
	for _, name := range left {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return left, nil
}

const tempPrefix = ".tmp-"

// createTempFile opens ".tmp-<base>-<rand>" in dir. The caller closes it.
func createTempFile(dir, base string) (string, *os.File, error) {
	f, err := os.CreateTemp(dir, tempPrefix+base+"-")
	if err != nil {
		return "", nil, err
	}
	return f.Name(), f, nil
}
