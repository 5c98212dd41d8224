// Package lockfile implements locflow.lock, a YAML file holding a snapshot
// of the in-memory store. It lets the CLI keep projects, resource versions,
// strings and translations between runs without a database.
//
// The lock file is stored in the configured state directory as locflow.lock.
// Writers use Acquire, which holds an exclusive lock on locflow.lock.lck
// until Close, so concurrent runs load and save one after another.
package lockfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/locflow/store"
)

// LockFileName is the default lock file name.
const LockFileName = "locflow.lock"

// guardSuffix names the sidecar file that carries the process lock. The lock
// file itself is replaced on every save, so it cannot hold the lock.
const guardSuffix = ".lck"

// Version is the lock file format version.
const Version = 1

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// LockFile represents the locflow.lock file structure.
type LockFile struct {
	Version        int `yaml:"version"`
	store.Snapshot `yaml:",inline"`

	mu    sync.Mutex `yaml:"-"`
	path  string     `yaml:"-"`
	guard *os.File   `yaml:"-"`
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// Load reads a lock file from the given directory.
// Returns an empty lock file if the file doesn't exist.
func Load(dir string) (*LockFile, error) {
	path := filepath.Join(dir, LockFileName)
	lf := &LockFile{Version: Version, path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return lf, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	lf.path = path

	if lf.Version == 0 {
		lf.Version = Version
	}
	if lf.Version > Version {
		return nil, fmt.Errorf("%s: unsupported lock file version %d (max %d)", path, lf.Version, Version)
	}

	return lf, nil
}

// Acquire takes an exclusive lock on the state directory, waiting for any
// other holder, and then loads the lock file. Close releases the lock.
func Acquire(dir string) (*LockFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	guardPath := filepath.Join(dir, LockFileName+guardSuffix)
	guard, err := os.OpenFile(guardPath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", guardPath, err)
	}
	if err := lockFile(guard); err != nil {
		guard.Close()
		return nil, fmt.Errorf("locking %s: %w", guardPath, err)
	}

	lf, err := Load(dir)
	if err != nil {
		unlockFile(guard)
		guard.Close()
		return nil, err
	}
	lf.guard = guard
	return lf, nil
}

// Close releases the lock taken by Acquire. It is a no-op for lock files
// returned by Load.
func (lf *LockFile) Close() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.guard == nil {
		return nil
	}
	guard := lf.guard
	lf.guard = nil
	if err := unlockFile(guard); err != nil {
		guard.Close()
		return fmt.Errorf("unlocking %s: %w", guard.Name(), err)
	}
	return guard.Close()
}

// Save writes the lock file to disk, replacing any previous file atomically.
func (lf *LockFile) Save() error {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	if lf.path == "" {
		return fmt.Errorf("lock file path not set")
	}

	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(lf.path), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(lf.path), err)
	}
	tmp := lf.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, lf.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", lf.path, err)
	}

	return nil
}

// Path returns the lock file path.
func (lf *LockFile) Path() string {
	return lf.path
}

// ---------------------------------------------------------------------------
// Store bridge
// ---------------------------------------------------------------------------

// Open returns a memory store populated from the lock file.
func (lf *LockFile) Open(opts ...store.Option) (*store.MemoryStore, error) {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	ms := store.NewMemoryStore(opts...)
	if err := ms.Restore(lf.Snapshot); err != nil {
		return nil, fmt.Errorf("restoring %s: %w", lf.path, err)
	}
	return ms, nil
}

// Capture replaces the lock file contents with the store's current state.
func (lf *LockFile) Capture(ms *store.MemoryStore) {
	snap := ms.Snapshot()

	lf.mu.Lock()
	defer lf.mu.Unlock()
	lf.Snapshot = snap
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats counts the records held in the lock file.
type Stats struct {
	Projects     int
	Versions     int
	Strings      int
	Active       int
	Translations int
}

// Stats returns record counts for the lock file.
func (lf *LockFile) Stats() Stats {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	s := Stats{
		Projects:     len(lf.Projects),
		Versions:     len(lf.Versions),
		Strings:      len(lf.Strings),
		Translations: len(lf.Translations),
	}
	for _, str := range lf.Strings {
		if str.IsActive {
			s.Active++
		}
	}
	return s
}

// Files returns the sorted "project/file" pairs that have versions.
func (lf *LockFile) Files() []string {
	lf.mu.Lock()
	defer lf.mu.Unlock()

	seen := make(map[string]bool)
	var files []string
	for _, v := range lf.Versions {
		f := v.Project + "/" + filepath.ToSlash(v.FilePath)
		if !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files
}

// ---------------------------------------------------------------------------
// Human-readable summary
// ---------------------------------------------------------------------------

// Summary returns a human-readable summary string.
func (lf *LockFile) Summary() string {
	s := lf.Stats()
	if s.Projects == 0 {
		return "empty"
	}

	files := lf.Files()
	summary := fmt.Sprintf("%d projects, %d versions, %d strings (%d active), %d translations",
		s.Projects, s.Versions, s.Strings, s.Active, s.Translations)
	if len(files) > 0 {
		summary += " (" + strings.Join(files, ", ") + ")"
	}
	return summary
}
