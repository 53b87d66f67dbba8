package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FilePerms restricts session files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the session directory.
const DirPerms = 0o700

// envelopeVersion is bumped when the on-disk layout changes so old and new
// auth schemes never collide on the same file.
const envelopeVersion = 1

// Store persists the current session. Load returns (nil, nil) when no
// session has ever been saved; a decode failure is an error so the caller
// decides whether to surface it or treat it as logged out.
type Store interface {
	Load() (*Session, error)
	Save(*Session) error
	Clear() error
}

// envelope is the on-disk format: a versioned wrapper around the session
// with the expiry denormalized at save time.
type envelope struct {
	Version   int      `json:"version"`
	Session   *Session `json:"session"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
	SavedAt   int64    `json:"saved_at"`
}

// FileStore keeps the session in a single JSON file, written atomically
// (temp file + rename) with 0600 permissions.
type FileStore struct {
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore persisting to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Load reads the saved session. A missing file is (nil, nil). A file from a
// different envelope version or one that fails to decode is an error the
// caller may degrade to "logged out".
func (f *FileStore) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "no saved session"
	}

	if err != nil {
		return nil, fmt.Errorf("session: reading %s: %w", f.path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("session: decoding %s: %w", f.path, err)
	}

	if env.Version != envelopeVersion || env.Session == nil {
		return nil, fmt.Errorf("session: %s has unsupported envelope (re-login required)", f.path)
	}

	return env.Session, nil
}

// Save writes the session atomically. The expiry is denormalized into the
// envelope so later loads never need to recompute it from expires_in.
func (f *FileStore) Save(s *Session) error {
	if s == nil {
		return fmt.Errorf("session: refusing to save nil session")
	}

	saved := s.Clone()
	fillDefaults(saved, f.now())

	env := envelope{
		Version:   envelopeVersion,
		Session:   saved,
		ExpiresAt: saved.ExpiresAt,
		SavedAt:   f.now().Unix(),
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("session: encoding: %w", err)
	}

	dir := filepath.Dir(f.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("session: creating directory %s: %w", dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("session: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("session: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("session: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("session: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("session: closing: %w", err)
	}

	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("session: renaming: %w", err)
	}

	success = true

	return nil
}

// Clear removes the session file. Removing an absent file is not an error.
func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("session: clearing %s: %w", f.path, err)
	}

	return nil
}

// MemoryStore is an in-process Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu      sync.Mutex
	current *Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.current.Clone(), nil
}

func (m *MemoryStore) Save(s *Session) error {
	if s == nil {
		return fmt.Errorf("session: refusing to save nil session")
	}

	saved := s.Clone()
	fillDefaults(saved, time.Now())

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = saved

	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = nil

	return nil
}
