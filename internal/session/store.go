package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Dan9191/bank-client/internal/models"
	"github.com/Dan9191/bank-client/internal/utils"
)

// Store is the durable mirror of the active session. Load returns
// (nil, nil) when no record exists.
type Store interface {
	Load() (*models.Session, error)
	Save(s *models.Session) error
	Clear() error
}

// FileStore keeps the session record in a single file. When a key is set
// the record is sealed before it touches the disk.
type FileStore struct {
	path string
	key  *[32]byte
}

// NewFileStore creates a store at path; key may be nil
func NewFileStore(path string, key *[32]byte) *FileStore {
	return &FileStore{path: path, key: key}
}

// Path returns the location of the record
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) Load() (*models.Session, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session record: %w", err)
	}
	if f.key != nil {
		if raw, err = utils.Open(raw, f.key); err != nil {
			return nil, fmt.Errorf("failed to open session record: %w", err)
		}
	}
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session record: %w", err)
	}
	return &s, nil
}

func (f *FileStore) Save(s *models.Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session record: %w", err)
	}
	if f.key != nil {
		if raw, err = utils.Seal(raw, f.key); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	// Write to a sibling temp file and rename so a crash never leaves a
	// half-written record behind.
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace session record: %w", err)
	}
	return nil
}

func (f *FileStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session record: %w", err)
	}
	return nil
}

// MemoryStore holds the record in memory
type MemoryStore struct {
	mu      sync.Mutex
	session *models.Session
	loadErr error
}

// NewMemoryStore returns a store seeded with s (which may be nil)
func NewMemoryStore(s *models.Session) *MemoryStore {
	return &MemoryStore{session: s.Clone()}
}

// Corrupt makes the next Load fail with err
func (m *MemoryStore) Corrupt(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *MemoryStore) Load() (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.session.Clone(), nil
}

func (m *MemoryStore) Save(s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s.Clone()
	m.loadErr = nil
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.loadErr = nil
	return nil
}
