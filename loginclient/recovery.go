package loginclient

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PendingAttempt is the crash/reload recovery record: the in-flight
// token and when the attempt started. It is cleared on success,
// terminal failure, and explicit cancel.
type PendingAttempt struct {
	Token     string    `json:"token"`
	StartedAt time.Time `json:"started_at"`
}

// RecoveryStore persists the pending attempt across restarts.
type RecoveryStore interface {
	Save(attempt PendingAttempt) error
	// Load returns the stored attempt, or ok=false when none exists.
	Load() (attempt PendingAttempt, ok bool, err error)
	Clear() error
}

// FileRecoveryStore keeps the pending attempt in a small JSON file,
// the desktop analog of the browser's local storage keys.
type FileRecoveryStore struct {
	path string
	mu   sync.Mutex
}

func NewFileRecoveryStore(path string) *FileRecoveryStore {
	return &FileRecoveryStore{path: path}
}

// DefaultRecoveryPath places the recovery file under the user config
// dir, falling back to the temp dir when none is available.
func DefaultRecoveryPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "telegram-login", "pending.json")
}

func (f *FileRecoveryStore) Save(attempt PendingAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(attempt)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileRecoveryStore) Load() (PendingAttempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return PendingAttempt{}, false, nil
	}
	if err != nil {
		return PendingAttempt{}, false, err
	}
	var attempt PendingAttempt
	if err := json.Unmarshal(data, &attempt); err != nil {
		// A corrupt file is treated as no pending attempt.
		return PendingAttempt{}, false, nil
	}
	if attempt.Token == "" {
		return PendingAttempt{}, false, nil
	}
	return attempt, true, nil
}

func (f *FileRecoveryStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// MemoryRecoveryStore is an in-process store for tests and callers
// that do not want persistence.
type MemoryRecoveryStore struct {
	mu      sync.Mutex
	attempt PendingAttempt
	set     bool
}

func NewMemoryRecoveryStore() *MemoryRecoveryStore { return &MemoryRecoveryStore{} }

func (m *MemoryRecoveryStore) Save(attempt PendingAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt, m.set = attempt, true
	return nil
}

func (m *MemoryRecoveryStore) Load() (PendingAttempt, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt, m.set, nil
}

func (m *MemoryRecoveryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempt, m.set = PendingAttempt{}, false
	return nil
}
