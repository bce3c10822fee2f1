package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CredentialStore persists the opaque refresh credential so a session can
// be restored after a process restart. The credential is the only piece
// of client-side state that outlives the process.
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileCredentialStore keeps the credential in a single file.
type FileCredentialStore struct {
	path string
}

// NewFileCredentialStore constructs a store writing to the given path.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Load reads the persisted credential; a missing file means no credential.
func (s *FileCredentialStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read credential file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the credential, creating parent directories as needed.
func (s *FileCredentialStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token), 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}

// Clear removes the credential file if present.
func (s *FileCredentialStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

// MemoryCredentialStore keeps the credential in memory. Used in tests and
// when persistence is not wanted.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryCredentialStore constructs an empty in-memory store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

// Load returns the held credential.
func (s *MemoryCredentialStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

// Save replaces the held credential.
func (s *MemoryCredentialStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// Clear drops the held credential.
func (s *MemoryCredentialStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

var _ CredentialStore = (*FileCredentialStore)(nil)
var _ CredentialStore = (*MemoryCredentialStore)(nil)
