// Package credentials holds the cloud API credential. The store is a plain
// get/set/clear capability injected into the orchestrator; it performs no
// validation beyond "non-empty is set".
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is the process-wide credential holder. Get is read on every cloud
// attempt; Set and Clear happen only on explicit user action.
type Store interface {
	// Get returns the credential and whether one is present.
	Get() (string, bool)
	Set(credential string) error
	Clear() error
}

// Memory is an in-process Store, safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	credential string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.credential, m.credential != ""
}

func (m *Memory) Set(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return errors.New("credentials: empty credential")
	}
	m.mu.Lock()
	m.credential = credential
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	m.credential = ""
	m.mu.Unlock()
	return nil
}

// File persists the credential to a single file with 0600 permissions.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file-backed store at path. The file is created on the
// first Set.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Get() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", false
	}
	credential := strings.TrimSpace(string(data))
	return credential, credential != ""
}

func (f *File) Set(credential string) error {
	if strings.TrimSpace(credential) == "" {
		return errors.New("credentials: empty credential")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	if err := os.WriteFile(f.path, []byte(credential+"\n"), 0o600); err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	return nil
}

func (f *File) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("credentials: %w", err)
	}
	return nil
}
