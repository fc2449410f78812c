package credentials

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemory()

	if _, ok := store.Get(); ok {
		t.Error("Expected empty store to report no credential")
	}

	if err := store.Set("sk-test-123"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	credential, ok := store.Get()
	if !ok || credential != "sk-test-123" {
		t.Errorf("Expected sk-test-123, got %q (present=%v)", credential, ok)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Error("Expected no credential after Clear")
	}
}

func TestMemoryStoreRejectsEmpty(t *testing.T) {
	store := NewMemory()
	if err := store.Set(""); err == nil {
		t.Error("Expected empty credential to be rejected")
	}
	if err := store.Set("   "); err == nil {
		t.Error("Expected blank credential to be rejected")
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets", "api-key")
	store := NewFile(path)

	if _, ok := store.Get(); ok {
		t.Error("Expected missing file to report no credential")
	}

	if err := store.Set("sk-test-456"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	credential, ok := store.Get()
	if !ok || credential != "sk-test-456" {
		t.Errorf("Expected sk-test-456, got %q (present=%v)", credential, ok)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected file mode 0600, got %o", perm)
	}

	// A second store sees the persisted credential.
	other := NewFile(path)
	credential, ok = other.Get()
	if !ok || credential != "sk-test-456" {
		t.Errorf("Expected persisted credential, got %q (present=%v)", credential, ok)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := store.Get(); ok {
		t.Error("Expected no credential after Clear")
	}

	// Clearing again is a no-op.
	if err := store.Clear(); err != nil {
		t.Errorf("Expected idempotent Clear, got %v", err)
	}
}

func TestFileStoreRejectsEmpty(t *testing.T) {
	store := NewFile(filepath.Join(t.TempDir(), "api-key"))
	if err := store.Set(""); err == nil {
		t.Error("Expected empty credential to be rejected")
	}
}
