package keystore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"

	"github.com/ironsheep/omr-scan-mcp/internal/omr"
)

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "key.json")
	s, err := New(path)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	key, err := s.Load()
	if err != nil {
		t.Fatalf("Load() on a missing file: %v", err)
	}
	if len(key) != 0 {
		t.Errorf("missing file loaded as %v", key)
	}

	want := omr.AnswerMap{1: 0, 2: 3, 45: 4}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.String() != want.String() {
		t.Errorf("Load() = %v, want %v", got, want)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"45": 4`) {
		t.Errorf("stored JSON uses unexpected keys: %s", data)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}
}

func TestFileStore_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	s, _ := New(path)
	if err := s.Clear(); err != nil {
		t.Errorf("Clear() on a missing file: %v", err)
	}
	if err := s.Save(omr.AnswerMap{3: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	key, err := s.Load()
	if err != nil || len(key) != 0 {
		t.Errorf("after Clear: %v, %v", key, err)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _ := New(path)
	if _, err := s.Load(); err == nil {
		t.Error("Load() accepted a corrupt file")
	}
}

func TestDefaultPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_DATA_HOME", home)
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	p, err := DefaultPath()
	if err != nil {
		t.Fatalf("DefaultPath() error: %v", err)
	}
	if want := filepath.Join(home, "omr-scan", "answer-key.json"); p != want {
		t.Errorf("DefaultPath() = %s, want %s", p, want)
	}
	if _, err := os.Stat(filepath.Dir(p)); err != nil {
		t.Errorf("key directory not created: %v", err)
	}
}

var _ omr.KeyStore = (*FileStore)(nil)
