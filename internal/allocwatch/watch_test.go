package allocwatch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/orizon-lang/orizon-alloc/internal/allocator"
)

func writeTuning(t *testing.T, path string, t2 Tuning) {
	t.Helper()

	data, err := json.Marshal(t2)
	if err != nil {
		t.Fatalf("marshal tuning: %v", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write tuning file: %v", err)
	}
}

func TestWatcherResizesOnConfigChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")

	writeTuning(t, path, Tuning{TargetSize: 1024})

	a, err := allocator.Construct(0, 8)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	w, err := New(a, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	writeTuning(t, path, Tuning{TargetSize: 4096})

	deadline := time.Now().Add(2 * time.Second)
	for a.TotalSize() != 4096 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if a.TotalSize() != 4096 {
		t.Fatalf("TotalSize = %d, want 4096 after watched resize", a.TotalSize())
	}
}

func TestWatcherReportsParseErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.json")

	writeTuning(t, path, Tuning{TargetSize: 1024})

	a, err := allocator.Construct(0, 8)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	w, err := New(a, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write invalid tuning: %v", err)
	}

	select {
	case err := <-w.Errors():
		if err == nil {
			t.Fatal("expected a non-nil parse error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a parse error")
	}
}
