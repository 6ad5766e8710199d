package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func seedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"sub", ".hidden"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("Mkdir(%s) error = %v", dir, err)
		}
	}
	files := []string{"a.jpg", "sub/b.png", ".hidden/c.jpg", "d.jpg" + TempSuffix, "sub/e.txt"}
	for _, name := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.WriteFile(path, []byte(name), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
	return root
}

func TestScanExistingSeedsCoordinator(t *testing.T) {
	root := seedTree(t)
	rec := newRecorder()
	c := NewCoordinator(testConfig(), rec.submit, nil)

	if err := ScanExisting(context.Background(), root, 4, c); err != nil {
		t.Fatalf("ScanExisting() error = %v", err)
	}

	if stats := c.Stats(); stats.Pending != 3 {
		t.Errorf("Pending = %d, want 3 (hidden and temp files skipped)", stats.Pending)
	}

	time.Sleep(120 * time.Millisecond)
	c.poll()

	got := rec.dispatched()
	sort.Strings(got)
	want := []string{
		filepath.Join(root, "a.jpg"),
		filepath.Join(root, "sub", "b.png"),
		filepath.Join(root, "sub", "e.txt"),
	}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dispatched[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestScanExistingCancelled(t *testing.T) {
	root := seedTree(t)
	rec := newRecorder()
	c := NewCoordinator(testConfig(), rec.submit, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ScanExisting(ctx, root, 2, c); !errors.Is(err, context.Canceled) {
		t.Errorf("ScanExisting() error = %v, want context.Canceled", err)
	}
}

func TestScanExistingMissingRoot(t *testing.T) {
	c := NewCoordinator(testConfig(), func(string) bool { return true }, nil)
	root := filepath.Join(t.TempDir(), "absent")
	if err := ScanExisting(context.Background(), root, 2, c); err == nil {
		t.Fatal("ScanExisting() error = nil, want error for missing root")
	}
}
