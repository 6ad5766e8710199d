package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dshills/imgc/internal/plugin"
	"github.com/dshills/imgc/internal/processor"
)

// recorderProc accepts .txt files and records every path it is handed.
type recorderProc struct {
	mu    sync.Mutex
	paths []string
}

func (p *recorderProc) Descriptor() processor.Descriptor {
	return processor.Descriptor{
		Name:       "Recorder",
		Version:    "1.0.0",
		Extensions: []string{".txt"},
	}
}

func (p *recorderProc) Process(_ *processor.Context, path string) (*processor.Outcome, error) {
	p.mu.Lock()
	p.paths = append(p.paths, path)
	p.mu.Unlock()
	return processor.Succeeded("recorded"), nil
}

func (p *recorderProc) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.paths...)
}

func waitUntil(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func testSettings(root string) Settings {
	return Settings{
		Root:            root,
		Workers:         2,
		StableSeconds:   0.05,
		CooldownSeconds: 0.1,
		CompressTimeout: 5,
	}
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(Settings{Root: ""}, NullLogger, plugin.NewRegistry())
	if !errors.Is(err, ErrRootInvalid) {
		t.Fatalf("New() error = %v, want ErrRootInvalid", err)
	}

	file := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err = New(Settings{Root: file}, NullLogger, plugin.NewRegistry())
	if !errors.Is(err, ErrRootInvalid) {
		t.Fatalf("New(file root) error = %v, want ErrRootInvalid", err)
	}
}

func TestAppPipeline(t *testing.T) {
	root := t.TempDir()
	rec := &recorderProc{}
	registry := plugin.NewRegistry()
	registry.Register(rec)

	a, err := New(testSettings(root), NullLogger, registry)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitUntil(t, "app to start", a.IsRunning)
	// Give the directory watch time to land before the first write.
	time.Sleep(300 * time.Millisecond)

	path := filepath.Join(root, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	waitUntil(t, "file to be processed", func() bool { return len(rec.seen()) > 0 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	seen := rec.seen()
	if len(seen) != 1 || seen[0] != path {
		t.Errorf("processed paths = %v, want [%s]", seen, path)
	}
	stats := a.Stats()
	if stats.Pool.Succeeded != 1 {
		t.Errorf("Pool.Succeeded = %d, want 1", stats.Pool.Succeeded)
	}
	if stats.Watch.Dispatched != 1 {
		t.Errorf("Watch.Dispatched = %d, want 1", stats.Watch.Dispatched)
	}
	if a.IsRunning() {
		t.Error("IsRunning() = true after Run returned")
	}
}

func TestAppProcessExisting(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.txt")
	if err := os.WriteFile(path, []byte("already here"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rec := &recorderProc{}
	registry := plugin.NewRegistry()
	registry.Register(rec)

	settings := testSettings(root)
	settings.ProcessExisting = true

	a, err := New(settings, NullLogger, registry)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitUntil(t, "existing file to be processed", func() bool { return len(rec.seen()) > 0 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := rec.seen(); len(got) != 1 || got[0] != path {
		t.Errorf("processed paths = %v, want [%s]", got, path)
	}
}

func TestAppIgnoresExistingByDefault(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("old"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rec := &recorderProc{}
	registry := plugin.NewRegistry()
	registry.Register(rec)

	a, err := New(testSettings(root), NullLogger, registry)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitUntil(t, "app to start", a.IsRunning)
	// Long enough to cover a poll tick; the pre-existing file must not
	// reach the processor without a scan.
	time.Sleep(900 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := rec.seen(); len(got) != 0 {
		t.Errorf("processed paths = %v, want none", got)
	}
}

func TestAppRunTwice(t *testing.T) {
	a, err := New(testSettings(t.TempDir()), NullLogger, plugin.NewRegistry())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitUntil(t, "app to start", a.IsRunning)
	if err := a.Run(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRunning", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
