package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mainbong/copilot_kit/internal/filesystem"
	"github.com/mainbong/copilot_kit/internal/tools"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.json")
	if err := os.WriteFile(path, []byte(jsonManifest), 0644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan []tools.Descriptor, 4)
	w, err := NewWatcher(filesystem.NewOSFileSystem(), path, func(d []tools.Descriptor) {
		changes <- d
	})
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	// a broken manifest is ignored
	if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	select {
	case d := <-changes:
		t.Fatalf("unexpected reload with %+v", d)
	default:
	}

	updated := `{"tools":[{"id":"notes","route":"__local__"},{"id":"clock","route":"__local__"}]}`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-changes:
		if len(d) != 2 || d[1].ID != "clock" {
			t.Errorf("reloaded %+v", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after manifest change")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.json")
	if err := os.WriteFile(path, []byte(jsonManifest), 0644); err != nil {
		t.Fatal(err)
	}

	changes := make(chan []tools.Descriptor, 1)
	w, err := NewWatcher(filesystem.NewOSFileSystem(), path, func(d []tools.Descriptor) { changes <- d })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Close()
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case d := <-changes:
		t.Errorf("unexpected reload %+v", d)
	case <-time.After(200 * time.Millisecond):
	}
}
