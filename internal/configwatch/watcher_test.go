package configwatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jfolker/bigpicture/internal/config"
)

func TestWatcherAppliesChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"archiver":{"dest":{"directory":"/a"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	got := make(chan config.Config, 1)
	w := New(path, func(cfg config.Config) {
		select {
		case got <- cfg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to arm before rewriting the file.
	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"archiver":{"dest":{"directory":"/b"}}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-got:
		if cfg.Archiver.Dest.Directory != "/b" {
			t.Errorf("Directory = %q, want /b", cfg.Archiver.Dest.Directory)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never observed the change")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}
}

func TestWatcherIgnoresBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}

	calls := make(chan struct{}, 8)
	w := New(path, func(config.Config) { calls <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(200 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{malformed`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case <-calls:
		t.Error("callback fired for a malformed config")
	case <-time.After(time.Second):
	}
}
