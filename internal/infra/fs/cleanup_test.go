package fs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(-age)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCleanupLocal(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.mp3", 2*time.Hour)
	fresh := writeFile(t, dir, "fresh.mp4", time.Minute)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	c := NewCleaner(&CleanerConfig{LocalDir: dir, LocalMaxAge: time.Hour})
	if n := c.CleanupLocalNow(); n != 1 {
		t.Errorf("expected 1 deletion, got %d", n)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected old file to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("expected fresh file to survive")
	}
	if _, err := os.Stat(filepath.Join(dir, "sub")); err != nil {
		t.Error("expected subdirectory to survive")
	}
}

func TestCleanupLocalMissingDir(t *testing.T) {
	c := NewCleaner(&CleanerConfig{LocalDir: filepath.Join(t.TempDir(), "missing"), LocalMaxAge: time.Hour})
	if n := c.CleanupLocalNow(); n != 0 {
		t.Errorf("expected 0 deletions, got %d", n)
	}
}

type fakeRemote struct {
	calls atomic.Int32
	err   error
}

func (f *fakeRemote) DeleteOlderThan(ctx context.Context, age time.Duration) (int, error) {
	f.calls.Add(1)
	return 3, f.err
}

func TestStartRunsSweepsUntilStopped(t *testing.T) {
	dir := t.TempDir()
	old := writeFile(t, dir, "old.mp3", 2*time.Hour)
	remote := &fakeRemote{err: errors.New("transient")}

	c := NewCleaner(&CleanerConfig{
		LocalDir:       dir,
		LocalMaxAge:    time.Hour,
		LocalInterval:  10 * time.Millisecond,
		Remote:         remote,
		RemoteMaxAge:   time.Hour,
		RemoteInterval: 10 * time.Millisecond,
	})
	c.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for remote.calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	c.Stop()
	c.Stop()

	if remote.calls.Load() < 2 {
		t.Errorf("expected repeated remote sweeps, got %d", remote.calls.Load())
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expected old file to be swept on start")
	}

	calls := remote.calls.Load()
	time.Sleep(30 * time.Millisecond)
	if remote.calls.Load() != calls {
		t.Error("expected no sweeps after Stop")
	}
}
