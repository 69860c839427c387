package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

// dirStore is a minimal ArtifactStore over a directory.
type dirStore struct {
	dir string

	mu      sync.Mutex
	deleted []string
}

func (s *dirStore) LocateArtifact(ctx context.Context, jobID, ext string) (string, bool) {
	path := filepath.Join(s.dir, jobID+"."+ext)
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (s *dirStore) DeleteArtifact(path string) error {
	s.mu.Lock()
	s.deleted = append(s.deleted, path)
	s.mu.Unlock()
	if !strings.HasPrefix(path, s.dir) {
		return errors.New("outside")
	}
	return os.Remove(path)
}

func (s *dirStore) deletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deleted)
}

func writeArtifact(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRegisterResolve(t *testing.T) {
	r := New(&dirStore{dir: t.TempDir()}, time.Hour)
	defer r.Close()

	if err := r.Register("job-1", domain.FormatAudio, "song.mp3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, ok := r.Resolve("job-1")
	if !ok {
		t.Fatal("expected entry to resolve")
	}
	if e.DisplayFilename != "song.mp3" || e.Format != domain.FormatAudio {
		t.Errorf("unexpected entry %+v", e)
	}
	if !e.ExpiresAt.After(e.CreatedAt) {
		t.Error("expected expiry after creation")
	}
	if _, ok := r.Resolve("job-2"); ok {
		t.Error("expected unknown id to be absent")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
}

func TestExpiryDeletesFileAndEntry(t *testing.T) {
	store := &dirStore{dir: t.TempDir()}
	path := writeArtifact(t, store.dir, "job-1.mp4")

	evicted := make(chan Entry, 1)
	r := New(store, 20*time.Millisecond, WithOnEvict(func(e Entry) { evicted <- e }))
	defer r.Close()

	if err := r.Register("job-1", domain.FormatVideo, "clip.mp4"); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-evicted:
		if e.JobID != "job-1" {
			t.Errorf("unexpected evicted entry %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("entry was not evicted")
	}

	if _, ok := r.Resolve("job-1"); ok {
		t.Error("expected entry to be removed")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected artifact file to be deleted")
	}
}

func TestExpiryWithMissingFile(t *testing.T) {
	store := &dirStore{dir: t.TempDir()}
	r := New(store, 10*time.Millisecond)
	defer r.Close()

	if err := r.Register("gone", domain.FormatAudio, "x.mp3"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return r.Len() == 0 })

	if store.deletedCount() != 0 {
		t.Error("expected no delete for a missing file")
	}
}

func TestReRegisterRestartsTimer(t *testing.T) {
	store := &dirStore{dir: t.TempDir()}
	writeArtifact(t, store.dir, "job-1.mp3")

	var evictions int
	var mu sync.Mutex
	r := New(store, 200*time.Millisecond, WithOnEvict(func(Entry) {
		mu.Lock()
		evictions++
		mu.Unlock()
	}))
	defer r.Close()

	if err := r.Register("job-1", domain.FormatAudio, "first.mp3"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(120 * time.Millisecond)
	if err := r.Register("job-1", domain.FormatAudio, "second.mp3"); err != nil {
		t.Fatal(err)
	}

	// Past the first deadline, before the second.
	time.Sleep(120 * time.Millisecond)
	e, ok := r.Resolve("job-1")
	if !ok || e.DisplayFilename != "second.mp3" {
		t.Fatalf("expected replaced entry to survive, got %+v, %v", e, ok)
	}

	waitFor(t, func() bool { return r.Len() == 0 })
	mu.Lock()
	defer mu.Unlock()
	if evictions != 1 {
		t.Errorf("expected exactly one eviction, got %d", evictions)
	}
}

func TestClose(t *testing.T) {
	store := &dirStore{dir: t.TempDir()}
	path := writeArtifact(t, store.dir, "job-1.mp3")

	r := New(store, 20*time.Millisecond)
	if err := r.Register("job-1", domain.FormatAudio, "a.mp3"); err != nil {
		t.Fatal(err)
	}
	r.Close()
	r.Close()

	if err := r.Register("job-2", domain.FormatAudio, "b.mp3"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := os.Stat(path); err != nil {
		t.Error("expected file to survive after Close stopped the timer")
	}
	if store.deletedCount() != 0 {
		t.Error("expected no deletions after Close")
	}
}

func TestRegisterRequiresID(t *testing.T) {
	r := New(&dirStore{dir: t.TempDir()}, 0)
	defer r.Close()
	if err := r.Register("", domain.FormatAudio, "a.mp3"); err == nil {
		t.Error("expected error for empty job id")
	}
	if r.ttl != DefaultTTL {
		t.Errorf("expected default ttl, got %v", r.ttl)
	}
}
