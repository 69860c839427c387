// Package registry maps job ids to produced artifacts for a bounded time.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

// ErrClosed is returned by Register after Close.
var ErrClosed = errors.New("registry closed")

// DefaultTTL is how long an artifact stays retrievable.
const DefaultTTL = time.Hour

// ArtifactStore locates and removes artifacts on disk.
type ArtifactStore interface {
	LocateArtifact(ctx context.Context, jobID, ext string) (string, bool)
	DeleteArtifact(path string) error
}

// Entry is what the registry remembers about a job. It holds no path:
// the file is always re-discovered.
type Entry struct {
	JobID           string
	Format          domain.Format
	DisplayFilename string
	RemoteKey       string
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

type record struct {
	entry Entry
	timer *time.Timer
}

// Registry holds entries and expires each one independently.
type Registry struct {
	store   ArtifactStore
	ttl     time.Duration
	onEvict func(Entry)

	mu      sync.Mutex
	entries map[string]*record
	closed  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithOnEvict registers a hook called after an entry expires.
func WithOnEvict(fn func(Entry)) Option {
	return func(r *Registry) { r.onEvict = fn }
}

// New creates a Registry. A non-positive ttl uses DefaultTTL.
func New(store ArtifactStore, ttl time.Duration, opts ...Option) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{
		store:   store,
		ttl:     ttl,
		entries: make(map[string]*record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register records jobID and schedules its expiry. Registering an id again
// replaces the entry and restarts its timer.
func (r *Registry) Register(jobID string, format domain.Format, displayFilename string) error {
	return r.RegisterEntry(Entry{JobID: jobID, Format: format, DisplayFilename: displayFilename})
}

// RegisterEntry is Register with the optional fields set.
func (r *Registry) RegisterEntry(e Entry) error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}

	now := time.Now()
	e.CreatedAt = now
	e.ExpiresAt = now.Add(r.ttl)

	if old, ok := r.entries[e.JobID]; ok {
		old.timer.Stop()
	}

	rec := &record{entry: e}
	rec.timer = time.AfterFunc(r.ttl, func() { r.expire(e.JobID, rec) })
	r.entries[e.JobID] = rec

	slog.Debug("Artifact registered", "job_id", e.JobID, "expires_at", e.ExpiresAt)
	return nil
}

// Resolve returns the entry for jobID without touching the filesystem.
func (r *Registry) Resolve(jobID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[jobID]
	if !ok {
		return Entry{}, false
	}
	return rec.entry, true
}

// Len returns the number of live entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Close stops all pending expiries and refuses new registrations.
// Files of live entries are left on disk for the sweeper.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, rec := range r.entries {
		rec.timer.Stop()
	}
}

func (r *Registry) expire(jobID string, rec *record) {
	r.mu.Lock()
	// A replaced or closed entry must not evict its successor.
	if r.closed || r.entries[jobID] != rec {
		r.mu.Unlock()
		return
	}
	delete(r.entries, jobID)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if path, ok := r.store.LocateArtifact(ctx, jobID, rec.entry.Format.Extension()); ok {
		if err := r.store.DeleteArtifact(path); err != nil {
			slog.Debug("Failed to delete expired artifact", "job_id", jobID, "path", path, "error", err)
		}
	} else {
		slog.Debug("Expired artifact already gone", "job_id", jobID)
	}

	if r.onEvict != nil {
		r.onEvict(rec.entry)
	}
	slog.Debug("Artifact expired", "job_id", jobID)
}
