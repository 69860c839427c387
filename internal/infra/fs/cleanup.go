// Package fs sweeps orphaned artifacts left behind by crashes or restarts.
package fs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RemoteSweeper deletes mirrored objects older than age.
type RemoteSweeper interface {
	DeleteOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// CleanerConfig holds configuration for the cleaner. A zero interval or
// age disables the corresponding sweep.
type CleanerConfig struct {
	LocalDir      string
	LocalMaxAge   time.Duration
	LocalInterval time.Duration

	Remote         RemoteSweeper
	RemoteMaxAge   time.Duration
	RemoteInterval time.Duration
}

// sweep is one periodic cleanup target.
type sweep struct {
	target string
	every  time.Duration
	maxAge time.Duration
	run    func(ctx context.Context) (int, error)
}

// Cleaner is the backstop behind the registry's per-job expiry: whatever
// outlives the configured age is removed, known to the registry or not.
type Cleaner struct {
	cfg    CleanerConfig
	sweeps []sweep

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// NewCleaner creates a Cleaner. Nothing runs until Start.
func NewCleaner(cfg *CleanerConfig) *Cleaner {
	c := &Cleaner{cfg: *cfg, quit: make(chan struct{})}

	if cfg.LocalDir != "" && cfg.LocalInterval > 0 && cfg.LocalMaxAge > 0 {
		c.sweeps = append(c.sweeps, sweep{
			target: "local",
			every:  cfg.LocalInterval,
			maxAge: cfg.LocalMaxAge,
			run:    func(context.Context) (int, error) { return c.sweepLocal() },
		})
	}
	if cfg.Remote != nil && cfg.RemoteInterval > 0 && cfg.RemoteMaxAge > 0 {
		c.sweeps = append(c.sweeps, sweep{
			target: "remote",
			every:  cfg.RemoteInterval,
			maxAge: cfg.RemoteMaxAge,
			run: func(ctx context.Context) (int, error) {
				return cfg.Remote.DeleteOlderThan(ctx, cfg.RemoteMaxAge)
			},
		})
	}
	return c
}

// Start runs each enabled sweep once and then on its interval until Stop
// or ctx ends.
func (c *Cleaner) Start(ctx context.Context) {
	for _, s := range c.sweeps {
		c.wg.Add(1)
		go c.schedule(ctx, s)
	}
}

// Stop ends all sweeps and waits for any in progress.
func (c *Cleaner) Stop() {
	c.quitOnce.Do(func() { close(c.quit) })
	c.wg.Wait()
}

// CleanupLocalNow sweeps the local directory immediately and returns the
// number of files removed.
func (c *Cleaner) CleanupLocalNow() int {
	n, err := c.sweepLocal()
	if err != nil {
		slog.Error("Local cleanup failed", "dir", c.cfg.LocalDir, "error", err)
	}
	return n
}

func (c *Cleaner) schedule(ctx context.Context, s sweep) {
	defer c.wg.Done()

	slog.Info("Cleanup scheduled", "target", s.target, "interval", s.every, "max_age", s.maxAge)

	t := time.NewTicker(s.every)
	defer t.Stop()

	for {
		removed, err := s.run(ctx)
		switch {
		case err != nil:
			slog.Error("Cleanup failed", "target", s.target, "error", err)
		case removed > 0:
			slog.Info("Cleanup removed stale artifacts", "target", s.target, "count", removed)
		}

		select {
		case <-t.C:
		case <-ctx.Done():
			return
		case <-c.quit:
			return
		}
	}
}

// sweepLocal removes regular files directly under LocalDir, finished or
// partial, whose modification time is older than LocalMaxAge.
func (c *Cleaner) sweepLocal() (int, error) {
	entries, err := os.ReadDir(c.cfg.LocalDir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-c.cfg.LocalMaxAge)
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if err != nil || fi.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(c.cfg.LocalDir, e.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Could not remove stale artifact", "path", p, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
