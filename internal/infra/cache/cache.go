// Package cache keeps recently fetched video metadata in memory.
package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/emanuelef/yt-convert-go/internal/domain"
)

// liveTTL bounds entries with no known duration, such as live streams,
// whose metadata keeps changing.
const liveTTL = time.Minute

// VideoCache maps a video id to its metadata, so every URL shape of the
// same video shares one entry. Values are stored and returned by copy.
type VideoCache struct {
	items  *gocache.Cache
	ttl    time.Duration
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// NewVideoCache creates a cache whose entries live for ttl. Expired entries
// are purged every sweep.
func NewVideoCache(ttl, sweep time.Duration) *VideoCache {
	return &VideoCache{items: gocache.New(ttl, sweep), ttl: ttl}
}

// Get returns a copy of the metadata cached for videoID.
func (c *VideoCache) Get(videoID string) (*domain.VideoInfo, bool) {
	v, found := c.items.Get(videoID)
	info, ok := v.(domain.VideoInfo)
	if !found || !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &info, true
}

// Set caches a copy of info under videoID.
func (c *VideoCache) Set(videoID string, info *domain.VideoInfo) {
	if videoID == "" || info == nil {
		return
	}
	ttl := c.ttl
	if info.DurationSeconds <= 0 {
		ttl = min(ttl, liveTTL)
	}
	c.items.Set(videoID, *info, ttl)
}

// Stats reports entry count and lookup totals.
func (c *VideoCache) Stats() Stats {
	return Stats{
		Entries: c.items.ItemCount(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
