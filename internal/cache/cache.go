// Package cache is the read-through job cache behind job lookups. Entries
// are hints: every mutation invalidates the token it touched and a miss
// always reloads from the store.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	job     models.Job
	expires time.Time
}

// Memory keeps entries in process. Concurrent misses for one token share a
// single load.
type Memory struct {
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.Mutex
	entries map[string]entry
	// generation is bumped on every Invalidate so that a load which started
	// before the invalidation does not write back a stale job.
	generation map[string]uint64
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:        ttl,
		now:        time.Now,
		entries:    make(map[string]entry),
		generation: make(map[string]uint64),
	}
}

func (c *Memory) Get(ctx context.Context, token string, load func(ctx context.Context) (models.Job, error)) (models.Job, error) {
	c.mu.Lock()
	if e, ok := c.entries[token]; ok && c.now().Before(e.expires) {
		c.mu.Unlock()
		return e.job, nil
	}
	gen := c.generation[token]
	c.mu.Unlock()

	v, err, _ := c.group.Do(token, func() (interface{}, error) {
		job, err := load(ctx)
		if err != nil {
			return models.Job{}, err
		}
		c.mu.Lock()
		if c.generation[token] == gen {
			c.entries[token] = entry{job: job, expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return job, nil
	})
	if err != nil {
		return models.Job{}, err
	}
	return v.(models.Job), nil
}

func (c *Memory) Invalidate(ctx context.Context, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
	c.generation[token]++
	c.group.Forget(token)
}

// Len reports the number of live entries.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	now := c.now()
	for _, e := range c.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}
