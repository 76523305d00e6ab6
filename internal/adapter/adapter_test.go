package adapter

import (
	"sync"
	"time"

	"github.com/eternalApril/mixedds/internal/storage"
)

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time {
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func newKeyspace() (*storage.Store, *clock) {
	c := &clock{t: time.Unix(1_700_000_000, 0)}
	return storage.New(storage.WithClock(c.Now)), c
}

// countingCache records events per kind, ignoring the protocol label
type countingCache struct {
	mu     sync.Mutex
	counts map[string]int
}

func newCountingCache() *countingCache {
	return &countingCache{counts: make(map[string]int)}
}

func (c *countingCache) inc(kind string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[kind] += n
}

func (c *countingCache) get(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[kind]
}

func (c *countingCache) Hit(string)          { c.inc("hit", 1) }
func (c *countingCache) Miss(string)         { c.inc("miss", 1) }
func (c *countingCache) InputError(string)   { c.inc("input_error", 1) }
func (c *countingCache) TypeMismatch(string) { c.inc("type_mismatch", 1) }
func (c *countingCache) Write(string)        { c.inc("write", 1) }
func (c *countingCache) Delete(string)       { c.inc("delete", 1) }
func (c *countingCache) Expired(n int)       { c.inc("expired", n) }
func (c *countingCache) Evicted(n int)       { c.inc("evicted", n) }
func (c *countingCache) Keys(int, int)       {}
