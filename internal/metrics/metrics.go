// Package metrics defines the observability handle the command adapters and the
// shard pool report to. The handle is passed in explicitly so stores and adapters
// can be exercised in isolation with the no-op implementation.
package metrics

// Cache receives cache events. Implementations must be safe for concurrent use.
type Cache interface {
	// Hit counts a read that found a live key.
	Hit(protocol string)
	// Miss counts a read of an absent or expired key.
	Miss(protocol string)
	// InputError counts a request rejected at the adapter boundary.
	InputError(protocol string)
	// TypeMismatch counts a structural operation against the wrong variant.
	TypeMismatch(protocol string)
	// Write counts a successful mutation.
	Write(protocol string)
	// Delete counts a successful explicit deletion.
	Delete(protocol string)
	// Expired counts entries removed by the proactive sweep.
	Expired(n int)
	// Evicted counts entries removed to stay under capacity.
	Evicted(n int)
	// Keys records the number of entries held by a shard.
	Keys(shard int, n int)
}

type nopCache struct{}

func (nopCache) Hit(string)          {}
func (nopCache) Miss(string)         {}
func (nopCache) InputError(string)   {}
func (nopCache) TypeMismatch(string) {}
func (nopCache) Write(string)        {}
func (nopCache) Delete(string)       {}
func (nopCache) Expired(int)         {}
func (nopCache) Evicted(int)         {}
func (nopCache) Keys(int, int)       {}

// Nop returns a Cache that discards every event.
func Nop() Cache { return nopCache{} }
