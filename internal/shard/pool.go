// Package shard runs a set of stores, each owned by a single worker goroutine.
package shard

import (
	"errors"
	"math/bits"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/eternalApril/mixedds/internal/metrics"
	"github.com/eternalApril/mixedds/internal/storage"
)

const (
	MaxShards = 64
	queueSize = 128
)

var (
	ErrClosed        = errors.New("shard pool is closed")
	ErrShardCount    = errors.New("requested shards must be a power of 2")
	ErrTooManyShards = errors.New("requested shards must be less or equal than 64")
)

// Config describes the layout of a Pool
type Config struct {
	Shards     uint
	MaxEntries int              // per shard. 0 means unbounded
	Interval   time.Duration    // period of the maintenance sweep. 0 disables it
	Clock      func() time.Time // defaults to time.Now
}

type worker struct {
	store *storage.Store
	tasks chan func(*storage.Store)
}

// Pool routes keys to shards and serializes all access to each shard's store
type Pool struct {
	workers []*worker
	mask    uint64
	limit   int
	now     func() time.Time
	metrics metrics.Cache
	logger  *zap.Logger

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool

	stop     chan struct{}
	loop     sync.WaitGroup
	running  sync.WaitGroup
	stopOnce sync.Once
}

// New starts one worker per shard and, if cfg.Interval is set, the maintenance loop
func New(cfg Config, m metrics.Cache, logger *zap.Logger) (*Pool, error) {
	if bits.OnesCount(cfg.Shards) != 1 {
		return nil, ErrShardCount
	}
	if cfg.Shards > MaxShards {
		return nil, ErrTooManyShards
	}
	if m == nil {
		m = metrics.Nop()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	p := &Pool{
		workers: make([]*worker, cfg.Shards),
		mask:    uint64(cfg.Shards - 1),
		limit:   cfg.MaxEntries,
		now:     cfg.Clock,
		metrics: m,
		logger:  logger,
		stop:    make(chan struct{}),
	}

	for i := range p.workers {
		w := &worker{
			store: storage.New(storage.WithClock(cfg.Clock), storage.WithCapacityHint(cfg.MaxEntries)),
			tasks: make(chan func(*storage.Store), queueSize),
		}
		p.workers[i] = w

		p.running.Add(1)
		go func() {
			defer p.running.Done()
			for task := range w.tasks {
				task(w.store)
			}
		}()
	}

	if cfg.Interval > 0 {
		p.loop.Add(1)
		go p.maintenanceLoop(cfg.Interval)
	}

	return p, nil
}

// Len returns the number of shards
func (p *Pool) Len() int {
	return len(p.workers)
}

// Shard returns index of shard by key
func (p *Pool) Shard(key []byte) int {
	return int(xxhash.Sum64(key) & p.mask)
}

// Do runs fn on the worker owning shard i and waits for it to return.
// fn has exclusive access to the store for its whole duration
func (p *Pool) Do(i int, fn func(s *storage.Store)) error {
	done := make(chan struct{})

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.workers[i].tasks <- func(s *storage.Store) {
		defer close(done)
		fn(s)
	}
	p.mu.RUnlock()

	<-done
	return nil
}

// DoWrite is Do for requests that may add entries: the shard is brought back under
// its capacity before the worker moves on
func (p *Pool) DoWrite(i int, fn func(s *storage.Store)) error {
	return p.Do(i, func(s *storage.Store) {
		fn(s)
		if p.limit > 0 {
			if n := s.EvictToCapacity(p.limit); n > 0 {
				p.metrics.Evicted(n)
			}
		}
	})
}

// Sweep removes due entries and enforces capacity on every shard.
// Returns the number of expired and evicted entries
func (p *Pool) Sweep() (expired, evicted int, err error) {
	now := p.now()
	for i := range p.workers {
		err = p.Do(i, func(s *storage.Store) {
			e, v := p.maintain(i, s, now)
			expired += e
			evicted += v
		})
		if err != nil {
			return expired, evicted, err
		}
	}
	return expired, evicted, nil
}

func (p *Pool) maintain(i int, s *storage.Store, now time.Time) (expired, evicted int) {
	expired = s.ExpireDue(now)
	if p.limit > 0 {
		evicted = s.EvictToCapacity(p.limit)
	}

	p.metrics.Expired(expired)
	p.metrics.Evicted(evicted)
	p.metrics.Keys(i, s.Len())

	if (expired > 0 || evicted > 0) && p.logger.Core().Enabled(zap.DebugLevel) {
		p.logger.Debug("shard maintenance",
			zap.Int("shard", i),
			zap.Int("expired", expired),
			zap.Int("evicted", evicted),
			zap.Int("keys", s.Len()),
		)
	}
	return expired, evicted
}

// maintenanceLoop triggers the active expiration mechanism
func (p *Pool) maintenanceLoop(interval time.Duration) {
	defer p.loop.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := p.Sweep(); err != nil {
				return
			}
		case <-p.stop:
			p.logger.Info("shard maintenance stopped")
			return
		}
	}
}

// Clear drops every entry of every shard
func (p *Pool) Clear() error {
	for i := range p.workers {
		err := p.Do(i, func(s *storage.Store) {
			s.Clear()
			p.metrics.Keys(i, 0)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a summary of each shard, indexed by shard
func (p *Pool) Stats() ([]storage.Stats, error) {
	out := make([]storage.Stats, len(p.workers))
	for i := range p.workers {
		if err := p.Do(i, func(s *storage.Store) { out[i] = s.Stats() }); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Close stops the maintenance loop and the workers after they finish queued work
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.loop.Wait()

		p.mu.Lock()
		p.closed = true
		for _, w := range p.workers {
			close(w.tasks)
		}
		p.mu.Unlock()

		p.running.Wait()
	})
}
