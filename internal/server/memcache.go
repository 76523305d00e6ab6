package server

import (
	"sync"

	"go.uber.org/zap"

	"github.com/eternalApril/mixedds/internal/adapter"
	"github.com/eternalApril/mixedds/internal/memcache"
	"github.com/eternalApril/mixedds/internal/metrics"
	"github.com/eternalApril/mixedds/internal/shard"
	"github.com/eternalApril/mixedds/internal/storage"
)

// MemcacheEngine coordinates the execution of memcache requests over the shard pool
type MemcacheEngine struct {
	pool    *shard.Pool
	adapter *adapter.Memcache
	logger  *zap.Logger
}

// NewMemcacheEngine creates an engine executing memcache requests on pool
func NewMemcacheEngine(pool *shard.Pool, m metrics.Cache, logger *zap.Logger) *MemcacheEngine {
	return &MemcacheEngine{
		pool:    pool,
		adapter: adapter.NewMemcache(m),
		logger:  logger,
	}
}

// Execute runs a request. quit is a connection matter and never reaches the engine
func (e *MemcacheEngine) Execute(req memcache.Request) memcache.Response {
	if e.logger.Core().Enabled(zap.DebugLevel) {
		e.logger.Debug("executing memcache command",
			zap.String("cmd", req.Command),
			zap.Int("keys", len(req.Keys)),
		)
	}

	switch req.Command {
	case "flush_all":
		// a delayed flush is executed immediately
		if err := e.pool.Clear(); err != nil {
			return memcache.MakeServerError(err.Error())
		}
		return memcache.MakeStatus(memcache.StatusOK)
	case "version":
		return memcache.MakeStatus("VERSION " + Version)
	}

	if reply, ok := e.adapter.Validate(req); !ok {
		return reply
	}

	if req.Command == "get" || req.Command == "gets" {
		return e.get(req)
	}
	return e.run(e.pool.Shard(req.Key()), req)
}

// get splits a retrieval by shard and restores the request order of the hits
func (e *MemcacheEngine) get(req memcache.Request) memcache.Response {
	type group struct {
		shard int
		req   memcache.Request
		reply memcache.Response
	}

	var groups []group
	index := make(map[int]int, e.pool.Len())
	owner := make([]int, len(req.Keys))
	for i, key := range req.Keys {
		sh := e.pool.Shard(key)
		g, ok := index[sh]
		if !ok {
			g = len(groups)
			index[sh] = g
			groups = append(groups, group{shard: sh, req: memcache.Request{Command: req.Command}})
		}
		groups[g].req.Keys = append(groups[g].req.Keys, key)
		owner[i] = g
	}

	if len(groups) == 1 {
		return e.run(groups[0].shard, req)
	}

	var wg sync.WaitGroup
	for i := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			groups[i].reply = e.run(groups[i].shard, groups[i].req)
		}()
	}
	wg.Wait()

	for _, g := range groups {
		if g.reply.Kind != memcache.KindValues {
			return g.reply
		}
	}

	// each shard answers its keys in order, skipping misses
	items := make([]memcache.Item, 0, len(req.Keys))
	cursor := make([]int, len(groups))
	for i, key := range req.Keys {
		g := owner[i]
		hits := groups[g].reply.Items
		if cursor[g] < len(hits) && hits[cursor[g]].Key == string(key) {
			items = append(items, hits[cursor[g]])
			cursor[g]++
		}
	}
	return memcache.MakeValues(items)
}

func (e *MemcacheEngine) run(sh int, req memcache.Request) memcache.Response {
	do := e.pool.Do
	if e.adapter.IsWrite(req.Command) {
		do = e.pool.DoWrite
	}

	var reply memcache.Response
	err := do(sh, func(s *storage.Store) {
		reply = e.adapter.Execute(s, req)
	})
	if err != nil {
		e.logger.Warn("shard unavailable", zap.Int("shard", sh), zap.Error(err))
		return memcache.MakeServerError("server is shutting down")
	}
	return reply
}
