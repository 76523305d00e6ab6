package server

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/mixedds/internal/adapter"
	"github.com/eternalApril/mixedds/internal/metrics"
	"github.com/eternalApril/mixedds/internal/resp"
	"github.com/eternalApril/mixedds/internal/shard"
	"github.com/eternalApril/mixedds/internal/storage"
)

// Version is reported by INFO and the memcache version command
const Version = "0.3.0"

// Engine coordinates the execution of RESP commands over the shard pool
type Engine struct {
	commands map[string]command // Server commands (the key is the command name in uppercase)
	pool     *shard.Pool
	adapter  *adapter.RESP
	logger   *zap.Logger
	started  time.Time
}

// NewEngine initializes the engine and registers the server commands.
// Key-bearing commands are executed by the RESP adapter on the owning shard
func NewEngine(pool *shard.Pool, m metrics.Cache, logger *zap.Logger) *Engine {
	engine := Engine{
		commands: make(map[string]command),
		pool:     pool,
		adapter:  adapter.NewRESP(m),
		logger:   logger,
		started:  time.Now(),
	}
	engine.registerBasicCommand()

	return &engine
}

// register adds a new command to the engine. The command name is uppercase
func (e *Engine) register(name string, cmd command) {
	e.commands[strings.ToUpper(name)] = cmd
}

// registerBasicCommand fills the registry with the commands that are not bound to a key
func (e *Engine) registerBasicCommand() {
	e.register("PING", commandFunc(ping))
	e.register("COMMAND", commandFunc(cmd))
	e.register("FLUSHALL", commandFunc(flushall))
	e.register("DBSIZE", commandFunc(dbsize))
	e.register("INFO", commandFunc(info))
}

// part is the slice of a multi-key request that lands on one shard
type part struct {
	shard     int
	positions []int // indexes into the original arguments
	reply     resp.Value
}

// Execute finds the command by name and executes it with the passed arguments.
// Requests addressing keys on several shards are split, executed per shard and merged
func (e *Engine) Execute(name string, args []resp.Value) resp.Value {
	name = strings.ToUpper(name)

	if e.logger.Core().Enabled(zap.DebugLevel) {
		// Log the command name and number of args
		e.logger.Debug("executing command",
			zap.String("cmd", name),
			zap.Int("args_count", len(args)),
		)
	}

	if cmd, ok := e.commands[name]; ok {
		return cmd.execute(&cmdContext{args: args, engine: e})
	}

	// reject before any shard is touched
	if reply, ok := e.adapter.Validate(name, args); !ok {
		return reply
	}

	parts := e.partition(args, e.adapter.KeyPositions(name, len(args)))
	if len(parts) == 1 {
		return e.run(parts[0].shard, name, args)
	}

	// multi-shard commands take keys only, so each shard gets the keys it owns
	var wg sync.WaitGroup
	for i := range parts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub := make([]resp.Value, len(parts[i].positions))
			for j, pos := range parts[i].positions {
				sub[j] = args[pos]
			}
			parts[i].reply = e.run(parts[i].shard, name, sub)
		}()
	}
	wg.Wait()

	return merge(parts, len(args))
}

// partition groups key positions by shard in order of first appearance
func (e *Engine) partition(args []resp.Value, positions []int) []part {
	if len(positions) == 0 {
		return []part{{shard: 0}}
	}

	var parts []part
	index := make(map[int]int, e.pool.Len())
	for _, pos := range positions {
		sh := e.pool.Shard(args[pos].String)
		i, ok := index[sh]
		if !ok {
			i = len(parts)
			index[sh] = i
			parts = append(parts, part{shard: sh})
		}
		parts[i].positions = append(parts[i].positions, pos)
	}
	return parts
}

// run executes the command on one shard
func (e *Engine) run(sh int, name string, args []resp.Value) resp.Value {
	do := e.pool.Do
	if e.adapter.IsWrite(name) {
		do = e.pool.DoWrite
	}

	var reply resp.Value
	err := do(sh, func(s *storage.Store) {
		reply = e.adapter.Execute(s, name, args)
	})
	if err != nil {
		e.logger.Warn("shard unavailable", zap.Int("shard", sh), zap.Error(err))
		return resp.MakeError("ERR server is shutting down")
	}
	return reply
}

// merge combines per-shard replies: integers are summed, arrays are put back in key order
func merge(parts []part, n int) resp.Value {
	for _, p := range parts {
		if p.reply.Type == resp.TypeError {
			return p.reply
		}
	}

	switch parts[0].reply.Type {
	case resp.TypeInteger:
		var sum int64
		for _, p := range parts {
			sum += p.reply.Integer
		}
		return resp.MakeInteger(sum)

	case resp.TypeArray:
		out := make([]resp.Value, n)
		for _, p := range parts {
			for j, pos := range p.positions {
				out[pos] = p.reply.Array[j]
			}
		}
		return resp.MakeArray(out)
	}

	return resp.MakeError("ERR cannot combine replies from several shards")
}

// stats aggregates the summaries of every shard
func (e *Engine) stats() (storage.Stats, error) {
	shards, err := e.pool.Stats()
	if err != nil {
		return storage.Stats{}, err
	}

	var total storage.Stats
	for _, st := range shards {
		total.Keys += st.Keys
		total.Expiring += st.Expiring
		total.IndexSize += st.IndexSize
		if st.Horizon.After(total.Horizon) {
			total.Horizon = st.Horizon
		}
	}
	return total, nil
}
