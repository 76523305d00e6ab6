package server

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eternalApril/mixedds/internal/memcache"
	"github.com/eternalApril/mixedds/internal/shard"
)

func setupMemcacheEngine(t *testing.T, shards uint) *MemcacheEngine {
	t.Helper()

	pool, err := shard.New(shard.Config{Shards: shards}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return NewMemcacheEngine(pool, nil, zap.NewNop())
}

func set(t *testing.T, e *MemcacheEngine, key, value string) {
	t.Helper()
	res := e.Execute(memcache.Request{Command: "set", Keys: [][]byte{[]byte(key)}, Value: []byte(value)})
	require.Equal(t, memcache.StatusStored, res.Status)
}

func TestMemcacheEngine_GetAcrossShards(t *testing.T) {
	e := setupMemcacheEngine(t, 8)

	var keys [][]byte
	shards := make(map[int]struct{})
	for i := 0; i < 24; i++ {
		key := fmt.Sprintf("mc:%d", i)
		keys = append(keys, []byte(key))
		shards[e.pool.Shard([]byte(key))] = struct{}{}
		if i%3 != 0 {
			set(t, e, key, "v"+key)
		}
	}
	require.Greater(t, len(shards), 1)

	// a repeated key is answered once per occurrence
	keys = append(keys, []byte("mc:1"))

	res := e.Execute(memcache.Request{Command: "get", Keys: keys})
	require.Equal(t, memcache.KindValues, res.Kind)

	var want []string
	for _, k := range keys {
		var n int
		_, _ = fmt.Sscanf(string(k), "mc:%d", &n)
		if n%3 != 0 {
			want = append(want, string(k))
		}
	}

	got := make([]string, len(res.Items))
	for i, it := range res.Items {
		got[i] = it.Key
		assert.Equal(t, "v"+it.Key, string(it.Value))
	}
	assert.Equal(t, want, got)
}

func TestMemcacheEngine_FlushAndVersion(t *testing.T) {
	e := setupMemcacheEngine(t, 4)

	set(t, e, "a", "1")
	set(t, e, "b", "2")

	res := e.Execute(memcache.Request{Command: "flush_all", Exptime: 10})
	assert.Equal(t, memcache.StatusOK, res.Status)

	res = e.Execute(memcache.Request{Command: "get", Keys: [][]byte{[]byte("a"), []byte("b")}})
	assert.Empty(t, res.Items)

	res = e.Execute(memcache.Request{Command: "version"})
	assert.Equal(t, "VERSION "+Version, res.Status)
}

func TestMemcacheEngine_StructuredValue(t *testing.T) {
	e := setupMemcacheEngine(t, 4)
	respEngine := NewEngine(e.pool, nil, zap.NewNop())

	respEngine.Execute("RPUSH", makeCommand("RPUSH", "list", "a"))
	set(t, e, "plain", "1")

	res := e.Execute(memcache.Request{Command: "get", Keys: [][]byte{[]byte("plain"), []byte("list")}})
	assert.Equal(t, memcache.KindServerError, res.Kind)
	assert.Contains(t, res.Message, "list")
}

func TestMemcacheEngine_Arith(t *testing.T) {
	e := setupMemcacheEngine(t, 2)

	res := e.Execute(memcache.Request{Command: "incr", Keys: [][]byte{[]byte("n")}, Delta: 1})
	assert.Equal(t, memcache.StatusNotFound, res.Status)

	set(t, e, "n", "10")
	res = e.Execute(memcache.Request{Command: "incr", Keys: [][]byte{[]byte("n")}, Delta: 5})
	require.Equal(t, memcache.KindNumber, res.Kind)
	assert.Equal(t, uint64(15), res.Number)

	res = e.Execute(memcache.Request{Command: "decr", Keys: [][]byte{[]byte("n")}, Delta: 100})
	require.Equal(t, memcache.KindNumber, res.Kind)
	assert.Equal(t, uint64(0), res.Number)
}
