package adapter

import (
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternalApril/mixedds/internal/memcache"
	"github.com/eternalApril/mixedds/internal/storage"
)

func mcGet(keys ...string) memcache.Request {
	req := memcache.Request{Command: "get"}
	for _, k := range keys {
		req.Keys = append(req.Keys, []byte(k))
	}
	return req
}

func mcStore(cmd, key, value string, exptime int64) memcache.Request {
	return memcache.Request{
		Command: cmd,
		Keys:    [][]byte{[]byte(key)},
		Value:   []byte(value),
		Exptime: exptime,
	}
}

func mcKey(cmd, key string) memcache.Request {
	return memcache.Request{Command: cmd, Keys: [][]byte{[]byte(key)}}
}

func values(kv ...string) memcache.Response {
	items := make([]memcache.Item, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		items = append(items, memcache.Item{Key: kv[i], Value: []byte(kv[i+1])})
	}
	return memcache.MakeValues(items)
}

func status(s string) memcache.Response {
	return memcache.MakeStatus(s)
}

func TestMemcache_BatchedGetSkipsInvalidKeys(t *testing.T) {
	ks, _ := newKeyspace()
	m := newCountingCache()
	a := NewMemcache(m)

	a.Execute(ks, mcStore("set", "a", "1", 0))
	a.Execute(ks, mcStore("set", "b", "2", 0))

	req := mcGet("a", "", "b")
	req.Keys[1] = []byte{0xff, 'k', 'e', 'y'}

	assert.Equal(t, values("a", "1", "b", "2"), a.Execute(ks, req))
	assert.Equal(t, 2, m.get("hit"))
	assert.Equal(t, 1, m.get("input_error"))
}

func TestMemcache_GetOrderAndMisses(t *testing.T) {
	ks, _ := newKeyspace()
	a := NewMemcache(nil)

	a.Execute(ks, mcStore("set", "x", "hello", 0))
	a.Execute(ks, mcStore("set", "y", "-42", 0))

	assert.Equal(t, values("y", "-42", "x", "hello", "x", "hello"), a.Execute(ks, mcGet("y", "nope", "x", "x")))
	assert.Equal(t, values(), a.Execute(ks, mcGet("nope")))
}

func TestMemcache_GetStructuredValue(t *testing.T) {
	ks, _ := newKeyspace()
	a := NewMemcache(nil)

	_, err := ks.Push("list", storage.Back, storage.StringScalar("x"))
	require.NoError(t, err)

	res := a.Execute(ks, mcGet("list"))
	assert.Equal(t, memcache.KindServerError, res.Kind)
	assert.Contains(t, res.Message, "list")
}

func TestMemcache_StorageCommands(t *testing.T) {
	tests := []struct {
		name string
		req  memcache.Request
		want memcache.Response
		get  memcache.Response
	}{
		{"set new", mcStore("set", "k", "v", 0), status(memcache.StatusStored), values("k", "v")},
		{"set existing", mcStore("set", "old", "v", 0), status(memcache.StatusStored), values("old", "v")},
		{"add new", mcStore("add", "k", "v", 0), status(memcache.StatusStored), values("k", "v")},
		{"add existing", mcStore("add", "old", "v", 0), status(memcache.StatusNotStored), values("old", "orig")},
		{"replace missing", mcStore("replace", "k", "v", 0), status(memcache.StatusNotStored), values()},
		{"replace existing", mcStore("replace", "old", "v", 0), status(memcache.StatusStored), values("old", "v")},
		{"negative exptime", mcStore("set", "old", "v", -1), status(memcache.StatusStored), values()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, _ := newKeyspace()
			a := NewMemcache(nil)
			require.Equal(t, status(memcache.StatusStored), a.Execute(ks, mcStore("set", "old", "orig", 0)))

			assert.Equal(t, tt.want, a.Execute(ks, tt.req))
			assert.Equal(t, tt.get, a.Execute(ks, mcGet(string(tt.req.Key()))))
		})
	}
}

func TestMemcache_RejectsInvalidUTF8(t *testing.T) {
	tests := []struct {
		name string
		req  memcache.Request
		want memcache.Response
	}{
		{
			name: "set key",
			req:  memcache.Request{Command: "set", Keys: [][]byte{{0xff}}, Value: []byte("v")},
			want: memcache.MakeClientError("Only UTF-8 keys are supported"),
		},
		{
			name: "set value",
			req:  memcache.Request{Command: "set", Keys: [][]byte{[]byte("k")}, Value: []byte{0xc0, 0x80}},
			want: memcache.MakeClientError("Only UTF-8 values are supported"),
		},
		{
			name: "delete key",
			req:  memcache.Request{Command: "delete", Keys: [][]byte{{0xff}}},
			want: memcache.MakeClientError("Only UTF-8 keys are supported"),
		},
		{
			name: "unknown",
			req:  memcache.Request{Command: "cas"},
			want: memcache.MakeError(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, _ := newKeyspace()
			a := NewMemcache(nil)
			a.Execute(ks, mcStore("set", "k", "orig", 0))

			assert.Equal(t, tt.want, a.Execute(ks, tt.req))
			assert.Equal(t, values("k", "orig"), a.Execute(ks, mcGet("k")))
		})
	}
}

func TestMemcache_Exptime(t *testing.T) {
	ks, clk := newKeyspace()
	a := NewMemcache(nil)

	a.Execute(ks, mcStore("set", "rel", "v", 10))
	a.Execute(ks, mcStore("set", "abs", "v", clk.Now().Add(time.Hour).Unix()))
	a.Execute(ks, mcStore("set", "past", "v", clk.Now().Add(-time.Hour).Unix()))
	a.Execute(ks, mcStore("set", "forever", "v", 0))

	d, st := ks.Expiry("rel")
	assert.Equal(t, storage.ExpActive, st)
	assert.Equal(t, 10*time.Second, d)

	d, st = ks.Expiry("abs")
	assert.Equal(t, storage.ExpActive, st)
	assert.Equal(t, time.Hour, d)

	_, st = ks.Expiry("past")
	assert.Equal(t, storage.ExpNotFound, st)

	_, st = ks.Expiry("forever")
	assert.Equal(t, storage.ExpNoTimeout, st)

	clk.Advance(10 * time.Second)
	assert.Equal(t, values(), a.Execute(ks, mcGet("rel")))
}

func TestMemcache_Lifetime(t *testing.T) {
	assert.Equal(t, storage.SetOptions{}, lifetime(0))
	assert.Equal(t, storage.SetOptions{TTL: 30 * 24 * time.Hour}, lifetime(maxRelativeExptime))
	assert.Equal(t, storage.SetOptions{ExpireAt: time.Unix(maxRelativeExptime+1, 0)}, lifetime(maxRelativeExptime+1))
	assert.Equal(t, storage.SetOptions{ExpireAt: time.Unix(0, 0)}, lifetime(-5))
	assert.Equal(t, storage.SetOptions{ExpireAt: time.Unix(0, math.MaxInt64)}, lifetime(math.MaxInt64))
}

func TestMemcache_Delete(t *testing.T) {
	ks, _ := newKeyspace()
	m := newCountingCache()
	a := NewMemcache(m)

	a.Execute(ks, mcStore("set", "k", "v", 0))
	assert.Equal(t, status(memcache.StatusDeleted), a.Execute(ks, mcKey("delete", "k")))
	assert.Equal(t, status(memcache.StatusNotFound), a.Execute(ks, mcKey("delete", "k")))
	assert.Equal(t, 1, m.get("delete"))
}

func TestMemcache_IncrDecr(t *testing.T) {
	tests := []struct {
		name  string
		cmd   string
		key   string
		delta uint64
		want  memcache.Response
	}{
		{"incr", "incr", "n", 5, memcache.MakeNumber(15)},
		{"decr", "decr", "n", 3, memcache.MakeNumber(7)},
		{"decr clamps", "decr", "n", 100, memcache.MakeNumber(0)},
		{"decr huge delta", "decr", "n", math.MaxUint64, memcache.MakeNumber(0)},
		{"incr missing", "incr", "nope", 1, status(memcache.StatusNotFound)},
		{"incr text", "incr", "text", 1, memcache.MakeClientError(msgNonNumeric)},
		{"incr negative", "incr", "neg", 1, memcache.MakeClientError(msgNonNumeric)},
		{"incr structured", "incr", "list", 1, memcache.MakeClientError(msgNonNumeric)},
		{"incr overflow", "incr", "max", 1, memcache.MakeClientError("increment would overflow")},
		{"incr huge delta", "incr", "n", math.MaxUint64, memcache.MakeClientError("increment would overflow")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks, _ := newKeyspace()
			a := NewMemcache(nil)
			a.Execute(ks, mcStore("set", "n", "10", 0))
			a.Execute(ks, mcStore("set", "text", "ten", 0))
			a.Execute(ks, mcStore("set", "neg", "-1", 0))
			a.Execute(ks, mcStore("set", "max", strconv.FormatInt(math.MaxInt64, 10), 0))
			_, err := ks.Push("list", storage.Back, storage.IntScalar(1))
			require.NoError(t, err)

			req := mcKey(tt.cmd, tt.key)
			req.Delta = tt.delta
			assert.Equal(t, tt.want, a.Execute(ks, req))
		})
	}
}

func TestMemcache_IncrKeepsTTL(t *testing.T) {
	ks, _ := newKeyspace()
	a := NewMemcache(nil)

	a.Execute(ks, mcStore("set", "n", "1", 60))
	req := mcKey("incr", "n")
	req.Delta = 1
	require.Equal(t, memcache.MakeNumber(2), a.Execute(ks, req))

	d, st := ks.Expiry("n")
	assert.Equal(t, storage.ExpActive, st)
	assert.Equal(t, time.Minute, d)
}

func TestMemcache_Touch(t *testing.T) {
	ks, clk := newKeyspace()
	a := NewMemcache(nil)

	touch := func(key string, exptime int64) memcache.Response {
		req := mcKey("touch", key)
		req.Exptime = exptime
		return a.Execute(ks, req)
	}

	assert.Equal(t, status(memcache.StatusNotFound), touch("nope", 10))

	a.Execute(ks, mcStore("set", "k", "v", 5))
	assert.Equal(t, status(memcache.StatusTouched), touch("k", 100))
	d, _ := ks.Expiry("k")
	assert.Equal(t, 100*time.Second, d)

	assert.Equal(t, status(memcache.StatusTouched), touch("k", clk.Now().Add(time.Hour).Unix()))
	d, _ = ks.Expiry("k")
	assert.Equal(t, time.Hour, d)

	assert.Equal(t, status(memcache.StatusTouched), touch("k", 0))
	_, st := ks.Expiry("k")
	assert.Equal(t, storage.ExpNoTimeout, st)

	// touching an entry without TTL with 0 still finds it
	assert.Equal(t, status(memcache.StatusTouched), touch("k", 0))

	assert.Equal(t, status(memcache.StatusTouched), touch("k", -1))
	assert.Equal(t, values(), a.Execute(ks, mcGet("k")))
}

func TestMemcache_IsWrite(t *testing.T) {
	a := NewMemcache(nil)

	assert.True(t, a.IsWrite("set"))
	assert.True(t, a.IsWrite("incr"))
	assert.False(t, a.IsWrite("get"))
	assert.False(t, a.IsWrite("delete"))
	assert.False(t, a.IsWrite("touch"))
}
