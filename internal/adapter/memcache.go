package adapter

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/eternalApril/mixedds/internal/memcache"
	"github.com/eternalApril/mixedds/internal/metrics"
	"github.com/eternalApril/mixedds/internal/storage"
)

// maxRelativeExptime is the largest exptime read as seconds from now; larger values are unix timestamps
const maxRelativeExptime = 60 * 60 * 24 * 30

const msgNonNumeric = "cannot increment or decrement non-numeric value"

// Memcache executes the commands of the memcache text protocol
type Memcache struct {
	metrics metrics.Cache
}

// NewMemcache creates a memcache adapter reporting to m. A nil m discards events
func NewMemcache(m metrics.Cache) *Memcache {
	if m == nil {
		m = metrics.Nop()
	}
	return &Memcache{metrics: m}
}

// IsWrite reports whether the command may add entries to the keyspace
func (a *Memcache) IsWrite(command string) bool {
	switch command {
	case "set", "add", "replace", "incr", "decr":
		return true
	}
	return false
}

// Validate checks the encoding of a request without touching any store.
// Retrieval requests are never rejected: their invalid keys are skipped on execution
func (a *Memcache) Validate(req memcache.Request) (memcache.Response, bool) {
	switch req.Command {
	case "get", "gets":
		return memcache.Response{}, true

	case "set", "add", "replace":
		if !utf8.Valid(req.Key()) {
			a.metrics.InputError(ProtocolMemcache)
			return memcache.MakeClientError(msgInvalidKey), false
		}
		if !utf8.Valid(req.Value) {
			a.metrics.InputError(ProtocolMemcache)
			return memcache.MakeClientError(msgInvalidValue), false
		}
		return memcache.Response{}, true

	case "delete", "incr", "decr", "touch":
		if !utf8.Valid(req.Key()) {
			a.metrics.InputError(ProtocolMemcache)
			return memcache.MakeClientError(msgInvalidKey), false
		}
		return memcache.Response{}, true
	}

	a.metrics.InputError(ProtocolMemcache)
	return memcache.MakeError(), false
}

// Execute runs one request against ks. The request is validated first and a rejected
// request leaves ks untouched
func (a *Memcache) Execute(ks Keyspace, req memcache.Request) memcache.Response {
	if reply, ok := a.Validate(req); !ok {
		return reply
	}

	switch req.Command {
	case "get", "gets":
		return a.get(ks, req.Keys)
	case "set":
		return a.store(ks, req, lifetime(req.Exptime))
	case "add":
		opts := lifetime(req.Exptime)
		opts.NX = true
		return a.store(ks, req, opts)
	case "replace":
		opts := lifetime(req.Exptime)
		opts.XX = true
		return a.store(ks, req, opts)
	case "delete":
		return a.delete(ks, string(req.Key()))
	case "incr":
		return a.arith(ks, string(req.Key()), req.Delta, false)
	case "decr":
		return a.arith(ks, string(req.Key()), req.Delta, true)
	case "touch":
		return a.touch(ks, string(req.Key()), req.Exptime)
	}

	return memcache.MakeError()
}

// get returns the hits in request order. Keys that are not UTF-8 are skipped
func (a *Memcache) get(ks Keyspace, keys [][]byte) memcache.Response {
	items := make([]memcache.Item, 0, len(keys))
	for _, raw := range keys {
		if !utf8.Valid(raw) {
			a.metrics.InputError(ProtocolMemcache)
			continue
		}

		key := string(raw)
		v, ok := ks.Get(key)
		if !ok {
			a.metrics.Miss(ProtocolMemcache)
			continue
		}
		s, ok := v.Scalar()
		if !ok {
			a.metrics.TypeMismatch(ProtocolMemcache)
			return memcache.MakeServerError("key " + key + " holds a " + v.Type().String() + " value")
		}

		a.metrics.Hit(ProtocolMemcache)
		items = append(items, memcache.Item{Key: key, Value: s.AppendTo(nil)})
	}
	return memcache.MakeValues(items)
}

func (a *Memcache) store(ks Keyspace, req memcache.Request, opts storage.SetOptions) memcache.Response {
	value := storage.ScalarValue(storage.ParseScalar(string(req.Value)))
	if !ks.SetWith(string(req.Key()), value, opts) {
		return memcache.MakeStatus(memcache.StatusNotStored)
	}
	a.metrics.Write(ProtocolMemcache)
	return memcache.MakeStatus(memcache.StatusStored)
}

func (a *Memcache) delete(ks Keyspace, key string) memcache.Response {
	if !ks.Delete(key) {
		return memcache.MakeStatus(memcache.StatusNotFound)
	}
	a.metrics.Delete(ProtocolMemcache)
	return memcache.MakeStatus(memcache.StatusDeleted)
}

// arith applies incr or decr. decr stops at zero; incr past the int64 range is rejected
func (a *Memcache) arith(ks Keyspace, key string, delta uint64, decr bool) memcache.Response {
	v, ok := ks.Get(key)
	if !ok {
		a.metrics.Miss(ProtocolMemcache)
		return memcache.MakeStatus(memcache.StatusNotFound)
	}

	s, ok := v.Scalar()
	if !ok {
		a.metrics.TypeMismatch(ProtocolMemcache)
		return memcache.MakeClientError(msgNonNumeric)
	}
	n, ok := s.Int()
	if !ok || n < 0 {
		a.metrics.InputError(ProtocolMemcache)
		return memcache.MakeClientError(msgNonNumeric)
	}

	var diff int64
	switch {
	case decr && delta >= uint64(n):
		diff = -n
	case decr:
		diff = -int64(delta)
	case delta > uint64(math.MaxInt64-n):
		a.metrics.InputError(ProtocolMemcache)
		return memcache.MakeClientError("increment would overflow")
	default:
		diff = int64(delta)
	}

	res, err := ks.IncrBy(key, diff)
	if err != nil {
		return memcache.MakeServerError(err.Error())
	}
	a.metrics.Write(ProtocolMemcache)
	return memcache.MakeNumber(uint64(res))
}

func (a *Memcache) touch(ks Keyspace, key string, exptime int64) memcache.Response {
	var found bool
	opts := lifetime(exptime)

	switch {
	case opts.TTL > 0:
		found = ks.Expire(key, opts.TTL)
	case !opts.ExpireAt.IsZero():
		found = ks.ExpireAt(key, opts.ExpireAt)
	default:
		// exptime 0 makes the entry permanent
		_, status := ks.Expiry(key)
		found = status != storage.ExpNotFound
		if found {
			ks.Persist(key)
		}
	}

	if !found {
		a.metrics.Miss(ProtocolMemcache)
		return memcache.MakeStatus(memcache.StatusNotFound)
	}
	a.metrics.Write(ProtocolMemcache)
	return memcache.MakeStatus(memcache.StatusTouched)
}

// lifetime converts a memcache exptime into store options.
// 0 never expires, a negative value is already expired
func lifetime(exptime int64) storage.SetOptions {
	switch {
	case exptime == 0:
		return storage.SetOptions{}
	case exptime < 0:
		return storage.SetOptions{ExpireAt: time.Unix(0, 0)}
	case exptime <= maxRelativeExptime:
		return storage.SetOptions{TTL: time.Duration(exptime) * time.Second}
	case exptime > math.MaxInt64/int64(time.Second):
		return storage.SetOptions{ExpireAt: time.Unix(0, math.MaxInt64)}
	}
	return storage.SetOptions{ExpireAt: time.Unix(exptime, 0)}
}
