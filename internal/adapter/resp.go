package adapter

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eternalApril/mixedds/internal/metrics"
	"github.com/eternalApril/mixedds/internal/resp"
	"github.com/eternalApril/mixedds/internal/storage"
)

type respHandler func(a *RESP, ks Keyspace, args [][]byte) resp.Value

type respCommand struct {
	handler respHandler
	arity   int  // includes the command name, negative means "at least"
	keys    int  // leading arguments holding keys, -1 means all of them
	values  int  // arguments after the keys holding values, -1 means all of them
	lenient bool // invalid keys are answered per key instead of rejecting the request
	write   bool
}

var respCommands = map[string]respCommand{
	"GET":     {handler: (*RESP).get, arity: 2, keys: 1},
	"SET":     {handler: (*RESP).set, arity: -3, keys: 1, values: 1, write: true},
	"DEL":     {handler: (*RESP).del, arity: -2, keys: -1, write: true},
	"EXISTS":  {handler: (*RESP).exists, arity: -2, keys: -1},
	"MGET":    {handler: (*RESP).mget, arity: -2, keys: -1, lenient: true},
	"INCR":    {handler: (*RESP).incr, arity: 2, keys: 1, write: true},
	"DECR":    {handler: (*RESP).decr, arity: 2, keys: 1, write: true},
	"INCRBY":  {handler: (*RESP).incrBy, arity: 3, keys: 1, write: true},
	"DECRBY":  {handler: (*RESP).decrBy, arity: 3, keys: 1, write: true},
	"LPUSH":   {handler: (*RESP).lpush, arity: -3, keys: 1, values: -1, write: true},
	"RPUSH":   {handler: (*RESP).rpush, arity: -3, keys: 1, values: -1, write: true},
	"LPOP":    {handler: (*RESP).lpop, arity: 2, keys: 1, write: true},
	"RPOP":    {handler: (*RESP).rpop, arity: 2, keys: 1, write: true},
	"HSET":    {handler: (*RESP).hset, arity: -4, keys: 1, values: -1, write: true},
	"HGET":    {handler: (*RESP).hget, arity: 3, keys: 1, values: 1},
	"TTL":     {handler: (*RESP).ttl, arity: 2, keys: 1},
	"PTTL":    {handler: (*RESP).pttl, arity: 2, keys: 1},
	"PERSIST": {handler: (*RESP).persist, arity: 2, keys: 1, write: true},
	"EXPIRE":  {handler: (*RESP).expire, arity: 3, keys: 1, write: true},
}

func errWrongType() resp.Value {
	return resp.MakeError("WRONGTYPE Operation against a key holding the wrong kind of value")
}

func errSyntax() resp.Value {
	return resp.MakeError("ERR syntax error")
}

func errNotInteger() resp.Value {
	return resp.MakeError("ERR value is not an integer or out of range")
}

func errInvalidExpire(cmd string) resp.Value {
	return resp.MakeError(fmt.Sprintf("ERR invalid expire time in '%s' command", cmd))
}

// RESP executes the key-bearing commands of the RESP family
type RESP struct {
	metrics metrics.Cache
}

// NewRESP creates a RESP adapter reporting to m. A nil m discards events
func NewRESP(m metrics.Cache) *RESP {
	if m == nil {
		m = metrics.Nop()
	}
	return &RESP{metrics: m}
}

// Supports reports whether the adapter knows the command
func (a *RESP) Supports(name string) bool {
	_, ok := respCommands[strings.ToUpper(name)]
	return ok
}

// Commands returns the names of the supported commands in sorted order
func (a *RESP) Commands() []string {
	names := make([]string, 0, len(respCommands))
	for name := range respCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Arity returns the argument count of the command, name included. Negative means "at least"
func (a *RESP) Arity(name string) (int, bool) {
	cmd, ok := respCommands[strings.ToUpper(name)]
	return cmd.arity, ok
}

// KeyPositions returns the indexes of the keys within args (the arguments after the name).
// Requests are routed to shards by these keys
func (a *RESP) KeyPositions(name string, args int) []int {
	cmd, ok := respCommands[strings.ToUpper(name)]
	if !ok {
		return nil
	}

	n := cmd.keys
	if n < 0 || n > args {
		n = args
	}
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// IsWrite reports whether the command may add entries to the keyspace
func (a *RESP) IsWrite(name string) bool {
	return respCommands[strings.ToUpper(name)].write
}

// Validate checks the argument count and encoding of a request without touching any store.
// On rejection it returns the error reply and false
func (a *RESP) Validate(name string, args []resp.Value) (resp.Value, bool) {
	name = strings.ToUpper(name)
	cmd, ok := respCommands[name]
	if !ok {
		a.metrics.InputError(ProtocolRESP)
		return resp.MakeError(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(name))), false
	}

	n := len(args) + 1
	if (cmd.arity > 0 && n != cmd.arity) || (cmd.arity < 0 && n < -cmd.arity) {
		a.metrics.InputError(ProtocolRESP)
		return resp.MakeErrorWrongNumberOfArguments(strings.ToLower(name)), false
	}
	if cmd.lenient {
		return resp.Value{}, true
	}

	keys := cmd.keys
	if keys < 0 || keys > len(args) {
		keys = len(args)
	}
	for _, k := range args[:keys] {
		if !utf8.Valid(k.String) {
			a.metrics.InputError(ProtocolRESP)
			return resp.MakeError("ERR " + msgInvalidKey), false
		}
	}

	values := args[keys:]
	if cmd.values >= 0 && cmd.values < len(values) {
		values = values[:cmd.values]
	}
	for _, v := range values {
		if !utf8.Valid(v.String) {
			a.metrics.InputError(ProtocolRESP)
			return resp.MakeError("ERR " + msgInvalidValue), false
		}
	}

	return resp.Value{}, true
}

// Execute runs one command against ks. The request is validated first and a rejected
// request leaves ks untouched
func (a *RESP) Execute(ks Keyspace, name string, args []resp.Value) resp.Value {
	if reply, ok := a.Validate(name, args); !ok {
		return reply
	}

	raw := make([][]byte, len(args))
	for i := range args {
		raw[i] = args[i].String
	}
	return respCommands[strings.ToUpper(name)].handler(a, ks, raw)
}

func (a *RESP) get(ks Keyspace, args [][]byte) resp.Value {
	v, ok := ks.Get(string(args[0]))
	if !ok {
		a.metrics.Miss(ProtocolRESP)
		return resp.MakeNilBulkString()
	}
	s, ok := v.Scalar()
	if !ok {
		a.metrics.TypeMismatch(ProtocolRESP)
		return errWrongType()
	}
	a.metrics.Hit(ProtocolRESP)
	return resp.MakeBulkBytes(s.AppendTo(nil))
}

func (a *RESP) set(ks Keyspace, args [][]byte) resp.Value {
	opts, reply, ok := parseSetOptions(args[2:])
	if !ok {
		a.metrics.InputError(ProtocolRESP)
		return reply
	}

	value := storage.ScalarValue(storage.ParseScalar(string(args[1])))
	if !ks.SetWith(string(args[0]), value, opts) {
		return resp.MakeNilBulkString()
	}
	a.metrics.Write(ProtocolRESP)
	return resp.MakeSimpleString("OK")
}

// parseSetOptions parses [NX|XX] [EX s|PX ms|EXAT ts|PXAT ts-ms|KEEPTTL]
func parseSetOptions(args [][]byte) (storage.SetOptions, resp.Value, bool) {
	var opts storage.SetOptions
	hasExpire := false

	for i := 0; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "NX":
			if opts.XX {
				return opts, errSyntax(), false
			}
			opts.NX = true

		case "XX":
			if opts.NX {
				return opts, errSyntax(), false
			}
			opts.XX = true

		case "KEEPTTL":
			if hasExpire {
				return opts, errSyntax(), false
			}
			opts.KeepTTL = true

		case "EX", "PX", "EXAT", "PXAT":
			if hasExpire || opts.KeepTTL || i+1 >= len(args) {
				return opts, errSyntax(), false
			}
			i++
			hasExpire = true

			n, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil {
				return opts, errNotInteger(), false
			}

			unit := time.Second
			if opt == "PX" || opt == "PXAT" {
				unit = time.Millisecond
			}
			if n <= 0 || n > math.MaxInt64/int64(unit) {
				return opts, errInvalidExpire("set"), false
			}

			switch opt {
			case "EX", "PX":
				opts.TTL = time.Duration(n) * unit
			default:
				opts.ExpireAt = time.Unix(0, n*int64(unit))
			}

		default:
			return opts, errSyntax(), false
		}
	}

	return opts, resp.Value{}, true
}

func (a *RESP) del(ks Keyspace, args [][]byte) resp.Value {
	var n int64
	for _, k := range args {
		if ks.Delete(string(k)) {
			a.metrics.Delete(ProtocolRESP)
			n++
		}
	}
	return resp.MakeInteger(n)
}

func (a *RESP) exists(ks Keyspace, args [][]byte) resp.Value {
	var n int64
	for _, k := range args {
		if _, ok := ks.Get(string(k)); ok {
			n++
		}
	}
	return resp.MakeInteger(n)
}

// mget answers null for keys that are missing, hold a structured value or are not UTF-8
func (a *RESP) mget(ks Keyspace, args [][]byte) resp.Value {
	out := make([]resp.Value, len(args))
	for i, k := range args {
		out[i] = resp.MakeNilBulkString()
		if !utf8.Valid(k) {
			a.metrics.InputError(ProtocolRESP)
			continue
		}

		v, ok := ks.Get(string(k))
		if !ok {
			a.metrics.Miss(ProtocolRESP)
			continue
		}
		if s, ok := v.Scalar(); ok {
			a.metrics.Hit(ProtocolRESP)
			out[i] = resp.MakeBulkBytes(s.AppendTo(nil))
		}
	}
	return resp.MakeArray(out)
}

func (a *RESP) incr(ks Keyspace, args [][]byte) resp.Value {
	return a.add(ks, args[0], 1)
}

func (a *RESP) decr(ks Keyspace, args [][]byte) resp.Value {
	return a.add(ks, args[0], -1)
}

func (a *RESP) incrBy(ks Keyspace, args [][]byte) resp.Value {
	n, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		a.metrics.InputError(ProtocolRESP)
		return errNotInteger()
	}
	return a.add(ks, args[0], n)
}

func (a *RESP) decrBy(ks Keyspace, args [][]byte) resp.Value {
	n, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		a.metrics.InputError(ProtocolRESP)
		return errNotInteger()
	}
	if n == math.MinInt64 {
		a.metrics.InputError(ProtocolRESP)
		return resp.MakeError("ERR decrement would overflow")
	}
	return a.add(ks, args[0], -n)
}

func (a *RESP) add(ks Keyspace, key []byte, delta int64) resp.Value {
	n, err := ks.IncrBy(string(key), delta)
	if err != nil {
		return a.storeError(err)
	}
	a.metrics.Write(ProtocolRESP)
	return resp.MakeInteger(n)
}

func (a *RESP) lpush(ks Keyspace, args [][]byte) resp.Value {
	return a.push(ks, storage.Front, args)
}

func (a *RESP) rpush(ks Keyspace, args [][]byte) resp.Value {
	return a.push(ks, storage.Back, args)
}

func (a *RESP) push(ks Keyspace, end storage.End, args [][]byte) resp.Value {
	items := make([]storage.Scalar, len(args)-1)
	for i, v := range args[1:] {
		items[i] = storage.ParseScalar(string(v))
	}

	n, err := ks.Push(string(args[0]), end, items...)
	if err != nil {
		return a.storeError(err)
	}
	a.metrics.Write(ProtocolRESP)
	return resp.MakeInteger(int64(n))
}

func (a *RESP) lpop(ks Keyspace, args [][]byte) resp.Value {
	return a.pop(ks, storage.Front, args[0])
}

func (a *RESP) rpop(ks Keyspace, args [][]byte) resp.Value {
	return a.pop(ks, storage.Back, args[0])
}

func (a *RESP) pop(ks Keyspace, end storage.End, key []byte) resp.Value {
	s, ok, err := ks.Pop(string(key), end)
	if err != nil {
		return a.storeError(err)
	}
	if !ok {
		a.metrics.Miss(ProtocolRESP)
		return resp.MakeNilBulkString()
	}
	a.metrics.Hit(ProtocolRESP)
	a.metrics.Write(ProtocolRESP)
	return resp.MakeBulkBytes(s.AppendTo(nil))
}

func (a *RESP) hset(ks Keyspace, args [][]byte) resp.Value {
	if len(args)%2 != 1 {
		a.metrics.InputError(ProtocolRESP)
		return resp.MakeErrorWrongNumberOfArguments("hset")
	}

	key := string(args[0])
	var added int64
	for i := 1; i < len(args); i += 2 {
		isNew, err := ks.FieldSet(key, string(args[i]), storage.ParseScalar(string(args[i+1])))
		if err != nil {
			return a.storeError(err)
		}
		if isNew {
			added++
		}
	}
	a.metrics.Write(ProtocolRESP)
	return resp.MakeInteger(added)
}

func (a *RESP) hget(ks Keyspace, args [][]byte) resp.Value {
	s, ok, err := ks.FieldGet(string(args[0]), string(args[1]))
	if err != nil {
		return a.storeError(err)
	}
	if !ok {
		a.metrics.Miss(ProtocolRESP)
		return resp.MakeNilBulkString()
	}
	a.metrics.Hit(ProtocolRESP)
	return resp.MakeBulkBytes(s.AppendTo(nil))
}

func (a *RESP) ttl(ks Keyspace, args [][]byte) resp.Value {
	d, status := ks.Expiry(string(args[0]))
	if status != storage.ExpActive {
		return resp.MakeInteger(int64(status))
	}
	// round to the nearest second
	return resp.MakeInteger(int64((d + 500*time.Millisecond) / time.Second))
}

func (a *RESP) pttl(ks Keyspace, args [][]byte) resp.Value {
	d, status := ks.Expiry(string(args[0]))
	if status != storage.ExpActive {
		return resp.MakeInteger(int64(status))
	}
	return resp.MakeInteger(d.Milliseconds())
}

func (a *RESP) persist(ks Keyspace, args [][]byte) resp.Value {
	if !ks.Persist(string(args[0])) {
		return resp.MakeInteger(0)
	}
	a.metrics.Write(ProtocolRESP)
	return resp.MakeInteger(1)
}

func (a *RESP) expire(ks Keyspace, args [][]byte) resp.Value {
	n, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		a.metrics.InputError(ProtocolRESP)
		return errNotInteger()
	}
	if n > math.MaxInt64/int64(time.Second) {
		a.metrics.InputError(ProtocolRESP)
		return errInvalidExpire("expire")
	}

	// a non-positive lifetime deletes the key
	var ttl time.Duration
	if n > 0 {
		ttl = time.Duration(n) * time.Second
	}
	if !ks.Expire(string(args[0]), ttl) {
		return resp.MakeInteger(0)
	}
	a.metrics.Write(ProtocolRESP)
	return resp.MakeInteger(1)
}

// storeError maps a store error to its reply
func (a *RESP) storeError(err error) resp.Value {
	switch {
	case errors.Is(err, storage.ErrWrongType):
		a.metrics.TypeMismatch(ProtocolRESP)
		return errWrongType()
	case errors.Is(err, storage.ErrNotInteger):
		a.metrics.InputError(ProtocolRESP)
		return errNotInteger()
	case errors.Is(err, storage.ErrOverflow):
		a.metrics.InputError(ProtocolRESP)
		return resp.MakeError("ERR increment or decrement would overflow")
	}
	return resp.MakeError("ERR " + err.Error())
}
