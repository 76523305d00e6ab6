// Package adapter translates decoded protocol requests into store operations.
//
// Adapters hold no per-request state: every call receives the Keyspace it runs against,
// so one adapter value serves all shards.
package adapter

import (
	"time"

	"github.com/eternalApril/mixedds/internal/storage"
)

// Keyspace is the set of store capabilities the adapters are written against
type Keyspace interface {
	Get(key string) (storage.Value, bool)
	SetWith(key string, value storage.Value, opts storage.SetOptions) bool
	Delete(key string) bool

	Push(key string, end storage.End, items ...storage.Scalar) (int, error)
	Pop(key string, end storage.End) (storage.Scalar, bool, error)
	FieldGet(key, field string) (storage.Scalar, bool, error)
	FieldSet(key, field string, value storage.Scalar) (bool, error)
	IncrBy(key string, delta int64) (int64, error)

	Expiry(key string) (time.Duration, storage.ExpiryStatus)
	Expire(key string, ttl time.Duration) bool
	ExpireAt(key string, at time.Time) bool
	Persist(key string) bool
}

var _ Keyspace = (*storage.Store)(nil)

const (
	ProtocolRESP     = "resp"
	ProtocolMemcache = "memcache"
)

const (
	msgInvalidKey   = "Only UTF-8 keys are supported"
	msgInvalidValue = "Only UTF-8 values are supported"
)
