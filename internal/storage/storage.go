package storage

import (
	"errors"
	"time"
)

var (
	// ErrWrongType is returned by structural operations against a key holding another variant
	ErrWrongType = errors.New("operation against a key holding the wrong kind of value")
	// ErrNotInteger is returned by arithmetic on a scalar that is not an integer
	ErrNotInteger = errors.New("value is not an integer or out of range")
	// ErrOverflow is returned when arithmetic would leave the int64 range
	ErrOverflow = errors.New("increment or decrement would overflow")
)

// ExpiryStatus describes the lifetime of a key as reported by Expiry
type ExpiryStatus int

const (
	// ExpNotFound means that the key does not exist
	ExpNotFound ExpiryStatus = -2
	// ExpNoTimeout means that the key exists, but it does not have a TTL
	ExpNoTimeout ExpiryStatus = -1
	// ExpActive means that the key has an active lifetime
	ExpActive ExpiryStatus = 1
)

// Stats is a point-in-time summary of a store
type Stats struct {
	Keys      int       // entries physically present, expired-but-unswept included
	Expiring  int       // entries carrying a TTL
	IndexSize int       // expiration records, stale ones included
	Horizon   time.Time // latest live expiration, zero if no entry has a TTL
}

// Option configures a Store created by New
type Option func(*Store)

// WithClock replaces time.Now as the source of the current time
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCapacityHint presizes the key map. Non-positive hints keep the default size
func WithCapacityHint(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.data = make(map[string]*entry, n)
		}
	}
}
