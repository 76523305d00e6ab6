package storage

import (
	"math"
	"time"

	"github.com/gammazero/deque"
)

// compactSlack is how many stale records the index and the arrival queue may carry
// beyond twice the number of entries they track before they are rebuilt
const compactSlack = 64

// arrival remembers when a key without a TTL was written, for capacity eviction order
type arrival struct {
	key     string
	version uint64
}

// SetOptions controls a conditional write
type SetOptions struct {
	TTL      time.Duration // key lifetime. 0 means no TTL
	ExpireAt time.Time     // absolute expiration, takes precedence over TTL when set
	KeepTTL  bool          // retain the existing TTL (ignore TTL and ExpireAt)
	NX       bool          // only set if the key does not exist
	XX       bool          // only set if the key already exists
}

// Store is a mixed-type key-value store with TTL expiration and capacity eviction.
//
// Store does no locking: it must be owned by a single goroutine. Deployments that need
// parallelism run one Store per shard.
type Store struct {
	data     map[string]*entry
	index    *ExpirationIndex
	arrivals *deque.Deque[arrival]
	now      func() time.Time
	version  uint64 // last version handed out, never reused
	expiring int    // entries carrying a TTL
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		data:     make(map[string]*entry, 1024),
		index:    NewExpirationIndex(),
		arrivals: new(deque.Deque[arrival]),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of entries held, including expired entries not yet swept
func (s *Store) Len() int {
	return len(s.data)
}

// Get returns the value and true if the key is found and not expired.
// An expired entry found on the way is removed
func (s *Store) Get(key string) (Value, bool) {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil {
		return Value{}, false
	}
	return e.value, true
}

// Set unconditionally overwrites key with value. ttl <= 0 means the entry never expires
func (s *Store) Set(key string, value Value, ttl time.Duration) {
	s.SetWith(key, value, SetOptions{TTL: ttl})
}

// SetWith writes the value based on the options. Returns true if recording has been performed.
// An expiration already in the past removes the key
func (s *Store) SetWith(key string, value Value, opts SetOptions) bool {
	now := s.now().UnixNano()
	old := s.lookup(key, now)

	if opts.NX && old != nil {
		return false
	}
	if opts.XX && old == nil {
		return false
	}

	var expireAt int64
	hasExp := false

	switch {
	case opts.KeepTTL:
		if old != nil && old.expireAt != 0 {
			expireAt, hasExp = old.expireAt, true
		}
	case !opts.ExpireAt.IsZero():
		expireAt, hasExp = opts.ExpireAt.UnixNano(), true
	case opts.TTL > 0:
		expireAt, hasExp = deadline(now, opts.TTL), true
	}

	if hasExp && expireAt <= now {
		if old != nil {
			s.remove(key, old)
		}
		return true
	}

	s.install(key, value, expireAt)
	return true
}

// Delete deletes the key. Returns true if a live key existed and was deleted
func (s *Store) Delete(key string) bool {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil {
		return false
	}
	s.remove(key, e)
	return true
}

// Push appends scalars to one end of the Sequence at key, creating it if absent.
// Returns the resulting length
func (s *Store) Push(key string, end End, items ...Scalar) (int, error) {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil {
		e = s.install(key, SequenceValue(), 0)
	}
	if e.value.kind != TypeSequence {
		return 0, ErrWrongType
	}

	for _, it := range items {
		if end == Front {
			e.value.seq.PushFront(it)
		} else {
			e.value.seq.PushBack(it)
		}
	}

	// pushing nothing into a fresh key must not leave an empty sequence behind
	if e.value.seq.Len() == 0 {
		s.remove(key, e)
		return 0, nil
	}

	return e.value.seq.Len(), nil
}

// Pop removes a scalar from one end of the Sequence at key.
// The key is removed when its last element is popped
func (s *Store) Pop(key string, end End) (Scalar, bool, error) {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil {
		return Scalar{}, false, nil
	}
	if e.value.kind != TypeSequence {
		return Scalar{}, false, ErrWrongType
	}
	if e.value.seq.Len() == 0 {
		s.remove(key, e)
		return Scalar{}, false, nil
	}

	var it Scalar
	if end == Front {
		it = e.value.seq.PopFront()
	} else {
		it = e.value.seq.PopBack()
	}

	if e.value.seq.Len() == 0 {
		s.remove(key, e)
	}

	return it, true, nil
}

// FieldGet returns the scalar stored under field in the Fields value at key
func (s *Store) FieldGet(key, field string) (Scalar, bool, error) {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil {
		return Scalar{}, false, nil
	}
	if e.value.kind != TypeFields {
		return Scalar{}, false, ErrWrongType
	}
	it, ok := e.value.fields[field]
	return it, ok, nil
}

// FieldSet stores a scalar under field in the Fields value at key, creating it if absent.
// Returns true if the field is new
func (s *Store) FieldSet(key, field string, value Scalar) (bool, error) {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil {
		e = s.install(key, FieldsValue(nil), 0)
	}
	if e.value.kind != TypeFields {
		return false, ErrWrongType
	}
	_, existed := e.value.fields[field]
	e.value.fields[field] = value
	return !existed, nil
}

// IncrBy adds delta to the integer scalar at key, creating it as 0 if absent.
// The entry keeps its TTL
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil {
		s.install(key, ScalarValue(IntScalar(delta)), 0)
		return delta, nil
	}
	if e.value.kind != TypeScalar {
		return 0, ErrWrongType
	}

	n, ok := e.value.scalar.Int()
	if !ok {
		return 0, ErrNotInteger
	}
	if (delta > 0 && n > math.MaxInt64-delta) || (delta < 0 && n < math.MinInt64-delta) {
		return 0, ErrOverflow
	}

	n += delta
	e.value.scalar = IntScalar(n)
	return n, nil
}

// Expiry returns the remaining lifetime and status as ExpiryStatus
func (s *Store) Expiry(key string) (time.Duration, ExpiryStatus) {
	now := s.now().UnixNano()
	e := s.lookup(key, now)
	if e == nil {
		return 0, ExpNotFound
	}
	if e.expireAt == 0 {
		return 0, ExpNoTimeout
	}
	return time.Duration(e.expireAt - now), ExpActive
}

// Expire gives an existing key a new lifetime. ttl <= 0 deletes the key.
// Returns false if the key does not exist
func (s *Store) Expire(key string, ttl time.Duration) bool {
	now := s.now().UnixNano()
	if ttl <= 0 {
		return s.expireAt(key, now, now)
	}
	return s.expireAt(key, deadline(now, ttl), now)
}

// ExpireAt sets an absolute expiration on an existing key. A time at or before now
// deletes the key. Returns false if the key does not exist
func (s *Store) ExpireAt(key string, at time.Time) bool {
	return s.expireAt(key, at.UnixNano(), s.now().UnixNano())
}

func (s *Store) expireAt(key string, at, now int64) bool {
	e := s.lookup(key, now)
	if e == nil {
		return false
	}
	if at <= now {
		s.remove(key, e)
		return true
	}

	s.untrack(e)
	e.expireAt = at
	s.version++
	e.version = s.version
	s.track(key, e)
	return true
}

// Persist removes the expiration date of the key, making it eternal.
// Returns false if the key was not found or had no TTL
func (s *Store) Persist(key string) bool {
	e := s.lookup(key, s.now().UnixNano())
	if e == nil || e.expireAt == 0 {
		return false
	}

	s.untrack(e)
	e.expireAt = 0
	s.version++
	e.version = s.version
	s.track(key, e)
	return true
}

// ExpireDue removes every entry whose expiration is at or before now and
// returns how many were removed
func (s *Store) ExpireDue(now time.Time) int {
	limit := now.UnixNano()
	removed := 0

	for {
		rec, ok := s.peekMin()
		if !ok || rec.ExpireAt > limit {
			break
		}
		s.index.PopMin()
		s.remove(rec.Key, s.data[rec.Key])
		removed++
	}

	s.compactIndex()
	return removed
}

// EvictToCapacity removes entries until at most limit remain and returns how many were removed.
// Entries closest to expiring go first; once no entry has a TTL, the oldest writes go
func (s *Store) EvictToCapacity(limit int) int {
	if limit < 0 {
		limit = 0
	}
	evicted := 0

	for len(s.data) > limit {
		if rec, ok := s.peekMin(); ok {
			s.index.PopMin()
			s.remove(rec.Key, s.data[rec.Key])
			evicted++
			continue
		}
		if a, ok := s.popArrival(); ok {
			s.remove(a.key, s.data[a.key])
			evicted++
			continue
		}
		break
	}

	return evicted
}

// Clear drops every entry and index record
func (s *Store) Clear() {
	s.data = make(map[string]*entry, 1024)
	s.index.Reset()
	s.arrivals.Clear()
	s.expiring = 0
}

// Stats returns a summary of the store
func (s *Store) Stats() Stats {
	var horizon time.Time
	if rec, ok := s.peekMax(); ok {
		horizon = time.Unix(0, rec.ExpireAt)
	}
	return Stats{
		Keys:      len(s.data),
		Expiring:  s.expiring,
		IndexSize: s.index.Len(),
		Horizon:   horizon,
	}
}

// lookup returns the live entry for key, removing it if it has expired
func (s *Store) lookup(key string, now int64) *entry {
	e, ok := s.data[key]
	if !ok {
		return nil
	}
	if e.expired(now) {
		s.remove(key, e)
		return nil
	}
	return e
}

// install replaces whatever is stored at key with a fresh entry under a new version
func (s *Store) install(key string, value Value, expireAt int64) *entry {
	if old, ok := s.data[key]; ok {
		s.remove(key, old)
	}

	s.version++
	e := &entry{
		value:    value,
		expireAt: expireAt,
		version:  s.version,
	}
	s.data[key] = e
	s.track(key, e)
	return e
}

// remove drops the entry. Its index or arrival record turns stale and is discarded lazily
func (s *Store) remove(key string, e *entry) {
	delete(s.data, key)
	s.untrack(e)
}

func (s *Store) track(key string, e *entry) {
	if e.expireAt != 0 {
		s.expiring++
		s.index.Push(Record{Key: key, ExpireAt: e.expireAt, Version: e.version})
		s.compactIndex()
		return
	}
	s.arrivals.PushBack(arrival{key: key, version: e.version})
	s.compactArrivals()
}

func (s *Store) untrack(e *entry) {
	if e.expireAt != 0 {
		s.expiring--
	}
}

// current reports whether rec still describes the live expiration of its key
func (s *Store) current(rec Record) bool {
	e, ok := s.data[rec.Key]
	return ok && e.version == rec.Version && e.expireAt != 0
}

// peekMin returns the soonest current record, discarding stale ones on the way
func (s *Store) peekMin() (Record, bool) {
	for {
		rec, ok := s.index.PeekMin()
		if !ok {
			return Record{}, false
		}
		if s.current(rec) {
			return rec, true
		}
		s.index.PopMin()
	}
}

// peekMax returns the latest current record, discarding stale ones on the way
func (s *Store) peekMax() (Record, bool) {
	for {
		rec, ok := s.index.PeekMax()
		if !ok {
			return Record{}, false
		}
		if s.current(rec) {
			return rec, true
		}
		s.index.PopMax()
	}
}

func (s *Store) popArrival() (arrival, bool) {
	for s.arrivals.Len() > 0 {
		a := s.arrivals.PopFront()
		if e, ok := s.data[a.key]; ok && e.version == a.version && e.expireAt == 0 {
			return a, true
		}
	}
	return arrival{}, false
}

func (s *Store) compactIndex() {
	if s.index.Len() <= 2*s.expiring+compactSlack {
		return
	}
	s.index.Filter(s.current)
}

func (s *Store) compactArrivals() {
	persistent := len(s.data) - s.expiring
	if s.arrivals.Len() <= 2*persistent+compactSlack {
		return
	}

	live := new(deque.Deque[arrival])
	for s.arrivals.Len() > 0 {
		a := s.arrivals.PopFront()
		if e, ok := s.data[a.key]; ok && e.version == a.version && e.expireAt == 0 {
			live.PushBack(a)
		}
	}
	s.arrivals = live
}

// deadline adds ttl to now, saturating instead of wrapping around
func deadline(now int64, ttl time.Duration) int64 {
	if int64(ttl) > math.MaxInt64-now {
		return math.MaxInt64
	}
	return now + int64(ttl)
}
