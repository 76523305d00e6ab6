package storage

import "math/bits"

// Record ties an expiration time to the key version it was inserted for.
// A record whose version no longer matches the entry is stale
type Record struct {
	Key      string
	ExpireAt int64 // Unix nanoseconds
	Version  uint64
}

// less orders records by expiration, then by version so ties resolve by insertion order
func (r Record) less(o Record) bool {
	if r.ExpireAt != o.ExpireAt {
		return r.ExpireAt < o.ExpireAt
	}
	return r.Version < o.Version
}

// ExpirationIndex is a min-max heap of expiration records.
// Even levels hold minimums of their subtrees, odd levels hold maximums,
// so both the soonest and the latest record are reachable in O(1) and removable in O(log n)
type ExpirationIndex struct {
	heap []Record
}

// NewExpirationIndex creates an empty index
func NewExpirationIndex() *ExpirationIndex {
	return &ExpirationIndex{}
}

// Len returns the number of records, stale ones included
func (x *ExpirationIndex) Len() int {
	return len(x.heap)
}

// Reset drops every record
func (x *ExpirationIndex) Reset() {
	x.heap = nil
}

// Push inserts a record
func (x *ExpirationIndex) Push(r Record) {
	x.heap = append(x.heap, r)
	x.bubbleUp(len(x.heap) - 1)
}

// PeekMin returns the soonest record
func (x *ExpirationIndex) PeekMin() (Record, bool) {
	if len(x.heap) == 0 {
		return Record{}, false
	}
	return x.heap[0], true
}

// PopMin removes and returns the soonest record
func (x *ExpirationIndex) PopMin() (Record, bool) {
	if len(x.heap) == 0 {
		return Record{}, false
	}
	return x.removeAt(0), true
}

// PeekMax returns the latest record
func (x *ExpirationIndex) PeekMax() (Record, bool) {
	if len(x.heap) == 0 {
		return Record{}, false
	}
	return x.heap[x.maxIndex()], true
}

// PopMax removes and returns the latest record
func (x *ExpirationIndex) PopMax() (Record, bool) {
	if len(x.heap) == 0 {
		return Record{}, false
	}
	return x.removeAt(x.maxIndex()), true
}

// Filter keeps only the records for which keep returns true and rebuilds the heap in O(n)
func (x *ExpirationIndex) Filter(keep func(Record) bool) {
	kept := x.heap[:0]
	for _, r := range x.heap {
		if keep(r) {
			kept = append(kept, r)
		}
	}
	for i := len(kept); i < len(x.heap); i++ {
		x.heap[i] = Record{} // release keys
	}
	x.heap = kept
	for i := len(x.heap)/2 - 1; i >= 0; i-- {
		x.trickleDown(i)
	}
}

func (x *ExpirationIndex) maxIndex() int {
	switch len(x.heap) {
	case 1:
		return 0
	case 2:
		return 1
	}
	if x.heap[2].less(x.heap[1]) {
		return 1
	}
	return 2
}

func (x *ExpirationIndex) removeAt(i int) Record {
	last := len(x.heap) - 1
	r := x.heap[i]
	x.heap[i] = x.heap[last]
	x.heap[last] = Record{}
	x.heap = x.heap[:last]
	if i < last {
		x.trickleDown(i)
	}
	return r
}

func isMinLevel(i int) bool {
	return (bits.Len(uint(i+1))-1)%2 == 0
}

func (x *ExpirationIndex) swap(i, j int) {
	x.heap[i], x.heap[j] = x.heap[j], x.heap[i]
}

func (x *ExpirationIndex) bubbleUp(i int) {
	if i == 0 {
		return
	}
	p := (i - 1) / 2
	if isMinLevel(i) {
		if x.heap[p].less(x.heap[i]) {
			x.swap(i, p)
			x.bubbleUpLevel(p, false)
		} else {
			x.bubbleUpLevel(i, true)
		}
		return
	}
	if x.heap[i].less(x.heap[p]) {
		x.swap(i, p)
		x.bubbleUpLevel(p, true)
	} else {
		x.bubbleUpLevel(i, false)
	}
}

// bubbleUpLevel moves i up through its grandparents, which share its level parity
func (x *ExpirationIndex) bubbleUpLevel(i int, minLevel bool) {
	for i > 2 {
		g := (i - 3) / 4
		if !x.better(i, g, minLevel) {
			return
		}
		x.swap(i, g)
		i = g
	}
}

func (x *ExpirationIndex) trickleDown(i int) {
	minLevel := isMinLevel(i)
	n := len(x.heap)

	for {
		first := 2*i + 1
		if first >= n {
			return
		}

		// best among children and grandchildren
		m := first
		for _, c := range [...]int{2*i + 2, 4*i + 3, 4*i + 4, 4*i + 5, 4*i + 6} {
			if c >= n {
				continue
			}
			if x.better(c, m, minLevel) {
				m = c
			}
		}

		if !x.better(m, i, minLevel) {
			return
		}
		x.swap(m, i)

		if m <= 2*i+2 {
			return // direct child, nothing below it can be out of order
		}

		p := (m - 1) / 2
		if x.better(p, m, minLevel) {
			x.swap(m, p)
		}
		i = m
	}
}

// better reports whether heap[a] belongs above heap[b] on a min (or max) level
func (x *ExpirationIndex) better(a, b int, minLevel bool) bool {
	if minLevel {
		return x.heap[a].less(x.heap[b])
	}
	return x.heap[b].less(x.heap[a])
}
