package storage

import (
	"github.com/gammazero/deque"
)

// DataType tags the variant held by a Value
type DataType byte

const (
	TypeScalar DataType = iota + 1
	TypeSequence
	TypeFields
)

func (t DataType) String() string {
	switch t {
	case TypeScalar:
		return "string"
	case TypeSequence:
		return "list"
	case TypeFields:
		return "hash"
	default:
		return "none"
	}
}

// End selects a side of a Sequence
type End byte

const (
	Front End = iota
	Back
)

// Value is the polymorphic stored value. The variant is fixed when the entry is created.
// Values returned by Store share backing storage with the entry, so the accessors only
// expose copies of structured contents
type Value struct {
	seq    *deque.Deque[Scalar]
	fields map[string]Scalar
	scalar Scalar
	kind   DataType
}

// ScalarValue wraps a Scalar into a Value
func ScalarValue(s Scalar) Value {
	return Value{kind: TypeScalar, scalar: s}
}

// SequenceValue builds a Sequence value holding items front to back
func SequenceValue(items ...Scalar) Value {
	q := new(deque.Deque[Scalar])
	for _, it := range items {
		q.PushBack(it)
	}
	return Value{kind: TypeSequence, seq: q}
}

// FieldsValue builds a Fields value from a copy of m
func FieldsValue(m map[string]Scalar) Value {
	fields := make(map[string]Scalar, len(m))
	for k, v := range m {
		fields[k] = v
	}
	return Value{kind: TypeFields, fields: fields}
}

// Type returns the variant of the value
func (v Value) Type() DataType {
	return v.kind
}

// Scalar returns the scalar and true for Scalar values
func (v Value) Scalar() (Scalar, bool) {
	if v.kind != TypeScalar {
		return Scalar{}, false
	}
	return v.scalar, true
}

// Items returns a copy of a Sequence front to back. Nil for other variants
func (v Value) Items() []Scalar {
	if v.kind != TypeSequence {
		return nil
	}
	out := make([]Scalar, v.seq.Len())
	for i := range out {
		out[i] = v.seq.At(i)
	}
	return out
}

// Fields returns a copy of a Fields map. Nil for other variants
func (v Value) Fields() map[string]Scalar {
	if v.kind != TypeFields {
		return nil
	}
	out := make(map[string]Scalar, len(v.fields))
	for k, s := range v.fields {
		out[k] = s
	}
	return out
}

// Len is the number of elements in a structured value, 1 for scalars
func (v Value) Len() int {
	switch v.kind {
	case TypeSequence:
		return v.seq.Len()
	case TypeFields:
		return len(v.fields)
	case TypeScalar:
		return 1
	}
	return 0
}

// entry is the stored (value, expiration) pair for one key
type entry struct {
	value    Value
	expireAt int64  // Unix nanoseconds. 0 means no TTL
	version  uint64 // changes on every overwrite, copied into index records
}

func (e *entry) expired(now int64) bool {
	return e.expireAt != 0 && e.expireAt <= now
}
