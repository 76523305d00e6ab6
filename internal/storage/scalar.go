package storage

import "strconv"

// Scalar is a single stored value: either a signed 64-bit integer or a text string.
// Integers are kept in numeric form so arithmetic commands skip the parse/format round trip
type Scalar struct {
	str   string
	num   int64
	isNum bool
}

// IntScalar constructs a numeric Scalar
func IntScalar(n int64) Scalar {
	return Scalar{num: n, isNum: true}
}

// StringScalar constructs a text Scalar without trying to detect numbers
func StringScalar(s string) Scalar {
	return Scalar{str: s}
}

// ParseScalar stores s numerically when it is the canonical decimal form of an int64,
// otherwise as text. "007", "+7" and "-0" stay text so rendering gives back the same bytes
func ParseScalar(s string) Scalar {
	if n, ok := canonicalInt(s); ok {
		return IntScalar(n)
	}
	return StringScalar(s)
}

// IsInt reports whether the scalar holds an integer
func (s Scalar) IsInt() bool {
	return s.isNum
}

// Int returns the numeric value. Text scalars are parsed if they hold a canonical integer
func (s Scalar) Int() (int64, bool) {
	if s.isNum {
		return s.num, true
	}
	return canonicalInt(s.str)
}

// String renders the scalar as text, integers in decimal
func (s Scalar) String() string {
	if s.isNum {
		return strconv.FormatInt(s.num, 10)
	}
	return s.str
}

// AppendTo appends the textual form of the scalar to b
func (s Scalar) AppendTo(b []byte) []byte {
	if s.isNum {
		return strconv.AppendInt(b, s.num, 10)
	}
	return append(b, s.str...)
}

// Equal compares scalars by their textual form
func (s Scalar) Equal(o Scalar) bool {
	if s.isNum && o.isNum {
		return s.num == o.num
	}
	return s.String() == o.String()
}

func canonicalInt(s string) (int64, bool) {
	if len(s) == 0 || len(s) > 20 {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	if strconv.FormatInt(n, 10) != s {
		return 0, false
	}
	return n, true
}
