package storage

import (
	"math/rand"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirationIndex_Empty(t *testing.T) {
	x := NewExpirationIndex()

	_, ok := x.PeekMin()
	assert.False(t, ok)
	_, ok = x.PeekMax()
	assert.False(t, ok)
	_, ok = x.PopMin()
	assert.False(t, ok)
	_, ok = x.PopMax()
	assert.False(t, ok)
}

func TestExpirationIndex_MinMax(t *testing.T) {
	x := NewExpirationIndex()

	for i, at := range []int64{50, 10, 90, 30, 70, 20, 80} {
		x.Push(Record{Key: strconv.Itoa(i), ExpireAt: at, Version: uint64(i + 1)})
	}

	minRec, _ := x.PeekMin()
	maxRec, _ := x.PeekMax()
	assert.Equal(t, int64(10), minRec.ExpireAt)
	assert.Equal(t, int64(90), maxRec.ExpireAt)

	var got []int64
	for i := 0; i < 3; i++ {
		r, _ := x.PopMin()
		got = append(got, r.ExpireAt)
		r, _ = x.PopMax()
		got = append(got, r.ExpireAt)
	}
	r, _ := x.PopMin()
	got = append(got, r.ExpireAt)

	assert.Equal(t, []int64{10, 90, 20, 80, 30, 70, 50}, got)
	assert.Equal(t, 0, x.Len())
}

func TestExpirationIndex_TiesResolveByVersion(t *testing.T) {
	x := NewExpirationIndex()

	x.Push(Record{Key: "b", ExpireAt: 5, Version: 2})
	x.Push(Record{Key: "a", ExpireAt: 5, Version: 1})
	x.Push(Record{Key: "c", ExpireAt: 5, Version: 3})

	r, _ := x.PopMin()
	assert.Equal(t, "a", r.Key)
	r, _ = x.PopMax()
	assert.Equal(t, "c", r.Key)
}

func TestExpirationIndex_RandomOpsMatchSortedSlice(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	x := NewExpirationIndex()
	var model []Record
	var version uint64

	sortModel := func() {
		sort.Slice(model, func(i, j int) bool { return model[i].less(model[j]) })
	}

	for i := 0; i < 20_000; i++ {
		switch op := r.Intn(5); {
		case op <= 1 || len(model) == 0:
			version++
			rec := Record{Key: strconv.Itoa(i), ExpireAt: int64(r.Intn(500)), Version: version}
			x.Push(rec)
			model = append(model, rec)
			sortModel()
		case op == 2:
			got, ok := x.PopMin()
			require.True(t, ok)
			require.Equal(t, model[0], got)
			model = model[1:]
		case op == 3:
			got, ok := x.PopMax()
			require.True(t, ok)
			require.Equal(t, model[len(model)-1], got)
			model = model[:len(model)-1]
		default:
			minRec, _ := x.PeekMin()
			maxRec, _ := x.PeekMax()
			require.Equal(t, model[0], minRec)
			require.Equal(t, model[len(model)-1], maxRec)
		}
		require.Equal(t, len(model), x.Len())
	}
}

func TestExpirationIndex_Filter(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	x := NewExpirationIndex()

	for i := 0; i < 1000; i++ {
		x.Push(Record{Key: strconv.Itoa(i), ExpireAt: int64(r.Intn(10_000)), Version: uint64(i + 1)})
	}

	x.Filter(func(rec Record) bool { return rec.Version%3 == 0 })
	require.Equal(t, 333, x.Len())

	prev, _ := x.PopMin()
	for x.Len() > 0 {
		next, _ := x.PopMin()
		require.False(t, next.less(prev), "records must come out in order after Filter")
		require.Zero(t, next.Version%3)
		prev = next
	}
}
