package sequence

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/eventcore/src/common"
)

func TestInsertAndGet(t *testing.T) {
	m := New[string]("test", 0, RejectBelowFloor)

	for i, v := range []string{"a", "b", "c"} {
		ok, err := m.Insert(int64(i), v)
		require.NoError(t, err)
		require.True(t, ok)
	}

	v, ok := m.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v)

	_, ok = m.Get(5)
	assert.False(t, ok)

	assert.Equal(t, 3, m.Len())
	assert.Equal(t, []int64{0, 1, 2}, m.Keys())
}

func TestInsertBelowFloor(t *testing.T) {
	reject := New[int]("reject", 10, RejectBelowFloor)
	ok, err := reject.Insert(9, 1)
	assert.False(t, ok)
	assert.True(t, common.IsStore(err, common.TooLate), "expected TooLate, got %v", err)
	assert.Equal(t, 0, reject.Len())

	ignore := New[int]("ignore", 10, IgnoreBelowFloor)
	ok, err = ignore.Insert(9, 1)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 0, ignore.Len())

	ok, err = ignore.Insert(10, 1)
	assert.True(t, ok)
	assert.NoError(t, err)
}

func TestComputeIfAbsent(t *testing.T) {
	m := New[*[]int]("lists", 5, IgnoreBelowFloor)

	calls := 0
	ctor := func() *[]int {
		calls++
		return &[]int{}
	}

	l, err := m.ComputeIfAbsent(7, ctor)
	require.NoError(t, err)
	*l = append(*l, 1)

	l, err = m.ComputeIfAbsent(7, ctor)
	require.NoError(t, err)
	*l = append(*l, 2)

	assert.Equal(t, 1, calls)
	got, _ := m.Get(7)
	assert.Equal(t, []int{1, 2}, *got)

	// below the floor the value is built but not kept
	_, err = m.ComputeIfAbsent(3, ctor)
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	_, ok := m.Get(3)
	assert.False(t, ok)
}

func TestShiftWindowEvictsAscending(t *testing.T) {
	m := New[string]("test", 0, RejectBelowFloor)
	for _, k := range []int64{7, 3, 12, 5, 1000, 4} {
		_, err := m.Insert(k, "v")
		require.NoError(t, err)
	}

	var evicted []int64
	m.ShiftWindow(12, func(k int64, _ string) {
		evicted = append(evicted, k)
	})

	assert.Equal(t, []int64{3, 4, 5, 7}, evicted)
	assert.Equal(t, int64(12), m.Floor())
	assert.Equal(t, []int64{12, 1000}, m.Keys())

	// same floor: nothing happens
	m.ShiftWindow(12, func(k int64, _ string) {
		t.Fatalf("unexpected eviction of %d", k)
	})

	// earlier floor: nothing happens
	m.ShiftWindow(2, func(k int64, _ string) {
		t.Fatalf("unexpected eviction of %d", k)
	})
	assert.Equal(t, int64(12), m.Floor())

	_, err := m.Insert(11, "late")
	assert.True(t, common.IsStore(err, common.TooLate))
}

func TestShiftWindowSparseKeys(t *testing.T) {
	m := New[int]("sparse", 0, IgnoreBelowFloor)
	keys := []int64{1 << 40, 3, 1 << 20, 17}
	for _, k := range keys {
		m.Insert(k, int(k%100))
	}

	var evicted []int64
	m.ShiftWindow(1<<40, func(k int64, _ int) {
		evicted = append(evicted, k)
	})
	assert.Equal(t, []int64{3, 17, 1 << 20}, evicted)
	assert.Equal(t, []int64{1 << 40}, m.Keys())
}

func TestClearKeepsFloor(t *testing.T) {
	m := New[int]("test", 4, RejectBelowFloor)
	m.Insert(4, 1)
	m.Insert(8, 2)
	m.Clear()

	assert.Equal(t, 0, m.Len())
	assert.Equal(t, int64(4), m.Floor())
	assert.Empty(t, m.Keys())

	ok, err := m.Insert(5, 3)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, []int64{5}, m.Keys())
}

func TestRangeStops(t *testing.T) {
	m := New[int]("test", 0, RejectBelowFloor)
	for k := int64(0); k < 10; k++ {
		m.Insert(k, int(k))
	}
	var seen []int
	m.Range(func(_ int64, v int) bool {
		seen = append(seen, v)
		return v < 3
	})
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestFloorMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("floor never decreases and every evicted key is below it", prop.ForAll(
		func(inserts []int64, shifts []int64) bool {
			m := New[int64]("prop", 0, IgnoreBelowFloor)
			for _, k := range inserts {
				m.Insert(k, k)
			}

			evictedCount := make(map[int64]int)
			prev := m.Floor()
			for _, s := range shifts {
				var last int64 = -1
				ordered := true
				m.ShiftWindow(s, func(k int64, _ int64) {
					if k <= last || k >= m.Floor() {
						ordered = false
					}
					last = k
					evictedCount[k]++
				})
				if !ordered {
					return false
				}
				if m.Floor() < prev {
					return false
				}
				prev = m.Floor()
			}

			for _, c := range evictedCount {
				if c != 1 {
					return false
				}
			}
			for _, k := range m.Keys() {
				if k < m.Floor() {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 500)),
		gen.SliceOf(gen.Int64Range(-10, 600)),
	))

	properties.TestingRun(t)
}
