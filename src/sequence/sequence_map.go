package sequence

import (
	"sort"
	"strconv"

	"github.com/mosaicnetworks/eventcore/src/common"
)

// InsertPolicy decides what happens to insertions below the floor.
type InsertPolicy int

const (
	// IgnoreBelowFloor drops the value silently.
	IgnoreBelowFloor InsertPolicy = iota
	// RejectBelowFloor returns a TooLate StoreErr.
	RejectBelowFloor
)

// Map is a mapping from sequence numbers to values with a forward-only floor.
// It is not safe for concurrent use.
type Map[V any] struct {
	name   string
	policy InsertPolicy
	floor  int64

	items map[int64]V

	//bounds of the keys currently held; only meaningful when items is not
	//empty
	lowest  int64
	highest int64
}

// New creates an empty Map with the given floor. The name appears in errors.
func New[V any](name string, initialFloor int64, policy InsertPolicy) *Map[V] {
	return &Map[V]{
		name:   name,
		policy: policy,
		floor:  initialFloor,
		items:  make(map[int64]V),
	}
}

// Floor returns the lowest key the map accepts.
func (m *Map[V]) Floor() int64 {
	return m.floor
}

// Len returns the number of keys held.
func (m *Map[V]) Len() int {
	return len(m.items)
}

// Insert sets the value of key, replacing any previous value. It returns false
// when the key is below the floor; in that case the error is non-nil only
// under RejectBelowFloor.
func (m *Map[V]) Insert(key int64, value V) (bool, error) {
	if key < m.floor {
		return false, m.tooLate(key)
	}
	if len(m.items) == 0 {
		m.lowest, m.highest = key, key
	} else {
		if key < m.lowest {
			m.lowest = key
		}
		if key > m.highest {
			m.highest = key
		}
	}
	m.items[key] = value
	return true, nil
}

// Get returns the value of key.
func (m *Map[V]) Get(key int64) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

// ComputeIfAbsent returns the value of key, creating it with ctor when absent.
// Below the floor the constructed value is returned but not stored.
func (m *Map[V]) ComputeIfAbsent(key int64, ctor func() V) (V, error) {
	if v, ok := m.items[key]; ok {
		return v, nil
	}
	v := ctor()
	if _, err := m.Insert(key, v); err != nil {
		return v, err
	}
	return v, nil
}

// Remove deletes key and returns its value.
func (m *Map[V]) Remove(key int64) (V, bool) {
	v, ok := m.items[key]
	if ok {
		delete(m.items, key)
	}
	return v, ok
}

// ShiftWindow moves the floor to newFloor. Every key strictly below newFloor is
// removed and passed to evict exactly once, in ascending order. A newFloor at
// or below the current floor is a no-op. evict may be nil.
func (m *Map[V]) ShiftWindow(newFloor int64, evict func(key int64, value V)) {
	if newFloor <= m.floor {
		return
	}
	m.floor = newFloor

	for _, k := range m.keysBelow(newFloor) {
		v := m.items[k]
		delete(m.items, k)
		if evict != nil {
			evict(k, v)
		}
	}

	if len(m.items) > 0 && m.lowest < newFloor {
		m.lowest = newFloor
		if m.highest < m.lowest {
			m.highest = m.lowest
		}
	}
}

// Keys returns the keys in ascending order.
func (m *Map[V]) Keys() []int64 {
	return m.keysBelow(m.highest + 1)
}

// Range calls f for every entry in ascending key order until f returns false.
func (m *Map[V]) Range(f func(key int64, value V) bool) {
	for _, k := range m.Keys() {
		if !f(k, m.items[k]) {
			return
		}
	}
}

// Clear drops every entry without calling any callback. The floor is kept.
func (m *Map[V]) Clear() {
	m.items = make(map[int64]V)
}

// keysBelow returns the held keys strictly below limit, ascending. Dense key
// ranges are walked directly; sparse ones are sorted.
func (m *Map[V]) keysBelow(limit int64) []int64 {
	if len(m.items) == 0 {
		return nil
	}

	hi := m.highest
	if limit-1 < hi {
		hi = limit - 1
	}
	if hi < m.lowest {
		return nil
	}

	span := hi - m.lowest + 1
	if span <= int64(2*len(m.items)) {
		res := make([]int64, 0, span)
		for k := m.lowest; k <= hi; k++ {
			if _, ok := m.items[k]; ok {
				res = append(res, k)
			}
		}
		return res
	}

	res := make([]int64, 0, len(m.items))
	for k := range m.items {
		if k < limit {
			res = append(res, k)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

func (m *Map[V]) tooLate(key int64) error {
	if m.policy == RejectBelowFloor {
		return common.NewStoreErr(m.name, common.TooLate, strconv.FormatInt(key, 10))
	}
	return nil
}
