package consensus

import (
	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/window"
)

// Handle addresses a slot in the Arena.
type Handle int64

// NoHandle is the handle of a missing event.
const NoHandle Handle = -1

// Coordinate identifies an event of a given member: its handle and its
// position in the member's chain. Seq is the event's generation, which
// strictly increases along a self-parent chain.
type Coordinate struct {
	Handle Handle
	Seq    int64
}

var noCoordinate = Coordinate{Handle: NoHandle, Seq: -1}

// Valid reports whether the coordinate points to an event.
func (c Coordinate) Valid() bool {
	return c.Handle != NoHandle
}

// Metadata is the consensus working set of one event.
type Metadata struct {
	Event   *event.Event
	Handle  Handle
	Creator int
	Seq     int64
	Round   int64

	IsWitness bool
	Famous    common.Trilean
	IsJudge   bool

	lastSee []Coordinate

	//scratch, dropped by Clear
	SelfParent   Handle
	OtherParent  Handle
	firstSee     []Coordinate
	stronglySeeP []Handle
	votes        *Bitset
	mark         int
	cleared      bool
}

// Cleared reports whether the scratch part has been dropped.
func (m *Metadata) Cleared() bool {
	return m.cleared
}

// clearScratch drops every back-reference and memoization array except
// lastSee.
func (m *Metadata) clearScratch() {
	m.SelfParent = NoHandle
	m.OtherParent = NoHandle
	m.firstSee = nil
	m.stronglySeeP = nil
	m.votes = nil
	m.mark = 0
	m.cleared = true
}

// Arena stores Metadata slots indexed by Handle. Handles are allocated in
// insertion order and never reused.
type Arena struct {
	base  Handle
	slots []*Metadata
	index map[string]Handle

	live int
}

// NewArena returns an empty Arena.
func NewArena() *Arena {
	return &Arena{
		index: make(map[string]Handle),
	}
}

// Add allocates a slot for e.
func (a *Arena) Add(e *event.Event) *Metadata {
	h := a.base + Handle(len(a.slots))
	m := &Metadata{
		Event:       e,
		Handle:      h,
		SelfParent:  NoHandle,
		OtherParent: NoHandle,
	}
	a.slots = append(a.slots, m)
	a.index[string(e.Hash())] = h
	a.live++
	return m
}

// Get returns the slot of h, or nil if it was never allocated or expired.
func (a *Arena) Get(h Handle) *Metadata {
	i := h - a.base
	if h == NoHandle || i < 0 || int(i) >= len(a.slots) {
		return nil
	}
	return a.slots[i]
}

// Lookup returns the handle of the event with the given hash.
func (a *Arena) Lookup(hash []byte) (Handle, bool) {
	h, ok := a.index[string(hash)]
	return h, ok
}

// Range calls f for every retained slot in handle order until f returns
// false.
func (a *Arena) Range(f func(m *Metadata) bool) {
	for _, m := range a.slots {
		if m != nil && !f(m) {
			return
		}
	}
}

// Clear drops the scratch part of a slot. The summary stays until Expire.
func (a *Arena) Clear(h Handle) {
	m := a.Get(h)
	if m == nil || m.cleared {
		return
	}
	m.clearScratch()
	a.live--
}

// Expire removes the slots of ancient events and returns how many were
// removed.
func (a *Arena) Expire(w window.EventWindow) int {
	removed := 0
	for i, m := range a.slots {
		if m == nil || !w.IsAncient(m.Event) {
			continue
		}
		if !m.cleared {
			a.live--
		}
		delete(a.index, string(m.Event.Hash()))
		a.slots[i] = nil
		removed++
	}

	//reclaim the leading run of expired slots
	skip := 0
	for skip < len(a.slots) && a.slots[skip] == nil {
		skip++
	}
	if skip > 0 {
		a.slots = append([]*Metadata(nil), a.slots[skip:]...)
		a.base += Handle(skip)
	}

	return removed
}

// Len returns the number of slots still held, cleared or not.
func (a *Arena) Len() int {
	return len(a.index)
}

// LiveScratch returns the number of slots whose scratch part is still held.
func (a *Arena) LiveScratch() int {
	return a.live
}

// Reset drops every slot. Handles keep increasing.
func (a *Arena) Reset() {
	a.base += Handle(len(a.slots))
	a.slots = nil
	a.index = make(map[string]Handle)
	a.live = 0
}
