package pipeline

import (
	"sync/atomic"

	"github.com/mosaicnetworks/eventcore/src/event"
)

// SelfEventStore holds the latest event created by this node. It is written by
// the intake goroutine and read by anyone, without locks.
type SelfEventStore struct {
	latest atomic.Pointer[event.Event]
}

// Swap records e as the latest self event and returns the previous one.
func (s *SelfEventStore) Swap(e *event.Event) *event.Event {
	return s.latest.Swap(e)
}

// Load returns the latest self event, or nil.
func (s *SelfEventStore) Load() *event.Event {
	return s.latest.Load()
}
