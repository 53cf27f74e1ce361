package snapshot

import (
	"strconv"

	"github.com/sasha-s/go-deadlock"

	"github.com/mosaicnetworks/eventcore/src/common"
)

// InmemStore keeps snapshots in memory. It is written by the pipeline and read
// by the HTTP service.
type InmemStore struct {
	deadlock.RWMutex
	snapshots map[int64]*Snapshot
	latest    *Snapshot
}

// NewInmemStore creates an empty InmemStore.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		snapshots: make(map[int64]*Snapshot),
	}
}

// Save implements the Store interface. The latest snapshot is the one with the
// highest round.
func (s *InmemStore) Save(snap *Snapshot) error {
	s.Lock()
	defer s.Unlock()

	s.snapshots[snap.Round] = snap
	if s.latest == nil || snap.Round >= s.latest.Round {
		s.latest = snap
	}
	return nil
}

// Latest implements the Store interface.
func (s *InmemStore) Latest() (*Snapshot, error) {
	s.RLock()
	defer s.RUnlock()

	if s.latest == nil {
		return nil, common.NewStoreErr("Snapshot", common.KeyNotFound, "latest")
	}
	return s.latest, nil
}

// Get implements the Store interface.
func (s *InmemStore) Get(round int64) (*Snapshot, error) {
	s.RLock()
	defer s.RUnlock()

	snap, ok := s.snapshots[round]
	if !ok {
		return nil, common.NewStoreErr("Snapshot", common.KeyNotFound, strconv.FormatInt(round, 10))
	}
	return snap, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
