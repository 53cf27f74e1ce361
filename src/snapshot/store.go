package snapshot

// Store persists snapshots. Get and Latest return a KeyNotFound StoreErr when
// nothing matches.
type Store interface {
	Save(*Snapshot) error
	Latest() (*Snapshot, error)
	Get(round int64) (*Snapshot, error)
	Close() error
}
