package snapshot

import (
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/common"
)

const (
	snapshotPrefix = "snapshot"
	latestKey      = "snapshot_latest"
)

// BadgerStore persists snapshots in a Badger database and caches them in an
// InmemStore.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger database in %s", path)
	}

	return &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
	}, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func snapshotKey(round int64) []byte {
	return []byte(fmt.Sprintf("%s_%09d", snapshotPrefix, round))
}

/*******************************************************************************
Implement the Store interface
*******************************************************************************/

// Save writes the snapshot under its round key and moves the latest pointer
// forward, in one transaction.
func (s *BadgerStore) Save(snap *Snapshot) error {
	if err := s.dbSave(snap); err != nil {
		return err
	}
	return s.inmemStore.Save(snap)
}

// Latest returns the most recent snapshot, from the cache when possible.
func (s *BadgerStore) Latest() (*Snapshot, error) {
	snap, err := s.inmemStore.Latest()
	if err == nil {
		return snap, nil
	}

	snap, err = s.dbLatest()
	if err != nil {
		return nil, err
	}
	s.inmemStore.Save(snap)
	return snap, nil
}

// Get returns the snapshot of a round.
func (s *BadgerStore) Get(round int64) (*Snapshot, error) {
	snap, err := s.inmemStore.Get(round)
	if err == nil {
		return snap, nil
	}
	return s.dbGet(snapshotKey(round), strconv.FormatInt(round, 10))
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the directory of the database.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) dbSave(snap *Snapshot) error {
	val, err := snap.Marshal()
	if err != nil {
		return errors.Wrap(err, "encoding snapshot")
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	//insert [snapshot_round] => [snapshot bytes]
	if err := tx.Set(snapshotKey(snap.Round), val); err != nil {
		return errors.Wrapf(err, "writing snapshot %d", snap.Round)
	}

	//only move the latest pointer forward
	current, err := s.dbLatest()
	if err != nil && !common.IsStore(errors.Cause(err), common.KeyNotFound) {
		return err
	}
	if current == nil || snap.Round >= current.Round {
		if err := tx.Set([]byte(latestKey), val); err != nil {
			return errors.Wrap(err, "writing latest snapshot")
		}
	}

	return errors.Wrap(tx.Commit(), "committing snapshot")
}

func (s *BadgerStore) dbLatest() (*Snapshot, error) {
	return s.dbGet([]byte(latestKey), "latest")
}

func (s *BadgerStore) dbGet(key []byte, name string) (*Snapshot, error) {
	var snapBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		snapBytes, err = item.ValueCopy(nil)
		return err
	})

	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, common.NewStoreErr("Snapshot", common.KeyNotFound, name)
		}
		return nil, errors.Wrapf(err, "reading snapshot %s", name)
	}

	snap := new(Snapshot)
	if err := snap.Unmarshal(snapBytes); err != nil {
		return nil, errors.Wrapf(err, "decoding snapshot %s", name)
	}

	return snap, nil
}
