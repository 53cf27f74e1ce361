// Package snapshot persists the consensus state needed to resume after a
// restart.
//
// A Snapshot is written after every delivered round. It holds the event window,
// the order and timestamp counters, and the working set of the rounds that are
// still open, so that a node restored from it orders later events exactly as
// it would have without stopping. On restart the pipeline reads the latest one
// before admitting any event. Two Store implementations are provided:
// InmemStore, and BadgerStore which keeps an InmemStore as cache in front of a
// Badger database.
package snapshot
