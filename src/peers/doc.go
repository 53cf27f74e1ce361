// Package peers implements the address book consumed by the consensus core.
//
// A peer is a node identified by its public key. The address book (PeerSet)
// gives every member a dense index in [0, Len()), which is what the consensus
// memoization arrays are indexed by, and computes the super-majority
// threshold used by the strongly-see predicate and fame voting.
//
// The simulate command persists the address book it generates as peers.json in
// the data directory, so that a run can be repeated against the same members.
package peers
