package event

import (
	"crypto/ecdsa"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/crypto/keys"
)

/*******************************************************************************
ConsensusData
*******************************************************************************/

// ConsensusData is the overlay assigned when an event reaches consensus.
type ConsensusData struct {
	Order         int64
	Timestamp     time.Time
	RoundReceived int64
}

/*******************************************************************************
Event
*******************************************************************************/

// Event is the node's representation of a gossip event.
type Event struct {
	Body      Body
	Signature []byte

	hash []byte
	hex  string

	consensus    atomic.Pointer[ConsensusData]
	txTimestamps []time.Time

	prehandle *Prehandle
}

// NewEvent builds an Event from a deep copy of its body and signature. The
// generation is derived from the parents and the hash is computed once.
func NewEvent(body Body, signature []byte) (*Event, error) {
	body = body.clone()
	body.TimeCreated = body.TimeCreated.UTC().Round(0)
	body.Generation = body.computeGeneration()

	hash, err := body.Hash()
	if err != nil {
		return nil, err
	}

	return &Event{
		Body:      body,
		Signature: signature,
		hash:      hash,
		hex:       common.EncodeToString(hash),
		prehandle: NewPrehandle(),
	}, nil
}

// Hash returns the SHA256 hash of the Body.
func (e *Event) Hash() []byte {
	return e.hash
}

// Hex returns the hexadecimal representation of the hash.
func (e *Event) Hex() string {
	return e.hex
}

// Creator returns the node id of the creator.
func (e *Event) Creator() uint32 {
	return e.Body.Creator
}

// Generation implements window.Indicated.
func (e *Event) Generation() int64 {
	return e.Body.Generation
}

// BirthRound implements window.Indicated.
func (e *Event) BirthRound() int64 {
	return e.Body.BirthRound
}

// TimeCreated returns the creator's timestamp.
func (e *Event) TimeCreated() time.Time {
	return e.Body.TimeCreated
}

// SelfParent returns the self-parent descriptor, or nil.
func (e *Event) SelfParent() *Descriptor {
	return e.Body.SelfParent
}

// OtherParent returns the other-parent descriptor, or nil.
func (e *Event) OtherParent() *Descriptor {
	return e.Body.OtherParent
}

// Descriptor returns the descriptor children use to reference this event.
func (e *Event) Descriptor() *Descriptor {
	return &Descriptor{
		Hash:       e.hash,
		Creator:    e.Body.Creator,
		Generation: e.Body.Generation,
		BirthRound: e.Body.BirthRound,
	}
}

// Transactions returns every transaction of the event.
func (e *Event) Transactions() []Transaction {
	return e.Body.Transactions
}

// SystemTransactions returns the transactions addressed to the node.
func (e *Event) SystemTransactions() []Transaction {
	return e.filter(true)
}

// ApplicationTransactions returns the transactions addressed to the
// application.
func (e *Event) ApplicationTransactions() []Transaction {
	return e.filter(false)
}

func (e *Event) filter(system bool) []Transaction {
	res := []Transaction{}
	for _, tx := range e.Body.Transactions {
		if tx.System == system {
			res = append(res, tx)
		}
	}
	return res
}

// Prehandle returns the latch completed once the application has
// pre-processed the transactions.
func (e *Event) Prehandle() *Prehandle {
	return e.prehandle
}

// Sign signs the hash with the private key.
func (e *Event) Sign(privKey *ecdsa.PrivateKey) error {
	sig, err := keys.Sign(privKey, e.hash)
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// Verify checks the signature against the public key of the creator. The
// consensus core never calls it; signatures are checked before events reach
// it.
func (e *Event) Verify(pubKey *ecdsa.PublicKey) (bool, error) {
	if pubKey == nil {
		return false, fmt.Errorf("no public key for creator %d", e.Body.Creator)
	}
	return keys.Verify(pubKey, e.hash, e.Signature)
}

/*******************************************************************************
Consensus overlay
*******************************************************************************/

// SetConsensusData assigns the consensus order, timestamp and round received.
// It may be called exactly once per event.
func (e *Event) SetConsensusData(order int64, timestamp time.Time, roundReceived int64) {
	data := &ConsensusData{
		Order:         order,
		Timestamp:     timestamp,
		RoundReceived: roundReceived,
	}
	if !e.consensus.CompareAndSwap(nil, data) {
		common.Violation("event", "consensus data of %s set twice", e.Hex())
	}
}

// IsConsensus reports whether consensus data has been assigned.
func (e *Event) IsConsensus() bool {
	return e.consensus.Load() != nil
}

// ConsensusData returns the overlay, or nil before consensus.
func (e *Event) ConsensusData() *ConsensusData {
	return e.consensus.Load()
}

// ConsensusOrder returns the position of the event in the total order, or -1.
func (e *Event) ConsensusOrder() int64 {
	if cd := e.consensus.Load(); cd != nil {
		return cd.Order
	}
	return -1
}

// RoundReceived returns the round in which the event reached consensus, or
// RoundUndefined.
func (e *Event) RoundReceived() int64 {
	if cd := e.consensus.Load(); cd != nil {
		return cd.RoundReceived
	}
	return 0
}

// ConsensusTimestamp returns the consensus timestamp, or the zero time.
func (e *Event) ConsensusTimestamp() time.Time {
	if cd := e.consensus.Load(); cd != nil {
		return cd.Timestamp
	}
	return time.Time{}
}

// ConsensusReached propagates the consensus timestamp to the transactions:
// transaction i gets timestamp + i*minIncrement. It panics if consensus data
// has not been set.
func (e *Event) ConsensusReached(minIncrement time.Duration) {
	cd := e.consensus.Load()
	if cd == nil {
		common.Violation("event", "consensus reached on %s without consensus data", e.Hex())
	}
	if minIncrement <= 0 {
		common.Violation("event", "non-positive transaction timestamp increment %v", minIncrement)
	}
	ts := make([]time.Time, len(e.Body.Transactions))
	for i := range ts {
		ts[i] = cd.Timestamp.Add(time.Duration(i) * minIncrement)
	}
	e.txTimestamps = ts
}

// TransactionTimestamp returns the consensus timestamp of transaction i.
func (e *Event) TransactionTimestamp(i int) (time.Time, bool) {
	if i < 0 || i >= len(e.txTimestamps) {
		return time.Time{}, false
	}
	return e.txTimestamps[i], true
}

// LastTransactionTimestamp returns the timestamp of the last transaction, or
// the consensus timestamp when there are none.
func (e *Event) LastTransactionTimestamp() time.Time {
	if n := len(e.txTimestamps); n > 0 {
		return e.txTimestamps[n-1]
	}
	return e.ConsensusTimestamp()
}

func (e *Event) String() string {
	return fmt.Sprintf("Event{creator: %d, gen: %d, birth_round: %d, hash: %s}",
		e.Body.Creator, e.Body.Generation, e.Body.BirthRound, common.ShortHex(e.hash, 8))
}

/*******************************************************************************
Sorting
*******************************************************************************/

// ByConsensusOrder implements sort.Interface for events that reached
// consensus.
type ByConsensusOrder []*Event

func (a ByConsensusOrder) Len() int      { return len(a) }
func (a ByConsensusOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByConsensusOrder) Less(i, j int) bool {
	return a[i].ConsensusOrder() < a[j].ConsensusOrder()
}
