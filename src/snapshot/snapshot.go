package snapshot

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/window"
)

// Snapshot is the consensus state as of the end of Round.
//
// A Complete snapshot also carries the working set of the open rounds: every
// retained event with its consensus metadata, the witnesses of every retained
// round and the queue of undetermined events. Restoring it yields the same
// consensus order as never having stopped. Without it, only the window and the
// counters are restored and events of the open rounds must be gossiped again.
type Snapshot struct {
	Round            int64
	Mode             window.AncientMode
	PendingRound     int64
	AncientThreshold int64
	NextOrder        int64
	LastTimestamp    time.Time

	//min judge generation per retained round; only used in generation mode
	JudgeGenerations map[int64]int64

	Complete      bool
	MaxRound      int64
	RestoredRound int64
	//retained events in insertion order; the other fields refer to them by
	//their position in this slice
	Events       []*Event
	Rounds       []*Round
	Undetermined []int
}

// Coordinate locates the last or first event of a member seen by an event.
// Index is -1 when the event is not retained; Seq is kept regardless.
type Coordinate struct {
	Index int
	Seq   int64
}

// Event is a retained event together with its consensus metadata.
type Event struct {
	Body      event.Body
	Signature []byte
	Hash      []byte
	Consensus *event.ConsensusData

	Round   int64
	Witness bool
	Famous  common.Trilean
	Judge   bool
	Cleared bool
	LastSee []Coordinate

	//only meaningful for events that are not cleared
	SelfParent   int
	OtherParent  int
	FirstSee     []Coordinate
	StronglySeeP []int
}

// Round lists the witnesses of a retained round, in insertion order. An
// Index of -1 is a witness that is no longer retained.
type Round struct {
	Number    int64
	Decided   bool
	Witnesses []int
}

// Window rebuilds the event window recorded in the snapshot.
func (s *Snapshot) Window() window.EventWindow {
	return window.New(s.Mode, s.PendingRound, s.AncientThreshold)
}

// Marshal returns the canonical JSON encoding of the Snapshot.
func (s *Snapshot) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(s); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// Unmarshal decodes a Snapshot encoded with Marshal.
func (s *Snapshot) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(s)
}
