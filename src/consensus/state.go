package consensus

import "fmt"

// EventState is a stage of an event's lifecycle.
type EventState int

const (
	// Received means the event has not been classified yet.
	Received EventState = iota
	// DiscardedAncient is terminal: the event was ancient on arrival.
	DiscardedAncient
	// Buffered means the event waits in the future buffer.
	Buffered
	// PendingConsensus means the event is in the arena, fame or round
	// received still undecided.
	PendingConsensus
	// FameDecided means the event is a witness whose fame is known but
	// which has not been received yet.
	FameDecided
	// ConsensusFinalized is terminal: consensus data is assigned.
	ConsensusFinalized
	// DiscardedStale is terminal: the event became ancient without reaching
	// consensus.
	DiscardedStale
)

var eventStates = []string{
	"Received",
	"DiscardedAncient",
	"Buffered",
	"PendingConsensus",
	"FameDecided",
	"ConsensusFinalized",
	"DiscardedStale",
}

func (s EventState) String() string {
	if s < 0 || int(s) >= len(eventStates) {
		return fmt.Sprintf("EventState(%d)", int(s))
	}
	return eventStates[s]
}

// Terminal reports whether no further transition is possible.
func (s EventState) Terminal() bool {
	return s == DiscardedAncient || s == ConsensusFinalized || s == DiscardedStale
}
