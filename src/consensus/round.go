package consensus

import (
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
	"github.com/mosaicnetworks/eventcore/src/window"
)

// Round is emitted every time a round is decided.
type Round struct {
	Number int64
	//events received in this round, in consensus order
	Events []*event.Event
	//famous witnesses of the round, by creator index
	Judges []*event.Event
	//window in effect once the round is decided
	Window window.EventWindow
	//complete state once the round is decided; only set with RoundSnapshots
	Snapshot *snapshot.Snapshot
}

// roundInfo tracks the witnesses created in a round.
type roundInfo struct {
	witnesses []Handle
	decided   bool
}

func newRoundInfo() *roundInfo {
	return &roundInfo{}
}
