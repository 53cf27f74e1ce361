package window

import (
	"fmt"

	"github.com/mosaicnetworks/eventcore/src/common"
)

// EventWindow is the node's view of the ancient threshold and of the round
// consensus is advancing toward. The zero value is not a valid window; use
// Genesis or New.
type EventWindow struct {
	mode                  AncientMode
	ancientThreshold      int64
	pendingConsensusRound int64
}

// Genesis returns the window in effect before any round is decided.
func Genesis(mode AncientMode) EventWindow {
	return New(mode, FirstRound, mode.Select(FirstGeneration, FirstRound))
}

// New creates a window. A pending round below FirstRound, or a threshold below
// the first indicator value of the mode, is a contract violation.
func New(mode AncientMode, pendingConsensusRound, ancientThreshold int64) EventWindow {
	if !mode.Valid() {
		common.Violation("window", "unknown ancient mode %d", int(mode))
	}
	if pendingConsensusRound < FirstRound {
		common.Violation("window", "pending consensus round %d below %d", pendingConsensusRound, FirstRound)
	}
	if lowest := mode.Select(FirstGeneration, FirstRound); ancientThreshold < lowest {
		common.Violation("window", "ancient threshold %d below %d", ancientThreshold, lowest)
	}
	return EventWindow{
		mode:                  mode,
		ancientThreshold:      ancientThreshold,
		pendingConsensusRound: pendingConsensusRound,
	}
}

// Mode returns the ancient mode of the window.
func (w EventWindow) Mode() AncientMode {
	return w.mode
}

// AncientThreshold is the lowest indicator value that is not ancient.
func (w EventWindow) AncientThreshold() int64 {
	return w.ancientThreshold
}

// PendingConsensusRound is the round consensus is currently trying to decide.
func (w EventWindow) PendingConsensusRound() int64 {
	return w.pendingConsensusRound
}

// LatestConsensusRound is the last decided round, or RoundUndefined at
// genesis.
func (w EventWindow) LatestConsensusRound() int64 {
	return w.pendingConsensusRound - 1
}

// IsAncient reports whether e is ancient under this window.
func (w EventWindow) IsAncient(e Indicated) bool {
	return IsAncient(w.mode.Indicator(e), w.ancientThreshold)
}

// IsAncientValue reports whether an indicator value, already selected for this
// window's mode, is ancient.
func (w EventWindow) IsAncientValue(indicator int64) bool {
	return IsAncient(indicator, w.ancientThreshold)
}

// IsFuture reports whether an event declares a birth round beyond the pending
// round.
func (w EventWindow) IsFuture(e Indicated) bool {
	return e.BirthRound() > w.pendingConsensusRound
}

// Advance returns the window that follows w once round has been decided. The
// threshold never moves backward.
func (w EventWindow) Advance(round, ancientThreshold int64) EventWindow {
	if ancientThreshold < w.ancientThreshold {
		ancientThreshold = w.ancientThreshold
	}
	pending := round + 1
	if pending < w.pendingConsensusRound {
		pending = w.pendingConsensusRound
	}
	return New(w.mode, pending, ancientThreshold)
}

// CheckMode panics when a consumer built for one mode receives a window of
// another.
func (w EventWindow) CheckMode(component string, mode AncientMode) {
	if w.mode != mode {
		common.Violation(component, "event window mode %s does not match %s", w.mode, mode)
	}
}

func (w EventWindow) String() string {
	return fmt.Sprintf("EventWindow{mode: %s, ancientThreshold: %d, pendingConsensusRound: %d}",
		w.mode, w.ancientThreshold, w.pendingConsensusRound)
}
