package pipeline

import (
	"sync/atomic"
)

// State captures the state of a pipeline Node.
type State uint32

const (
	// Idle is the initial state, before Run is called.
	Idle State = iota
	// Running means requests are being processed.
	Running
	// Halted means consensus failed and the node stopped accepting events.
	Halted
	// Shutdown means Run returned.
	Shutdown
)

// String ...
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Halted:
		return "Halted"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state State
}

func (b *state) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *state) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
