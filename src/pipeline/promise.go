package pipeline

import (
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
	"github.com/mosaicnetworks/eventcore/src/window"
)

type requestKind int

const (
	submitRequest requestKind = iota
	windowRequest
	clearRequest
	restoreRequest
	statusRequest
)

// request is an item of the intake channel. Only events are fire-and-forget;
// every other request carries a promise.
type request struct {
	kind     requestKind
	event    *event.Event
	window   window.EventWindow
	snapshot *snapshot.Snapshot
	promise  *promise
}

type response struct {
	status Status
	err    error
}

type promise struct {
	respCh chan response
}

func newPromise() *promise {
	return &promise{
		//buffered so that Run never blocks on a caller that gave up
		respCh: make(chan response, 1),
	}
}

func (p *promise) respond(status Status, err error) {
	p.respCh <- response{status: status, err: err}
}
