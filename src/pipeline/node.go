package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/consensus"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/future"
	"github.com/mosaicnetworks/eventcore/src/metrics"
	"github.com/mosaicnetworks/eventcore/src/peers"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
	"github.com/mosaicnetworks/eventcore/src/window"
)

var (
	// ErrHalted is returned once consensus has failed. The node no longer
	// accepts events.
	ErrHalted = errors.New("pipeline halted")
	// ErrShutdown is returned once the node has been shut down.
	ErrShutdown = errors.New("pipeline shut down")
)

// Status is a point-in-time view of a Node, taken on the intake goroutine.
type Status struct {
	State            State
	Window           window.EventWindow
	Buffered         int
	Undetermined     int
	LastDecidedRound int64
	NextOrder        int64
}

// Node is the serialized intake stage of a hashgraph node.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	buffer    *future.Buffer
	consensus *consensus.Consensus
	store     snapshot.Store
	metrics   *metrics.Registry

	selfEvents SelfEventStore

	//rounds that became decidable while bootstrapping; delivered by Run
	backlog []*consensus.Round

	intakeCh   chan *request
	roundCh    chan *consensus.Round
	shutdownCh chan struct{}
	doneCh     chan struct{}

	shutdownOnce sync.Once
	workers      chan struct{}
	wg           sync.WaitGroup
}

// NewNode creates a Node at genesis. The store may be nil, in which case
// nothing is persisted.
func NewNode(conf *Config, book *peers.PeerSet, store snapshot.Store, registry *metrics.Registry) *Node {
	if conf.Logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		conf.Logger = logrus.NewEntry(log)
	}
	if registry == nil {
		registry = metrics.Nop()
	}
	if conf.PrehandleWorkers < 1 {
		conf.PrehandleWorkers = 1
	}

	genesis := window.Genesis(conf.Consensus.Mode)

	consensusConf := conf.Consensus
	if store != nil {
		consensusConf.RoundSnapshots = true
	}

	n := &Node{
		conf:       conf,
		logger:     conf.Logger,
		buffer:     future.NewBuffer(genesis, registry.BufferedEvents(), conf.Logger),
		consensus:  consensus.New(book, consensusConf, registry, conf.Logger),
		store:      store,
		metrics:    registry,
		intakeCh:   make(chan *request, conf.IntakeCapacity),
		roundCh:    make(chan *consensus.Round, conf.OutputCapacity),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
		workers:    make(chan struct{}, conf.PrehandleWorkers),
	}

	return n
}

// Init loads the latest snapshot when Bootstrap is set. It must be called
// before Run.
func (n *Node) Init() error {
	if !n.conf.Bootstrap || n.store == nil {
		return nil
	}

	n.logger.Debug("Bootstrap")

	snap, err := n.store.Latest()
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			n.logger.Debug("No snapshot to bootstrap from")
			return nil
		}
		return err
	}

	rounds, err := n.restore(snap)
	if err != nil {
		return err
	}
	n.backlog = rounds

	return nil
}

// Rounds returns the channel of decided rounds. It is closed when Run returns.
func (n *Node) Rounds() <-chan *consensus.Round {
	return n.roundCh
}

// SelfEvents returns the store of the latest self event.
func (n *Node) SelfEvents() *SelfEventStore {
	return &n.selfEvents
}

// State returns the current state of the node.
func (n *Node) State() State {
	return n.getState()
}

/*******************************************************************************
Requests
*******************************************************************************/

// Submit enqueues an event. It returns once the event is queued, not
// processed.
func (n *Node) Submit(ctx context.Context, e *event.Event) error {
	if e == nil {
		common.Violation("pipeline", "nil event")
	}
	return n.enqueue(ctx, &request{kind: submitRequest, event: e})
}

// UpdateEventWindow injects a window from outside consensus, as a restart
// does. Consensus drops its events and resumes from the window. Buffered
// events released by a forward move are fed to consensus; a backward move
// clears the buffer.
func (n *Node) UpdateEventWindow(ctx context.Context, w window.EventWindow) error {
	_, err := n.call(ctx, &request{kind: windowRequest, window: w})
	return err
}

// Clear drops every buffered event.
func (n *Node) Clear(ctx context.Context) error {
	_, err := n.call(ctx, &request{kind: clearRequest})
	return err
}

// Restore resets the node to a snapshot. Events submitted before Restore
// returns are processed first.
func (n *Node) Restore(ctx context.Context, snap *snapshot.Snapshot) error {
	_, err := n.call(ctx, &request{kind: restoreRequest, snapshot: snap})
	return err
}

// Status returns the state of the node once every previously submitted event
// has been processed.
func (n *Node) Status(ctx context.Context) (Status, error) {
	return n.call(ctx, &request{kind: statusRequest})
}

func (n *Node) call(ctx context.Context, req *request) (Status, error) {
	req.promise = newPromise()
	if err := n.enqueue(ctx, req); err != nil {
		return Status{}, err
	}

	select {
	case resp := <-req.promise.respCh:
		return resp.status, resp.err
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-n.doneCh:
		//Run may have answered just before returning
		select {
		case resp := <-req.promise.respCh:
			return resp.status, resp.err
		default:
			return Status{}, n.stoppedErr()
		}
	}
}

func (n *Node) enqueue(ctx context.Context, req *request) error {
	if n.getState() == Halted {
		return ErrHalted
	}

	select {
	case n.intakeCh <- req:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-n.doneCh:
		return n.stoppedErr()
	}
}

func (n *Node) stoppedErr() error {
	if n.getState() == Halted {
		return ErrHalted
	}
	return ErrShutdown
}

/*******************************************************************************
Run loop
*******************************************************************************/

// Run processes requests until ctx is done, Shutdown is called, or consensus
// fails. It returns ErrHalted in the latter case.
func (n *Node) Run(ctx context.Context) (err error) {
	n.setState(Running)
	n.logger.Debug("Run loop")

	defer func() {
		n.wg.Wait()
		if n.getState() != Halted {
			n.setState(Shutdown)
		}
		close(n.roundCh)
		close(n.doneCh)
	}()

	backlog := n.backlog
	n.backlog = nil
	if err := n.deliver(ctx, backlog); err != nil {
		return stopped(err)
	}

	for {
		select {
		case req := <-n.intakeCh:
			if err := n.process(ctx, req); err != nil {
				return stopped(err)
			}
		case <-n.shutdownCh:
			n.logger.Debug("Shutdown")
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

//stopped maps the interruption of a delivery by Shutdown to a clean return
func stopped(err error) error {
	if errors.Is(err, ErrShutdown) {
		return nil
	}
	return err
}

// Shutdown stops Run. It does not wait for Run to return.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		close(n.shutdownCh)
	})
}

// Done is closed when Run has returned.
func (n *Node) Done() <-chan struct{} {
	return n.doneCh
}

//process handles one request. A contract violation halts the node.
func (n *Node) process(ctx context.Context, req *request) (err error) {
	var status Status

	defer func() {
		if r := recover(); r != nil {
			cv, ok := common.AsViolation(r)
			if !ok {
				cv = &common.ContractViolation{Component: "pipeline", Msg: fmt.Sprint(r)}
			}
			n.logger.WithError(cv).Error("Halting")
			n.setState(Halted)
			err = ErrHalted
		}
		if req.promise != nil {
			req.promise.respond(status, err)
		}
	}()

	switch req.kind {
	case submitRequest:
		err = n.admit(ctx, req.event)
	case windowRequest:
		err = n.overrideWindow(ctx, req.window)
	case clearRequest:
		n.buffer.Clear()
	case restoreRequest:
		var rounds []*consensus.Round
		if rounds, err = n.restore(req.snapshot); err == nil {
			err = n.deliver(ctx, rounds)
		}
	case statusRequest:
		status = n.status()
	}

	return err
}

func (n *Node) status() Status {
	return Status{
		State:            n.getState(),
		Window:           n.consensus.Window(),
		Buffered:         n.buffer.Len(),
		Undetermined:     len(n.consensus.Undetermined()),
		LastDecidedRound: n.consensus.LastDecidedRound(),
		NextOrder:        n.consensus.NextOrder(),
	}
}

//restore resets consensus to the snapshot and the buffer to the resulting
//window. Restored events go through prehandle again since they are new
//instances. The rounds that were decidable in the snapshot are returned for
//delivery.
func (n *Node) restore(snap *snapshot.Snapshot) ([]*consensus.Round, error) {
	rounds, err := n.consensus.Restore(snap)
	if err != nil {
		return nil, err
	}

	w := n.consensus.Window()
	n.buffer.Reset(w)

	for _, r := range rounds {
		for _, e := range r.Events {
			n.prehandle(e)
		}
	}
	for _, e := range n.consensus.Undetermined() {
		n.prehandle(e)
	}

	n.logger.WithFields(logrus.Fields{
		"round":             snap.Round,
		"complete":          snap.Complete,
		"decided":           len(rounds),
		"pending_round":     w.PendingConsensusRound(),
		"ancient_threshold": w.AncientThreshold(),
	}).Info("Restored from snapshot")

	return rounds, nil
}

//overrideWindow installs an external window. Buffered events survive a
//forward move only.
func (n *Node) overrideWindow(ctx context.Context, w window.EventWindow) error {
	current := n.buffer.Window()
	n.consensus.OverrideWindow(w)

	if w.PendingConsensusRound() < current.PendingConsensusRound() ||
		w.AncientThreshold() < current.AncientThreshold() {
		n.buffer.Reset(w)
		return nil
	}
	return n.feed(ctx, n.buffer.UpdateEventWindow(w))
}

/*******************************************************************************
Intake
*******************************************************************************/

func (n *Node) admit(ctx context.Context, e *event.Event) error {
	res := n.buffer.AddEvent(e)

	switch res.Outcome {
	case future.Discarded:
		n.metrics.Discarded(1)
		return nil
	case future.Buffered:
		n.recordSelf(e)
		n.prehandle(e)
		return nil
	}

	n.recordSelf(e)
	n.prehandle(e)

	return n.feed(ctx, []*event.Event{res.Event})
}

//feed inserts events into consensus. Events released by the buffer when a
//round is decided are appended to the queue.
func (n *Node) feed(ctx context.Context, queue []*event.Event) error {
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]

		rounds, err := n.consensus.AddEvent(e)
		if err != nil {
			n.reject(e, err)
			continue
		}

		if stale := n.consensus.Stale(); len(stale) > 0 {
			n.logger.WithField("stale", len(stale)).Debug("Events will never reach consensus")
		}

		if len(rounds) == 0 {
			continue
		}

		if err := n.deliver(ctx, rounds); err != nil {
			return err
		}

		released := n.buffer.UpdateEventWindow(n.consensus.Window())
		queue = append(queue, released...)
	}

	return nil
}

func (n *Node) reject(e *event.Event, err error) {
	fields := logrus.Fields{
		"event":       e.Hex(),
		"creator":     e.Creator(),
		"birth_round": e.BirthRound(),
	}

	switch {
	case common.IsStore(err, common.KeyAlreadyExists):
		n.logger.WithFields(fields).Debug("Skipping duplicate event")
	case common.IsStore(err, common.KeyNotFound):
		n.logger.WithFields(fields).WithError(err).Warn("Skipping event with unknown parent")
	default:
		n.logger.WithFields(fields).WithError(err).Error("Rejecting event")
	}
}

func (n *Node) recordSelf(e *event.Event) {
	if n.conf.Self != nil && e.Creator() == n.conf.Self.ID() {
		n.selfEvents.Swap(e)
	}
}

//prehandle completes the event's latch, after running the configured hook in
//a worker goroutine if there is one
func (n *Node) prehandle(e *event.Event) {
	if n.conf.Prehandle == nil {
		e.Prehandle().Complete()
		return
	}

	n.workers <- struct{}{}
	n.wg.Add(1)
	go func() {
		defer func() {
			<-n.workers
			n.wg.Done()
		}()
		n.conf.Prehandle(e)
		e.Prehandle().Complete()
	}()
}

/*******************************************************************************
Output
*******************************************************************************/

//deliver sends rounds to the output channel in order and saves the snapshot
//of the last round actually sent, also when delivery is interrupted
func (n *Node) deliver(ctx context.Context, rounds []*consensus.Round) error {
	var last *consensus.Round
	defer func() {
		n.save(last)
	}()

	for _, r := range rounds {
		for _, e := range r.Events {
			if err := n.waitPrehandle(ctx, e); err != nil {
				return err
			}
		}

		select {
		case n.roundCh <- r:
			last = r
		case <-ctx.Done():
			return ctx.Err()
		case <-n.shutdownCh:
			return ErrShutdown
		}
	}

	return nil
}

func (n *Node) save(r *consensus.Round) {
	if n.store == nil || r == nil || r.Snapshot == nil {
		return
	}
	if err := n.store.Save(r.Snapshot); err != nil {
		n.logger.WithError(err).WithField("round", r.Number).Error("Saving snapshot")
	}
}

func (n *Node) waitPrehandle(ctx context.Context, e *event.Event) error {
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()

	for {
		select {
		case <-e.Prehandle().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			n.logger.WithField("event", e.Hex()).Warn("Waiting for prehandle")
			timer.Reset(waitTimeout)
		}
	}
}
