package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/consensus"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/peers"
	"github.com/mosaicnetworks/eventcore/src/simulation"
	"github.com/mosaicnetworks/eventcore/src/snapshot"
	"github.com/mosaicnetworks/eventcore/src/window"
)

func testNetwork(t *testing.T, conf simulation.Config, count int) (*simulation.Network, []*event.Event) {
	network, err := simulation.NewNetwork(conf, common.NewTestEntry(t, "simulation"))
	require.NoError(t, err)
	events, err := network.Generate(count)
	require.NoError(t, err)
	return network, events
}

func testNode(t *testing.T, book *peers.PeerSet, store snapshot.Store, configure func(*Config)) *Node {
	conf := TestConfig(t)
	conf.OutputCapacity = 4096
	if configure != nil {
		configure(conf)
	}
	return NewNode(conf, book, store, nil)
}

//start runs the node until the end of the test
func start(t *testing.T, node *Node) <-chan error {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- node.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-node.Done()
	})
	return errCh
}

func submitAll(t *testing.T, node *Node, events []*event.Event) Status {
	ctx := context.Background()
	for _, e := range events {
		require.NoError(t, node.Submit(ctx, e))
	}
	status, err := node.Status(ctx)
	require.NoError(t, err)
	return status
}

//stop shuts the node down and returns every round it delivered
func stop(t *testing.T, node *Node) []*consensus.Round {
	node.Shutdown()
	select {
	case <-node.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("node did not stop")
	}
	rounds := []*consensus.Round{}
	for r := range node.Rounds() {
		rounds = append(rounds, r)
	}
	return rounds
}

func ordered(rounds []*consensus.Round) []string {
	res := []string{}
	for _, r := range rounds {
		for _, e := range r.Events {
			res = append(res, e.Hex())
		}
	}
	return res
}

func copies(t *testing.T, events []*event.Event) []*event.Event {
	res := make([]*event.Event, len(events))
	for i, e := range events {
		c, err := event.NewEvent(e.Body, e.Signature)
		require.NoError(t, err)
		res[i] = c
	}
	return res
}

func TestNodeMatchesConsensus(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 1, TxsPerEvent: 2, Consensus: consensus.DefaultConfig()}, 300)

	store := snapshot.NewInmemStore()
	node := testNode(t, network.Book(), store, nil)
	start(t, node)

	status := submitAll(t, node, events)
	assert.Equal(t, Running, status.State)
	assert.Equal(t, 0, status.Buffered)

	rounds := stop(t, node)
	require.NotEmpty(t, rounds)
	assert.Equal(t, status.LastDecidedRound, rounds[len(rounds)-1].Number)

	if diff := cmp.Diff(ordered(network.Rounds()), ordered(rounds)); diff != "" {
		t.Fatalf("pipeline order differs from the network (-network +pipeline):\n%s", diff)
	}

	for _, r := range rounds {
		for _, e := range r.Events {
			assert.True(t, e.Prehandle().IsComplete())
		}
	}

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.True(t, latest.Complete)
	assert.Equal(t, status.LastDecidedRound, latest.Round)
	assert.Equal(t, status.NextOrder, latest.NextOrder)
	assert.Equal(t, Shutdown, node.State())
}

func TestNodeWaitsForPrehandle(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 2, TxsPerEvent: 1, Consensus: consensus.DefaultConfig()}, 200)

	var handled int64
	node := testNode(t, network.Book(), nil, func(c *Config) {
		c.PrehandleWorkers = 4
		c.Prehandle = func(e *event.Event) {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&handled, 1)
		}
	})
	start(t, node)

	submitAll(t, node, events)
	rounds := stop(t, node)
	require.NotEmpty(t, rounds)

	for _, r := range rounds {
		for _, e := range r.Events {
			assert.True(t, e.Prehandle().IsComplete(), "delivered before prehandle: %s", e)
		}
	}
	assert.Equal(t, int64(len(events)), atomic.LoadInt64(&handled))
}

func TestNodeBuffersFutureEvents(t *testing.T) {
	network, _ := testNetwork(t, simulation.Config{Nodes: 4, Seed: 3, Consensus: consensus.DefaultConfig()}, 0)
	node := testNode(t, network.Book(), nil, nil)
	start(t, node)
	ctx := context.Background()

	future, err := event.NewEvent(event.Body{
		Creator:     network.Book().IDs()[0],
		TimeCreated: time.Unix(1600000000, 0),
		BirthRound:  5,
	}, nil)
	require.NoError(t, err)
	require.NoError(t, node.Submit(ctx, future))

	status, err := node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Buffered)
	assert.Equal(t, 0, status.Undetermined)

	require.NoError(t, node.UpdateEventWindow(ctx, window.New(window.BirthRoundThreshold, 5, window.FirstRound)))

	status, err = node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Buffered)
	assert.Equal(t, 1, status.Undetermined, "released events are fed to consensus")
	assert.Equal(t, window.New(window.BirthRoundThreshold, 5, window.FirstRound), status.Window)
}

func TestNodeUpdateEventWindowReachesConsensus(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 14, Consensus: consensus.DefaultConfig()}, 100)
	node := testNode(t, network.Book(), nil, nil)
	start(t, node)
	ctx := context.Background()
	submitAll(t, node, events)

	w := window.New(window.BirthRoundThreshold, 10, 5)
	require.NoError(t, node.UpdateEventWindow(ctx, w))

	status, err := node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, w, status.Window)
	assert.Equal(t, int64(9), status.LastDecidedRound)
	assert.Equal(t, 0, status.Undetermined)

	id := network.Book().IDs()[0]
	for i, birthRound := range []int64{3, 12} {
		e, err := event.NewEvent(event.Body{
			Creator:     id,
			TimeCreated: time.Unix(1600000000, int64(i)),
			BirthRound:  birthRound,
		}, nil)
		require.NoError(t, err)
		require.NoError(t, node.Submit(ctx, e))
	}

	status, err = node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Buffered, "only the future event is kept")
	assert.Equal(t, 0, status.Undetermined)

	back := window.New(window.BirthRoundThreshold, 4, 2)
	require.NoError(t, node.UpdateEventWindow(ctx, back))

	status, err = node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, back, status.Window)
	assert.Equal(t, 0, status.Buffered, "a backward window clears the buffer")
}

func TestNodeClear(t *testing.T) {
	network, _ := testNetwork(t, simulation.Config{Nodes: 4, Seed: 4, Consensus: consensus.DefaultConfig()}, 0)
	node := testNode(t, network.Book(), nil, nil)
	start(t, node)
	ctx := context.Background()

	for i, id := range network.Book().IDs() {
		e, err := event.NewEvent(event.Body{
			Creator:     id,
			TimeCreated: time.Unix(1600000000, int64(i)),
			BirthRound:  3 + int64(i),
		}, nil)
		require.NoError(t, err)
		require.NoError(t, node.Submit(ctx, e))
	}

	status, err := node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, status.Buffered)

	require.NoError(t, node.Clear(ctx))
	status, err = node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Buffered)
}

func TestNodeWithLeadingCreators(t *testing.T) {
	conf := simulation.Config{
		Nodes:           4,
		Seed:            5,
		TxsPerEvent:     1,
		LeadProbability: 0.05,
		Lead:            2,
		Consensus:       consensus.DefaultConfig(),
	}
	network, events := testNetwork(t, conf, 400)

	node := testNode(t, network.Book(), nil, nil)
	start(t, node)

	status := submitAll(t, node, events)
	assert.Equal(t, Running, status.State)

	rounds := stop(t, node)
	require.NotEmpty(t, rounds)

	var order int64
	for i, r := range rounds {
		assert.Equal(t, int64(i+1), r.Number)
		for _, e := range r.Events {
			assert.Equal(t, order, e.ConsensusOrder())
			order++
		}
	}
}

func TestNodeSkipsEventsWithUnknownParents(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 6, Consensus: consensus.DefaultConfig()}, 20)
	node := testNode(t, network.Book(), nil, nil)
	start(t, node)

	//drop the first event: every descendant misses a parent
	status := submitAll(t, node, events[1:])
	assert.Equal(t, Running, status.State)
	assert.Less(t, status.Undetermined, len(events)-1)
}

func TestNodeRecordsSelfEvents(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 7, Consensus: consensus.DefaultConfig()}, 50)
	self := network.Book().Peers[0]

	node := testNode(t, network.Book(), nil, func(c *Config) {
		c.Self = self
	})
	start(t, node)
	assert.Nil(t, node.SelfEvents().Load())

	submitAll(t, node, events)

	var expected *event.Event
	for _, e := range events {
		if e.Creator() == self.ID() {
			expected = e
		}
	}
	require.NotNil(t, expected)
	assert.Same(t, expected, node.SelfEvents().Load())
}

func TestNodeHaltsOnContractViolation(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 8, Consensus: consensus.DefaultConfig()}, 10)
	node := testNode(t, network.Book(), nil, nil)
	errCh := start(t, node)
	ctx := context.Background()

	err := node.UpdateEventWindow(ctx, window.Genesis(window.GenerationThreshold))
	assert.Equal(t, ErrHalted, err)

	select {
	case err := <-errCh:
		assert.Equal(t, ErrHalted, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node did not halt")
	}

	assert.Equal(t, Halted, node.State())
	assert.Equal(t, ErrHalted, node.Submit(ctx, events[0]))
	_, err = node.Status(ctx)
	assert.Equal(t, ErrHalted, err)
}

func TestNodeBootstrapsFromSnapshot(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 9, TxsPerEvent: 1, Consensus: consensus.DefaultConfig()}, 300)
	store := snapshot.NewInmemStore()

	first := testNode(t, network.Book(), store, nil)
	start(t, first)
	status := submitAll(t, first, events)
	stop(t, first)

	snap, err := store.Latest()
	require.NoError(t, err)
	require.Equal(t, status.LastDecidedRound, snap.Round)

	second := testNode(t, network.Book(), store, func(c *Config) {
		c.Bootstrap = true
	})
	require.NoError(t, second.Init())
	start(t, second)

	restored, err := second.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Round, restored.LastDecidedRound)
	assert.Equal(t, snap.NextOrder, restored.NextOrder)
	assert.Equal(t, snap.Window(), restored.Window)

	more, err := network.Generate(300)
	require.NoError(t, err)
	submitAll(t, second, more)

	rounds := stop(t, second)
	require.NotEmpty(t, rounds)
	assert.Equal(t, snap.Round+1, rounds[0].Number)
	require.NotEmpty(t, rounds[0].Events)
	assert.Equal(t, snap.NextOrder, rounds[0].Events[0].ConsensusOrder())

	//the network never stopped
	var expected []*consensus.Round
	for _, r := range network.Rounds() {
		if r.Number > snap.Round && r.Number <= rounds[len(rounds)-1].Number {
			expected = append(expected, r)
		}
	}
	if diff := cmp.Diff(ordered(expected), ordered(rounds)); diff != "" {
		t.Fatalf("bootstrapped node diverges from the network (-network +node):\n%s", diff)
	}
}

func TestNodeSavesLastDeliveredRoundOnShutdown(t *testing.T) {
	network, _ := testNetwork(t, simulation.Config{Nodes: 4, Seed: 13, Consensus: consensus.DefaultConfig()}, 0)
	store := snapshot.NewInmemStore()
	node := testNode(t, network.Book(), store, func(c *Config) {
		c.OutputCapacity = 0
	})

	rounds := make([]*consensus.Round, 3)
	for i := range rounds {
		number := int64(i + 1)
		rounds[i] = &consensus.Round{
			Number: number,
			Snapshot: &snapshot.Snapshot{
				Round:            number,
				Mode:             window.BirthRoundThreshold,
				PendingRound:     number + 1,
				AncientThreshold: window.FirstRound,
				Complete:         true,
			},
		}
	}

	//the consumer takes one round and stops the node
	go func() {
		<-node.Rounds()
		node.Shutdown()
	}()

	err := node.deliver(context.Background(), rounds)
	assert.Equal(t, ErrShutdown, err)

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, int64(1), latest.Round)
}

func TestNodeRestoreRequest(t *testing.T) {
	network, events := testNetwork(t, simulation.Config{Nodes: 4, Seed: 10, Consensus: consensus.DefaultConfig()}, 200)

	node := testNode(t, network.Book(), nil, nil)
	start(t, node)
	ctx := context.Background()

	status := submitAll(t, node, events)

	snap := &snapshot.Snapshot{
		Round:            status.LastDecidedRound + 3,
		Mode:             window.BirthRoundThreshold,
		PendingRound:     status.LastDecidedRound + 4,
		AncientThreshold: window.FirstRound,
		NextOrder:        status.NextOrder + 100,
		JudgeGenerations: map[int64]int64{},
	}
	require.NoError(t, node.Restore(ctx, snap))

	restored, err := node.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Round, restored.LastDecidedRound)
	assert.Equal(t, 0, restored.Buffered)
	assert.Equal(t, 0, restored.Undetermined)
	assert.Equal(t, snap.NextOrder, restored.NextOrder)
}
