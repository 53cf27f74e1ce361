package consensus

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/crypto/keys"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/peers"
	"github.com/mosaicnetworks/eventcore/src/window"
)

func testBook(t *testing.T, n int) *peers.PeerSet {
	members := make([]*peers.Peer, n)
	for i := range members {
		k, err := keys.GenerateECDSAKey()
		require.NoError(t, err)
		members[i] = peers.NewPeer(keys.PublicKeyHex(&k.PublicKey), fmt.Sprintf("node%d", i))
	}
	book, err := peers.NewPeerSet(members)
	require.NoError(t, err)
	return book
}

func testEvent(t *testing.T, creator uint32, birthRound int64, sp, op *event.Event) *event.Event {
	body := event.Body{
		Creator:     creator,
		TimeCreated: time.Unix(0, int64(creator)*1000+birthRound),
		BirthRound:  birthRound,
	}
	if sp != nil {
		body.SelfParent = sp.Descriptor()
		body.TimeCreated = sp.TimeCreated().Add(time.Millisecond)
	}
	if op != nil {
		body.OtherParent = op.Descriptor()
	}
	e, err := event.NewEvent(body, nil)
	require.NoError(t, err)
	return e
}

func TestBitset(t *testing.T) {
	b := NewBitset(130)
	assert.Equal(t, 130, b.Len())
	assert.Equal(t, 0, b.Count())

	b.Set(0, true)
	b.Set(64, true)
	b.Set(129, true)
	b.Set(64, false)

	assert.True(t, b.Get(0))
	assert.False(t, b.Get(64))
	assert.True(t, b.Get(129))
	assert.Equal(t, 2, b.Count())
}

func TestArena(t *testing.T) {
	a := NewArena()

	e1 := testEvent(t, 1, 1, nil, nil)
	e2 := testEvent(t, 1, 3, e1, nil)

	m1 := a.Add(e1)
	m2 := a.Add(e2)
	assert.NotEqual(t, m1.Handle, m2.Handle)
	assert.Equal(t, 2, a.Len())
	assert.Equal(t, 2, a.LiveScratch())

	h, ok := a.Lookup(e2.Hash())
	require.True(t, ok)
	assert.Same(t, m2, a.Get(h))
	assert.Nil(t, a.Get(NoHandle))
	assert.Nil(t, a.Get(h+10))

	m2.firstSee = []Coordinate{noCoordinate}
	m2.lastSee = []Coordinate{{Handle: m2.Handle, Seq: m2.Seq}}
	m2.votes = NewBitset(3)
	a.Clear(h)
	assert.True(t, m2.Cleared())
	assert.Nil(t, m2.firstSee)
	assert.Nil(t, m2.votes)
	assert.Equal(t, NoHandle, m2.SelfParent)
	assert.NotNil(t, m2.lastSee, "lastSee is part of the summary")
	assert.Equal(t, 1, a.LiveScratch())
	assert.Equal(t, 2, a.Len())

	// clearing twice changes nothing
	a.Clear(h)
	assert.Equal(t, 1, a.LiveScratch())

	removed := a.Expire(window.New(window.BirthRoundThreshold, 3, 2))
	assert.Equal(t, 1, removed)
	assert.Nil(t, a.Get(m1.Handle))
	_, ok = a.Lookup(e1.Hash())
	assert.False(t, ok)
	assert.Same(t, m2, a.Get(m2.Handle), "handles survive compaction")
	assert.Equal(t, 0, a.LiveScratch())

	a.Reset()
	assert.Equal(t, 0, a.Len())
	m3 := a.Add(testEvent(t, 2, 1, nil, nil))
	assert.Greater(t, int64(m3.Handle), int64(m2.Handle), "handles are never reused")
}

func TestMemoSizeMismatchPanics(t *testing.T) {
	book := testBook(t, 4)
	c := New(book, DefaultConfig(), nil, common.NewTestEntry(t, "consensus"))

	id := book.IDs()[0]
	parent := testEvent(t, id, 1, nil, nil)
	_, err := c.AddEvent(parent)
	require.NoError(t, err)

	h, _ := c.arena.Lookup(parent.Hash())
	c.arena.Get(h).lastSee = make([]Coordinate, 3)

	defer func() {
		cv, ok := common.AsViolation(recover())
		require.True(t, ok, "expected a contract violation")
		assert.Contains(t, cv.Msg, "lastSee")
	}()
	c.AddEvent(testEvent(t, id, 1, parent, nil))
}

func TestAddEventErrors(t *testing.T) {
	book := testBook(t, 4)
	c := New(book, DefaultConfig(), nil, common.NewTestEntry(t, "consensus"))
	ids := book.IDs()

	e := testEvent(t, ids[0], 1, nil, nil)
	_, err := c.AddEvent(e)
	require.NoError(t, err)

	_, err = c.AddEvent(e)
	assert.True(t, common.IsStore(err, common.KeyAlreadyExists), "duplicate: %v", err)

	_, err = c.AddEvent(testEvent(t, 12345, 1, nil, nil))
	assert.True(t, common.IsStore(err, common.UnknownParticipant), "unknown creator: %v", err)

	orphanParent := testEvent(t, ids[1], 1, nil, nil)
	_, err = c.AddEvent(testEvent(t, ids[2], 1, nil, orphanParent))
	assert.True(t, common.IsStore(err, common.KeyNotFound), "unknown parent: %v", err)
	assert.Len(t, c.Undetermined(), 1, "failed insertions leave no trace")
}

func TestGenesisEventsAreWitnesses(t *testing.T) {
	book := testBook(t, 4)
	c := New(book, DefaultConfig(), nil, common.NewTestEntry(t, "consensus"))

	for _, id := range book.IDs() {
		e := testEvent(t, id, 1, nil, nil)
		rounds, err := c.AddEvent(e)
		require.NoError(t, err)
		assert.Empty(t, rounds)

		h, _ := c.arena.Lookup(e.Hash())
		m := c.arena.Get(h)
		assert.True(t, m.IsWitness)
		assert.Equal(t, window.FirstRound, m.Round)
		assert.Equal(t, PendingConsensus, c.State(e))
	}

	ri, ok := c.rounds.Get(window.FirstRound)
	require.True(t, ok)
	assert.Len(t, ri.witnesses, 4)
}

func TestMiddleBit(t *testing.T) {
	assert.False(t, middleBit([]byte{1, 0, 1}))
	assert.True(t, middleBit([]byte{0, 1, 0}))
	assert.True(t, middleBit(nil))
}

func TestEventStateString(t *testing.T) {
	assert.Equal(t, "ConsensusFinalized", ConsensusFinalized.String())
	assert.True(t, DiscardedStale.Terminal())
	assert.False(t, Buffered.Terminal())
	assert.Equal(t, "EventState(42)", EventState(42).String())
}
