package simulation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/consensus"
)

func TestNetworkEventsAreSignedAndLinked(t *testing.T) {
	n, err := NewNetwork(Config{Nodes: 4, Seed: 1, TxsPerEvent: 2, Consensus: consensus.DefaultConfig()},
		common.NewTestEntry(t, "simulation"))
	require.NoError(t, err)

	events, err := n.Generate(100)
	require.NoError(t, err)
	assert.Equal(t, 100, n.Created())

	known := map[string]int64{}
	for _, e := range events {
		ok, err := e.Verify(&n.Key(e.Creator()).PublicKey)
		require.NoError(t, err)
		assert.True(t, ok, "bad signature on %s", e)

		assert.Len(t, e.Transactions(), 2)
		assert.False(t, e.IsConsensus(), "returned events carry no consensus data")

		for _, p := range e.Body.Parents() {
			br, ok := known[string(p.Hash)]
			require.True(t, ok, "parent of %s created later", e)
			assert.LessOrEqual(t, br, e.BirthRound())
			assert.Less(t, p.Generation, e.Generation())
		}
		if sp := e.SelfParent(); sp != nil {
			assert.Equal(t, e.Creator(), sp.Creator)
		}
		if op := e.OtherParent(); op != nil {
			assert.NotEqual(t, e.Creator(), op.Creator)
		}
		known[string(e.Hash())] = e.BirthRound()
	}

	assert.NotEmpty(t, n.Rounds())
	assert.Greater(t, n.PendingRound(), int64(1))
}

func TestNetworkLeadingCreatorsWait(t *testing.T) {
	n, err := NewNetwork(Config{
		Nodes:           4,
		Seed:            2,
		LeadProbability: 0.05,
		Lead:            2,
		Consensus:       consensus.DefaultConfig(),
	}, common.NewTestEntry(t, "simulation"))
	require.NoError(t, err)

	leading := 0
	for i := 0; i < 400; i++ {
		pending := n.PendingRound()
		e, err := n.Next()
		require.NoError(t, err)

		_, suspended := n.suspended[e.Creator()]
		if e.BirthRound() > pending {
			leading++
		}
		assert.LessOrEqual(t, len(n.suspended), len(n.ids)-n.book.SuperMajority())
		if suspended {
			assert.Greater(t, n.suspended[e.Creator()], n.PendingRound())
		}
	}
	assert.Greater(t, leading, 0, "some events lead consensus")
}

func TestNetworkNeedsNodes(t *testing.T) {
	_, err := NewNetwork(Config{}, nil)
	assert.Error(t, err)
}
