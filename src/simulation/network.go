package simulation

import (
	"crypto/ecdsa"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/eventcore/src/consensus"
	"github.com/mosaicnetworks/eventcore/src/crypto/keys"
	"github.com/mosaicnetworks/eventcore/src/event"
	"github.com/mosaicnetworks/eventcore/src/peers"
	"github.com/mosaicnetworks/eventcore/src/window"
)

// Config parameterizes a Network.
type Config struct {
	Nodes       int
	Seed        int64
	TxsPerEvent int

	//probability that an event's birth round is ahead of consensus, and by
	//how many rounds. The creator of a leading event stays silent until
	//consensus reaches the event's birth round, the way a node that is ahead
	//waits for the others.
	LeadProbability float64
	Lead            int64

	//probability that an event's birth round lags behind consensus, and by
	//how many rounds
	LagProbability float64
	Lag            int64

	//keys of the members; generated when empty
	Keys []*ecdsa.PrivateKey

	Consensus consensus.Config
}

// Network simulates the event creation of a set of members.
type Network struct {
	conf Config
	rng  *rand.Rand

	book  *peers.PeerSet
	keys  map[uint32]*ecdsa.PrivateKey
	ids   []uint32
	heads map[uint32]*event.Event

	//creators waiting for consensus to reach a birth round
	suspended map[uint32]int64

	clock   time.Time
	created int

	tracker *consensus.Consensus
	rounds  []*consensus.Round
}

// NewNetwork creates a Network and its address book.
func NewNetwork(conf Config, logger *logrus.Entry) (*Network, error) {
	if conf.Nodes < 1 && len(conf.Keys) == 0 {
		return nil, fmt.Errorf("a network needs at least one node")
	}

	privs := conf.Keys
	for len(privs) < conf.Nodes {
		k, err := keys.GenerateECDSAKey()
		if err != nil {
			return nil, err
		}
		privs = append(privs, k)
	}

	members := make([]*peers.Peer, len(privs))
	keyMap := make(map[uint32]*ecdsa.PrivateKey, len(privs))
	for i, k := range privs {
		p := peers.NewPeer(keys.PublicKeyHex(&k.PublicKey), fmt.Sprintf("node%d", i))
		members[i] = p
		keyMap[p.ID()] = k
	}

	book, err := peers.NewPeerSet(members)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.WarnLevel
		logger = logrus.NewEntry(log)
	}

	return &Network{
		conf:      conf,
		rng:       rand.New(rand.NewSource(conf.Seed)),
		book:      book,
		keys:      keyMap,
		ids:       book.IDs(),
		heads:     make(map[uint32]*event.Event),
		suspended: make(map[uint32]int64),
		clock:     time.Unix(1600000000, 0).UTC(),
		tracker:   consensus.New(book, conf.Consensus, nil, logger.WithField("prefix", "tracker")),
	}, nil
}

// Book returns the address book of the network.
func (n *Network) Book() *peers.PeerSet {
	return n.book
}

// Key returns the private key of a member.
func (n *Network) Key(id uint32) *ecdsa.PrivateKey {
	return n.keys[id]
}

// Created returns the number of events created so far.
func (n *Network) Created() int {
	return n.created
}

// Rounds returns the rounds decided by the network's own consensus instance.
func (n *Network) Rounds() []*consensus.Round {
	return n.rounds
}

// PendingRound returns the round the network's consensus is working on.
func (n *Network) PendingRound() int64 {
	return n.tracker.Window().PendingConsensusRound()
}

// Next creates, signs and returns a new event.
func (n *Network) Next() (*event.Event, error) {
	pending := n.PendingRound()
	for id, br := range n.suspended {
		if br <= pending {
			delete(n.suspended, id)
		}
	}

	active := make([]uint32, 0, len(n.ids))
	for _, id := range n.ids {
		if _, ok := n.suspended[id]; !ok {
			active = append(active, id)
		}
	}

	creator := active[n.rng.Intn(len(active))]

	var other uint32
	hasOther := len(active) > 1
	if hasOther {
		for {
			other = active[n.rng.Intn(len(active))]
			if other != creator {
				break
			}
		}
	}

	body := event.Body{
		Creator:         creator,
		TimeCreated:     n.tick(),
		Transactions:    n.transactions(creator),
		SoftwareVersion: "simulation",
	}

	birthRound := pending
	leading := false
	switch {
	case n.conf.Lead > 0 && n.canSuspend() && n.rng.Float64() < n.conf.LeadProbability:
		birthRound += n.conf.Lead
		leading = true
	case n.conf.Lag > 0 && n.rng.Float64() < n.conf.LagProbability:
		birthRound -= n.conf.Lag
		if birthRound < window.FirstRound {
			birthRound = window.FirstRound
		}
	}

	//a child is never born before its parents
	if sp, ok := n.heads[creator]; ok {
		body.SelfParent = sp.Descriptor()
		if sp.BirthRound() > birthRound {
			birthRound = sp.BirthRound()
		}
	}
	if op, ok := n.heads[other]; ok && hasOther {
		body.OtherParent = op.Descriptor()
		if op.BirthRound() > birthRound {
			birthRound = op.BirthRound()
		}
	}
	body.BirthRound = birthRound

	ev, err := event.NewEvent(body, nil)
	if err != nil {
		return nil, err
	}
	if err := ev.Sign(n.keys[creator]); err != nil {
		return nil, err
	}

	//the tracker works on its own copy so that consensus data is never set
	//twice on the returned event
	tracked, err := event.NewEvent(body, ev.Signature)
	if err != nil {
		return nil, err
	}
	rounds, err := n.tracker.AddEvent(tracked)
	if err != nil {
		return nil, err
	}
	n.rounds = append(n.rounds, rounds...)

	n.heads[creator] = ev
	n.created++
	if leading && birthRound > n.PendingRound() {
		n.suspended[creator] = birthRound
	}

	return ev, nil
}

//canSuspend is true while enough members remain active to decide rounds
func (n *Network) canSuspend() bool {
	return len(n.suspended) < len(n.ids)-n.book.SuperMajority()
}

// Generate creates count events.
func (n *Network) Generate(count int) ([]*event.Event, error) {
	res := make([]*event.Event, 0, count)
	for i := 0; i < count; i++ {
		ev, err := n.Next()
		if err != nil {
			return res, err
		}
		res = append(res, ev)
	}
	return res, nil
}

func (n *Network) tick() time.Time {
	n.clock = n.clock.Add(time.Duration(1+n.rng.Intn(50)) * time.Millisecond)
	return n.clock
}

func (n *Network) transactions(creator uint32) []event.Transaction {
	txs := make([]event.Transaction, n.conf.TxsPerEvent)
	for i := range txs {
		txs[i] = event.Transaction{
			Payload: []byte(fmt.Sprintf("node%d tx%d", creator, n.created*n.conf.TxsPerEvent+i)),
			System:  n.rng.Intn(10) == 0,
		}
	}
	return txs
}
