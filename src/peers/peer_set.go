package peers

import (
	"fmt"
	"math"
	"sort"

	"github.com/mosaicnetworks/eventcore/src/common"
	"github.com/mosaicnetworks/eventcore/src/crypto"
)

//PeerSet is the address book: an immutable set of members, each with a dense
//index.
type PeerSet struct {
	Peers []*Peer `json:"peers"`

	byID    map[uint32]*Peer
	indexes map[uint32]int

	//cached values
	hash []byte
	hex  string
}

//NewPeerSet creates a new PeerSet. Members are ordered by ID so that every
//node derives the same dense indexes from the same membership.
func NewPeerSet(peers []*Peer) (*PeerSet, error) {
	sorted := make([]*Peer, len(peers))
	copy(sorted, peers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })

	peerSet := &PeerSet{
		Peers:   sorted,
		byID:    make(map[uint32]*Peer, len(sorted)),
		indexes: make(map[uint32]int, len(sorted)),
	}

	for i, p := range sorted {
		if _, ok := peerSet.byID[p.ID()]; ok {
			return nil, common.NewStoreErr("PeerSet", common.KeyAlreadyExists, fmt.Sprint(p.ID()))
		}
		peerSet.byID[p.ID()] = p
		peerSet.indexes[p.ID()] = i
	}

	return peerSet, nil
}

//Len returns the number of members.
func (peerSet *PeerSet) Len() int {
	return len(peerSet.Peers)
}

//Index returns the dense index of a member.
func (peerSet *PeerSet) Index(id uint32) (int, bool) {
	i, ok := peerSet.indexes[id]
	return i, ok
}

//ByID returns a member by id.
func (peerSet *PeerSet) ByID(id uint32) (*Peer, bool) {
	p, ok := peerSet.byID[id]
	return p, ok
}

//IDs returns the member ids in index order.
func (peerSet *PeerSet) IDs() []uint32 {
	res := make([]uint32, len(peerSet.Peers))
	for i, p := range peerSet.Peers {
		res[i] = p.ID()
	}
	return res
}

//SuperMajority returns the number of members that forms a strong majority
//(+2/3).
func (peerSet *PeerSet) SuperMajority() int {
	return 2*peerSet.Len()/3 + 1
}

//TrustCount is the number of members needed to guarantee at least one honest
//one (+1/3).
func (peerSet *PeerSet) TrustCount() int {
	if peerSet.Len() <= 1 {
		return 0
	}
	return int(math.Ceil(float64(peerSet.Len()) / float64(3)))
}

// Hash uniquely identifies a PeerSet. It is computed by hashing (SHA256) their
// public keys together, one by one.
func (peerSet *PeerSet) Hash() []byte {
	if len(peerSet.hash) == 0 {
		hash := []byte{}
		for _, p := range peerSet.Peers {
			pk, err := p.PubKeyBytes()
			if err != nil {
				pk = []byte(p.PubKeyHex)
			}
			hash = crypto.SimpleHashFromTwoHashes(hash, pk)
		}
		peerSet.hash = hash
	}
	return peerSet.hash
}

//Hex is the hexadecimal representation of Hash
func (peerSet *PeerSet) Hex() string {
	if len(peerSet.hex) == 0 {
		peerSet.hex = common.EncodeToString(peerSet.Hash())
	}
	return peerSet.hex
}
