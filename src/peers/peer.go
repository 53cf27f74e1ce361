package peers

import (
	"github.com/mosaicnetworks/eventcore/src/common"
)

// Peer is a member of the address book.
type Peer struct {
	PubKeyHex string
	Moniker   string

	id uint32
}

// NewPeer creates a peer from its 0X-prefixed public key.
func NewPeer(pubKeyHex, moniker string) *Peer {
	return &Peer{
		PubKeyHex: pubKeyHex,
		Moniker:   moniker,
	}
}

// ID returns the compact identifier used in event bodies. It is the FNV hash
// of the public key bytes.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		pub, err := p.PubKeyBytes()
		if err != nil {
			pub = []byte(p.PubKeyHex)
		}
		p.id = common.Hash32(pub)
	}
	return p.id
}

// PubKeyBytes decodes the public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}
