package peers

import (
	"fmt"
	"testing"

	"github.com/mosaicnetworks/eventcore/src/crypto/keys"
)

func testPeers(t *testing.T, n int) []*Peer {
	res := make([]*Peer, n)
	for i := 0; i < n; i++ {
		key, err := keys.GenerateECDSAKey()
		if err != nil {
			t.Fatal(err)
		}
		res[i] = NewPeer(keys.PublicKeyHex(&key.PublicKey), fmt.Sprintf("node%d", i))
	}
	return res
}

func TestPeerSetDenseIndexes(t *testing.T) {
	ps, err := NewPeerSet(testPeers(t, 4))
	if err != nil {
		t.Fatal(err)
	}

	seen := make(map[int]bool)
	for _, id := range ps.IDs() {
		i, ok := ps.Index(id)
		if !ok {
			t.Fatalf("peer %d should have an index", id)
		}
		if i < 0 || i >= ps.Len() {
			t.Fatalf("index %d out of range", i)
		}
		seen[i] = true
	}
	if len(seen) != 4 {
		t.Fatalf("indexes should be dense, got %v", seen)
	}

	if _, ok := ps.Index(0); ok {
		t.Fatalf("unknown id should not have an index")
	}
}

func TestPeerSetDeterministicOrder(t *testing.T) {
	peers := testPeers(t, 5)
	reversed := make([]*Peer, len(peers))
	for i, p := range peers {
		reversed[len(peers)-1-i] = p
	}

	a, _ := NewPeerSet(peers)
	b, _ := NewPeerSet(reversed)

	if a.Hex() != b.Hex() {
		t.Fatalf("PeerSet hash should not depend on input order")
	}
	for _, id := range a.IDs() {
		ia, _ := a.Index(id)
		ib, _ := b.Index(id)
		if ia != ib {
			t.Fatalf("index of %d differs: %d vs %d", id, ia, ib)
		}
	}
}

func TestPeerSetRejectsDuplicates(t *testing.T) {
	peers := testPeers(t, 2)
	dup := NewPeer(peers[0].PubKeyHex, "copy")
	if _, err := NewPeerSet(append(peers, dup)); err == nil {
		t.Fatalf("duplicate ids should be rejected")
	}
}

func TestSuperMajority(t *testing.T) {
	for _, c := range []struct {
		n, sm, trust int
	}{
		{1, 1, 0},
		{3, 3, 1},
		{4, 3, 2},
		{7, 5, 3},
	} {
		ps, err := NewPeerSet(testPeers(t, c.n))
		if err != nil {
			t.Fatal(err)
		}
		if got := ps.SuperMajority(); got != c.sm {
			t.Errorf("SuperMajority(%d) should be %d, not %d", c.n, c.sm, got)
		}
		if got := ps.TrustCount(); got != c.trust {
			t.Errorf("TrustCount(%d) should be %d, not %d", c.n, c.trust, got)
		}
	}
}
