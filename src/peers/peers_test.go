package peers

import (
	"os"
	"reflect"
	"testing"

	"github.com/Fantom-foundation/go-lachesis/src/crypto/keys"
)

func newTestPeerSet(n int) *PeerSet {
	ps := []*Peer{}
	for i := 0; i < n; i++ {
		key, _ := keys.GenerateECDSAKey()
		ps = append(ps, NewPeer(keys.PublicKeyHex(&key.PublicKey), "", ""))
	}
	return NewPeerSet(ps)
}

func TestSuperMajority(t *testing.T) {
	testCases := []struct {
		peers    int
		expected int
	}{
		{1, 1},
		{2, 2},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
	}

	for _, tc := range testCases {
		peerSet := newTestPeerSet(tc.peers)
		if sm := peerSet.SuperMajority(); sm != tc.expected {
			t.Fatalf("SuperMajority of %d peers should be %d, not %d", tc.peers, tc.expected, sm)
		}
	}
}

func TestPeerSetMaps(t *testing.T) {
	peerSet := newTestPeerSet(4)

	for _, p := range peerSet.Peers {
		if q, ok := peerSet.ByPubKey[p.PubKeyString()]; !ok || q != p {
			t.Fatalf("peer %s not indexed by public key", p.PubKeyString())
		}
		if q, ok := peerSet.ByID[p.ID()]; !ok || q != p {
			t.Fatalf("peer %d not indexed by ID", p.ID())
		}
	}
}

func TestWithRemovedPeer(t *testing.T) {
	peerSet := newTestPeerSet(4)

	removed := peerSet.Peers[2]
	smaller := peerSet.WithRemovedPeer(removed)

	if smaller.Len() != 3 {
		t.Fatalf("peer-set should have 3 peers, not %d", smaller.Len())
	}
	if _, ok := smaller.ByID[removed.ID()]; ok {
		t.Fatal("removed peer should not be in the peer-set")
	}
	if smaller.SuperMajority() != 3 {
		t.Fatalf("SuperMajority should be 3, not %d", smaller.SuperMajority())
	}
}

func TestJSONPeerSet(t *testing.T) {
	dir, err := os.MkdirTemp("", "peers")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	peerSet := newTestPeerSet(3)

	store := NewJSONPeerSet(dir)
	if err := store.Write(peerSet.Peers); err != nil {
		t.Fatal(err)
	}

	read, err := store.PeerSet()
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(peerSet.PubKeys(), read.PubKeys()) {
		t.Fatalf("read peer-set %v does not match written %v", read.PubKeys(), peerSet.PubKeys())
	}
}
