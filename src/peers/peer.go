package peers

import (
	"github.com/Fantom-foundation/go-lachesis/src/common"
)

// Peer is a consensus participant, identified by its public key. The numeric
// ID is a 32-bit hash of the public key, used in the compact wire encoding
// of events.
type Peer struct {
	NetAddr   string `json:"NetAddr"`
	PubKeyHex string `json:"PubKeyHex"`
	Moniker   string `json:"Moniker,omitempty"`

	id uint32
}

// NewPeer instantiates a Peer.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}

	return peer
}

// ID returns the peer's canonical uint32 ID, computing and caching it on
// first use.
func (p *Peer) ID() uint32 {
	if p.id == 0 {
		pubKeyBytes := p.PubKeyBytes()
		p.id = common.Hash32(pubKeyBytes)
	}
	return p.id
}

// PubKeyString returns the canonical string representation of the public key.
func (p *Peer) PubKeyString() string {
	return p.PubKeyHex
}

// PubKeyBytes returns the decoded public key bytes.
func (p *Peer) PubKeyBytes() []byte {
	res, _ := common.DecodeFromString(p.PubKeyHex)
	return res
}

// ExcludePeer returns the list of peers without the peer at the given
// network address, along with the excluded peer's position.
func ExcludePeer(peers []*Peer, peer string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
