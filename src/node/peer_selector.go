package node

import (
	"math/rand"

	"github.com/Fantom-foundation/go-lachesis/src/peers"
)

// PeerSelector defines the interface for gossip peer selection strategies.
type PeerSelector interface {
	Peers() *peers.PeerSet
	UpdateLast(peer string)
	Next() *peers.Peer
}

// RandomPeerSelector selects a random peer, avoiding the peer it interacted
// with last.
type RandomPeerSelector struct {
	peers    *peers.PeerSet
	selfAddr string
	last     string
}

// NewRandomPeerSelector creates a RandomPeerSelector.
func NewRandomPeerSelector(peerSet *peers.PeerSet, selfAddr string) *RandomPeerSelector {
	return &RandomPeerSelector{
		peers:    peerSet,
		selfAddr: selfAddr,
	}
}

// Peers returns the full PeerSet.
func (p *RandomPeerSelector) Peers() *peers.PeerSet {
	return p.peers
}

// UpdateLast records the last selected peer.
func (p *RandomPeerSelector) UpdateLast(peer string) {
	p.last = peer
}

// Next returns the next peer to gossip with, or nil if there is no eligible
// peer.
func (p *RandomPeerSelector) Next() *peers.Peer {
	selectablePeers := p.peers.Peers

	if len(selectablePeers) > 1 {
		_, selectablePeers = peers.ExcludePeer(selectablePeers, p.selfAddr)
		if len(selectablePeers) > 1 {
			_, selectablePeers = peers.ExcludePeer(selectablePeers, p.last)
		}
	}

	if len(selectablePeers) == 0 {
		return nil
	}

	i := rand.Intn(len(selectablePeers))
	return selectablePeers[i]
}
