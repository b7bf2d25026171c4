package peers

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"

	"github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/crypto"
)

// PeerSet is a group of Peers forming a consensus network.
type PeerSet struct {
	Peers    []*Peer          `json:"peers"`
	ByPubKey map[string]*Peer `json:"-"`
	ByID     map[uint32]*Peer `json:"-"`

	//cached values
	hash          []byte
	hex           string
	superMajority *int
	trustCount    *int
}

// NewPeerSet creates a PeerSet from a list of Peers.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByPubKey: make(map[string]*Peer),
		ByID:     make(map[uint32]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByPubKey[peer.PubKeyString()] = peer
		peerSet.ByID[peer.ID()] = peer
	}

	peerSet.Peers = peers

	return peerSet
}

// WithNewPeer returns a new PeerSet that includes the given peer.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := peerSet.Peers

	if _, ok := peerSet.ByID[peer.ID()]; !ok {
		peers = append(peers, peer)
	}

	return NewPeerSet(peers)
}

// WithRemovedPeer returns a new PeerSet that excludes the given peer.
func (peerSet *PeerSet) WithRemovedPeer(peer *Peer) *PeerSet {
	peers := []*Peer{}
	for _, p := range peerSet.Peers {
		if p.PubKeyHex != peer.PubKeyHex {
			peers = append(peers, p)
		}
	}
	return NewPeerSet(peers)
}

// PubKeys returns the PeerSet's slice of public keys.
func (peerSet *PeerSet) PubKeys() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.PubKeyString())
	}

	return res
}

// IDs returns the PeerSet's slice of IDs.
func (peerSet *PeerSet) IDs() []uint32 {
	res := []uint32{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID())
	}

	return res
}

// Len returns the number of Peers in the PeerSet.
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByPubKey)
}

// Hash uniquely identifies a PeerSet. It is computed by chain-hashing the
// sorted public keys.
func (peerSet *PeerSet) Hash() ([]byte, error) {
	if len(peerSet.hash) == 0 {
		pubKeys := peerSet.PubKeys()
		sort.Strings(pubKeys)

		hash := []byte{}
		for _, pk := range pubKeys {
			pkBytes, err := common.DecodeFromString(pk)
			if err != nil {
				return nil, err
			}
			hash = crypto.SHA256(append(hash, pkBytes...))
		}
		peerSet.hash = hash
	}
	return peerSet.hash, nil
}

// Hex is the hexadecimal representation of Hash.
func (peerSet *PeerSet) Hex() string {
	if len(peerSet.hex) == 0 {
		hash, _ := peerSet.Hash()
		peerSet.hex = common.EncodeToString(hash)
	}
	return peerSet.hex
}

// Marshal returns the JSON encoding of the PeerSet's peers.
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SuperMajority returns the number of peers that forms a strong majority
// (more than two-thirds) in the PeerSet.
func (peerSet *PeerSet) SuperMajority() int {
	if peerSet.superMajority == nil {
		val := 2*peerSet.Len()/3 + 1
		peerSet.superMajority = &val
	}
	return *peerSet.superMajority
}

// TrustCount returns the number of peers that forms more than one-third of
// the PeerSet.
func (peerSet *PeerSet) TrustCount() int {
	if peerSet.trustCount == nil {
		val := 0
		if len(peerSet.Peers) > 1 {
			val = int(math.Ceil(float64(peerSet.Len()) / float64(3)))
		}
		peerSet.trustCount = &val
	}
	return *peerSet.trustCount
}
