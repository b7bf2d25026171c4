// Package peers defines the types that represent consensus participants.
//
// A Peer associates a secp256k1 public key with a network address. A PeerSet
// is the group of peers participating in consensus; it exposes the
// supermajority threshold (more than two-thirds) that the consensus methods
// use to count strongly-seen witnesses and fame votes. With n = 3f+1 peers,
// two supermajorities of size 2n/3+1 always intersect in at least f+1 peers,
// one of which is honest; this is what makes decisions irreversible with up
// to f Byzantine participants.
package peers
