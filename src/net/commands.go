package net

import "github.com/Fantom-foundation/go-lachesis/src/poset"

// SyncRequest is the pull side of the gossip protocol: the sender announces
// what it knows and asks for what it is missing.
type SyncRequest struct {
	FromID    uint32
	Known     map[uint32]int
	SyncLimit int
}

// SyncResponse carries the events the responder has that the requester does
// not, in topological order, along with the responder's own frontier.
type SyncResponse struct {
	FromID uint32
	Events []poset.WireEvent
	Known  map[uint32]int
}

// EagerSyncRequest is the push side of the gossip protocol: the sender
// offers the events it believes the receiver is missing.
type EagerSyncRequest struct {
	FromID uint32
	Events []poset.WireEvent
}

// EagerSyncResponse acknowledges a push.
type EagerSyncResponse struct {
	FromID  uint32
	Success bool
}
