package net

import "time"

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {
	// Consumer returns a channel that can be used to consume and respond to
	// RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address to distinguish from our
	// peers.
	LocalAddr() string

	// AdvertiseAddr is the address the transport advertises to other nodes.
	AdvertiseAddr() string

	// Sync sends the appropriate RPC to the target node.
	Sync(target string, args *SyncRequest, resp *SyncResponse) error

	// EagerSync sends a push of events to the target node.
	EagerSync(target string, args *EagerSyncRequest, resp *EagerSyncResponse) error

	// Close permanently closes a transport, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}

// Timeouts shared by transport implementations.
const (
	DefaultTimeout = 10 * time.Second
)
