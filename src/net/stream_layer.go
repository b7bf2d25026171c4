package net

import (
	"net"
	"time"
)

// StreamLayer is the network abstraction under NetworkTransport: a listener
// plus a dialer.
type StreamLayer interface {
	net.Listener

	// Dial is used to create a new outgoing connection.
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr is the address other nodes should use to reach this one.
	AdvertiseAddr() string
}
