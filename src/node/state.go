package node

import "sync/atomic"

// State captures the state of a node: Gossiping, Suspended, or Shutdown.
type State uint32

const (
	//Gossiping is the normal state of a node: gossiping with other nodes and
	//running consensus.
	Gossiping State = iota

	//Suspended is the state in which a node stops taking part in gossip; the
	//poset is preserved but no new events are created or inserted.
	Suspended

	//Shutdown is the state a node ends in after a graceful stop.
	Shutdown
)

// String implements the fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case Gossiping:
		return "Gossiping"
	case Suspended:
		return "Suspended"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type nodeState struct {
	state State
}

func (b *nodeState) getState() State {
	stateAddr := (*uint32)(&b.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (b *nodeState) setState(s State) {
	stateAddr := (*uint32)(&b.state)
	atomic.StoreUint32(stateAddr, uint32(s))
}
