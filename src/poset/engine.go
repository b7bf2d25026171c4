package poset

// Engine is the interface the node programs against. It decouples the node's
// gossip and commit machinery from the consensus algorithm, so an
// alternative ordering engine can be swapped in without touching the node.
type Engine interface {
	InsertEvent(event *Event, setWireInfo bool) error
	InsertEventAndRunConsensus(event *Event, setWireInfo bool) error
	RunConsensus() error
	ReadWireInfo(wevent WireEvent) (*Event, error)
	Bootstrap() error
}

var _ Engine = (*Poset)(nil)
