package poset

import "github.com/Fantom-foundation/go-lachesis/src/peers"

// Fork is the evidence record for an equivocation: two distinct signed
// events by the same creator at the same index. Both events are retained so
// the proof can be served to third parties.
type Fork struct {
	Creator uint32
	Index   int
	EventA  string
	EventB  string
}

// Store is the interface to the poset's data layer.
type Store interface {
	CacheSize() int
	Participants() (*peers.PeerSet, error)
	GetEvent(string) (*Event, error)
	//ContainsEvent consults the in-memory layer only, so a bootstrap replay
	//of persisted events is not mistaken for re-insertion
	ContainsEvent(string) bool
	SetEvent(*Event) error
	ParticipantEvents(string, int) ([]string, error)
	ParticipantEvent(string, int) (string, error)
	LastEventFrom(string) (string, error)
	KnownEvents() map[uint32]int
	OrderedEvents() []*Event
	AddOrderedEvent(*Event) error
	GetRound(int) (*RoundInfo, error)
	SetRound(int, *RoundInfo) error
	LastRound() int
	RoundWitnesses(int) []string
	RoundEvents(int) int
	SetForkEvent(*Event) error
	AddFork(*Fork) error
	Forks() []*Fork
	TopologicalEvents() ([]*Event, error)
	Close() error
	StorePath() string
}
