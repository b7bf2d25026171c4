package poset

import (
	"sort"
	"strconv"

	lru "github.com/hashicorp/golang-lru"

	cm "github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
)

// InmemStore is an in-memory implementation of the Store interface. The
// event and round caches are bounded LRUs; the ordered-events list grows
// without bound and is the authoritative record of what this node has seen.
type InmemStore struct {
	cacheSize              int
	participants           *peers.PeerSet
	eventCache             *lru.Cache //hash => *Event
	roundCache             *lru.Cache //round number => *RoundInfo
	participantEventsCache *ParticipantEventsCache
	orderedEvents          []*Event
	forks                  []*Fork
	lastRound              int
	topologicalIndex       int //counter used to order events in topological order (local)
}

// NewInmemStore creates an InmemStore for a fixed participant set.
func NewInmemStore(participants *peers.PeerSet, cacheSize int) *InmemStore {
	eventCache, _ := lru.New(cacheSize)
	roundCache, _ := lru.New(cacheSize)

	return &InmemStore{
		cacheSize:              cacheSize,
		participants:           participants,
		eventCache:             eventCache,
		roundCache:             roundCache,
		participantEventsCache: NewParticipantEventsCache(cacheSize, participants),
		orderedEvents:          []*Event{},
		forks:                  []*Fork{},
		lastRound:              -1,
	}
}

// CacheSize returns the size limit of the LRU caches.
func (s *InmemStore) CacheSize() int {
	return s.cacheSize
}

// Participants returns the participant set.
func (s *InmemStore) Participants() (*peers.PeerSet, error) {
	return s.participants, nil
}

// GetEvent returns an event by hash.
func (s *InmemStore) GetEvent(key string) (*Event, error) {
	res, ok := s.eventCache.Get(key)
	if !ok {
		return nil, cm.NewStoreErr("EventCache", cm.KeyNotFound, key)
	}
	return res.(*Event), nil
}

// ContainsEvent returns true if the event is held in the cache.
func (s *InmemStore) ContainsEvent(key string) bool {
	return s.eventCache.Contains(key)
}

// SetEvent stores an event and appends its hash to its creator's sequence.
func (s *InmemStore) SetEvent(event *Event) error {
	key := event.Hex()
	_, err := s.GetEvent(key)
	if err != nil && !cm.IsStore(err, cm.KeyNotFound) {
		return err
	}
	if err == nil {
		return cm.NewStoreErr("EventCache", cm.KeyAlreadyExists, key)
	}

	if err := s.participantEventsCache.Set(event.Creator(), key, event.Index()); err != nil {
		return err
	}

	event.topologicalIndex = s.topologicalIndex
	s.topologicalIndex++

	s.eventCache.Add(key, event)

	return nil
}

// SetForkEvent stores an event by hash only, without touching its creator's
// sequence. Used for the non-canonical branch of a detected fork: the event
// must remain retrievable as evidence but must not displace the canonical
// chain.
func (s *InmemStore) SetForkEvent(event *Event) error {
	key := event.Hex()
	if _, ok := s.eventCache.Get(key); ok {
		return cm.NewStoreErr("EventCache", cm.KeyAlreadyExists, key)
	}

	event.topologicalIndex = s.topologicalIndex
	s.topologicalIndex++

	s.eventCache.Add(key, event)

	return nil
}

// ParticipantEvents returns a participant's event hashes, skipping the first
// skipIndex items.
func (s *InmemStore) ParticipantEvents(participant string, skip int) ([]string, error) {
	return s.participantEventsCache.Get(participant, skip)
}

// ParticipantEvent returns the hash of a participant's event at an index.
func (s *InmemStore) ParticipantEvent(participant string, index int) (string, error) {
	return s.participantEventsCache.GetItem(participant, index)
}

// LastEventFrom returns the hash of a participant's latest event.
func (s *InmemStore) LastEventFrom(participant string) (string, error) {
	return s.participantEventsCache.GetLast(participant)
}

// KnownEvents returns the last known event index per participant ID.
func (s *InmemStore) KnownEvents() map[uint32]int {
	return s.participantEventsCache.Known()
}

// OrderedEvents returns the events that reached consensus, in consensus
// order.
func (s *InmemStore) OrderedEvents() []*Event {
	return s.orderedEvents
}

// AddOrderedEvent appends an event to the consensus-ordered list.
func (s *InmemStore) AddOrderedEvent(event *Event) error {
	s.orderedEvents = append(s.orderedEvents, event)
	return nil
}

// GetRound returns a RoundInfo by round number.
func (s *InmemStore) GetRound(r int) (*RoundInfo, error) {
	res, ok := s.roundCache.Get(r)
	if !ok {
		return nil, cm.NewStoreErr("RoundCache", cm.KeyNotFound, strconv.Itoa(r))
	}
	return res.(*RoundInfo), nil
}

// SetRound stores a RoundInfo under a round number.
func (s *InmemStore) SetRound(r int, round *RoundInfo) error {
	s.roundCache.Add(r, round)
	if r > s.lastRound {
		s.lastRound = r
	}
	return nil
}

// LastRound returns the highest known round number.
func (s *InmemStore) LastRound() int {
	return s.lastRound
}

// RoundWitnesses returns the hashes of a round's witnesses.
func (s *InmemStore) RoundWitnesses(r int) []string {
	round, err := s.GetRound(r)
	if err != nil {
		return []string{}
	}
	return round.Witnesses()
}

// RoundEvents returns the number of events created in a round.
func (s *InmemStore) RoundEvents(r int) int {
	round, err := s.GetRound(r)
	if err != nil {
		return 0
	}
	return len(round.CreatedEvents)
}

// AddFork records fork evidence.
func (s *InmemStore) AddFork(f *Fork) error {
	//re-detection of the same pair, e.g. during a bootstrap replay
	for _, known := range s.forks {
		if known.EventA == f.EventA && known.EventB == f.EventB {
			return nil
		}
	}
	s.forks = append(s.forks, f)
	return nil
}

// Forks returns the recorded fork evidence.
func (s *InmemStore) Forks() []*Fork {
	return s.forks
}

// TopologicalEvents returns all cached events in topological order. Because
// the event cache is an LRU, only the most recent cacheSize events are
// returned; the badger store overrides this with the full history.
func (s *InmemStore) TopologicalEvents() ([]*Event, error) {
	res := []*Event{}
	for _, k := range s.eventCache.Keys() {
		item, ok := s.eventCache.Get(k)
		if !ok {
			continue
		}
		res = append(res, item.(*Event))
	}
	sort.Sort(ByTopologicalOrder(res))
	return res, nil
}

// Close is a no-op for the in-memory store.
func (s *InmemStore) Close() error {
	return nil
}

// StorePath returns a placeholder path for the in-memory store.
func (s *InmemStore) StorePath() string {
	return ""
}
