package poset

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger"

	cm "github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
)

const (
	participantPrefix = "participant"
	roundPrefix       = "round"
	topoPrefix        = "topo"
	forkPrefix        = "fork"
)

// BadgerStore is a write-through disk implementation of the Store interface.
// Reads are served from an inner InmemStore when possible and fall back to
// badger; writes go to both. On restart the full event history is replayed
// from disk in topological order to rebuild the derived state.
type BadgerStore struct {
	participants *peers.PeerSet
	inmemStore   *InmemStore
	db           *badger.DB
	path         string
}

// NewBadgerStore creates a BadgerStore over a fresh database directory.
func NewBadgerStore(participants *peers.PeerSet, cacheSize int, path string) (*BadgerStore, error) {
	inmemStore := NewInmemStore(participants, cacheSize)
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		participants: participants,
		inmemStore:   inmemStore,
		db:           handle,
		path:         path,
	}
	if err := store.dbSetParticipants(participants); err != nil {
		return nil, err
	}
	return store, nil
}

// LoadBadgerStore reopens a BadgerStore from an existing database directory
// and replays its contents. A replay failure means the database is corrupted
// and the node must not serve from it.
func LoadBadgerStore(cacheSize int, path string) (*BadgerStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	store := &BadgerStore{
		db:   handle,
		path: path,
	}

	participants, err := store.dbGetParticipants()
	if err != nil {
		return nil, cm.NewStoreErr("Badger", cm.Corrupted, err.Error())
	}

	store.participants = participants
	store.inmemStore = NewInmemStore(participants, cacheSize)

	return store, nil
}

// CacheSize returns the size limit of the underlying in-memory caches.
func (s *BadgerStore) CacheSize() int {
	return s.inmemStore.CacheSize()
}

// Participants returns the participant set.
func (s *BadgerStore) Participants() (*peers.PeerSet, error) {
	return s.participants, nil
}

// GetEvent returns an event by hash, falling back to disk on a cache miss.
func (s *BadgerStore) GetEvent(key string) (*Event, error) {
	ev, err := s.inmemStore.GetEvent(key)
	if err != nil {
		ev, err = s.dbGetEvent(key)
	}
	return ev, mapStoreErr(err, key)
}

// ContainsEvent consults the in-memory layer only. Events that exist on disk
// but not in the cache report false, so a bootstrap replay re-inserts them
// and rebuilds the derived state.
func (s *BadgerStore) ContainsEvent(key string) bool {
	return s.inmemStore.ContainsEvent(key)
}

// SetEvent stores an event in the cache and on disk.
func (s *BadgerStore) SetEvent(event *Event) error {
	if err := s.inmemStore.SetEvent(event); err != nil {
		return err
	}
	return s.dbSetEvent(event)
}

// SetForkEvent stores a fork-branch event in the cache and on disk. The
// creator's participant index is left untouched so the canonical sequence
// survives on disk.
func (s *BadgerStore) SetForkEvent(event *Event) error {
	if err := s.inmemStore.SetForkEvent(event); err != nil {
		return err
	}
	return s.dbSetForkEvent(event)
}

// ParticipantEvents returns a participant's event hashes from skipIndex on.
func (s *BadgerStore) ParticipantEvents(participant string, skip int) ([]string, error) {
	res, err := s.inmemStore.ParticipantEvents(participant, skip)
	if err != nil {
		res, err = s.dbParticipantEvents(participant, skip)
	}
	return res, err
}

// ParticipantEvent returns the hash of a participant's event at an index.
func (s *BadgerStore) ParticipantEvent(participant string, index int) (string, error) {
	result, err := s.inmemStore.ParticipantEvent(participant, index)
	if err != nil {
		result, err = s.dbParticipantEvent(participant, index)
	}
	return result, mapStoreErr(err, participant)
}

// LastEventFrom returns the hash of a participant's latest event.
func (s *BadgerStore) LastEventFrom(participant string) (string, error) {
	return s.inmemStore.LastEventFrom(participant)
}

// KnownEvents returns the last known event index per participant ID.
func (s *BadgerStore) KnownEvents() map[uint32]int {
	return s.inmemStore.KnownEvents()
}

// OrderedEvents returns the events that reached consensus, in order.
func (s *BadgerStore) OrderedEvents() []*Event {
	return s.inmemStore.OrderedEvents()
}

// AddOrderedEvent appends an event to the consensus-ordered list and
// persists its updated derived state.
func (s *BadgerStore) AddOrderedEvent(event *Event) error {
	if err := s.inmemStore.AddOrderedEvent(event); err != nil {
		return err
	}
	//re-persist: round-received and consensus timestamp were just set
	return s.dbSetEventBody(event)
}

// GetRound returns a RoundInfo, falling back to disk on a cache miss.
func (s *BadgerStore) GetRound(r int) (*RoundInfo, error) {
	res, err := s.inmemStore.GetRound(r)
	if err != nil {
		res, err = s.dbGetRound(r)
	}
	return res, mapStoreErr(err, fmt.Sprintf("%d", r))
}

// SetRound stores a RoundInfo in the cache and on disk.
func (s *BadgerStore) SetRound(r int, round *RoundInfo) error {
	if err := s.inmemStore.SetRound(r, round); err != nil {
		return err
	}
	return s.dbSetRound(r, round)
}

// LastRound returns the highest known round number.
func (s *BadgerStore) LastRound() int {
	return s.inmemStore.LastRound()
}

// RoundWitnesses returns the hashes of a round's witnesses.
func (s *BadgerStore) RoundWitnesses(r int) []string {
	round, err := s.GetRound(r)
	if err != nil {
		return []string{}
	}
	return round.Witnesses()
}

// RoundEvents returns the number of events created in a round.
func (s *BadgerStore) RoundEvents(r int) int {
	round, err := s.GetRound(r)
	if err != nil {
		return 0
	}
	return len(round.CreatedEvents)
}

// AddFork records fork evidence in the cache and on disk.
func (s *BadgerStore) AddFork(f *Fork) error {
	if err := s.inmemStore.AddFork(f); err != nil {
		return err
	}
	return s.dbAddFork(f)
}

// Forks returns the recorded fork evidence.
func (s *BadgerStore) Forks() []*Fork {
	return s.inmemStore.Forks()
}

// TopologicalEvents returns all events from disk in topological order.
func (s *BadgerStore) TopologicalEvents() ([]*Event, error) {
	res := []*Event{}
	err := s.db.View(func(txn *badger.Txn) error {
		t := 0
		for {
			key := topologicalEventKey(t)
			item, errr := txn.Get(key)
			if errr != nil {
				break
			}

			var evKey string
			errr = item.Value(func(v []byte) error {
				evKey = string(v)
				return nil
			})
			if errr != nil {
				break
			}

			eventItem, errr := txn.Get(eventKey(evKey))
			if errr != nil {
				return cm.NewStoreErr("Badger", cm.Corrupted, evKey)
			}
			eventBytes, errr := eventItem.ValueCopy(nil)
			if errr != nil {
				return errr
			}

			event := new(Event)
			if errr := event.UnmarshalDB(eventBytes); errr != nil {
				return cm.NewStoreErr("Badger", cm.Corrupted, evKey)
			}
			res = append(res, event)

			t++
		}
		return nil
	})

	return res, err
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

// StorePath returns the database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func eventKey(key string) []byte {
	return []byte(fmt.Sprintf("event_%s", key))
}

func topologicalEventKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", topoPrefix, index))
}

func participantKey(participant string) []byte {
	return []byte(fmt.Sprintf("%s_%s", participantPrefix, participant))
}

func participantEventKey(participant string, index int) []byte {
	return []byte(fmt.Sprintf("%s__event_%09d", participant, index))
}

func roundInfoKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", roundPrefix, index))
}

func forkKey(index int) []byte {
	return []byte(fmt.Sprintf("%s_%09d", forkPrefix, index))
}

func (s *BadgerStore) dbGetEvent(key string) (*Event, error) {
	var eventBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(eventKey(key))
		if err != nil {
			return err
		}
		eventBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	event := new(Event)
	if err := event.UnmarshalDB(eventBytes); err != nil {
		return nil, err
	}
	return event, nil
}

func (s *BadgerStore) dbSetEvent(event *Event) error {
	eventBytes, err := event.MarshalDB()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		//event
		if err := txn.Set(eventKey(event.Hex()), eventBytes); err != nil {
			return err
		}
		//topological order
		if err := txn.Set(topologicalEventKey(event.topologicalIndex), []byte(event.Hex())); err != nil {
			return err
		}
		//participant index
		return txn.Set(participantEventKey(event.Creator(), event.Index()), []byte(event.Hex()))
	})
}

//dbSetForkEvent persists a fork-branch event and its topological slot
//without registering it in the creator's participant index.
func (s *BadgerStore) dbSetForkEvent(event *Event) error {
	eventBytes, err := event.MarshalDB()
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(eventKey(event.Hex()), eventBytes); err != nil {
			return err
		}
		return txn.Set(topologicalEventKey(event.topologicalIndex), []byte(event.Hex()))
	})
}

//dbSetEventBody re-writes only the event record, used after consensus fields
//are updated on an already-indexed event.
func (s *BadgerStore) dbSetEventBody(event *Event) error {
	eventBytes, err := event.MarshalDB()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(eventKey(event.Hex()), eventBytes)
	})
}

func (s *BadgerStore) dbParticipantEvents(participant string, skip int) ([]string, error) {
	res := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		i := skip + 1
		for {
			item, err := txn.Get(participantEventKey(participant, i))
			if err != nil {
				break
			}
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			res = append(res, string(v))
			i++
		}
		return nil
	})
	return res, err
}

func (s *BadgerStore) dbParticipantEvent(participant string, index int) (string, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(participantEventKey(participant, index))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (s *BadgerStore) dbSetParticipants(participants *peers.PeerSet) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for participant, peer := range participants.ByPubKey {
			if err := txn.Set(participantKey(participant), []byte(fmt.Sprint(peer.ID()))); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerStore) dbGetParticipants() (*peers.PeerSet, error) {
	res := []*peers.Peer{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(participantPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().Key())
			pubKey := k[len(participantPrefix)+1:]
			res = append(res, peers.NewPeer(pubKey, "", ""))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return peers.NewPeerSet(res), nil
}

func (s *BadgerStore) dbGetRound(index int) (*RoundInfo, error) {
	var roundBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roundInfoKey(index))
		if err != nil {
			return err
		}
		roundBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	roundInfo := new(RoundInfo)
	if err := roundInfo.Unmarshal(roundBytes); err != nil {
		return nil, err
	}
	return roundInfo, nil
}

func (s *BadgerStore) dbSetRound(index int, round *RoundInfo) error {
	roundBytes, err := round.Marshal()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(roundInfoKey(index), roundBytes)
	})
}

func (s *BadgerStore) dbAddFork(f *Fork) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := forkKey(len(s.inmemStore.Forks()) - 1)
		val := []byte(fmt.Sprintf("%d_%d_%s_%s", f.Creator, f.Index, f.EventA, f.EventB))
		return txn.Set(key, val)
	})
}

func mapStoreErr(err error, key string) error {
	if err == nil {
		return nil
	}
	if err == badger.ErrKeyNotFound {
		return cm.NewStoreErr("Badger", cm.KeyNotFound, key)
	}
	return err
}
