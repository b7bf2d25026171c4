package poset

import (
	"fmt"
	"sort"

	cm "github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
)

// Key is a composite key for the (participant, index) event lookup cache.
type Key struct {
	x string
	y string
}

// ToString returns a string representation of a Key.
func (k Key) ToString() string {
	return fmt.Sprintf("{%s, %s}", k.x, k.y)
}

/*******************************************************************************
ParticipantEventsCache
*******************************************************************************/

// ParticipantEventsCache maintains the per-creator sequences of event hashes.
// It is the structure behind the Known map exchanged during gossip.
type ParticipantEventsCache struct {
	participants *peers.PeerSet
	rim          *cm.RollingIndexMap
}

// NewParticipantEventsCache creates a ParticipantEventsCache for a fixed
// participant set.
func NewParticipantEventsCache(size int, participants *peers.PeerSet) *ParticipantEventsCache {
	rim := cm.NewRollingIndexMap("ParticipantEvents", size)
	for _, id := range participants.IDs() {
		_ = rim.AddKey(id)
	}
	return &ParticipantEventsCache{
		participants: participants,
		rim:          rim,
	}
}

func (pec *ParticipantEventsCache) participantID(participant string) (uint32, error) {
	peer, ok := pec.participants.ByPubKey[participant]
	if !ok {
		return 0, cm.NewStoreErr("ParticipantEvents", cm.UnknownParticipant, participant)
	}
	return peer.ID(), nil
}

// Get returns a participant's event hashes, skipping the first skipIndex
// items.
func (pec *ParticipantEventsCache) Get(participant string, skipIndex int) ([]string, error) {
	id, err := pec.participantID(participant)
	if err != nil {
		return []string{}, err
	}

	pe, err := pec.rim.Get(id, skipIndex)
	if err != nil {
		return []string{}, err
	}

	res := []string{}
	for k := 0; k < len(pe); k++ {
		res = append(res, pe[k].(string))
	}
	return res, nil
}

// GetItem returns the hash of a participant's event at a given index.
func (pec *ParticipantEventsCache) GetItem(participant string, index int) (string, error) {
	id, err := pec.participantID(participant)
	if err != nil {
		return "", err
	}

	item, err := pec.rim.GetItem(id, index)
	if err != nil {
		return "", err
	}
	return item.(string), nil
}

// GetLast returns the hash of a participant's latest event.
func (pec *ParticipantEventsCache) GetLast(participant string) (string, error) {
	id, err := pec.participantID(participant)
	if err != nil {
		return "", err
	}

	last, err := pec.rim.GetLast(id)
	if err != nil {
		return "", err
	}
	return last.(string), nil
}

// Set records the hash of a participant's event at a given index.
func (pec *ParticipantEventsCache) Set(participant string, hash string, index int) error {
	id, err := pec.participantID(participant)
	if err != nil {
		return err
	}
	return pec.rim.Set(id, hash, index)
}

// Known returns the last known index per participant ID.
func (pec *ParticipantEventsCache) Known() map[uint32]int {
	return pec.rim.Known()
}

/*******************************************************************************
PendingRound(s)
*******************************************************************************/

// PendingRound is a round that has reached DivideRounds but whose fame is not
// fully decided yet.
type PendingRound struct {
	Index   int
	Decided bool
}

// PendingRoundsCache keeps the ordered list of rounds awaiting a fame
// decision. Rounds are decided strictly in order; a round whose fame is
// settled stays pending until every round below it is settled too.
type PendingRoundsCache struct {
	items       map[int]*PendingRound
	sortedItems []*PendingRound
}

// NewPendingRoundsCache creates an empty PendingRoundsCache.
func NewPendingRoundsCache() *PendingRoundsCache {
	return &PendingRoundsCache{
		items:       make(map[int]*PendingRound),
		sortedItems: []*PendingRound{},
	}
}

// Queued returns true if a round is already pending.
func (c *PendingRoundsCache) Queued(round int) bool {
	_, ok := c.items[round]
	return ok
}

// Set adds a round to the pending list, keeping the list sorted by round
// index.
func (c *PendingRoundsCache) Set(pendingRound *PendingRound) {
	c.items[pendingRound.Index] = pendingRound
	c.sortedItems = append(c.sortedItems, pendingRound)
	sort.Sort(ByPendingRound(c.sortedItems))
}

// GetOrderedPendingRounds returns the pending rounds sorted by index.
func (c *PendingRoundsCache) GetOrderedPendingRounds() []*PendingRound {
	return c.sortedItems
}

// Update flags the listed rounds as decided.
func (c *PendingRoundsCache) Update(decidedRounds []int) {
	for _, d := range decidedRounds {
		if p, ok := c.items[d]; ok {
			p.Decided = true
		}
	}
}

// Clean removes the listed rounds from the pending list.
func (c *PendingRoundsCache) Clean(processedRounds []int) {
	for _, pr := range processedRounds {
		delete(c.items, pr)
	}
	newSortedItems := []*PendingRound{}
	for _, pr := range c.items {
		newSortedItems = append(newSortedItems, pr)
	}
	sort.Sort(ByPendingRound(newSortedItems))
	c.sortedItems = newSortedItems
}

// ByPendingRound implements sort.Interface for []*PendingRound based on the
// round index.
type ByPendingRound []*PendingRound

func (a ByPendingRound) Len() int           { return len(a) }
func (a ByPendingRound) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByPendingRound) Less(i, j int) bool { return a[i].Index < a[j].Index }
