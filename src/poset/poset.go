package poset

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	cm "github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
)

const (
	//coinRoundFreq is the frequency of coin rounds in the fame election.
	//Every coinRoundFreq'th voting round flips a coin (the middle bit of the
	//voter's hash) instead of requiring a supermajority, which breaks the
	//symmetry an adversary would need to stall the election forever.
	coinRoundFreq = 4

	//undecidedWarningDepth is how many rounds a fame election may trail the
	//top of the poset before the node logs a liveness warning.
	undecidedWarningDepth = 12
)

// CommitCallback is called by the Poset after each round reaches consensus,
// with the round number and the round's events in consensus order. Returning
// an error aborts consensus processing.
type CommitCallback func(roundReceived int, events []*Event) error

// Poset is the consensus core: a DAG of events with the methods to compute
// rounds, decide witness fame through virtual voting, and extract a total
// order over events.
//
// Poset is not safe for concurrent use; the owning node serializes access.
type Poset struct {
	Participants *peers.PeerSet
	Store        Store

	//UndeterminedEvents are the events that have not yet reached consensus,
	//in topological order.
	UndeterminedEvents []string

	PendingRounds *PendingRoundsCache

	LastConsensusRound    *int
	FirstConsensusRound   *int
	ConsensusTransactions int
	PendingLoadedEvents   int

	commitCallback CommitCallback

	//suspects are creators caught equivocating. Their events are kept as
	//evidence but excluded from strongly-see counting, and their undecided
	//witnesses are declared not famous.
	suspects map[uint32]bool

	ancestorCache     *lru.Cache
	selfAncestorCache *lru.Cache
	stronglySeeCache  *lru.Cache
	roundCache        *lru.Cache
	witnessCache      *lru.Cache

	logger *logrus.Entry
}

// NewPoset creates a Poset over a Store and a fixed participant set.
func NewPoset(participants *peers.PeerSet,
	store Store,
	commitCallback CommitCallback,
	logger *logrus.Entry) *Poset {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	cacheSize := store.CacheSize()
	ancestorCache, _ := lru.New(cacheSize)
	selfAncestorCache, _ := lru.New(cacheSize)
	stronglySeeCache, _ := lru.New(cacheSize)
	roundCache, _ := lru.New(cacheSize)
	witnessCache, _ := lru.New(cacheSize)

	return &Poset{
		Participants:      participants,
		Store:             store,
		PendingRounds:     NewPendingRoundsCache(),
		commitCallback:    commitCallback,
		suspects:          make(map[uint32]bool),
		ancestorCache:     ancestorCache,
		selfAncestorCache: selfAncestorCache,
		stronglySeeCache:  stronglySeeCache,
		roundCache:        roundCache,
		witnessCache:      witnessCache,
		logger:            logger,
	}
}

/*******************************************************************************
Private Methods
*******************************************************************************/

//true if y is an ancestor of x
func (p *Poset) ancestor(x, y string) (bool, error) {
	if c, ok := p.ancestorCache.Get(Key{x, y}); ok {
		return c.(bool), nil
	}
	a, err := p.ancestor2(x, y)
	if err != nil {
		return false, err
	}
	p.ancestorCache.Add(Key{x, y}, a)
	return a, nil
}

func (p *Poset) ancestor2(x, y string) (bool, error) {
	if x == y {
		return true, nil
	}
	ex, err := p.Store.GetEvent(x)
	if err != nil {
		return false, err
	}
	ey, err := p.Store.GetEvent(y)
	if err != nil {
		return false, err
	}

	//an event sees y iff its last ancestor on y's creator chain is at or
	//past y's index
	entry, ok := ex.lastAncestors[ey.Creator()]
	if !ok {
		return false, nil
	}
	return entry.Index >= ey.Index(), nil
}

//true if y is a self-ancestor of x
func (p *Poset) selfAncestor(x, y string) (bool, error) {
	if c, ok := p.selfAncestorCache.Get(Key{x, y}); ok {
		return c.(bool), nil
	}
	a, err := p.selfAncestor2(x, y)
	if err != nil {
		return false, err
	}
	p.selfAncestorCache.Add(Key{x, y}, a)
	return a, nil
}

func (p *Poset) selfAncestor2(x, y string) (bool, error) {
	if x == y {
		return true, nil
	}
	ex, err := p.Store.GetEvent(x)
	if err != nil {
		return false, err
	}
	ey, err := p.Store.GetEvent(y)
	if err != nil {
		return false, err
	}
	return ex.Creator() == ey.Creator() && ex.Index() >= ey.Index(), nil
}

//true if x sees y. With fork branches excluded from the creator sequences,
//seeing reduces to plain ancestry.
func (p *Poset) see(x, y string) (bool, error) {
	return p.ancestor(x, y)
}

//true if x strongly sees y: x sees events by a supermajority of creators
//that each see y. Creators flagged as suspects do not count towards the
//supermajority.
func (p *Poset) stronglySee(x, y string) (bool, error) {
	if c, ok := p.stronglySeeCache.Get(Key{x, y}); ok {
		return c.(bool), nil
	}
	ss, err := p.stronglySee2(x, y)
	if err != nil {
		return false, err
	}
	p.stronglySeeCache.Add(Key{x, y}, ss)
	return ss, nil
}

func (p *Poset) stronglySee2(x, y string) (bool, error) {
	ex, err := p.Store.GetEvent(x)
	if err != nil {
		return false, err
	}
	ey, err := p.Store.GetEvent(y)
	if err != nil {
		return false, err
	}

	c := 0
	for _, peer := range p.Participants.Peers {
		if p.suspects[peer.ID()] {
			continue
		}
		creator := peer.PubKeyString()
		xla, ok := ex.lastAncestors[creator]
		if !ok {
			continue
		}
		yfd, ok := ey.firstDescendants[creator]
		if !ok {
			continue
		}
		if xla.Index >= yfd.Index {
			c++
		}
	}

	return c >= p.Participants.SuperMajority(), nil
}

func (p *Poset) round(x string) (int, error) {
	if c, ok := p.roundCache.Get(x); ok {
		return c.(int), nil
	}
	r, err := p.round2(x)
	if err != nil {
		return -1, err
	}
	p.roundCache.Add(x, r)
	return r, nil
}

func (p *Poset) round2(x string) (int, error) {
	ex, err := p.Store.GetEvent(x)
	if err != nil {
		return -1, err
	}

	if r := ex.GetRound(); r != nil {
		return *r, nil
	}

	//an event with no parents starts the graph for its creator
	if ex.SelfParent() == "" && ex.OtherParent() == "" {
		return 0, nil
	}

	parentRound := -1
	if ex.SelfParent() != "" {
		spRound, err := p.round(ex.SelfParent())
		if err != nil {
			return -1, err
		}
		parentRound = spRound
	}
	if ex.OtherParent() != "" {
		opRound, err := p.round(ex.OtherParent())
		if err != nil {
			return -1, err
		}
		if opRound > parentRound {
			parentRound = opRound
		}
	}

	if parentRound < 0 {
		return 0, nil
	}

	//the round increments when the event strongly sees a supermajority of
	//the parent round's witnesses
	ws := p.Store.RoundWitnesses(parentRound)
	c := 0
	for _, w := range ws {
		ss, err := p.stronglySee(x, w)
		if err != nil {
			return -1, err
		}
		if ss {
			c++
		}
	}
	if c >= p.Participants.SuperMajority() {
		return parentRound + 1, nil
	}

	return parentRound, nil
}

//true if x is a witness: its creator's first event in x's round
func (p *Poset) witness(x string) (bool, error) {
	if c, ok := p.witnessCache.Get(x); ok {
		return c.(bool), nil
	}
	w, err := p.witness2(x)
	if err != nil {
		return false, err
	}
	p.witnessCache.Add(x, w)
	return w, nil
}

func (p *Poset) witness2(x string) (bool, error) {
	ex, err := p.Store.GetEvent(x)
	if err != nil {
		return false, err
	}

	if ex.SelfParent() == "" {
		return true, nil
	}

	xRound, err := p.round(x)
	if err != nil {
		return false, err
	}
	spRound, err := p.round(ex.SelfParent())
	if err != nil {
		return false, err
	}
	return xRound > spRound, nil
}

//oldestSelfAncestorToSee returns the oldest self-ancestor of x that sees y.
//This is the event whose claimed timestamp x's creator contributes to y's
//consensus timestamp.
func (p *Poset) oldestSelfAncestorToSee(x, y string) (string, error) {
	ex, err := p.Store.GetEvent(x)
	if err != nil {
		return "", err
	}

	res := x
	for ex.SelfParent() != "" {
		sp := ex.SelfParent()
		sees, err := p.see(sp, y)
		if err != nil {
			return "", err
		}
		if !sees {
			break
		}
		res = sp
		ex, err = p.Store.GetEvent(sp)
		if err != nil {
			return "", err
		}
	}

	return res, nil
}

//medianTimestamp returns the median of the claimed timestamps of a set of
//events. With fewer than a third of participants Byzantine, the median is
//bounded by honest timestamps.
func (p *Poset) medianTimestamp(eventHashes []string) (time.Time, error) {
	timestamps := []int64{}
	for _, x := range eventHashes {
		ex, err := p.Store.GetEvent(x)
		if err != nil {
			return time.Time{}, err
		}
		timestamps = append(timestamps, ex.Timestamp().UnixNano())
	}
	m := cm.Median(timestamps)
	return time.Unix(0, m).UTC(), nil
}

//checkSelfParent verifies that the event's self-parent is the creator's last
//known event. A contradiction with a signed event at the same index is an
//equivocation: both events are retained as evidence, the creator is flagged,
//and errFork is returned.
func (p *Poset) checkSelfParent(event *Event) error {
	selfParent := event.SelfParent()
	creator := event.Creator()

	creatorLastKnown, err := p.Store.LastEventFrom(creator)
	if err != nil {
		if !cm.IsStore(err, cm.Empty) && !cm.IsStore(err, cm.KeyNotFound) {
			return err
		}
		//first event from this creator
		if selfParent == "" {
			return nil
		}
		return fmt.Errorf("self-parent %s of first event by %s is unknown",
			eventRef(selfParent), eventRef(creator))
	}

	if selfParent == creatorLastKnown {
		return nil
	}

	//not an extension of the known chain: same-index conflict means fork
	conflict, err := p.Store.ParticipantEvent(creator, event.Index())
	if err == nil {
		if conflict == event.Hex() {
			return errKnownEvent
		}
		return p.recordFork(event, conflict)
	}

	//a continuation of a fork branch; the creator is already a suspect, so
	//the event is kept as evidence without touching the canonical sequence
	if peer, ok := p.Participants.ByPubKey[creator]; ok && p.suspects[peer.ID()] {
		if err := p.Store.SetForkEvent(event); err != nil &&
			!cm.IsStore(err, cm.KeyAlreadyExists) {
			return err
		}
		return errFork
	}

	return fmt.Errorf("self-parent %s is not the last known event by %s",
		eventRef(selfParent), eventRef(creator))
}

var (
	errFork       = fmt.Errorf("fork detected")
	errKnownEvent = fmt.Errorf("event already known")
)

//recordFork stores the non-canonical branch event as evidence and flags the
//creator.
func (p *Poset) recordFork(event *Event, conflict string) error {
	peer, ok := p.Participants.ByPubKey[event.Creator()]
	if !ok {
		return cm.NewStoreErr("Participants", cm.UnknownParticipant, event.Creator())
	}

	if err := p.Store.SetForkEvent(event); err != nil &&
		!cm.IsStore(err, cm.KeyAlreadyExists) {
		return err
	}

	if err := p.Store.AddFork(&Fork{
		Creator: peer.ID(),
		Index:   event.Index(),
		EventA:  conflict,
		EventB:  event.Hex(),
	}); err != nil {
		return err
	}

	p.suspects[peer.ID()] = true

	//strongly-see results involving the suspect are stale
	p.stronglySeeCache.Purge()

	p.logger.WithFields(logrus.Fields{
		"creator": peer.ID(),
		"index":   event.Index(),
		"event_a": eventRef(conflict),
		"event_b": eventRef(event.Hex()),
	}).Warn("Fork detected; creator flagged as suspect")

	return errFork
}

//checkOtherParent verifies that the event's other-parent is known.
func (p *Poset) checkOtherParent(event *Event) error {
	otherParent := event.OtherParent()
	if otherParent == "" {
		return nil
	}
	if _, err := p.Store.GetEvent(otherParent); err != nil {
		return fmt.Errorf("other-parent %s of %s is unknown",
			eventRef(otherParent), eventRef(event.Hex()))
	}
	return nil
}

//initEventCoordinates sets the event's last-ancestor map by merging its
//parents' maps, and seeds its first-descendant map with itself.
func (p *Poset) initEventCoordinates(event *Event) error {
	event.lastAncestors = NewCoordinatesMap()

	selfParent, selfParentError := p.Store.GetEvent(event.SelfParent())
	otherParent, otherParentError := p.Store.GetEvent(event.OtherParent())

	if selfParentError == nil {
		event.lastAncestors = selfParent.lastAncestors.Copy()
	}
	if otherParentError == nil {
		for c, ola := range otherParent.lastAncestors {
			sla, ok := event.lastAncestors[c]
			if !ok || sla.Index < ola.Index {
				event.lastAncestors[c] = EventCoordinates{
					Index: ola.Index,
					Hash:  ola.Hash,
				}
			}
		}
	}

	event.lastAncestors[event.Creator()] = EventCoordinates{
		Index: event.Index(),
		Hash:  event.Hex(),
	}

	event.firstDescendants = NewCoordinatesMap()
	event.firstDescendants[event.Creator()] = EventCoordinates{
		Index: event.Index(),
		Hash:  event.Hex(),
	}

	return nil
}

//updateAncestorFirstDescendant records the event as the first descendant on
//its creator's chain for every ancestor that does not have one yet. The walk
//stops along a branch as soon as an ancestor already has an entry, since all
//its own ancestors then necessarily have one too.
func (p *Poset) updateAncestorFirstDescendant(event *Event) error {
	creator := event.Creator()
	coords := EventCoordinates{
		Index: event.Index(),
		Hash:  event.Hex(),
	}

	queue := []string{event.SelfParent(), event.OtherParent()}
	for len(queue) > 0 {
		ah := queue[0]
		queue = queue[1:]
		if ah == "" {
			continue
		}
		a, err := p.Store.GetEvent(ah)
		if err != nil {
			return err
		}
		if _, ok := a.firstDescendants[creator]; ok {
			continue
		}
		a.firstDescendants[creator] = coords
		queue = append(queue, a.SelfParent(), a.OtherParent())
	}

	return nil
}

//setWireInfo derives the compact wire references from the event's parents.
func (p *Poset) setWireInfo(event *Event) error {
	selfParentIndex := -1
	otherParentCreatorID := uint32(0)
	otherParentIndex := -1

	creator, ok := p.Participants.ByPubKey[event.Creator()]
	if !ok {
		return cm.NewStoreErr("Participants", cm.UnknownParticipant, event.Creator())
	}

	if event.SelfParent() != "" {
		selfParentIndex = event.Index() - 1
	}

	if event.OtherParent() != "" {
		otherParent, err := p.Store.GetEvent(event.OtherParent())
		if err != nil {
			return err
		}
		otherParentCreator, ok := p.Participants.ByPubKey[otherParent.Creator()]
		if !ok {
			return cm.NewStoreErr("Participants", cm.UnknownParticipant, otherParent.Creator())
		}
		otherParentCreatorID = otherParentCreator.ID()
		otherParentIndex = otherParent.Index()
	}

	event.SetWireInfo(selfParentIndex, otherParentCreatorID, otherParentIndex, creator.ID())

	return nil
}

/*******************************************************************************
Public Methods
*******************************************************************************/

// InsertEvent attempts to insert an Event into the poset. It verifies the
// signature, checks the parents, and computes the event's graph coordinates.
// Re-inserting a known event is a no-op. An equivocating event is retained
// as evidence but not inserted into its creator's sequence.
func (p *Poset) InsertEvent(event *Event, setWireInfo bool) error {
	//idempotent put; the check is memory-only so that Bootstrap can replay
	//persisted events through the full insertion path
	if p.Store.ContainsEvent(event.Hex()) {
		return nil
	}

	ok, err := event.Verify()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("invalid event signature on %s", eventRef(event.Hex()))
	}

	if _, ok := p.Participants.ByPubKey[event.Creator()]; !ok {
		return cm.NewStoreErr("Participants", cm.UnknownParticipant, event.Creator())
	}

	if err := p.checkSelfParent(event); err != nil {
		if err == errKnownEvent {
			return nil
		}
		if err == errFork {
			//evidence recorded; the event stays out of consensus
			return nil
		}
		return fmt.Errorf("checkSelfParent: %v", err)
	}

	if err := p.checkOtherParent(event); err != nil {
		return fmt.Errorf("checkOtherParent: %v", err)
	}

	if err := p.initEventCoordinates(event); err != nil {
		return fmt.Errorf("initEventCoordinates: %v", err)
	}

	if err := p.Store.SetEvent(event); err != nil {
		return fmt.Errorf("SetEvent: %v", err)
	}

	if err := p.updateAncestorFirstDescendant(event); err != nil {
		return fmt.Errorf("updateAncestorFirstDescendant: %v", err)
	}

	if setWireInfo {
		if err := p.setWireInfo(event); err != nil {
			return fmt.Errorf("setWireInfo: %v", err)
		}
	}

	p.UndeterminedEvents = append(p.UndeterminedEvents, event.Hex())

	if event.IsLoaded() {
		p.PendingLoadedEvents++
	}

	return nil
}

// ReadWireInfo converts a WireEvent into an Event by resolving the compact
// references against the local store.
func (p *Poset) ReadWireInfo(wevent WireEvent) (*Event, error) {
	selfParent := ""
	otherParent := ""
	var err error

	creator, ok := p.Participants.ByID[wevent.Body.CreatorID]
	if !ok {
		return nil, cm.NewStoreErr("Participants", cm.UnknownParticipant,
			fmt.Sprint(wevent.Body.CreatorID))
	}
	creatorBytes, err := cm.DecodeFromString(creator.PubKeyHex)
	if err != nil {
		return nil, err
	}

	if wevent.Body.SelfParentIndex >= 0 {
		selfParent, err = p.Store.ParticipantEvent(creator.PubKeyHex, wevent.Body.SelfParentIndex)
		if err != nil {
			return nil, err
		}
	}
	if wevent.Body.OtherParentIndex >= 0 {
		otherParentCreator, ok := p.Participants.ByID[wevent.Body.OtherParentCreatorID]
		if !ok {
			return nil, cm.NewStoreErr("Participants", cm.UnknownParticipant,
				fmt.Sprint(wevent.Body.OtherParentCreatorID))
		}
		otherParent, err = p.Store.ParticipantEvent(otherParentCreator.PubKeyHex, wevent.Body.OtherParentIndex)
		if err != nil {
			return nil, err
		}
	}

	body := EventBody{
		Transactions: wevent.Body.Transactions,
		Parents:      []string{selfParent, otherParent},
		Creator:      creatorBytes,
		Index:        wevent.Body.Index,
		Timestamp:    wevent.Body.Timestamp,

		creatorID:            wevent.Body.CreatorID,
		otherParentCreatorID: wevent.Body.OtherParentCreatorID,
		selfParentIndex:      wevent.Body.SelfParentIndex,
		otherParentIndex:     wevent.Body.OtherParentIndex,
	}

	event := &Event{
		Body:      body,
		Signature: wevent.Signature,
	}

	return event, nil
}

// DivideRounds assigns a round number and witness flag to every undetermined
// event, and queues newly started rounds for the fame election.
func (p *Poset) DivideRounds() error {
	for _, hash := range p.UndeterminedEvents {
		ev, err := p.Store.GetEvent(hash)
		if err != nil {
			return err
		}

		updateEvent := false

		if ev.GetRound() == nil {
			roundNumber, err := p.round(hash)
			if err != nil {
				return err
			}

			ev.SetRound(roundNumber)
			updateEvent = true

			if !p.PendingRounds.Queued(roundNumber) &&
				(p.LastConsensusRound == nil || roundNumber >= *p.LastConsensusRound) {
				p.PendingRounds.Set(&PendingRound{Index: roundNumber})
			}
		}

		if ev.GetWitness() == nil {
			witness, err := p.witness(hash)
			if err != nil {
				return err
			}
			ev.SetWitness(witness)
			updateEvent = true
		}

		if updateEvent {
			roundInfo, err := p.Store.GetRound(*ev.GetRound())
			if err != nil {
				if !cm.IsStore(err, cm.KeyNotFound) {
					return err
				}
				roundInfo = NewRoundInfo()
			}
			roundInfo.AddCreatedEvent(hash, *ev.GetWitness())
			if err := p.Store.SetRound(*ev.GetRound(), roundInfo); err != nil {
				return err
			}
		}
	}

	return nil
}

// DecideFame runs the virtual-voting fame election over the pending rounds.
// Witnesses of round i are voted on by witnesses of later rounds; every
// coinRoundFreq'th round is a coin round.
func (p *Poset) DecideFame() error {
	//[voter][candidate] => vote
	votes := make(map[string]map[string]bool)
	setVote := func(voter, candidate string, vote bool) {
		if votes[voter] == nil {
			votes[voter] = make(map[string]bool)
		}
		votes[voter][candidate] = vote
	}
	getVote := func(voter, candidate string) (bool, bool) {
		v, ok := votes[voter][candidate]
		return v, ok
	}

	decidedRounds := []int{}

	for _, pendingRound := range p.PendingRounds.GetOrderedPendingRounds() {
		if pendingRound.Decided {
			continue
		}

		i := pendingRound.Index
		roundInfo, err := p.Store.GetRound(i)
		if err != nil {
			return err
		}

		//round 0 witnesses are famous by convention; the convention applies
		//once every participant has produced its root, so a late root cannot
		//land in an already-finalized round
		if i == 0 {
			if len(roundInfo.Witnesses()) == p.Participants.Len() {
				for _, x := range roundInfo.Witnesses() {
					if roundInfo.IsDecided(x) {
						continue
					}
					roundInfo.SetFame(x, !p.isSuspectEvent(x))
				}
			}

			if roundInfo.WitnessesDecided() {
				decidedRounds = append(decidedRounds, i)
			}

			if err := p.Store.SetRound(i, roundInfo); err != nil {
				return err
			}
			continue
		}

		for _, x := range roundInfo.Witnesses() {
			if roundInfo.IsDecided(x) {
				continue
			}

			//an equivocator's witnesses are declared not famous outright
			if p.isSuspectEvent(x) {
				roundInfo.SetFame(x, false)
				continue
			}

		VOTE_LOOP:
			for j := i + 1; j <= p.Store.LastRound(); j++ {
				for _, y := range p.Store.RoundWitnesses(j) {
					diff := j - i
					if diff == 1 {
						ycx, err := p.see(y, x)
						if err != nil {
							return err
						}
						setVote(y, x, ycx)
						continue
					}

					//collect the votes of the witnesses of round j-1 that y
					//strongly sees
					yays := 0
					nays := 0
					for _, w := range p.Store.RoundWitnesses(j - 1) {
						ss, err := p.stronglySee(y, w)
						if err != nil {
							return err
						}
						if !ss {
							continue
						}
						v, ok := getVote(w, x)
						if !ok {
							continue
						}
						if v {
							yays++
						} else {
							nays++
						}
					}
					v := yays >= nays
					t := yays
					if nays > yays {
						t = nays
					}

					if diff%coinRoundFreq > 0 {
						//normal round
						if t >= p.Participants.SuperMajority() {
							roundInfo.SetFame(x, v)
							break VOTE_LOOP
						}
						setVote(y, x, v)
					} else {
						//coin round
						if t >= p.Participants.SuperMajority() {
							setVote(y, x, v)
						} else {
							setVote(y, x, middleBit(y))
						}
					}
				}
			}
		}

		if roundInfo.WitnessesDecided() {
			decidedRounds = append(decidedRounds, i)
		} else if p.Store.LastRound()-i > undecidedWarningDepth {
			p.logger.WithFields(logrus.Fields{
				"round":      i,
				"last_round": p.Store.LastRound(),
			}).Warn("Fame election is lagging; possible liveness problem")
		}

		if err := p.Store.SetRound(i, roundInfo); err != nil {
			return err
		}
	}

	p.PendingRounds.Update(decidedRounds)

	return nil
}

// DecideRoundReceived assigns a round-received and a consensus timestamp to
// every event seen by all famous witnesses of a decided round.
func (p *Poset) DecideRoundReceived() error {
	newUndeterminedEvents := []string{}

	for _, x := range p.UndeterminedEvents {
		received := false

		ex, err := p.Store.GetEvent(x)
		if err != nil {
			return err
		}

		//graph roots cannot be seen by the famous witnesses of any earlier
		//round; they are received in round 0 with their claimed timestamp
		if ex.Index() == 0 && ex.SelfParent() == "" && ex.OtherParent() == "" {
			r, err := p.Store.GetRound(0)
			if err != nil || !r.WitnessesDecided() {
				newUndeterminedEvents = append(newUndeterminedEvents, x)
				continue
			}

			ex.SetRoundReceived(0)
			ex.SetConsensusTimestamp(ex.Timestamp())
			r.AddReceivedEvent(x)
			if err := p.Store.SetRound(0, r); err != nil {
				return err
			}
			continue
		}

		rToCheck := 1
		if r := ex.GetRound(); r != nil {
			rToCheck = *r + 1
		}

		for i := rToCheck; i <= p.Store.LastRound(); i++ {
			tr, err := p.Store.GetRound(i)
			if err != nil {
				break
			}

			//rounds are processed in order; an undecided round blocks all
			//later ones for this event
			if !tr.WitnessesDecided() {
				break
			}

			fws := tr.FamousWitnesses()

			//set of famous witnesses that see x
			s := []string{}
			for _, w := range fws {
				sees, err := p.see(w, x)
				if err != nil {
					return err
				}
				if sees {
					s = append(s, w)
				}
			}

			if len(s) == len(fws) && len(s) > 0 {
				received = true

				ex.SetRoundReceived(i)

				//each famous witness contributes the claimed timestamp of
				//its oldest self-ancestor that sees x; the consensus
				//timestamp is the median of the contributions
				contributions := []string{}
				for _, w := range s {
					o, err := p.oldestSelfAncestorToSee(w, x)
					if err != nil {
						return err
					}
					contributions = append(contributions, o)
				}
				ts, err := p.medianTimestamp(contributions)
				if err != nil {
					return err
				}
				ex.SetConsensusTimestamp(ts)

				tr.AddReceivedEvent(x)
				if err := p.Store.SetRound(i, tr); err != nil {
					return err
				}

				break
			}
		}

		if !received {
			newUndeterminedEvents = append(newUndeterminedEvents, x)
		}
	}

	p.UndeterminedEvents = newUndeterminedEvents

	return nil
}

// ProcessDecidedRounds commits the received events of decided rounds, in
// round order, through the commit callback.
func (p *Poset) ProcessDecidedRounds() error {
	processedRounds := []int{}

	for _, r := range p.PendingRounds.GetOrderedPendingRounds() {
		//rounds are committed strictly in order
		if !r.Decided {
			break
		}

		round, err := p.Store.GetRound(r.Index)
		if err != nil {
			return err
		}

		events := []*Event{}
		for _, rcv := range round.ReceivedEvents {
			e, err := p.Store.GetEvent(rcv)
			if err != nil {
				return err
			}
			events = append(events, e)
		}

		sort.Sort(ByConsensusOrder(events))

		for _, e := range events {
			if err := p.Store.AddOrderedEvent(e); err != nil {
				return err
			}
			p.ConsensusTransactions += len(e.Transactions())
			if e.IsLoaded() {
				p.PendingLoadedEvents--
			}
		}

		if len(events) > 0 {
			if p.commitCallback != nil {
				if err := p.commitCallback(r.Index, events); err != nil {
					return err
				}
			}

			p.setLastConsensusRound(r.Index)
		}

		processedRounds = append(processedRounds, r.Index)
	}

	p.PendingRounds.Clean(processedRounds)

	return nil
}

// RunConsensus runs the full consensus pipeline over the poset's current
// state.
func (p *Poset) RunConsensus() error {
	if err := p.DivideRounds(); err != nil {
		return err
	}
	if err := p.DecideFame(); err != nil {
		return err
	}
	if err := p.DecideRoundReceived(); err != nil {
		return err
	}
	return p.ProcessDecidedRounds()
}

// InsertEventAndRunConsensus inserts an event and runs the consensus
// pipeline.
func (p *Poset) InsertEventAndRunConsensus(event *Event, setWireInfo bool) error {
	if err := p.InsertEvent(event, setWireInfo); err != nil {
		return err
	}
	return p.RunConsensus()
}

// Bootstrap replays the store's event history in topological order,
// rebuilding the poset's derived state. Used with a disk-backed store after
// a restart.
func (p *Poset) Bootstrap() error {
	topologicalEvents, err := p.Store.TopologicalEvents()
	if err != nil {
		return err
	}

	for _, e := range topologicalEvents {
		if err := p.InsertEventAndRunConsensus(e, true); err != nil {
			return err
		}
	}

	return nil
}

// Suspects returns the IDs of creators caught equivocating.
func (p *Poset) Suspects() []uint32 {
	res := []uint32{}
	for id, s := range p.suspects {
		if s {
			res = append(res, id)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}

// IsSuspect returns true if the creator with the given ID was caught
// equivocating.
func (p *Poset) IsSuspect(id uint32) bool {
	return p.suspects[id]
}

func (p *Poset) isSuspectEvent(x string) bool {
	ex, err := p.Store.GetEvent(x)
	if err != nil {
		return false
	}
	peer, ok := p.Participants.ByPubKey[ex.Creator()]
	if !ok {
		return false
	}
	return p.suspects[peer.ID()]
}

func (p *Poset) setLastConsensusRound(i int) {
	if p.LastConsensusRound == nil {
		p.LastConsensusRound = new(int)
	}
	*p.LastConsensusRound = i

	if p.FirstConsensusRound == nil {
		p.FirstConsensusRound = new(int)
		*p.FirstConsensusRound = i
	}
}

//middleBit extracts the pseudo-random coin from an event hash.
func middleBit(ehex string) bool {
	hash, err := hex.DecodeString(ehex[2:])
	if err != nil {
		return false
	}
	if len(hash) > 0 && hash[len(hash)/2] == 0 {
		return false
	}
	return true
}
