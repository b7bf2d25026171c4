package node

import (
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	cm "github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
	"github.com/Fantom-foundation/go-lachesis/src/poset"
)

// OrderedTransaction is a committed transaction with its consensus metadata.
// The node appends these to its output log in consensus order; the log index
// is the transaction's final position in the total order.
type OrderedTransaction struct {
	Payload            []byte
	ConsensusTimestamp time.Time
	RoundReceived      int
	Event              string
	Creator            string
}

// Core wraps the poset with the node's write path: it owns the local head,
// creates and signs self-events, and turns consensus rounds into the ordered
// transaction log. Core is not thread-safe; the node guards it with a lock.
type Core struct {
	validator *Validator
	poset     *poset.Poset
	peers     *peers.PeerSet

	//Head is the hash of the last self-created event
	Head string
	//Seq is the index of the last self-created event
	Seq int

	transactionPool [][]byte

	orderedTransactions []OrderedTransaction

	logger *logrus.Entry
}

// NewCore creates a Core. The poset's commit callback is wired to the
// core's transaction log.
func NewCore(validator *Validator,
	peerSet *peers.PeerSet,
	store poset.Store,
	logger *logrus.Entry) *Core {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	logger = logger.WithField("id", validator.ID())

	core := &Core{
		validator:       validator,
		peers:           peerSet,
		transactionPool: [][]byte{},
		logger:          logger,
		Seq:             -1,
	}

	core.poset = poset.NewPoset(peerSet, store, core.Commit, logger)

	return core
}

// Validator returns the local validator.
func (c *Core) Validator() *Validator {
	return c.validator
}

// Poset returns the underlying poset.
func (c *Core) Poset() *poset.Poset {
	return c.poset
}

// SetHeadAndSeq sets the Head and Seq of a Core object from its store.
func (c *Core) SetHeadAndSeq() error {
	head := ""
	seq := -1

	last, err := c.poset.Store.LastEventFrom(c.validator.PublicKeyHex())
	if err != nil && !cm.IsStore(err, cm.Empty) {
		return err
	}

	if err == nil {
		lastEvent, err := c.GetEvent(last)
		if err != nil {
			return err
		}
		head = last
		seq = lastEvent.Index()
	}

	c.Head = head
	c.Seq = seq

	c.logger.WithFields(logrus.Fields{
		"head": c.Head,
		"seq":  c.Seq,
	}).Debug("SetHeadAndSeq")

	return nil
}

// Bootstrap loads the poset from a pre-existing database.
func (c *Core) Bootstrap() error {
	if err := c.poset.Bootstrap(); err != nil {
		return err
	}
	return c.SetHeadAndSeq()
}

// SignAndInsertSelfEvent signs an event and inserts it through the full
// consensus pipeline.
func (c *Core) SignAndInsertSelfEvent(event *poset.Event) error {
	if err := event.Sign(c.validator.Key); err != nil {
		return err
	}
	return c.InsertEventAndRunConsensus(event, true)
}

// InsertEventAndRunConsensus inserts an event and runs consensus, keeping
// the local head up to date.
func (c *Core) InsertEventAndRunConsensus(event *poset.Event, setWireInfo bool) error {
	if err := c.poset.InsertEventAndRunConsensus(event, setWireInfo); err != nil {
		return err
	}
	if event.Creator() == c.validator.PublicKeyHex() {
		c.Head = event.Hex()
		c.Seq = event.Index()
	}
	return nil
}

// KnownEvents returns the last known event index per participant.
func (c *Core) KnownEvents() map[uint32]int {
	return c.poset.Store.KnownEvents()
}

// GetEvent returns an event by hash.
func (c *Core) GetEvent(hash string) (*poset.Event, error) {
	return c.poset.Store.GetEvent(hash)
}

// EventDiff returns the events that the local node knows and a remote node,
// described by its known map, does not. Events are returned in topological
// order so the remote node can insert them as they come.
func (c *Core) EventDiff(known map[uint32]int) ([]*poset.Event, error) {
	unknown := []*poset.Event{}
	for id, ct := range known {
		peer, ok := c.peers.ByID[id]
		if !ok {
			continue
		}
		//get events per participant with index > ct
		participantEvents, err := c.poset.Store.ParticipantEvents(peer.PubKeyHex, ct)
		if err != nil {
			return []*poset.Event{}, err
		}
		for _, e := range participantEvents {
			ev, err := c.GetEvent(e)
			if err != nil {
				return []*poset.Event{}, err
			}
			unknown = append(unknown, ev)
		}
	}
	sort.Sort(poset.ByTopologicalOrder(unknown))

	return unknown, nil
}

// Sync decodes and inserts a batch of wire events received from a peer, then
// records a new self-event tying the batch into the local poset. Insertion
// stops at the first invalid event but the valid prefix is kept; the error
// reports what was rejected.
func (c *Core) Sync(fromID uint32, unknownEvents []poset.WireEvent) error {
	c.logger.WithFields(logrus.Fields{
		"from":           fromID,
		"unknown_events": len(unknownEvents),
		"txn_pool":       len(c.transactionPool),
	}).Debug("Sync")

	otherHead := ""
	var insertErr error

	for _, we := range unknownEvents {
		ev, err := c.poset.ReadWireInfo(we)
		if err != nil {
			insertErr = fmt.Errorf("reading wire event: %v", err)
			break
		}
		if err := c.InsertEventAndRunConsensus(ev, false); err != nil {
			insertErr = fmt.Errorf("inserting event %d by %d: %v", ev.Index(), we.Body.CreatorID, err)
			break
		}
		//anchor the next self-event to the tip of the batch
		otherHead = ev.Hex()
	}

	//record head even if the tail of the batch was bad: the valid prefix is
	//in the poset and should be anchored
	if otherHead != "" || len(c.transactionPool) > 0 {
		if err := c.AddSelfEvent(otherHead); err != nil {
			return err
		}
	}

	return insertErr
}

// AddSelfEvent creates, signs and inserts a new event with the local head as
// self-parent, flushing the transaction pool into its payload.
func (c *Core) AddSelfEvent(otherHead string) error {
	newHead := poset.NewEvent(c.transactionPool,
		[]string{c.Head, otherHead},
		c.validator.PublicKeyBytes(),
		c.Seq+1)

	if err := c.SignAndInsertSelfEvent(newHead); err != nil {
		return fmt.Errorf("adding self event: %v", err)
	}

	c.logger.WithFields(logrus.Fields{
		"index":        newHead.Index(),
		"transactions": len(newHead.Transactions()),
	}).Debug("Created self event")

	c.transactionPool = [][]byte{}

	return nil
}

// AddTransactions appends transactions to the pool; they ride in the next
// self-event.
func (c *Core) AddTransactions(txs [][]byte) {
	c.transactionPool = append(c.transactionPool, txs...)
}

// Commit is the poset's commit callback: it appends a consensus round's
// transactions to the ordered log.
func (c *Core) Commit(roundReceived int, events []*poset.Event) error {
	for _, ev := range events {
		for _, tx := range ev.Transactions() {
			c.orderedTransactions = append(c.orderedTransactions, OrderedTransaction{
				Payload:            tx,
				ConsensusTimestamp: ev.ConsensusTimestamp(),
				RoundReceived:      roundReceived,
				Event:              ev.Hex(),
				Creator:            ev.Creator(),
			})
		}
	}

	c.logger.WithFields(logrus.Fields{
		"round":  roundReceived,
		"events": len(events),
		"log":    len(c.orderedTransactions),
	}).Debug("Committed round")

	return nil
}

// GetOrderedTransactions returns the committed transactions starting at the
// given log index.
func (c *Core) GetOrderedTransactions(from int) []OrderedTransaction {
	if from < 0 {
		from = 0
	}
	if from >= len(c.orderedTransactions) {
		return []OrderedTransaction{}
	}
	return c.orderedTransactions[from:]
}

// TransactionPoolLength returns the number of pending transactions.
func (c *Core) TransactionPoolLength() int {
	return len(c.transactionPool)
}
