package node

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Fantom-foundation/go-lachesis/src/config"
	"github.com/Fantom-foundation/go-lachesis/src/net"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
	"github.com/Fantom-foundation/go-lachesis/src/poset"
)

// Node is the top-level component of a consensus participant. It ties the
// core and the transport together in a gossip loop, accepts transactions
// from the application, and serves sync requests from other nodes.
type Node struct {
	nodeState

	conf   *config.Config
	logger *logrus.Entry

	validator *Validator

	core     *Core
	coreLock sync.Mutex

	trans net.Transport
	netCh <-chan net.RPC

	peerSelector PeerSelector

	submitCh chan []byte

	controlTimer *ControlTimer

	start        time.Time
	syncRequests int
	syncErrors   int

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewNode instantiates a new Node.
func NewNode(conf *config.Config,
	validator *Validator,
	peerSet *peers.PeerSet,
	store poset.Store,
	trans net.Transport,
) *Node {

	logger := conf.Logger().WithField("this_id", validator.ID())

	node := &Node{
		conf:         conf,
		logger:       logger,
		validator:    validator,
		core:         NewCore(validator, peerSet, store, logger),
		trans:        trans,
		netCh:        trans.Consumer(),
		peerSelector: NewRandomPeerSelector(peerSet, trans.AdvertiseAddr()),
		submitCh:     make(chan []byte, 64),
		controlTimer: NewRandomControlTimer(),
		shutdownCh:   make(chan struct{}),
	}

	node.setState(Gossiping)

	return node
}

// Init controls the bootstrap process and sets the node's head. A node
// starting from scratch creates its root event here, which seeds the gossip:
// every subsequent event is a reaction to received events or transactions.
func (n *Node) Init() error {
	if n.conf.Bootstrap {
		n.logger.Debug("Bootstrap")
		if err := n.core.Bootstrap(); err != nil {
			return err
		}
	} else if err := n.core.SetHeadAndSeq(); err != nil {
		return err
	}

	if n.core.Seq < 0 {
		if err := n.core.AddSelfEvent(""); err != nil {
			return err
		}
	}

	return nil
}

// Run invokes the main loop of the node. The gossip parameter controls
// whether to actively participate in gossip or passively listen.
func (n *Node) Run(gossip bool) {
	//The ControlTimer allows the background routines to control the
	//heartbeat timer when the node is in the Gossiping state. The timer should
	//only be running when there are uncommitted transactions in the system.
	go n.controlTimer.Run(n.conf.HeartbeatTimeout)

	//Execute some background work regardless of the state of the node.
	go n.doBackgroundWork()

	for {
		state := n.getState()
		switch state {
		case Gossiping:
			n.gossipLoop(gossip)
		case Suspended:
			time.Sleep(n.conf.HeartbeatTimeout)
		case Shutdown:
			return
		default:
			n.logger.WithField("state", state.String()).Error("Unknown state")
			return
		}
	}
}

// RunAsync runs the node in a separate goroutine.
func (n *Node) RunAsync(gossip bool) {
	n.logger.WithField("gossip", gossip).Debug("RunAsync")
	n.start = time.Now()
	go n.Run(gossip)
}

func (n *Node) doBackgroundWork() {
	for {
		select {
		case t := <-n.submitCh:
			n.logger.Debug("Adding transaction")
			n.addTransaction(t)
		case <-n.shutdownCh:
			return
		}
	}
}

//gossipLoop is the node's main operational loop: respond to incoming RPCs and
//initiate gossip rounds on the heartbeat.
func (n *Node) gossipLoop(gossip bool) {
	for {
		select {
		case rpc := <-n.netCh:
			n.goFunc(func() {
				n.logger.Debug("Processing RPC")
				n.processRPC(rpc)
			})
		case <-n.controlTimer.tickCh:
			if gossip {
				peer := n.peerSelector.Next()
				if peer != nil {
					n.goFunc(func() { n.gossip(peer) })
				}
			}
			n.resetTimer()
		case <-n.shutdownCh:
			return
		}

		if n.getState() != Gossiping {
			return
		}
	}
}

func (n *Node) processRPC(rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.SyncRequest:
		n.processSyncRequest(rpc, cmd)
	case *net.EagerSyncRequest:
		n.processEagerSyncRequest(rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

//processSyncRequest answers a pull: compute the diff against the requester's
//known map and return it, bounded by the requester's sync limit.
func (n *Node) processSyncRequest(rpc net.RPC, cmd *net.SyncRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"known":   cmd.Known,
	}).Debug("SyncRequest")

	resp := &net.SyncResponse{
		FromID: n.validator.ID(),
	}
	var respErr error

	n.coreLock.Lock()
	eventDiff, err := n.core.EventDiff(cmd.Known)
	knownEvents := n.core.KnownEvents()
	n.coreLock.Unlock()

	if err != nil {
		n.logger.WithError(err).Error("Calculating diff")
		respErr = err
	} else {
		if cmd.SyncLimit > 0 && len(eventDiff) > cmd.SyncLimit {
			eventDiff = eventDiff[:cmd.SyncLimit]
		}
		wireEvents := make([]poset.WireEvent, len(eventDiff))
		for i, ev := range eventDiff {
			wireEvents[i] = ev.ToWire()
		}
		resp.Events = wireEvents
	}

	resp.Known = knownEvents

	n.logger.WithFields(logrus.Fields{
		"events": len(resp.Events),
		"error":  respErr,
	}).Debug("SyncRequest response")

	rpc.Respond(resp, respErr)
}

//processEagerSyncRequest applies a push of events from a peer.
func (n *Node) processEagerSyncRequest(rpc net.RPC, cmd *net.EagerSyncRequest) {
	n.logger.WithFields(logrus.Fields{
		"from_id": cmd.FromID,
		"events":  len(cmd.Events),
	}).Debug("EagerSyncRequest")

	success := true

	n.coreLock.Lock()
	err := n.core.Sync(cmd.FromID, cmd.Events)
	n.coreLock.Unlock()

	if err != nil {
		n.logger.WithError(err).Error("Sync()")
		success = false
	}

	resp := &net.EagerSyncResponse{
		FromID:  n.validator.ID(),
		Success: success,
	}
	rpc.Respond(resp, err)
}

//gossip performs a pull-push gossip round with the chosen peer.
func (n *Node) gossip(peer *peers.Peer) {
	//pull
	otherKnownEvents, err := n.pull(peer)
	if err != nil {
		n.logger.WithError(err).Error("gossip pull")
		n.syncErrors++
		return
	}

	//push
	if err := n.push(peer, otherKnownEvents); err != nil {
		n.logger.WithError(err).Error("gossip push")
		n.syncErrors++
		return
	}

	n.syncRequests++
	n.peerSelector.UpdateLast(peer.NetAddr)

	n.checkSuspend()
}

func (n *Node) pull(peer *peers.Peer) (map[uint32]int, error) {
	//Compute Known
	n.coreLock.Lock()
	knownEvents := n.core.KnownEvents()
	n.coreLock.Unlock()

	//Send SyncRequest
	start := time.Now()
	resp, err := n.requestSync(peer.NetAddr, knownEvents)
	elapsed := time.Since(start)
	if err != nil {
		return nil, err
	}

	n.logger.WithFields(logrus.Fields{
		"from_id":  resp.FromID,
		"events":   len(resp.Events),
		"duration": elapsed.Nanoseconds(),
	}).Debug("SyncResponse")

	//Insert the unknown events and create a new head
	n.coreLock.Lock()
	err = n.core.Sync(resp.FromID, resp.Events)
	n.coreLock.Unlock()
	if err != nil {
		return nil, err
	}

	return resp.Known, nil
}

func (n *Node) push(peer *peers.Peer, knownEvents map[uint32]int) error {
	//Compute Diff
	n.coreLock.Lock()
	eventDiff, err := n.core.EventDiff(knownEvents)
	n.coreLock.Unlock()
	if err != nil {
		return err
	}

	if len(eventDiff) == 0 {
		return nil
	}
	if n.conf.SyncLimit > 0 && len(eventDiff) > n.conf.SyncLimit {
		eventDiff = eventDiff[:n.conf.SyncLimit]
	}

	wireEvents := make([]poset.WireEvent, len(eventDiff))
	for i, ev := range eventDiff {
		wireEvents[i] = ev.ToWire()
	}

	//Send the EagerSyncRequest
	start := time.Now()
	resp, err := n.requestEagerSync(peer.NetAddr, wireEvents)
	elapsed := time.Since(start)
	if err != nil {
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"from_id":  resp.FromID,
		"success":  resp.Success,
		"duration": elapsed.Nanoseconds(),
	}).Debug("EagerSyncResponse")

	return nil
}

func (n *Node) requestSync(target string, known map[uint32]int) (net.SyncResponse, error) {
	args := &net.SyncRequest{
		FromID:    n.validator.ID(),
		Known:     known,
		SyncLimit: n.conf.SyncLimit,
	}
	var out net.SyncResponse
	err := n.trans.Sync(target, args, &out)
	return out, err
}

func (n *Node) requestEagerSync(target string, events []poset.WireEvent) (net.EagerSyncResponse, error) {
	args := &net.EagerSyncRequest{
		FromID: n.validator.ID(),
		Events: events,
	}
	var out net.EagerSyncResponse
	err := n.trans.EagerSync(target, args, &out)
	return out, err
}

//checkSuspend suspends the node when too many events linger without
//reaching consensus, a sign that the network lost the ability to make
//progress.
func (n *Node) checkSuspend() {
	if n.conf.SuspendLimit <= 0 {
		return
	}

	n.coreLock.Lock()
	undetermined := len(n.core.poset.UndeterminedEvents)
	n.coreLock.Unlock()

	if undetermined > n.conf.SuspendLimit {
		n.logger.WithFields(logrus.Fields{
			"undetermined_events": undetermined,
			"suspend_limit":       n.conf.SuspendLimit,
		}).Warn("Suspending node")
		n.Suspend()
	}
}

func (n *Node) addTransaction(tx []byte) {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	n.core.AddTransactions([][]byte{tx})
}

func (n *Node) resetTimer() {
	if !n.controlTimer.set {
		ts := n.conf.HeartbeatTimeout
		//Slow gossip if nothing interesting to say
		n.coreLock.Lock()
		idle := n.core.poset.PendingLoadedEvents == 0 &&
			n.core.TransactionPoolLength() == 0
		n.coreLock.Unlock()
		if idle {
			ts = time.Duration(time.Second)
		}
		n.controlTimer.resetCh <- ts
	}
}

func (n *Node) goFunc(f func()) {
	go f()
}

// Submit adds a transaction to the node's pool; it gets packaged in the
// node's next self-event.
func (n *Node) Submit(tx []byte) {
	select {
	case n.submitCh <- tx:
	case <-n.shutdownCh:
	}
}

// GetOrderedTransactions returns the committed transaction log from a given
// index.
func (n *Node) GetOrderedTransactions(from int) []OrderedTransaction {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.GetOrderedTransactions(from)
}

// GetPeers returns the participant set.
func (n *Node) GetPeers() *peers.PeerSet {
	return n.peerSelector.Peers()
}

// GetForks returns the recorded fork evidence.
func (n *Node) GetForks() []*poset.Fork {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.poset.Store.Forks()
}

// ForkStatus reports whether a creator has been caught equivocating.
func (n *Node) ForkStatus(creator uint32) bool {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.poset.IsSuspect(creator)
}

// GetSuspects returns the IDs of creators caught equivocating.
func (n *Node) GetSuspects() []uint32 {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()
	return n.core.poset.Suspects()
}

// Suspend puts the node in the Suspended state: gossip stops, the poset
// is preserved.
func (n *Node) Suspend() {
	n.setState(Suspended)
}

// Resume returns a suspended node to the Gossiping state.
func (n *Node) Resume() {
	if n.getState() == Suspended {
		n.setState(Gossiping)
	}
}

// Shutdown gracefully stops the node: the gossip loop exits, the transport
// and the store are closed.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		//Exit any non-shutdown state immediately
		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)

		//timer
		n.controlTimer.Shutdown()

		//transport and store should only be closed once all concurrent
		//operations are finished, otherwise they panic on the closed channels
		n.trans.Close()
		n.core.poset.Store.Close()
	})
}

// GetStats returns operational statistics.
func (n *Node) GetStats() map[string]string {
	n.coreLock.Lock()
	defer n.coreLock.Unlock()

	toString := func(i *int) string {
		if i == nil {
			return "nil"
		}
		return strconv.Itoa(*i)
	}

	timeElapsed := time.Since(n.start)
	consensusEvents := len(n.core.poset.Store.OrderedEvents())
	consensusEventsPerSecond := float64(consensusEvents) / timeElapsed.Seconds()

	s := map[string]string{
		"last_consensus_round":   toString(n.core.poset.LastConsensusRound),
		"consensus_events":       strconv.Itoa(consensusEvents),
		"consensus_transactions": strconv.Itoa(n.core.poset.ConsensusTransactions),
		"undetermined_events":    strconv.Itoa(len(n.core.poset.UndeterminedEvents)),
		"transaction_pool":       strconv.Itoa(n.core.TransactionPoolLength()),
		"num_peers":              strconv.Itoa(n.peerSelector.Peers().Len()),
		"sync_rate":              strconv.FormatFloat(n.syncRate(), 'f', 2, 64),
		"events_per_second":      strconv.FormatFloat(consensusEventsPerSecond, 'f', 2, 64),
		"rounds_per_second":      strconv.FormatFloat(float64(n.core.poset.Store.LastRound()+1)/timeElapsed.Seconds(), 'f', 2, 64),
		"state":                  n.getState().String(),
		"moniker":                n.validator.Moniker,
		"id":                     fmt.Sprint(n.validator.ID()),
		"suspects":               fmt.Sprint(len(n.core.poset.Suspects())),
	}
	return s
}

func (n *Node) syncRate() float64 {
	var syncErrorRate float64
	if n.syncRequests != 0 {
		syncErrorRate = float64(n.syncErrors) / float64(n.syncRequests)
	}
	return 1 - syncErrorRate
}
