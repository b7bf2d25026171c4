package poset

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"testing"
	"time"

	"github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/crypto/keys"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
)

const cacheSize = 100

type TestNode struct {
	ID     uint32
	Key    *ecdsa.PrivateKey
	Pub    []byte
	PubHex string
}

func newTestNode(key *ecdsa.PrivateKey) *TestNode {
	pub := keys.FromPublicKey(&key.PublicKey)
	return &TestNode{
		ID:     keys.PublicKeyID(pub),
		Key:    key,
		Pub:    pub,
		PubHex: common.EncodeToString(pub),
	}
}

type play struct {
	to          int
	index       int
	selfParent  string
	otherParent string
	name        string
	payload     [][]byte
}

/*
The test graph. n=3, so the supermajority is 3: every witness must be
strongly seen by events carrying all three creators' coordinates before a
round increments.

   n0    n1    n2
   e0    e1    e2     round 0 witnesses
         e10           n1/1: sp e1,  op e0
               s20     n2/1: sp e2,  op e10
   s00                 n0/1: sp e0,  op s20
         f1            n1/2: sp e10, op s00   round 1 witness
   f0                  n0/2: sp s00, op f1    round 1 witness
               f2      n2/2: sp s20, op f0    round 1 witness
         g1            n1/3: sp f1,  op f2    round 1
   g0                  n0/3: sp f0,  op g1    round 2 witness
               g2      n2/3: sp f2,  op g0    round 2 witness
         g10           n1/4: sp g1,  op g2    round 2 witness
   r0                  n0/4: sp g0,  op g10   round 2
               r2      n2/4: sp g2,  op r0    round 3 witness
         r1            n1/5: sp g10, op r2    round 3 witness
   r00                 n0/5: sp r0,  op r1    round 3 witness
*/
var testPlays = []play{
	{1, 1, "e1", "e0", "e10", [][]byte{[]byte("tx-e10")}},
	{2, 1, "e2", "e10", "s20", nil},
	{0, 1, "e0", "s20", "s00", [][]byte{[]byte("tx-s00")}},
	{1, 2, "e10", "s00", "f1", nil},
	{0, 2, "s00", "f1", "f0", nil},
	{2, 2, "s20", "f0", "f2", nil},
	{1, 3, "f1", "f2", "g1", nil},
	{0, 3, "f0", "g1", "g0", nil},
	{2, 3, "f2", "g0", "g2", nil},
	{1, 4, "g1", "g2", "g10", nil},
	{0, 4, "g0", "g10", "r0", nil},
	{2, 4, "g2", "r0", "r2", nil},
	{1, 5, "g10", "r2", "r1", nil},
	{0, 5, "r0", "r1", "r00", nil},
}

func initPosetNodes(n int) ([]*TestNode, *peers.PeerSet) {
	nodes := []*TestNode{}
	pirs := []*peers.Peer{}
	for i := 0; i < n; i++ {
		key, _ := keys.GenerateECDSAKey()
		node := newTestNode(key)
		nodes = append(nodes, node)
		pirs = append(pirs, peers.NewPeer(node.PubHex, fmt.Sprintf("127.0.0.1:%d", i), fmt.Sprintf("node%d", i)))
	}
	return nodes, peers.NewPeerSet(pirs)
}

//makeEvent builds and signs an event with a deterministic claimed timestamp.
func makeEvent(node *TestNode, p play, index map[string]string, seq int) (*Event, error) {
	sp := ""
	op := ""
	if p.selfParent != "" {
		sp = index[p.selfParent]
	}
	if p.otherParent != "" {
		op = index[p.otherParent]
	}

	event := NewEvent(p.payload, []string{sp, op}, node.Pub, p.index)
	event.Body.Timestamp = testBaseTime.Add(time.Duration(seq) * time.Second)
	if err := event.Sign(node.Key); err != nil {
		return nil, err
	}
	return event, nil
}

var testBaseTime = time.Date(2019, 10, 14, 8, 0, 0, 0, time.UTC)

//initPoset builds the test graph, inserting each event through the full
//consensus pipeline when runConsensus is true.
func initPoset(t *testing.T, runConsensus bool) (*Poset, []*TestNode, map[string]string) {
	nodes, peerSet := initPosetNodes(3)

	index := make(map[string]string)
	seq := 0

	poset := NewPoset(peerSet,
		NewInmemStore(peerSet, cacheSize),
		nil,
		common.NewTestEntry(t))

	insert := func(node *TestNode, p play) {
		event, err := makeEvent(node, p, index, seq)
		if err != nil {
			t.Fatalf("making event %s: %v", p.name, err)
		}
		seq++

		if runConsensus {
			err = poset.InsertEventAndRunConsensus(event, true)
		} else {
			err = poset.InsertEvent(event, true)
		}
		if err != nil {
			t.Fatalf("inserting event %s: %v", p.name, err)
		}
		index[p.name] = event.Hex()
	}

	for i, node := range nodes {
		insert(node, play{to: i, index: 0, name: fmt.Sprintf("e%d", i)})
	}
	for _, p := range testPlays {
		insert(nodes[p.to], p)
	}

	return poset, nodes, index
}

func TestAncestor(t *testing.T) {
	p, _, index := initPoset(t, false)

	expected := []struct {
		x, y string
		val  bool
	}{
		{"e10", "e0", true},
		{"e10", "e1", true},
		{"e10", "e2", false},
		{"s20", "e1", true},
		{"s00", "e2", true},
		{"e0", "e1", false},
		{"f1", "e0", true},
		{"f1", "e2", true},
		{"e2", "e2", true},
	}

	for _, ex := range expected {
		a, err := p.ancestor(index[ex.x], index[ex.y])
		if err != nil {
			t.Fatal(err)
		}
		if a != ex.val {
			t.Errorf("ancestor(%s, %s) = %v, want %v", ex.x, ex.y, a, ex.val)
		}
	}
}

func TestSelfAncestor(t *testing.T) {
	p, _, index := initPoset(t, false)

	expected := []struct {
		x, y string
		val  bool
	}{
		{"s00", "e0", true},
		{"f0", "e0", true},
		{"s00", "e1", false},
		{"e10", "e1", true},
		{"e10", "e0", false},
	}

	for _, ex := range expected {
		a, err := p.selfAncestor(index[ex.x], index[ex.y])
		if err != nil {
			t.Fatal(err)
		}
		if a != ex.val {
			t.Errorf("selfAncestor(%s, %s) = %v, want %v", ex.x, ex.y, a, ex.val)
		}
	}
}

func TestStronglySee(t *testing.T) {
	p, _, index := initPoset(t, false)

	expected := []struct {
		x, y string
		val  bool
	}{
		{"f1", "e0", true},
		{"f1", "e1", true},
		{"f1", "e2", true},
		{"s00", "e0", true},
		{"s00", "e2", false},
		{"e10", "e0", false},
		{"g0", "f0", true},
		{"g0", "f1", true},
		{"g0", "f2", true},
	}

	for _, ex := range expected {
		a, err := p.stronglySee(index[ex.x], index[ex.y])
		if err != nil {
			t.Fatal(err)
		}
		if a != ex.val {
			t.Errorf("stronglySee(%s, %s) = %v, want %v", ex.x, ex.y, a, ex.val)
		}
	}
}

func TestDivideRounds(t *testing.T) {
	p, _, index := initPoset(t, false)

	if err := p.DivideRounds(); err != nil {
		t.Fatal(err)
	}

	if l := p.Store.LastRound(); l != 3 {
		t.Fatalf("last round should be 3, not %d", l)
	}

	expected := []struct {
		name    string
		round   int
		witness bool
	}{
		{"e0", 0, true},
		{"e1", 0, true},
		{"e2", 0, true},
		{"e10", 0, false},
		{"s20", 0, false},
		{"s00", 0, false},
		{"f0", 1, true},
		{"f1", 1, true},
		{"f2", 1, true},
		{"g1", 1, false},
		{"g0", 2, true},
		{"g2", 2, true},
		{"g10", 2, true},
		{"r0", 2, false},
		{"r2", 3, true},
		{"r1", 3, true},
		{"r00", 3, true},
	}

	for _, ex := range expected {
		ev, err := p.Store.GetEvent(index[ex.name])
		if err != nil {
			t.Fatal(err)
		}
		if r := ev.GetRound(); r == nil || *r != ex.round {
			t.Errorf("%s round = %v, want %d", ex.name, r, ex.round)
		}
		if w := ev.GetWitness(); w == nil || *w != ex.witness {
			t.Errorf("%s witness = %v, want %v", ex.name, w, ex.witness)
		}
	}

	if n := len(p.Store.RoundWitnesses(0)); n != 3 {
		t.Errorf("round 0 should have 3 witnesses, not %d", n)
	}
	if n := p.Store.RoundEvents(0); n != 6 {
		t.Errorf("round 0 should have 6 events, not %d", n)
	}
}

func TestDecideFame(t *testing.T) {
	p, _, index := initPoset(t, false)

	if err := p.DivideRounds(); err != nil {
		t.Fatal(err)
	}
	if err := p.DecideFame(); err != nil {
		t.Fatal(err)
	}

	for r := 0; r <= 1; r++ {
		round, err := p.Store.GetRound(r)
		if err != nil {
			t.Fatal(err)
		}
		if !round.WitnessesDecided() {
			t.Fatalf("round %d witnesses should be decided", r)
		}
		if f := len(round.FamousWitnesses()); f != 3 {
			t.Fatalf("round %d should have 3 famous witnesses, not %d", r, f)
		}
	}

	round2, err := p.Store.GetRound(2)
	if err != nil {
		t.Fatal(err)
	}
	if round2.WitnessesDecided() {
		t.Fatal("round 2 witnesses should not be decided yet")
	}

	for _, w := range []string{"e0", "e1", "e2", "f0", "f1", "f2"} {
		ev, _ := p.Store.GetEvent(index[w])
		r, err := p.Store.GetRound(*ev.GetRound())
		if err != nil {
			t.Fatal(err)
		}
		if r.CreatedEvents[index[w]].Famous != common.True {
			t.Errorf("%s should be famous", w)
		}
	}
}

func TestConsensusOrder(t *testing.T) {
	p, _, index := initPoset(t, true)

	ordered := p.Store.OrderedEvents()
	if len(ordered) != 6 {
		t.Fatalf("6 events should have reached consensus, not %d", len(ordered))
	}

	expectedOrder := []string{"e0", "e1", "e2", "e10", "s20", "s00"}
	for i, name := range expectedOrder {
		if ordered[i].Hex() != index[name] {
			t.Fatalf("ordered[%d] should be %s", i, name)
		}
	}

	expectedRR := map[string]int{
		"e0": 0, "e1": 0, "e2": 0,
		"e10": 1, "s20": 1, "s00": 1,
	}
	for name, rr := range expectedRR {
		ev, _ := p.Store.GetEvent(index[name])
		if r := ev.GetRoundReceived(); r == nil || *r != rr {
			t.Errorf("%s round received = %v, want %d", name, r, rr)
		}
	}

	if p.LastConsensusRound == nil || *p.LastConsensusRound != 1 {
		t.Errorf("last consensus round = %v, want 1", p.LastConsensusRound)
	}
	if p.FirstConsensusRound == nil || *p.FirstConsensusRound != 0 {
		t.Errorf("first consensus round = %v, want 0", p.FirstConsensusRound)
	}
	if p.ConsensusTransactions != 2 {
		t.Errorf("consensus transactions = %d, want 2", p.ConsensusTransactions)
	}

	//a root's consensus timestamp is its claimed timestamp
	e0, _ := p.Store.GetEvent(index["e0"])
	if !e0.ConsensusTimestamp().Equal(e0.Timestamp()) {
		t.Errorf("e0 consensus timestamp should equal its claimed timestamp")
	}

	//consensus timestamps never decrease along the order
	for i := 1; i < len(ordered); i++ {
		if ordered[i].ConsensusTimestamp().Before(ordered[i-1].ConsensusTimestamp()) {
			t.Fatalf("consensus timestamps should be monotonic at position %d", i)
		}
	}
}

func TestConsensusTimestampIsMedian(t *testing.T) {
	p, _, index := initPoset(t, true)

	//e10's timestamp contributions come from s00 (via f0), e10 itself (via
	//f1) and s20 (via f2); the median contributor is s20
	e10, _ := p.Store.GetEvent(index["e10"])
	s20, _ := p.Store.GetEvent(index["s20"])
	if !e10.ConsensusTimestamp().Equal(s20.Timestamp()) {
		t.Errorf("e10 consensus timestamp = %v, want %v",
			e10.ConsensusTimestamp(), s20.Timestamp())
	}
}

func TestInsertEventIdempotent(t *testing.T) {
	p, nodes, index := initPoset(t, false)

	ev, err := p.Store.GetEvent(index["e10"])
	if err != nil {
		t.Fatal(err)
	}

	undetermined := len(p.UndeterminedEvents)
	if err := p.InsertEvent(ev, true); err != nil {
		t.Fatalf("re-inserting a known event should be a no-op, got %v", err)
	}
	if len(p.UndeterminedEvents) != undetermined {
		t.Fatal("re-inserting a known event should not extend the undetermined list")
	}
	if known := p.Store.KnownEvents()[nodes[1].ID]; known != 5 {
		t.Fatalf("node1 known index = %d, want 5", known)
	}
}

func TestForkDetection(t *testing.T) {
	p, nodes, index := initPoset(t, false)

	//a second, different event by n2 at index 1
	forkEvent := NewEvent(
		[][]byte{[]byte("equivocation")},
		[]string{index["e2"], index["e0"]},
		nodes[2].Pub,
		1)
	forkEvent.Body.Timestamp = testBaseTime.Add(time.Hour)
	if err := forkEvent.Sign(nodes[2].Key); err != nil {
		t.Fatal(err)
	}

	if err := p.InsertEvent(forkEvent, true); err != nil {
		t.Fatalf("fork insertion should not error, got %v", err)
	}

	forks := p.Store.Forks()
	if len(forks) != 1 {
		t.Fatalf("1 fork should be recorded, not %d", len(forks))
	}
	if forks[0].Creator != nodes[2].ID {
		t.Errorf("fork creator = %d, want %d", forks[0].Creator, nodes[2].ID)
	}
	if forks[0].EventA != index["s20"] || forks[0].EventB != forkEvent.Hex() {
		t.Error("fork evidence should reference both conflicting events")
	}

	if !p.IsSuspect(nodes[2].ID) {
		t.Error("n2 should be flagged as suspect")
	}

	//both branches remain retrievable
	if _, err := p.Store.GetEvent(forkEvent.Hex()); err != nil {
		t.Errorf("fork branch event should be retrievable: %v", err)
	}
	//the canonical chain is untouched
	canonical, err := p.Store.ParticipantEvent(nodes[2].PubHex, 1)
	if err != nil {
		t.Fatal(err)
	}
	if canonical != index["s20"] {
		t.Error("canonical event at index 1 should still be s20")
	}

	//the suspect's witnesses are declared not famous
	if err := p.DivideRounds(); err != nil {
		t.Fatal(err)
	}
	if err := p.DecideFame(); err != nil {
		t.Fatal(err)
	}
	round0, err := p.Store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	if round0.CreatedEvents[index["e2"]].Famous == common.True {
		t.Error("a suspect's witness should not be famous")
	}
}

func TestReadWireInfo(t *testing.T) {
	p, _, index := initPoset(t, false)

	for _, name := range []string{"e10", "s20", "f1", "g0"} {
		ev, err := p.Store.GetEvent(index[name])
		if err != nil {
			t.Fatal(err)
		}

		restored, err := p.ReadWireInfo(ev.ToWire())
		if err != nil {
			t.Fatalf("reading wire info for %s: %v", name, err)
		}

		if restored.Hex() != ev.Hex() {
			t.Fatalf("wire roundtrip changed the hash of %s", name)
		}
		if ok, err := restored.Verify(); err != nil || !ok {
			t.Fatalf("restored %s signature should verify", name)
		}
	}
}

func TestCommitCallback(t *testing.T) {
	nodes, peerSet := initPosetNodes(3)

	type commit struct {
		round  int
		events int
	}
	commits := []commit{}

	p := NewPoset(peerSet,
		NewInmemStore(peerSet, cacheSize),
		func(roundReceived int, events []*Event) error {
			commits = append(commits, commit{roundReceived, len(events)})
			return nil
		},
		common.NewTestEntry(t))

	index := make(map[string]string)
	seq := 0
	insert := func(node *TestNode, pl play) {
		event, err := makeEvent(node, pl, index, seq)
		if err != nil {
			t.Fatal(err)
		}
		seq++
		if err := p.InsertEventAndRunConsensus(event, true); err != nil {
			t.Fatalf("inserting %s: %v", pl.name, err)
		}
		index[pl.name] = event.Hex()
	}

	for i, node := range nodes {
		insert(node, play{to: i, index: 0, name: fmt.Sprintf("e%d", i)})
	}
	for _, pl := range testPlays {
		insert(nodes[pl.to], pl)
	}

	if len(commits) != 2 {
		t.Fatalf("2 rounds should have been committed, not %d", len(commits))
	}
	if commits[0].round != 0 || commits[0].events != 3 {
		t.Errorf("first commit = %+v, want round 0 with 3 events", commits[0])
	}
	if commits[1].round != 1 || commits[1].events != 3 {
		t.Errorf("second commit = %+v, want round 1 with 3 events", commits[1])
	}
}

//Once an event strongly sees a witness, so does every descendant of that
//event: last-ancestor indexes only grow along graph edges.
func TestStronglySeeMonotonic(t *testing.T) {
	p, _, index := initPoset(t, false)

	names := make([]string, 0, len(index))
	for name := range index {
		names = append(names, name)
	}

	for _, xn := range names {
		for _, wn := range names {
			ss, err := p.stronglySee(index[xn], index[wn])
			if err != nil {
				t.Fatal(err)
			}
			if !ss {
				continue
			}
			for _, zn := range names {
				desc, err := p.ancestor(index[zn], index[xn])
				if err != nil {
					t.Fatal(err)
				}
				if !desc {
					continue
				}
				zss, err := p.stronglySee(index[zn], index[wn])
				if err != nil {
					t.Fatal(err)
				}
				if !zss {
					t.Fatalf("%s strongly sees %s but descendant %s does not", xn, wn, zn)
				}
			}
		}
	}
}

//A suspect's events that continue the fork branch are kept as evidence, even
//past the canonical frontier, without entering consensus.
func TestForkBranchRetention(t *testing.T) {
	p, nodes, index := initPoset(t, false)

	forkEvent := NewEvent(
		[][]byte{[]byte("equivocation")},
		[]string{index["e2"], index["e0"]},
		nodes[2].Pub,
		1)
	forkEvent.Body.Timestamp = testBaseTime.Add(time.Hour)
	if err := forkEvent.Sign(nodes[2].Key); err != nil {
		t.Fatal(err)
	}
	if err := p.InsertEvent(forkEvent, true); err != nil {
		t.Fatalf("fork insertion should not error, got %v", err)
	}
	if !p.IsSuspect(nodes[2].ID) {
		t.Fatal("n2 should be flagged as suspect")
	}

	undetermined := len(p.UndeterminedEvents)

	//n2's canonical chain ends at index 4, so indexes 2-4 conflict with
	//signed events and 5-6 extend past the frontier; all are retained
	prev := forkEvent
	for i := 2; i <= 6; i++ {
		cont := NewEvent(nil, []string{prev.Hex(), index["e0"]}, nodes[2].Pub, i)
		cont.Body.Timestamp = testBaseTime.Add(time.Hour + time.Duration(i)*time.Second)
		if err := cont.Sign(nodes[2].Key); err != nil {
			t.Fatal(err)
		}

		if err := p.InsertEvent(cont, true); err != nil {
			t.Fatalf("fork continuation at index %d should be retained, got %v", i, err)
		}
		if _, err := p.Store.GetEvent(cont.Hex()); err != nil {
			t.Fatalf("fork continuation at index %d should be retrievable: %v", i, err)
		}
		prev = cont
	}

	//the canonical sequence is untouched and nothing entered consensus
	last, err := p.Store.LastEventFrom(nodes[2].PubHex)
	if err != nil {
		t.Fatal(err)
	}
	if last != index["r2"] {
		t.Fatal("the canonical head of n2 should still be r2")
	}
	if known := p.Store.KnownEvents()[nodes[2].ID]; known != 4 {
		t.Fatalf("n2's canonical frontier = %d, want 4", known)
	}
	if len(p.UndeterminedEvents) != undetermined {
		t.Fatal("fork-branch events should stay out of consensus")
	}
}

/*
A 4-node graph (supermajority 3) in which n3 produces a round-1 witness d1
that nobody references until long after round 1 is decided: n0, n1 and n2
gossip among themselves, while n3 only pulls. Every round-2 witness votes
"not seen" on d1, so d1 is decided not-famous. Much later a5 (n0) pulls from
n3, which carries d1 into the main lineage: once round 4 is decided, its
famous witnesses all see d1 and a5, so both still receive a round.

   n0    n1    n2    n3
   a0    b0    c0    d0    round 0 witnesses
         b1
               c1
   a1
         b2                round 1 witness
               c2          round 1 witness
   a2                      round 1 witness
                     d1    round 1 witness, unseen (sp d0, op c2)
         b3
               c3          round 2 witness
   a3                      round 2 witness
         b4                round 2 witness
               c4
   a4                      round 3 witness (round 1 decided here)
         b5                round 3 witness
               c5          round 3 witness
   a5                      sp a4, op d1: first event to see d1
         b6
   a6                      round 4 witness
         b7                round 4 witness
               c6          round 4 witness
   a7
         b8                round 5 witness
               c7          round 5 witness
   a8                      round 5 witness
         b9
               c8          round 6 witness (round 4 decided here)
   a9                      round 6 witness
         b10               round 6 witness
*/
var unseenWitnessPlays = []play{
	{1, 1, "b0", "a0", "b1", nil},
	{2, 1, "c0", "b1", "c1", nil},
	{0, 1, "a0", "c1", "a1", nil},
	{1, 2, "b1", "a1", "b2", nil},
	{2, 2, "c1", "b2", "c2", nil},
	{0, 2, "a1", "c2", "a2", nil},
	{3, 1, "d0", "c2", "d1", nil},
	{1, 3, "b2", "a2", "b3", nil},
	{2, 3, "c2", "b3", "c3", nil},
	{0, 3, "a2", "c3", "a3", nil},
	{1, 4, "b3", "a3", "b4", nil},
	{2, 4, "c3", "b4", "c4", nil},
	{0, 4, "a3", "c4", "a4", nil},
	{1, 5, "b4", "a4", "b5", nil},
	{2, 5, "c4", "b5", "c5", nil},
	{0, 5, "a4", "d1", "a5", nil},
	{1, 6, "b5", "c5", "b6", nil},
	{0, 6, "a5", "b6", "a6", nil},
	{1, 7, "b6", "a6", "b7", nil},
	{2, 6, "c5", "b7", "c6", nil},
	{0, 7, "a6", "c6", "a7", nil},
	{1, 8, "b7", "a7", "b8", nil},
	{2, 7, "c6", "b8", "c7", nil},
	{0, 8, "a7", "c7", "a8", nil},
	{1, 9, "b8", "a8", "b9", nil},
	{2, 8, "c7", "b9", "c8", nil},
	{0, 9, "a8", "c8", "a9", nil},
	{1, 10, "b9", "a9", "b10", nil},
}

func TestNotFamousWitness(t *testing.T) {
	nodes, peerSet := initPosetNodes(4)

	p := NewPoset(peerSet,
		NewInmemStore(peerSet, cacheSize),
		nil,
		common.NewTestEntry(t))

	index := make(map[string]string)
	seq := 0
	insert := func(node *TestNode, pl play) {
		event, err := makeEvent(node, pl, index, seq)
		if err != nil {
			t.Fatalf("making event %s: %v", pl.name, err)
		}
		seq++
		if err := p.InsertEventAndRunConsensus(event, true); err != nil {
			t.Fatalf("inserting event %s: %v", pl.name, err)
		}
		index[pl.name] = event.Hex()
	}

	roots := []string{"a0", "b0", "c0", "d0"}
	for i, name := range roots {
		insert(nodes[i], play{to: i, index: 0, name: name})
	}
	for _, pl := range unseenWitnessPlays[:15] { //through c5: round 1 is decided
		insert(nodes[pl.to], pl)
	}

	round1, err := p.Store.GetRound(1)
	if err != nil {
		t.Fatal(err)
	}
	if !round1.WitnessesDecided() {
		t.Fatal("round 1 should be decided once the round 3 witnesses exist")
	}
	if round1.CreatedEvents[index["d1"]].Famous != common.False {
		t.Fatal("a witness nobody saw should be decided not famous")
	}
	for _, name := range []string{"a2", "b2", "c2"} {
		if round1.CreatedEvents[index[name]].Famous != common.True {
			t.Fatalf("%s should be decided famous", name)
		}
	}

	fameBefore := map[string]common.Trilean{}
	for h, re := range round1.CreatedEvents {
		if re.Witness {
			fameBefore[h] = re.Famous
		}
	}

	for _, pl := range unseenWitnessPlays[15:] {
		insert(nodes[pl.to], pl)
	}

	//fame decisions are permanent under arbitrary further graph growth
	round1, err = p.Store.GetRound(1)
	if err != nil {
		t.Fatal(err)
	}
	for h, fame := range fameBefore {
		if round1.CreatedEvents[h].Famous != fame {
			t.Fatal("a fame decision changed after the graph grew")
		}
	}
	if got := len(round1.FamousWitnesses()); got != 3 {
		t.Fatalf("round 1 should have 3 famous witnesses, not %d", got)
	}

	//the not-famous witness and its descendant are still ordered once a
	//later round's famous witnesses see them
	if p.LastConsensusRound == nil || *p.LastConsensusRound != 4 {
		t.Fatalf("last consensus round = %v, want 4", p.LastConsensusRound)
	}
	for _, name := range []string{"d1", "a5"} {
		ev, err := p.Store.GetEvent(index[name])
		if err != nil {
			t.Fatal(err)
		}
		if ev.GetRoundReceived() == nil || *ev.GetRoundReceived() != 4 {
			t.Fatalf("%s round received = %v, want 4", name, ev.GetRoundReceived())
		}
	}
}

//Four creators producing only their roots reach consensus on round 0 without
//any further gossip; identical claimed timestamps fall back to hash order.
func TestRootsOnlyConsensus(t *testing.T) {
	nodes, peerSet := initPosetNodes(4)

	p := NewPoset(peerSet,
		NewInmemStore(peerSet, cacheSize),
		nil,
		common.NewTestEntry(t))

	for _, node := range nodes {
		event := NewEvent(nil, []string{"", ""}, node.Pub, 0)
		event.Body.Timestamp = testBaseTime
		if err := event.Sign(node.Key); err != nil {
			t.Fatal(err)
		}
		if err := p.InsertEventAndRunConsensus(event, true); err != nil {
			t.Fatal(err)
		}
	}

	if p.LastConsensusRound == nil || *p.LastConsensusRound != 0 {
		t.Fatalf("roots alone should finalize round 0, got %v", p.LastConsensusRound)
	}

	ordered := p.Store.OrderedEvents()
	if len(ordered) != 4 {
		t.Fatalf("4 roots should be ordered, not %d", len(ordered))
	}
	for i := 1; i < len(ordered); i++ {
		prev, _ := ordered[i-1].Hash()
		cur, _ := ordered[i].Hash()
		if bytes.Compare(prev, cur) >= 0 {
			t.Fatal("tied roots should be ordered by ascending hash")
		}
	}
}
