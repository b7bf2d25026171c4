package poset

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/go-lachesis/src/common"
)

func TestBadgerStoreEvents(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "badger_db")

	nodes, peerSet := initPosetNodes(3)
	store, err := NewBadgerStore(peerSet, cacheSize, dbPath)
	if err != nil {
		t.Fatal(err)
	}

	event := NewEvent([][]byte{[]byte("tx")}, []string{"", ""}, nodes[0].Pub, 0)
	event.Body.Timestamp = testBaseTime
	if err := event.Sign(nodes[0].Key); err != nil {
		t.Fatal(err)
	}
	if err := store.SetEvent(event); err != nil {
		t.Fatal(err)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	//a reopened store serves the event from disk, signature intact
	reopened, err := LoadBadgerStore(cacheSize, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	stored, err := reopened.GetEvent(event.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if stored.Hex() != event.Hex() {
		t.Fatal("the stored event's hash should survive a restart")
	}
	if ok, err := stored.Verify(); err != nil || !ok {
		t.Fatalf("the stored event's signature should survive a restart: %v", err)
	}

	eh, err := reopened.dbParticipantEvent(nodes[0].PubHex, 0)
	if err != nil {
		t.Fatal(err)
	}
	if eh != event.Hex() {
		t.Fatal("the participant index should survive a restart")
	}

	//the in-memory layer of a reopened store is empty until bootstrap
	if reopened.ContainsEvent(event.Hex()) {
		t.Fatal("ContainsEvent should consult the cache only")
	}
}

func TestBadgerStoreBootstrap(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "badger_db")

	nodes, peerSet := initPosetNodes(3)
	store, err := NewBadgerStore(peerSet, cacheSize, dbPath)
	if err != nil {
		t.Fatal(err)
	}

	p := NewPoset(peerSet, store, nil, common.NewTestEntry(t))

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

	if p.LastConsensusRound == nil {
		t.Fatal("consensus should have been reached before the restart")
	}
	lastRoundBefore := *p.LastConsensusRound
	knownBefore := store.KnownEvents()
	headsBefore := map[string]string{}
	for _, node := range nodes {
		head, err := store.LastEventFrom(node.PubHex)
		if err != nil {
			t.Fatal(err)
		}
		headsBefore[node.PubHex] = head
	}
	orderedBefore := []string{}
	for _, ev := range store.OrderedEvents() {
		orderedBefore = append(orderedBefore, ev.Hex())
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := LoadBadgerStore(cacheSize, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	participants, err := reopened.Participants()
	if err != nil {
		t.Fatal(err)
	}

	p2 := NewPoset(participants, reopened, nil, common.NewTestEntry(t))
	if err := p2.Bootstrap(); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	knownAfter := reopened.KnownEvents()
	for id, last := range knownBefore {
		if knownAfter[id] != last {
			t.Fatalf("known[%d] = %d after bootstrap, want %d", id, knownAfter[id], last)
		}
	}
	for _, node := range nodes {
		head, err := reopened.LastEventFrom(node.PubHex)
		if err != nil {
			t.Fatalf("LastEventFrom after bootstrap: %v", err)
		}
		if head != headsBefore[node.PubHex] {
			t.Fatal("the participant head should survive a restart")
		}
	}
	if p2.LastConsensusRound == nil || *p2.LastConsensusRound != lastRoundBefore {
		t.Fatalf("last consensus round = %v after bootstrap, want %d",
			p2.LastConsensusRound, lastRoundBefore)
	}

	orderedAfter := reopened.OrderedEvents()
	if len(orderedAfter) != len(orderedBefore) {
		t.Fatalf("%d ordered events after bootstrap, want %d",
			len(orderedAfter), len(orderedBefore))
	}
	for i, ev := range orderedAfter {
		if ev.Hex() != orderedBefore[i] {
			t.Fatalf("ordered event %d differs after bootstrap", i)
		}
	}

	//the recovered frontier accepts the creator's next event instead of
	//treating it as a fork against its own history
	next := NewEvent(nil,
		[]string{headsBefore[nodes[0].PubHex], index["r1"]},
		nodes[0].Pub,
		knownBefore[nodes[0].ID]+1)
	if err := next.Sign(nodes[0].Key); err != nil {
		t.Fatal(err)
	}
	if err := p2.InsertEventAndRunConsensus(next, true); err != nil {
		t.Fatalf("inserting on top of a bootstrapped poset: %v", err)
	}
	if len(p2.Suspects()) != 0 {
		t.Fatal("a restarted node should not flag itself as a suspect")
	}
}
