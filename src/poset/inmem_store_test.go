package poset

import (
	"fmt"
	"testing"

	cm "github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/crypto/keys"
	"github.com/Fantom-foundation/go-lachesis/src/peers"
)

func initInmemStore(n int) (*InmemStore, []*TestNode) {
	nodes := []*TestNode{}
	pirs := []*peers.Peer{}
	for i := 0; i < n; i++ {
		key, _ := keys.GenerateECDSAKey()
		node := newTestNode(key)
		nodes = append(nodes, node)
		pirs = append(pirs, peers.NewPeer(node.PubHex, fmt.Sprintf("127.0.0.1:%d", i), ""))
	}
	return NewInmemStore(peers.NewPeerSet(pirs), cacheSize), nodes
}

func TestInmemEvents(t *testing.T) {
	store, nodes := initInmemStore(3)

	events := map[string][]*Event{}
	for _, node := range nodes {
		prev := ""
		for i := 0; i < 3; i++ {
			ev := NewEvent([][]byte{[]byte(fmt.Sprintf("%s_%d", node.PubHex[:8], i))},
				[]string{prev, ""},
				node.Pub,
				i)
			if err := store.SetEvent(ev); err != nil {
				t.Fatal(err)
			}
			events[node.PubHex] = append(events[node.PubHex], ev)
			prev = ev.Hex()
		}
	}

	for pub, evs := range events {
		for i, ev := range evs {
			got, err := store.GetEvent(ev.Hex())
			if err != nil {
				t.Fatal(err)
			}
			if got.Hex() != ev.Hex() {
				t.Fatalf("event %d by %s mismatch", i, pub[:8])
			}

			hash, err := store.ParticipantEvent(pub, i)
			if err != nil {
				t.Fatal(err)
			}
			if hash != ev.Hex() {
				t.Fatalf("participant event %d by %s mismatch", i, pub[:8])
			}
		}

		last, err := store.LastEventFrom(pub)
		if err != nil {
			t.Fatal(err)
		}
		if last != evs[2].Hex() {
			t.Fatalf("last event by %s mismatch", pub[:8])
		}
	}

	known := store.KnownEvents()
	for _, node := range nodes {
		if known[node.ID] != 2 {
			t.Fatalf("known[%d] = %d, want 2", node.ID, known[node.ID])
		}
	}

	//a duplicate put is rejected at store level
	dup := events[nodes[0].PubHex][0]
	if err := store.SetEvent(dup); !cm.IsStore(err, cm.KeyAlreadyExists) {
		t.Fatalf("duplicate SetEvent should return KeyAlreadyExists, got %v", err)
	}

	//an out-of-sequence put is rejected
	gap := NewEvent(nil, []string{events[nodes[0].PubHex][2].Hex(), ""}, nodes[0].Pub, 5)
	if err := store.SetEvent(gap); !cm.IsStore(err, cm.SkippedIndex) {
		t.Fatalf("skipped-index SetEvent should return SkippedIndex, got %v", err)
	}
}

func TestInmemSetForkEvent(t *testing.T) {
	store, nodes := initInmemStore(2)

	canonical := NewEvent(nil, []string{"", ""}, nodes[0].Pub, 0)
	if err := store.SetEvent(canonical); err != nil {
		t.Fatal(err)
	}

	branch := NewEvent([][]byte{[]byte("branch")}, []string{"", ""}, nodes[0].Pub, 0)
	if err := store.SetForkEvent(branch); err != nil {
		t.Fatal(err)
	}

	//retrievable by hash
	if _, err := store.GetEvent(branch.Hex()); err != nil {
		t.Fatal(err)
	}
	//but absent from the creator's sequence
	hash, err := store.ParticipantEvent(nodes[0].PubHex, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hash != canonical.Hex() {
		t.Fatal("fork event should not displace the canonical event")
	}
}

func TestInmemRounds(t *testing.T) {
	store, nodes := initInmemStore(3)

	round := NewRoundInfo()
	events := map[string]*Event{}
	for _, node := range nodes {
		ev := NewEvent(nil, []string{"", ""}, node.Pub, 0)
		events[node.PubHex] = ev
		round.AddCreatedEvent(ev.Hex(), true)
	}

	if err := store.SetRound(0, round); err != nil {
		t.Fatal(err)
	}

	if c := store.LastRound(); c != 0 {
		t.Fatalf("last round = %d, want 0", c)
	}
	if w := len(store.RoundWitnesses(0)); w != 3 {
		t.Fatalf("round 0 witnesses = %d, want 3", w)
	}
	if n := store.RoundEvents(0); n != 3 {
		t.Fatalf("round 0 events = %d, want 3", n)
	}

	round.SetFame(events[nodes[0].PubHex].Hex(), true)
	if err := store.SetRound(0, round); err != nil {
		t.Fatal(err)
	}
	stored, err := store.GetRound(0)
	if err != nil {
		t.Fatal(err)
	}
	if f := len(stored.FamousWitnesses()); f != 1 {
		t.Fatalf("famous witnesses = %d, want 1", f)
	}
}
