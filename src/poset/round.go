package poset

import (
	"bytes"

	"github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/ugorji/go/codec"
)

// RoundEvent is a RoundInfo entry for one event created in the round.
type RoundEvent struct {
	Witness bool
	Famous  common.Trilean
}

// RoundInfo collects the events created in a round and, once virtual voting
// completes, the events received in the round.
type RoundInfo struct {
	CreatedEvents  map[string]RoundEvent
	ReceivedEvents []string
	decided        bool
}

// NewRoundInfo instantiates an empty RoundInfo.
func NewRoundInfo() *RoundInfo {
	return &RoundInfo{
		CreatedEvents:  make(map[string]RoundEvent),
		ReceivedEvents: []string{},
	}
}

// AddCreatedEvent adds an event to the round, recording whether it is a
// witness. Re-adding an existing event is a no-op that preserves any fame
// already decided.
func (r *RoundInfo) AddCreatedEvent(x string, witness bool) {
	if _, ok := r.CreatedEvents[x]; !ok {
		r.CreatedEvents[x] = RoundEvent{
			Witness: witness,
			Famous:  common.Undefined,
		}
	}
}

// AddReceivedEvent appends an event to the round's received list.
func (r *RoundInfo) AddReceivedEvent(x string) {
	r.ReceivedEvents = append(r.ReceivedEvents, x)
}

// SetFame records the fame decision for a witness. If the event was not
// previously known it is inserted as a witness; only witnesses are ever
// voted on.
func (r *RoundInfo) SetFame(x string, f bool) {
	e, ok := r.CreatedEvents[x]
	if !ok {
		e = RoundEvent{
			Witness: true,
		}
	}

	if f {
		e.Famous = common.True
	} else {
		e.Famous = common.False
	}

	r.CreatedEvents[x] = e
}

// WitnessesDecided returns true if the fame of all witnesses is decided.
func (r *RoundInfo) WitnessesDecided() bool {
	for _, e := range r.CreatedEvents {
		if e.Witness && e.Famous == common.Undefined {
			return false
		}
	}
	return true
}

// Witnesses returns the hashes of the round's witnesses.
func (r *RoundInfo) Witnesses() []string {
	res := []string{}
	for x, e := range r.CreatedEvents {
		if e.Witness {
			res = append(res, x)
		}
	}
	return res
}

// FamousWitnesses returns the hashes of the round's famous witnesses.
func (r *RoundInfo) FamousWitnesses() []string {
	res := []string{}
	for x, e := range r.CreatedEvents {
		if e.Witness && e.Famous == common.True {
			res = append(res, x)
		}
	}
	return res
}

// IsDecided returns the fame of a specific witness as a Trilean.
func (r *RoundInfo) IsDecided(witness string) bool {
	w, ok := r.CreatedEvents[witness]
	return ok && w.Witness && w.Famous != common.Undefined
}

// Marshal returns the canonical JSON encoding of a RoundInfo.
func (r *RoundInfo) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal parses a RoundInfo from its canonical JSON encoding.
func (r *RoundInfo) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)
	return dec.Decode(r)
}
