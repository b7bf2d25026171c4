package poset

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/Fantom-foundation/go-lachesis/src/common"
	"github.com/Fantom-foundation/go-lachesis/src/crypto"
	"github.com/Fantom-foundation/go-lachesis/src/crypto/keys"
	"github.com/ugorji/go/codec"
)

/*******************************************************************************
EventBody
*******************************************************************************/

// EventBody contains the payload of an Event and the references that tie it
// into the graph. The signature covers the canonical encoding of the exported
// fields; the private fields are local routing hints for the wire format and
// are not part of the event's identity.
type EventBody struct {
	Transactions [][]byte  //the payload; opaque to the consensus engine
	Parents      []string  //hashes of the event's parents, self-parent first
	Creator      []byte    //creator's public key
	Index        int       //index in the sequence of events created by Creator
	Timestamp    time.Time //creator's claimed creation time; advisory only

	//These fields are not serialized
	creatorID            uint32
	otherParentCreatorID uint32
	selfParentIndex      int
	otherParentIndex     int
}

// Marshal returns the canonical JSON encoding of an EventBody. Canonical
// encoding matters because the hash of this encoding is the event's identity;
// all honest participants must derive the same bytes.
func (e *EventBody) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(e); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal parses an EventBody from its canonical JSON encoding.
func (e *EventBody) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)
	return dec.Decode(e)
}

// Hash returns the SHA256 hash of the canonical encoding of the EventBody.
func (e *EventBody) Hash() ([]byte, error) {
	hashBytes, err := e.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(hashBytes), nil
}

/*******************************************************************************
CoordinatesMap
*******************************************************************************/

// EventCoordinates combines the index and hash of an Event.
type EventCoordinates struct {
	Hash  string
	Index int
}

// CoordinatesMap maps creator public keys to EventCoordinates. Each event
// carries two of these: its last ancestor per creator and its first
// descendant per creator. They are merged along parent-child edges at insert
// time, which is what makes the StronglySee predicate a map lookup instead
// of a graph traversal.
type CoordinatesMap map[string]EventCoordinates

// NewCoordinatesMap creates an empty CoordinatesMap.
func NewCoordinatesMap() CoordinatesMap {
	return make(map[string]EventCoordinates)
}

// Copy clones a CoordinatesMap.
func (c CoordinatesMap) Copy() CoordinatesMap {
	res := make(map[string]EventCoordinates, len(c))
	for k, v := range c {
		res[k] = v
	}
	return res
}

/*******************************************************************************
Event
*******************************************************************************/

// Event is the fundamental unit of the poset: an EventBody and the creator's
// signature of it. Everything else is derived state, computed once as the
// graph grows and cached with the event.
type Event struct {
	Body      EventBody
	Signature string //creator's digital signature of the body hash

	topologicalIndex int

	round              *int
	witness            *bool
	roundReceived      *int
	consensusTimestamp time.Time

	lastAncestors    CoordinatesMap //[creator pubkey] => last ancestor
	firstDescendants CoordinatesMap //[creator pubkey] => first descendant

	creator string
	hash    []byte
	hex     string
}

// NewEvent instantiates a new Event with the creator's claimed timestamp set
// to the current time.
func NewEvent(transactions [][]byte,
	parents []string,
	creator []byte,
	index int) *Event {

	body := EventBody{
		Transactions: transactions,
		Parents:      parents,
		Creator:      creator,
		Index:        index,
		Timestamp:    time.Now().UTC(), //strip monotonic clock reading
	}
	return &Event{
		Body: body,
	}
}

// Creator returns the string representation of the creator's public key.
func (e *Event) Creator() string {
	if e.creator == "" {
		e.creator = common.EncodeToString(e.Body.Creator)
	}
	return e.creator
}

// SelfParent returns the hash of the Event's self-parent, or "" for a
// creator's first event.
func (e *Event) SelfParent() string {
	return e.Body.Parents[0]
}

// OtherParent returns the hash of the Event's other-parent, or "".
func (e *Event) OtherParent() string {
	return e.Body.Parents[1]
}

// Transactions returns the Event's transaction payloads.
func (e *Event) Transactions() [][]byte {
	return e.Body.Transactions
}

// Index returns the Event's index in its creator's sequence.
func (e *Event) Index() int {
	return e.Body.Index
}

// Timestamp returns the creator's claimed creation time.
func (e *Event) Timestamp() time.Time {
	return e.Body.Timestamp
}

// IsLoaded returns true if the Event carries a payload or is its creator's
// first event.
func (e *Event) IsLoaded() bool {
	if e.Body.Index == 0 {
		return true
	}
	return len(e.Body.Transactions) > 0
}

// Sign signs the hash of the Event's body with an ECDSA signature.
func (e *Event) Sign(privKey *ecdsa.PrivateKey) error {
	signBytes, err := e.Body.Hash()
	if err != nil {
		return err
	}

	R, S, err := keys.Sign(privKey, signBytes)
	if err != nil {
		return err
	}

	e.Signature = keys.EncodeSignature(R, S)

	return err
}

// Verify verifies the Event's signature against the creator's public key.
func (e *Event) Verify() (bool, error) {
	pubKey := keys.ToPublicKey(e.Body.Creator)

	signBytes, err := e.Body.Hash()
	if err != nil {
		return false, err
	}

	r, s, err := keys.DecodeSignature(e.Signature)
	if err != nil {
		return false, err
	}

	return keys.Verify(pubKey, signBytes, r, s), nil
}

// Hash returns the SHA256 hash of the Event's body.
func (e *Event) Hash() ([]byte, error) {
	if len(e.hash) == 0 {
		hash, err := e.Body.Hash()
		if err != nil {
			return nil, err
		}
		e.hash = hash
	}

	return e.hash, nil
}

// Hex returns the hex string representation of the Event's hash. This is the
// event's identity throughout the engine.
func (e *Event) Hex() string {
	if e.hex == "" {
		hash, _ := e.Hash()
		e.hex = common.EncodeToString(hash)
	}

	return e.hex
}

// SetRound caches the Event's round number.
func (e *Event) SetRound(r int) {
	if e.round == nil {
		e.round = new(int)
	}
	*e.round = r
}

// GetRound returns the cached round number, or nil if not yet assigned.
func (e *Event) GetRound() *int {
	return e.round
}

// SetWitness caches the Event's witness flag.
func (e *Event) SetWitness(w bool) {
	if e.witness == nil {
		e.witness = new(bool)
	}
	*e.witness = w
}

// GetWitness returns the cached witness flag, or nil if not yet assigned.
func (e *Event) GetWitness() *bool {
	return e.witness
}

// SetRoundReceived caches the round in which the Event was received.
func (e *Event) SetRoundReceived(rr int) {
	if e.roundReceived == nil {
		e.roundReceived = new(int)
	}
	*e.roundReceived = rr
}

// GetRoundReceived returns the cached round-received, or nil.
func (e *Event) GetRoundReceived() *int {
	return e.roundReceived
}

// SetConsensusTimestamp caches the Event's consensus timestamp.
func (e *Event) SetConsensusTimestamp(t time.Time) {
	e.consensusTimestamp = t
}

// ConsensusTimestamp returns the cached consensus timestamp. It is only
// meaningful once the Event's round-received is set.
func (e *Event) ConsensusTimestamp() time.Time {
	return e.consensusTimestamp
}

// SetWireInfo sets the private routing fields used by the wire encoding.
func (e *Event) SetWireInfo(selfParentIndex int,
	otherParentCreatorID uint32,
	otherParentIndex int,
	creatorID uint32) {
	e.Body.selfParentIndex = selfParentIndex
	e.Body.otherParentCreatorID = otherParentCreatorID
	e.Body.otherParentIndex = otherParentIndex
	e.Body.creatorID = creatorID
}

// ToWire converts an Event to its compact WireEvent representation.
func (e *Event) ToWire() WireEvent {
	return WireEvent{
		Body: WireBody{
			Transactions:         e.Body.Transactions,
			SelfParentIndex:      e.Body.selfParentIndex,
			OtherParentCreatorID: e.Body.otherParentCreatorID,
			OtherParentIndex:     e.Body.otherParentIndex,
			CreatorID:            e.Body.creatorID,
			Index:                e.Body.Index,
			Timestamp:            e.Body.Timestamp,
		},
		Signature: e.Signature,
	}
}

/*******************************************************************************
DB encoding
*******************************************************************************/

type eventWrapper struct {
	Body                 EventBody
	Signature            string
	CreatorID            uint32
	OtherParentCreatorID uint32
	SelfParentIndex      int
	OtherParentIndex     int
	TopologicalIndex     int
	Round                *int
	Witness              *bool
	RoundReceived        *int
	ConsensusTimestamp   time.Time
	LastAncestors        CoordinatesMap
	FirstDescendants     CoordinatesMap
}

// MarshalDB encodes the Event together with its derived state. The default
// encoding would lose the private fields, and losing them would force a full
// recomputation from genesis after a restart.
func (e *Event) MarshalDB() ([]byte, error) {
	wrapper := eventWrapper{
		Body:                 e.Body,
		Signature:            e.Signature,
		CreatorID:            e.Body.creatorID,
		OtherParentCreatorID: e.Body.otherParentCreatorID,
		SelfParentIndex:      e.Body.selfParentIndex,
		OtherParentIndex:     e.Body.otherParentIndex,
		TopologicalIndex:     e.topologicalIndex,
		Round:                e.round,
		Witness:              e.witness,
		RoundReceived:        e.roundReceived,
		ConsensusTimestamp:   e.consensusTimestamp,
		LastAncestors:        e.lastAncestors,
		FirstDescendants:     e.firstDescendants,
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)
	if err := enc.Encode(wrapper); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// UnmarshalDB decodes an Event with its derived state, as produced by
// MarshalDB.
func (e *Event) UnmarshalDB(data []byte) error {
	var wrapper eventWrapper

	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)
	if err := dec.Decode(&wrapper); err != nil {
		return err
	}

	e.Body = wrapper.Body
	e.Body.creatorID = wrapper.CreatorID
	e.Body.otherParentCreatorID = wrapper.OtherParentCreatorID
	e.Body.selfParentIndex = wrapper.SelfParentIndex
	e.Body.otherParentIndex = wrapper.OtherParentIndex
	e.Signature = wrapper.Signature
	e.topologicalIndex = wrapper.TopologicalIndex
	e.round = wrapper.Round
	e.witness = wrapper.Witness
	e.roundReceived = wrapper.RoundReceived
	e.consensusTimestamp = wrapper.ConsensusTimestamp
	e.lastAncestors = wrapper.LastAncestors
	e.firstDescendants = wrapper.FirstDescendants

	return nil
}

/*******************************************************************************
WireEvent
*******************************************************************************/

// WireBody is the compact form of an EventBody used in gossip payloads.
// Parent hashes and the creator key are replaced with integer IDs and
// indexes; the receiver resolves them against its own store.
type WireBody struct {
	Transactions [][]byte

	CreatorID            uint32
	OtherParentCreatorID uint32
	Index                int
	SelfParentIndex      int
	OtherParentIndex     int
	Timestamp            time.Time
}

// WireEvent is the gossip representation of an Event.
type WireEvent struct {
	Body      WireBody
	Signature string
}

/*******************************************************************************
Sorting

Events are sorted two ways. Topological order is the insertion order of the
local node; it respects parent-before-child but differs between nodes, so it
is only used for gossip payloads and local replay. Consensus order is
(round received, consensus timestamp, hash); it is the total order that all
honest nodes converge on.
*******************************************************************************/

// ByTopologicalOrder implements sort.Interface for []*Event based on the
// topologicalIndex field. THIS IS A PARTIAL ORDER.
type ByTopologicalOrder []*Event

func (a ByTopologicalOrder) Len() int      { return len(a) }
func (a ByTopologicalOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByTopologicalOrder) Less(i, j int) bool {
	return a[i].topologicalIndex < a[j].topologicalIndex
}

// ByConsensusOrder implements sort.Interface for []*Event based on round
// received, then consensus timestamp, with ties broken by ascending event
// hash. THIS IS A TOTAL ORDER.
type ByConsensusOrder []*Event

func (a ByConsensusOrder) Len() int      { return len(a) }
func (a ByConsensusOrder) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByConsensusOrder) Less(i, j int) bool {
	irr, jrr := -1, -1
	if a[i].roundReceived != nil {
		irr = *a[i].roundReceived
	}
	if a[j].roundReceived != nil {
		jrr = *a[j].roundReceived
	}
	if irr != jrr {
		return irr < jrr
	}

	if !a[i].consensusTimestamp.Equal(a[j].consensusTimestamp) {
		return a[i].consensusTimestamp.Before(a[j].consensusTimestamp)
	}

	hi, _ := a[i].Hash()
	hj, _ := a[j].Hash()
	return bytes.Compare(hi, hj) < 0
}

// fmt helper used in errors throughout the package.
func eventRef(hash string) string {
	if len(hash) > 10 {
		return fmt.Sprintf("%s..", hash[:10])
	}
	return hash
}
