package node

import (
	"crypto/ecdsa"

	"github.com/Fantom-foundation/go-lachesis/src/crypto/keys"
)

// Validator is the local node's identity: a signing key plus the derived
// public identifiers used throughout the system.
type Validator struct {
	Key     *ecdsa.PrivateKey
	Moniker string

	id       uint32
	pubBytes []byte
	pubHex   string
}

// NewValidator creates a Validator from a signing key and a moniker.
func NewValidator(key *ecdsa.PrivateKey, moniker string) *Validator {
	pubBytes := keys.FromPublicKey(&key.PublicKey)
	return &Validator{
		Key:      key,
		Moniker:  moniker,
		id:       keys.PublicKeyID(pubBytes),
		pubBytes: pubBytes,
		pubHex:   keys.PublicKeyHex(&key.PublicKey),
	}
}

// ID returns the validator's numeric ID, a hash of its public key.
func (v *Validator) ID() uint32 {
	return v.id
}

// PublicKeyBytes returns the validator's public key as bytes.
func (v *Validator) PublicKeyBytes() []byte {
	return v.pubBytes
}

// PublicKeyHex returns the validator's public key as a hex string.
func (v *Validator) PublicKeyHex() string {
	return v.pubHex
}
