package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/Fantom-foundation/go-lachesis/src/common"
)

// ToPublicKey unmarshals the uncompressed form of a point on the secp256k1
// curve, as produced by FromPublicKey.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey marshals a public key to the uncompressed point form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyID derives a compact uint32 representation of a public key. It is
// used in the wire encoding of events, where it replaces the 65-byte
// uncompressed key.
func PublicKeyID(pubBytes []byte) uint32 {
	return common.Hash32(pubBytes)
}

// PublicKeyHex returns the hexadecimal representation of the uncompressed
// form of the public key.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}
