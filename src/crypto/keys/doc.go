// Package keys implements the public key cryptography used throughout
// go-lachesis.
//
// Every participant owns an ECDSA key-pair on the secp256k1 curve. The
// private key signs events; the public key identifies the creator and lets
// other participants verify signatures. The engine requires nothing more
// from the signature scheme than sign and verify.
package keys
