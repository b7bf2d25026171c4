package common

import (
	"encoding/hex"
	"fmt"
	"hash/fnv"
)

// EncodeToString returns the uppercase hex representation of hexBytes with a
// 0X prefix. Event hashes and public keys are passed around in this format.
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

// DecodeFromString converts a hex string with a 0X prefix back to bytes.
func DecodeFromString(hexString string) ([]byte, error) {
	return hex.DecodeString(hexString[2:])
}

// Hash32 returns a 32-bit FNV-1a hash of data. It is used to derive compact
// peer IDs from public keys for the wire format.
func Hash32(data []byte) uint32 {
	h := fnv.New32a()
	h.Write(data)
	return h.Sum32()
}
