package common

import "fmt"

// StoreErrType enumerates the causes of store access failures.
type StoreErrType uint32

const (
	// KeyNotFound is returned when the requested key has no value.
	KeyNotFound StoreErrType = iota
	// TooLate is returned when the requested index was evicted from a
	// rolling window.
	TooLate
	// SkippedIndex is returned when an insert would leave a gap in a
	// creator's event sequence.
	SkippedIndex
	// UnknownParticipant is returned when the requested creator is not part
	// of the known peer-set.
	UnknownParticipant
	// Empty is returned when a creator has no recorded events.
	Empty
	// KeyAlreadyExists is returned on inserts into an occupied slot.
	KeyAlreadyExists
	// Corrupted is returned when persisted state fails an integrity check.
	// Unlike every other StoreErrType it is fatal to the process.
	Corrupted
)

// StoreErr is the error type returned by Store implementations.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr creates a StoreErr for a given data-type, cause, and key.
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Error implements the error interface.
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case TooLate:
		m = "Too Late"
	case SkippedIndex:
		m = "Skipped Index"
	case UnknownParticipant:
		m = "Unknown Participant"
	case Empty:
		m = "Empty"
	case KeyAlreadyExists:
		m = "Key Already Exists"
	case Corrupted:
		m = "Corrupted"
	}

	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// IsStore checks that an error is a StoreErr with the given cause.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := err.(StoreErr)
	return ok && storeErr.errType == t
}
