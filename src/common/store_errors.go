package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// StoreErrType classifies the errors returned by the maps and stores of the
// event lifecycle.
type StoreErrType uint32

const (
	// KeyNotFound is returned for an unknown hash, round or snapshot.
	KeyNotFound StoreErrType = iota
	// TooLate is returned when a key falls below the floor of a sliding window.
	TooLate
	// UnknownParticipant is returned for a creator outside the address book.
	UnknownParticipant
	// KeyAlreadyExists is returned when an event is inserted twice.
	KeyAlreadyExists
)

func (t StoreErrType) String() string {
	switch t {
	case KeyNotFound:
		return "Not Found"
	case TooLate:
		return "Too Late"
	case UnknownParticipant:
		return "Unknown Participant"
	case KeyAlreadyExists:
		return "Key Already Exists"
	default:
		return fmt.Sprintf("StoreErrType(%d)", uint32(t))
	}
}

// StoreErr is a typed lookup or insertion error.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Type returns the classification of the error.
func (e StoreErr) Type() StoreErrType {
	return e.errType
}

// Key returns the key the error is about.
func (e StoreErr) Key() string {
	return e.key
}

// Error ...
func (e StoreErr) Error() string {
	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, e.errType)
}

// IsStore checks that the cause of an error is a StoreErr whose code matches
// the provided StoreErr code. Errors wrapped with pkg/errors are unwrapped.
func IsStore(err error, t StoreErrType) bool {
	storeErr, ok := errors.Cause(err).(StoreErr)
	return ok && storeErr.errType == t
}
