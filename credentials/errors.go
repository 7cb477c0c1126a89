package credentials

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Storage when the key holds no value.
var ErrNotFound = errors.New("credential key not found")

// StorageError reports a failed read, write or delete on the underlying
// storage. The Store logs these and never returns them to its callers.
type StorageError struct {
	Op  string // "get", "set" or "remove"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("credential storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// MalformedRecordError reports a stored value that does not match the
// record schema.
type MalformedRecordError struct {
	Key string
	Err error
}

func (e *MalformedRecordError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("malformed credential record: %v", e.Err)
	}
	return fmt.Sprintf("malformed credential record %q: %v", e.Key, e.Err)
}

func (e *MalformedRecordError) Unwrap() error { return e.Err }
