package manager

import "fmt"

// MissingLocalKeyError is returned when a manager operation needs a key the
// local key store does not hold for the DID in question.
type MissingLocalKeyError struct {
	DID string
}

func (e *MissingLocalKeyError) Error() string {
	return fmt.Sprintf("manager: no local key material for %s", e.DID)
}

// MissingRotationKeyError is returned when an operation needs the current
// rotation key and the key store has none — spec.md §4.6 "no network call
// made" for this case.
type MissingRotationKeyError struct {
	DID string
}

func (e *MissingRotationKeyError) Error() string {
	return fmt.Sprintf("manager: no rotation key held locally for %s", e.DID)
}

// UnknownDIDError is returned when an operation is attempted against a DID
// the manager has no record of.
type UnknownDIDError struct {
	DID string
}

func (e *UnknownDIDError) Error() string {
	return fmt.Sprintf("manager: unknown did %s", e.DID)
}
