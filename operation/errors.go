package operation

import "fmt"

// Reason names the sub-reason for an InvalidOperationError.
type Reason string

const (
	EmptyType                Reason = "EmptyType"
	InvalidType              Reason = "InvalidType"
	EmptyRotationKeys        Reason = "EmptyRotationKeys"
	EmptyVerificationMethods Reason = "EmptyVerificationMethods"
	InvalidKeyMaterial       Reason = "InvalidKeyMaterial"
)

// InvalidOperationError is returned by Validate when an operation's fields
// don't satisfy spec.md §4.4's invariants.
type InvalidOperationError struct {
	Reason Reason
}

func (e *InvalidOperationError) Error() string {
	return fmt.Sprintf("operation: invalid operation: %s", e.Reason)
}
