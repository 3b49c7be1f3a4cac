package directory

import "fmt"

// Error is returned for any 4xx/5xx response from a PLC directory, or for a
// transport-level failure (network timeout, DNS, malformed JSON response).
// Message is drawn from the response body's "error" field, then "message",
// then the raw body (spec.md §6).
type Error struct {
	Status  int
	Message string
	Inner   error
}

func (e *Error) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("directory: %d: %s: %v", e.Status, e.Message, e.Inner)
	}
	return fmt.Sprintf("directory: %d: %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Inner }
