package key

import "fmt"

// UnsupportedCurveError is returned when a multibase string's multicodec tag
// does not match any of the three supported curves.
type UnsupportedCurveError struct {
	Tag [2]byte
}

func (e *UnsupportedCurveError) Error() string {
	return fmt.Sprintf("key: unsupported multicodec tag %x%x", e.Tag[0], e.Tag[1])
}

// MalformedMultibaseError is returned when a multibase string is missing its
// prefix character or decodes to bytes that are not key-shaped.
type MalformedMultibaseError struct {
	Reason string
}

func (e *MalformedMultibaseError) Error() string {
	return "key: malformed multibase string: " + e.Reason
}

// NotAPrivateKeyError is returned when a private-key operation is attempted
// on a Key that holds only public material.
type NotAPrivateKeyError struct {
	Curve Curve
}

func (e *NotAPrivateKeyError) Error() string {
	return fmt.Sprintf("key: %s key has no private component", e.Curve)
}
