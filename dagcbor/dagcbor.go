// Package dagcbor emits canonical, deterministic CBOR for did:plc operation
// payloads: definite-length items, shortest-form integers, and map keys
// sorted bytewise over their encoded form. For text keys the encoded form
// starts with a length header, so keys sort length first, then bytewise
// over their UTF-8 bytes (spec.md §4.3): a genesis operation's keys come
// out as prev, type, services, alsoKnownAs, rotationKeys,
// verificationMethods.
//
// This mirrors the teacher's own internal/cbor/dagcbor.go in spirit (a
// thin, total Marshal/Encode pair over a generic payload) but targets a
// fixed-shape operation map instead of generic IPLD schema inference: the
// fxamacker/cbor encoder's SortBytewiseLexical mode already implements the
// exact canonical ordering described above, recursively, for nested maps.
package dagcbor

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
)

var encMode cbor.EncMode

func init() {
	opts := cbor.EncOptions{
		Sort:          cbor.SortBytewiseLexical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsEmpty,
	}
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = mode
}

// Marshal encodes v as canonical DAG-CBOR. v is expected to be a
// map[string]any (or a value that serializes to one) built from an
// operation's fields; the encoder is total over that shape — see
// spec.md §4.3 "Failure".
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}
