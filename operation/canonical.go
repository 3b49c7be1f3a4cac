package operation

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// CanonicalJSON renders v (anything JSON-marshalable, typically a
// map[string]any) with its object keys sorted lexicographically at every
// level. encoding/json already sorts map[string]any keys this way when
// marshaling, so this is a thin documented wrapper rather than a bespoke
// writer — grounded on the same marshal-and-trust-the-encoder technique used
// elsewhere in the pack for canonical JSON.
//
// This exists only for the tombstone fallback path historically used
// against some PLC directories (spec.md §9 "Canonical JSON helper"); it
// must never be used for the DAG-CBOR signing path in EncodeForSigning.
// deactivate signs tombstones over DAG-CBOR like any other operation, so
// nothing in this package calls CanonicalJSON on the default path — it is
// kept here, tested, and available for a directory known to require it.
func CanonicalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}
