// Package didplc derives the two identifiers a did:plc operation chain is
// built around: the DID itself (from a signed genesis operation) and the
// Content Identifier of any signed operation (used as the next operation's
// prev). Both are plain functions of an operation's canonical encoding —
// this package performs no I/O and holds no state.
package didplc

import (
	"crypto/sha256"
	"encoding/base32"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/pkg/errors"
)

// encodeFuller is satisfied by *operation.Signed; declared locally to avoid
// an import cycle (operation never needs to know about CIDs or DIDs).
type encodeFuller interface {
	EncodeFull() ([]byte, error)
}

// didLength is the protocol-defined truncation named in spec.md §4.5 and
// §9 — it is not a safety margin and must never be extended.
const didLength = 24

// CID computes the CIDv1(dag-cbor, sha256) of a signed operation's full
// encoding (spec.md §4.5): 0x01 0x71 0x12 0x20 || sha256(encode_full(op)),
// multibase-encoded as base32 lowercase.
func CID(signed encodeFuller) (string, error) {
	payload, err := signed.EncodeFull()
	if err != nil {
		return "", err
	}
	mh, err := multihash.Sum(payload, multihash.SHA2_256, -1)
	if err != nil {
		return "", errors.WithStack(err)
	}
	c := cid.NewCidV1(cid.DagCBOR, mh)
	return c.String(), nil
}

// DeriveDID computes the did:plc identifier of a signed genesis operation
// (spec.md §4.5): base32-lowercase(sha256(encode_full(signedGenesis)))[:24],
// prefixed with "did:plc:". Unlike CID this encodes the raw digest directly,
// not a multihash-wrapped one — the two derivations share an input digest
// but diverge immediately after.
func DeriveDID(signedGenesis encodeFuller) (string, error) {
	payload, err := signedGenesis.EncodeFull()
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(payload)
	enc := strings.ToLower(base32.StdEncoding.EncodeToString(digest[:]))
	return "did:plc:" + enc[:didLength], nil
}
