// Package operation models a did:plc operation: its fields, validation,
// canonical encoding, signing, and the JSON shape submitted to a directory.
package operation

import (
	"encoding/base64"
	"encoding/hex"
	"sort"

	"github.com/pkg/errors"

	"github.com/atplc/plc/dagcbor"
	"github.com/atplc/plc/key"
)

const (
	TypeOperation = "plc_operation"
	TypeTombstone = "plc_tombstone"

	didKeyPrefix = "did:key:"
)

// Service is a single entry of an operation's services map.
type Service struct {
	Type     string `json:"type"`
	Endpoint string `json:"endpoint"`
}

// Unsigned holds the fields of a not-yet-signed did:plc operation. Fields
// are mutable up until Sign is called; after that, callers should treat the
// resulting Signed value as immutable (spec.md §3 "Operation" lifecycle).
type Unsigned struct {
	Type                string
	RotationKeys        []*key.Key
	VerificationMethods map[string]*key.Key
	AlsoKnownAs         []string
	Services            map[string]Service
	Prev                *string // CID string of the previous operation; nil only for genesis
}

// Signed is an Unsigned operation plus the signature produced over its
// canonical encoding. Only a Signed operation may be handed to package
// didplc for CID/DID derivation (spec.md §9, "SignedOperation vs Operation").
type Signed struct {
	Unsigned
	Sig string // base64url, no padding
}

// NewGenesis builds the unsigned genesis operation for manager.Create: a
// plc_operation with prev == nil.
func NewGenesis(rotationKeys []*key.Key, verificationMethods map[string]*key.Key, alsoKnownAs []string, services map[string]Service) *Unsigned {
	return &Unsigned{
		Type:                TypeOperation,
		RotationKeys:        rotationKeys,
		VerificationMethods: verificationMethods,
		AlsoKnownAs:         alsoKnownAs,
		Services:            services,
		Prev:                nil,
	}
}

// NewSoftDeactivation builds the soft-deactivation sub-case named in
// spec.md §4.4/§4.6: a plc_operation with every key/method/service list
// emptied. Generic Validate forbids this shape; it is only ever constructed
// through this callsite, which knows it is deactivating.
func NewSoftDeactivation(prev string) *Unsigned {
	return &Unsigned{
		Type:                TypeOperation,
		RotationKeys:        []*key.Key{},
		VerificationMethods: map[string]*key.Key{},
		AlsoKnownAs:         []string{},
		Services:            map[string]Service{},
		Prev:                &prev,
	}
}

// Validate enforces spec.md §4.4's invariants. It does not special-case
// soft-deactivation; callers that build one must bypass Validate (see
// NewSoftDeactivation).
func (op *Unsigned) Validate() error {
	if op.Type == "" {
		return errors.WithStack(&InvalidOperationError{Reason: EmptyType})
	}
	if op.Type != TypeOperation && op.Type != TypeTombstone {
		return errors.WithStack(&InvalidOperationError{Reason: InvalidType})
	}
	if op.Type == TypeOperation {
		if len(op.RotationKeys) == 0 {
			return errors.WithStack(&InvalidOperationError{Reason: EmptyRotationKeys})
		}
		if len(op.VerificationMethods) == 0 {
			return errors.WithStack(&InvalidOperationError{Reason: EmptyVerificationMethods})
		}
	}
	for _, k := range op.RotationKeys {
		if k == nil {
			return errors.WithStack(&InvalidOperationError{Reason: InvalidKeyMaterial})
		}
	}
	for _, k := range op.VerificationMethods {
		if k == nil {
			return errors.WithStack(&InvalidOperationError{Reason: InvalidKeyMaterial})
		}
	}
	return nil
}

func didKeyOf(k *key.Key) string {
	return didKeyPrefix + k.EncodePublic()
}

// sortedKeys returns m's keys sorted for deterministic iteration; map
// iteration order in Go is randomized, but the encoder re-sorts regardless,
// so this only matters for building intermediate slices deterministically.
func sortedKeys[V any](m map[string]V) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

// fieldMap builds the map that gets DAG-CBOR encoded. A plc_tombstone
// carries only type and prev (spec.md §4.6: "build {type: plc_tombstone,
// prev: last_cid, sig}, sign directly over the minimal map") — the
// rotationKeys/verificationMethods/alsoKnownAs/services fields below exist
// only for plc_operation and must never appear in a tombstone's signed
// bytes or wire body.
func (op *Unsigned) fieldMap() map[string]any {
	if op.Type == TypeTombstone {
		var prev any
		if op.Prev != nil {
			prev = *op.Prev
		}
		return map[string]any{
			"type": op.Type,
			"prev": prev,
		}
	}
	rotationKeys := make([]any, len(op.RotationKeys))
	for i, k := range op.RotationKeys {
		rotationKeys[i] = didKeyOf(k)
	}
	verificationMethods := make(map[string]any, len(op.VerificationMethods))
	for _, id := range sortedKeys(op.VerificationMethods) {
		verificationMethods[id] = didKeyOf(op.VerificationMethods[id])
	}
	alsoKnownAs := make([]any, len(op.AlsoKnownAs))
	for i, a := range op.AlsoKnownAs {
		alsoKnownAs[i] = a
	}
	services := make(map[string]any, len(op.Services))
	for _, id := range sortedKeys(op.Services) {
		svc := op.Services[id]
		services[id] = map[string]any{
			"type":     svc.Type,
			"endpoint": svc.Endpoint,
		}
	}
	var prev any
	if op.Prev != nil {
		prev = *op.Prev
	}
	return map[string]any{
		"type":                op.Type,
		"rotationKeys":        rotationKeys,
		"verificationMethods": verificationMethods,
		"alsoKnownAs":         alsoKnownAs,
		"services":            services,
		"prev":                prev,
	}
}

// EncodeForSigning encodes op's canonical DAG-CBOR form with no sig field —
// this is the exact byte sequence that gets hashed and signed.
func (op *Unsigned) EncodeForSigning() ([]byte, error) {
	if err := op.structuralCheck(); err != nil {
		return nil, err
	}
	return dagcbor.Marshal(op.fieldMap())
}

// structuralCheck guards against nil key material inside encode without
// imposing the "must be non-empty" rules Validate enforces, so that
// soft-deactivation (which is never run through Validate) still fails
// loudly on genuinely malformed input rather than panicking.
func (op *Unsigned) structuralCheck() error {
	for _, k := range op.RotationKeys {
		if k == nil {
			return errors.WithStack(&InvalidOperationError{Reason: InvalidKeyMaterial})
		}
	}
	for _, k := range op.VerificationMethods {
		if k == nil {
			return errors.WithStack(&InvalidOperationError{Reason: InvalidKeyMaterial})
		}
	}
	return nil
}

// EncodeFull encodes the operation including its sig field — the byte
// sequence CID/DID derivation hashes.
func (op *Signed) EncodeFull() ([]byte, error) {
	if err := op.structuralCheck(); err != nil {
		return nil, err
	}
	m := op.fieldMap()
	m["sig"] = op.Sig
	return dagcbor.Marshal(m)
}

// Sign signs op with rotationKey — the digest input is
// hex(SHA256(EncodeForSigning())) — and returns the resulting Signed
// operation with sig set to the base64url (no padding) encoding of the raw
// signature bytes.
func (op *Unsigned) Sign(rotationKey *key.Key) (*Signed, error) {
	payload, err := op.EncodeForSigning()
	if err != nil {
		return nil, err
	}
	sigHex, err := rotationKey.Sign(key.Digest(payload))
	if err != nil {
		return nil, err
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return nil, errors.Wrap(err, "operation: decode signature hex")
	}
	return &Signed{
		Unsigned: *op,
		Sig:      base64.RawURLEncoding.EncodeToString(sigBytes),
	}, nil
}
