package operation

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/atplc/plc/key"
)

// Wire is the JSON submission payload shape spec.md §4.4/§6 names exactly:
// type, rotationKeys, verificationMethods, alsoKnownAs, services, prev, sig.
// services is always rendered as an object, even when empty; sig is omitted
// entirely on unsigned values.
type Wire struct {
	Type                string              `json:"type"`
	RotationKeys        []string            `json:"rotationKeys"`
	VerificationMethods map[string]string   `json:"verificationMethods"`
	AlsoKnownAs         []string            `json:"alsoKnownAs"`
	Services            map[string]Service  `json:"services"`
	Prev                *string             `json:"prev"`
	Sig                 string              `json:"sig,omitempty"`
}

func (op *Unsigned) toWire() Wire {
	if op.Type == TypeTombstone {
		return Wire{Type: op.Type, Prev: op.Prev}
	}
	rotationKeys := make([]string, len(op.RotationKeys))
	for i, k := range op.RotationKeys {
		rotationKeys[i] = didKeyOf(k)
	}
	verificationMethods := make(map[string]string, len(op.VerificationMethods))
	for id, k := range op.VerificationMethods {
		verificationMethods[id] = didKeyOf(k)
	}
	services := op.Services
	if services == nil {
		services = map[string]Service{}
	}
	alsoKnownAs := op.AlsoKnownAs
	if alsoKnownAs == nil {
		alsoKnownAs = []string{}
	}
	return Wire{
		Type:                op.Type,
		RotationKeys:        rotationKeys,
		VerificationMethods: verificationMethods,
		AlsoKnownAs:         alsoKnownAs,
		Services:            services,
		Prev:                op.Prev,
	}
}

// ToWire renders an unsigned operation's submission payload. sig is absent
// (spec.md §8 property 9).
func (op *Unsigned) ToWire() Wire {
	return op.toWire()
}

// ToWire renders a signed operation's submission payload, with sig present
// and byte-identical to what Sign produced.
func (op *Signed) ToWire() Wire {
	w := op.Unsigned.toWire()
	w.Sig = op.Sig
	return w
}

// MarshalJSON encodes a Wire value with forward slashes unescaped, as
// spec.md §6 requires for the directory POST body. A plc_tombstone renders
// only type, prev, and sig — the rotationKeys/verificationMethods/
// alsoKnownAs/services fields this struct also carries for plc_operation
// values are never part of a tombstone's wire body (spec.md §4.6).
func (w Wire) MarshalJSON() ([]byte, error) {
	if w.Type == TypeTombstone {
		type tombstoneWire struct {
			Type string  `json:"type"`
			Prev *string `json:"prev"`
			Sig  string  `json:"sig,omitempty"`
		}
		return marshalCompactNoEscape(tombstoneWire{Type: w.Type, Prev: w.Prev, Sig: w.Sig})
	}
	type alias Wire
	return marshalCompactNoEscape(alias(w))
}

func marshalCompactNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.WithStack(err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseDIDKey parses a "did:key:<multibase>" string into a Key. It is the
// inverse of didKeyOf, used when reconstructing rotation keys and
// verification methods from a directory's last-operation record (spec.md
// §4.6 update).
func ParseDIDKey(didKey string) (*key.Key, error) {
	mb, ok := strings.CutPrefix(didKey, didKeyPrefix)
	if !ok {
		return nil, errors.Errorf("operation: not a did:key string: %q", didKey)
	}
	return key.FromPublic(mb)
}
