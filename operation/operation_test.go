package operation

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/matryer/is"

	"github.com/atplc/plc/key"
)

func genesisFixture(is *is.I) (*Unsigned, *key.Key, *key.Key, string) {
	rotation, err := key.Generate(key.Secp256k1)
	is.NoErr(err)
	verification, err := key.Generate(key.Ed25519)
	is.NoErr(err)

	sum := sha256.Sum256([]byte(verification.EncodePublic()))
	methodID := "fair_" + hex.EncodeToString(sum[:])[:6]

	op := NewGenesis(
		[]*key.Key{rotation},
		map[string]*key.Key{methodID: verification},
		[]string{"at://my-plugin"},
		map[string]Service{},
	)
	return op, rotation, verification, methodID
}

func TestValidateRejectsEmptyType(t *testing.T) {
	is := is.New(t)
	op := &Unsigned{}
	err := op.Validate()
	is.True(err != nil)
	var ioe *InvalidOperationError
	is.True(errors.As(err, &ioe))
	is.Equal(ioe.Reason, EmptyType)
}

func TestValidateRejectsEmptyRotationKeys(t *testing.T) {
	is := is.New(t)
	v, err := key.Generate(key.Ed25519)
	is.NoErr(err)
	op := NewGenesis(nil, map[string]*key.Key{"atproto": v}, nil, nil)
	err = op.Validate()
	is.True(err != nil)
	var ioe *InvalidOperationError
	is.True(errors.As(err, &ioe))
	is.Equal(ioe.Reason, EmptyRotationKeys)
}

func TestValidateRejectsEmptyVerificationMethods(t *testing.T) {
	is := is.New(t)
	r, err := key.Generate(key.Secp256k1)
	is.NoErr(err)
	op := NewGenesis([]*key.Key{r}, nil, nil, nil)
	err = op.Validate()
	is.True(err != nil)
	var ioe *InvalidOperationError
	is.True(errors.As(err, &ioe))
	is.Equal(ioe.Reason, EmptyVerificationMethods)
}

func TestSoftDeactivationBypassesValidate(t *testing.T) {
	is := is.New(t)
	op := NewSoftDeactivation("bafyreiexample")
	is.Equal(len(op.RotationKeys), 0)
	is.Equal(len(op.VerificationMethods), 0)
	is.Equal(*op.Prev, "bafyreiexample")

	_, err := op.EncodeForSigning()
	is.NoErr(err) // structuralCheck passes on empty-but-non-nil slices/maps
}

// A genesis operation's canonical CBOR does not depend on the order in which
// its fields were set.
func TestEncodeForSigningIsCanonical(t *testing.T) {
	is := is.New(t)
	op, _, _, _ := genesisFixture(is)

	encA, err := op.EncodeForSigning()
	is.NoErr(err)

	reordered := &Unsigned{
		Type:                op.Type,
		Services:            op.Services,
		AlsoKnownAs:         op.AlsoKnownAs,
		Prev:                op.Prev,
		RotationKeys:        op.RotationKeys,
		VerificationMethods: op.VerificationMethods,
	}
	encB, err := reordered.EncodeForSigning()
	is.NoErr(err)
	is.Equal(encA, encB) // property 5: construction order does not affect encoding
}

func TestSignatureLocatedness(t *testing.T) {
	is := is.New(t)
	op, rotation, _, _ := genesisFixture(is)

	unsignedPayload, err := op.EncodeForSigning()
	is.NoErr(err)
	is.True(!strings.Contains(string(unsignedPayload), "sig")) // absent pre-sign, property 9

	signed, err := op.Sign(rotation)
	is.NoErr(err)
	is.True(signed.Sig != "")

	wire := signed.ToWire()
	is.Equal(wire.Sig, signed.Sig) // same bytes post-sign
}

func TestEncodeFullIdempotent(t *testing.T) {
	is := is.New(t)
	op, rotation, _, _ := genesisFixture(is)
	signed, err := op.Sign(rotation)
	is.NoErr(err)

	first, err := signed.EncodeFull()
	is.NoErr(err)
	second, err := signed.EncodeFull()
	is.NoErr(err)
	is.Equal(first, second) // property 12
}

// S2.
func TestToWireShape(t *testing.T) {
	is := is.New(t)
	op, _, _, methodID := genesisFixture(is)
	wire := op.ToWire()

	is.Equal(wire.AlsoKnownAs, []string{"at://my-plugin"})
	is.Equal(len(wire.Services), 0)
	is.True(wire.Prev == nil)
	is.True(strings.HasPrefix(wire.RotationKeys[0], "did:key:z"))
	is.Equal(len(wire.VerificationMethods), 1)
	is.True(strings.HasPrefix(methodID, "fair_"))
	is.True(strings.HasPrefix(wire.VerificationMethods[methodID], "did:key:z"))
	is.Equal(wire.Sig, "") // unsigned: sig entirely absent from JSON via omitempty
}

func TestParseDIDKeyRoundTrip(t *testing.T) {
	is := is.New(t)
	k, err := key.Generate(key.P256)
	is.NoErr(err)
	parsed, err := ParseDIDKey(didKeyOf(k))
	is.NoErr(err)
	is.Equal(parsed.EncodePublic(), k.EncodePublic())
}

// S6.
func TestCanonicalJSONSortsKeys(t *testing.T) {
	is := is.New(t)
	b, err := CanonicalJSON(map[string]any{"z": 1, "a": 2, "m": 3})
	is.NoErr(err)
	is.Equal(string(b), `{"a":2,"m":3,"z":1}`)
}

// A tombstone signs and submits the minimal map spec.md §4.6 names: only
// type and prev go into the signed bytes, and only type, prev, and sig go
// onto the wire — never the plc_operation collections this struct also
// holds.
func TestTombstoneEncodingIsMinimal(t *testing.T) {
	is := is.New(t)
	rotation, err := key.Generate(key.Secp256k1)
	is.NoErr(err)
	prev := "bafyreiexample"

	tombstone := &Unsigned{Type: TypeTombstone, Prev: &prev}

	payload, err := tombstone.EncodeForSigning()
	is.NoErr(err)
	decoded := decodeCBORMap(is, payload)
	is.Equal(len(decoded), 2)
	is.Equal(decoded["type"], TypeTombstone)
	is.Equal(decoded["prev"], prev)

	signed, err := tombstone.Sign(rotation)
	is.NoErr(err)

	full, err := signed.EncodeFull()
	is.NoErr(err)
	decodedFull := decodeCBORMap(is, full)
	is.Equal(len(decodedFull), 3)
	is.Equal(decodedFull["sig"], signed.Sig)

	wire, err := json.Marshal(signed.ToWire())
	is.NoErr(err)
	var wireMap map[string]any
	is.NoErr(json.Unmarshal(wire, &wireMap))
	is.Equal(len(wireMap), 3)
	is.Equal(wireMap["type"], TypeTombstone)
	is.Equal(wireMap["prev"], prev)
	is.Equal(wireMap["sig"], signed.Sig)
}

func decodeCBORMap(is *is.I, b []byte) map[string]any {
	var m map[string]any
	is.NoErr(cbor.Unmarshal(b, &m))
	return m
}
