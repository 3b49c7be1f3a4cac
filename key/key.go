// Package key implements key generation, multibase/multicodec encoding, and
// signing for the three curves a did:plc operation may use: secp256k1,
// NIST P-256, and Ed25519.
package key

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/pkg/errors"
)

// Curve names one of the three supported key types.
type Curve string

const (
	Secp256k1 Curve = "secp256k1"
	P256      Curve = "p256"
	Ed25519   Curve = "ed25519"
)

// Key is a value type over the three supported curves. It holds a public
// component always, and a private component only when the Key was generated
// or decoded from a private multibase string. Keys are immutable once
// constructed.
type Key struct {
	curve   Curve
	private []byte // raw scalar (secp256k1/P-256) or 32-byte seed (Ed25519); nil if public-only
	public  []byte // compressed SEC1 point (33 bytes, EC curves) or raw encoding (32 bytes, Ed25519)
}

// Generate creates a new Key on the given curve using a cryptographically
// strong random source.
func Generate(curve Curve) (*Key, error) {
	switch curve {
	case Secp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return &Key{
			curve:   Secp256k1,
			private: priv.Serialize(),
			public:  priv.PubKey().SerializeCompressed(),
		}, nil
	case P256:
		return generateP256()
	case Ed25519:
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, errors.WithStack(err)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		pub := priv.Public().(ed25519.PublicKey)
		return &Key{curve: Ed25519, private: seed, public: []byte(pub)}, nil
	default:
		return nil, errors.WithStack(&UnsupportedCurveError{})
	}
}

// Curve returns the curve this Key was generated or decoded on.
func (k *Key) Curve() Curve { return k.curve }

// IsPrivate reports whether the Key holds a private component.
func (k *Key) IsPrivate() bool { return k.private != nil }

// PublicBytes returns the raw public key encoding (compressed SEC1 for EC
// curves, raw 32 bytes for Ed25519).
func (k *Key) PublicBytes() []byte {
	b := make([]byte, len(k.public))
	copy(b, k.public)
	return b
}

// EncodePublic returns the multibase/multicodec encoding of the public
// component: "z" + base58btc(tag || public bytes).
func (k *Key) EncodePublic() string {
	return encodeMultibaseKey(k.curve, false, k.public)
}

// EncodePrivate returns the multibase/multicodec encoding of the private
// component. It fails with NotAPrivateKeyError when called on a public-only
// Key.
func (k *Key) EncodePrivate() (string, error) {
	if !k.IsPrivate() {
		return "", errors.WithStack(&NotAPrivateKeyError{Curve: k.curve})
	}
	return encodeMultibaseKey(k.curve, true, k.private), nil
}

// FromPublic decodes a public multibase string into a Key with no private
// component.
func FromPublic(mbstr string) (*Key, error) {
	curve, raw, err := decodeMultibaseKey(mbstr, false, false)
	if err != nil {
		return nil, err
	}
	return &Key{curve: curve, public: raw}, nil
}

// FromPrivate decodes a private multibase string into a Key, deriving the
// public component. Historically mis-encoded stores sometimes carry a
// public-key multicodec tag on what is actually private key material; this
// is accepted (legacy mode) for read compatibility, see spec.md §4.1/§9.
func FromPrivate(mbstr string) (*Key, error) {
	curve, raw, err := decodeMultibaseKey(mbstr, true, true)
	if err != nil {
		return nil, err
	}
	return newFromPrivateRaw(curve, raw)
}

func newFromPrivateRaw(curve Curve, raw []byte) (*Key, error) {
	switch curve {
	case Secp256k1:
		priv := secp256k1.PrivKeyFromBytes(raw)
		return &Key{curve: curve, private: raw, public: priv.PubKey().SerializeCompressed()}, nil
	case P256:
		return p256FromPrivateRaw(raw)
	case Ed25519:
		if len(raw) != ed25519.SeedSize {
			return nil, errors.WithStack(&MalformedMultibaseError{Reason: "ed25519 private key must be a 32-byte seed"})
		}
		priv := ed25519.NewKeyFromSeed(raw)
		pub := priv.Public().(ed25519.PublicKey)
		return &Key{curve: curve, private: raw, public: []byte(pub)}, nil
	default:
		return nil, errors.WithStack(&UnsupportedCurveError{})
	}
}

// Sign signs digestHex — the hex-encoded SHA-256 digest of the payload, not
// the raw payload — and returns the hex-encoded signature in the form the
// curve demands (see spec.md §4.2). Sign fails with NotAPrivateKeyError on a
// public-only Key.
func (k *Key) Sign(digestHex string) (string, error) {
	if !k.IsPrivate() {
		return "", errors.WithStack(&NotAPrivateKeyError{Curve: k.curve})
	}
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return "", errors.Wrap(err, "key: digest is not valid hex")
	}
	var sig []byte
	switch k.curve {
	case Secp256k1:
		sig, err = signSecp256k1(k.private, digest)
	case P256:
		sig, err = signP256(k.private, digest)
	case Ed25519:
		sig = ed25519.Sign(ed25519.NewKeyFromSeed(k.private), digest)
	default:
		err = errors.WithStack(&UnsupportedCurveError{})
	}
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Digest is a convenience helper matching spec.md's digest contract:
// hex(SHA256(payload)).
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
