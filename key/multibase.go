package key

import (
	"encoding/base32"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// base32Encoding is the lowercase, unpadded RFC 4648 alphabet used for did:plc
// suffixes and CID multibase strings.
var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// multicodec tag pairs, fixed by the protocol (see spec.md §4.1).
var (
	tagSecp256k1Pub  = [2]byte{0xe7, 0x01}
	tagSecp256k1Priv = [2]byte{0x81, 0x26}
	tagP256Pub       = [2]byte{0x80, 0x24}
	tagP256Priv      = [2]byte{0x06, 0x26}
	tagEd25519Pub    = [2]byte{0xed, 0x01}
	tagEd25519Priv   = [2]byte{0x80, 0x26}
)

func tagForCurve(c Curve, private bool) [2]byte {
	switch {
	case c == Secp256k1 && !private:
		return tagSecp256k1Pub
	case c == Secp256k1 && private:
		return tagSecp256k1Priv
	case c == P256 && !private:
		return tagP256Pub
	case c == P256 && private:
		return tagP256Priv
	case c == Ed25519 && !private:
		return tagEd25519Pub
	case c == Ed25519 && private:
		return tagEd25519Priv
	default:
		panic("key: unknown curve " + c)
	}
}

// curveForTag resolves a multicodec tag to a curve and whether it names the
// private or public variant. ok is false for unrecognized tags.
func curveForTag(tag [2]byte) (c Curve, private bool, ok bool) {
	switch tag {
	case tagSecp256k1Pub:
		return Secp256k1, false, true
	case tagSecp256k1Priv:
		return Secp256k1, true, true
	case tagP256Pub:
		return P256, false, true
	case tagP256Priv:
		return P256, true, true
	case tagEd25519Pub:
		return Ed25519, false, true
	case tagEd25519Priv:
		return Ed25519, true, true
	default:
		return "", false, false
	}
}

// encodeBase58btc mirrors multibase's "z" variant: base58btc over the
// standard Bitcoin alphabet, preserving leading zero bytes as leading '1'
// characters (base58.Encode already does this), prefixed with "z".
func encodeBase58btc(b []byte) string {
	return "z" + base58.Encode(b)
}

func decodeBase58btc(s string) ([]byte, error) {
	if len(s) == 0 || s[0] != 'z' {
		return nil, &MalformedMultibaseError{Reason: "missing \"z\" multibase prefix"}
	}
	b, err := base58.Decode(s[1:])
	if err != nil {
		return nil, errors.WithStack(&MalformedMultibaseError{Reason: err.Error()})
	}
	return b, nil
}

// encodeMultibaseKey concatenates the curve's multicodec tag with the raw key
// bytes, base58btc-encodes the result, and prefixes it with "z".
func encodeMultibaseKey(c Curve, private bool, raw []byte) string {
	tag := tagForCurve(c, private)
	buf := make([]byte, 0, 2+len(raw))
	buf = append(buf, tag[0], tag[1])
	buf = append(buf, raw...)
	return encodeBase58btc(buf)
}

// decodeMultibaseKey reverses encodeMultibaseKey. legacy controls whether a
// private-tagged decode will also accept a public-tagged multibase string
// (see spec.md §4.1, §9 "Legacy private-key decoding").
func decodeMultibaseKey(s string, wantPrivate, legacy bool) (c Curve, raw []byte, err error) {
	b, err := decodeBase58btc(s)
	if err != nil {
		return "", nil, err
	}
	if len(b) < 3 {
		return "", nil, &MalformedMultibaseError{Reason: "decoded payload too short to contain a multicodec tag"}
	}
	tag := [2]byte{b[0], b[1]}
	curve, private, ok := curveForTag(tag)
	if !ok {
		return "", nil, errors.WithStack(&UnsupportedCurveError{Tag: tag})
	}
	if wantPrivate && !private {
		if !legacy {
			return "", nil, &MalformedMultibaseError{Reason: "expected a private-key multicodec tag"}
		}
		// Legacy acceptance: a public-tagged multibase string decoded where a
		// private key was requested is treated as that curve's private key.
	}
	return curve, b[2:], nil
}

// encodeBase32Raw encodes raw bytes with the lowercase, unpadded RFC 4648
// alphabet used for did:plc suffixes — no multibase "b" prefix.
func encodeBase32Raw(b []byte) string {
	return base32Encoding.EncodeToString(b)
}
