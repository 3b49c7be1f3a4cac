package key

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/asn1"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secp256k1ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
)

// derSignature mirrors the ASN.1 SEQUENCE{INTEGER r, INTEGER s} shape that
// both curves' DER form uses.
type derSignature struct {
	R, S *big.Int
}

// secp256k1N is the order of the secp256k1 base point.
var secp256k1N, _ = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)

// lowS rewrites s to the lower half of the curve order n, the canonical
// convention that prevents signature-malleability forks of the operation
// log (spec.md §4.2).
func lowS(s, n *big.Int) *big.Int {
	half := new(big.Int).Rsh(n, 1)
	if s.Cmp(half) > 0 {
		return new(big.Int).Sub(n, s)
	}
	return s
}

func padTo(b []byte, size int) []byte {
	if len(b) >= size {
		return b[len(b)-size:]
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}

// signSecp256k1 returns the compact IEEE-P1363 r‖s form, each half padded to
// 32 bytes, with s normalized to low-S.
func signSecp256k1(privRaw, digest []byte) ([]byte, error) {
	priv := secp256k1.PrivKeyFromBytes(privRaw)
	sig := secp256k1ecdsa.Sign(priv, digest)

	var der derSignature
	if _, err := asn1.Unmarshal(sig.Serialize(), &der); err != nil {
		return nil, errors.Wrap(err, "key: parse secp256k1 signature DER")
	}
	s := lowS(der.S, secp256k1N)

	out := make([]byte, 0, 64)
	out = append(out, padTo(der.R.Bytes(), 32)...)
	out = append(out, padTo(s.Bytes(), 32)...)
	return out, nil
}

// signP256 returns a DER-encoded SEQUENCE{r,s} with s normalized to low-S.
func signP256(privRaw, digest []byte) ([]byte, error) {
	curve := elliptic.P256()
	d := new(big.Int).SetBytes(privRaw)
	priv := new(ecdsa.PrivateKey)
	priv.Curve = curve
	priv.D = d
	priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(privRaw)

	sigDER, err := ecdsa.SignASN1(rand.Reader, priv, digest)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var der derSignature
	if _, err := asn1.Unmarshal(sigDER, &der); err != nil {
		return nil, errors.Wrap(err, "key: parse p256 signature DER")
	}
	der.S = lowS(der.S, curve.Params().N)
	out, err := asn1.Marshal(der)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return out, nil
}

func generateP256() (*Key, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	raw := padTo(priv.D.Bytes(), 32)
	pub := elliptic.MarshalCompressed(elliptic.P256(), priv.PublicKey.X, priv.PublicKey.Y)
	return &Key{curve: P256, private: raw, public: pub}, nil
}

func p256FromPrivateRaw(raw []byte) (*Key, error) {
	curve := elliptic.P256()
	if len(raw) != 32 {
		return nil, errors.WithStack(&MalformedMultibaseError{Reason: "p256 private key must be 32 bytes"})
	}
	x, y := curve.ScalarBaseMult(raw)
	pub := elliptic.MarshalCompressed(curve, x, y)
	return &Key{curve: P256, private: raw, public: pub}, nil
}
