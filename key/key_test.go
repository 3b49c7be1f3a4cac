package key

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/asn1"
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secp256k1ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/matryer/is"
)

func TestRoundTrip(t *testing.T) {
	for _, curve := range []Curve{Secp256k1, P256, Ed25519} {
		t.Run(string(curve), func(t *testing.T) {
			is := is.New(t)
			k, err := Generate(curve)
			is.NoErr(err)

			pub, err := FromPublic(k.EncodePublic())
			is.NoErr(err)
			is.Equal(pub.Curve(), curve)
			is.Equal(pub.PublicBytes(), k.PublicBytes())

			encPriv, err := k.EncodePrivate()
			is.NoErr(err)
			priv, err := FromPrivate(encPriv)
			is.NoErr(err)
			is.Equal(priv.Curve(), curve)
			is.Equal(priv.PublicBytes(), k.PublicBytes())
			is.True(priv.IsPrivate())
		})
	}
}

func TestPublicOnlyCannotSign(t *testing.T) {
	is := is.New(t)
	k, err := Generate(Ed25519)
	is.NoErr(err)
	pub, err := FromPublic(k.EncodePublic())
	is.NoErr(err)
	_, err = pub.EncodePrivate()
	is.True(err != nil)
	_, err = pub.Sign(Digest([]byte("hello")))
	is.True(err != nil)
}

func TestEd25519Deterministic(t *testing.T) {
	is := is.New(t)
	k, err := Generate(Ed25519)
	is.NoErr(err)
	digest := Digest([]byte("deterministic message"))
	s1, err := k.Sign(digest)
	is.NoErr(err)
	s2, err := k.Sign(digest)
	is.NoErr(err)
	is.Equal(s1, s2)
	sigBytes, err := hex.DecodeString(s1)
	is.NoErr(err)
	is.Equal(len(sigBytes), 64)
}

func TestSecp256k1LowSAndVerifies(t *testing.T) {
	is := is.New(t)
	k, err := Generate(Secp256k1)
	is.NoErr(err)
	digest := Digest([]byte("canonicalize me"))

	sigHex, err := k.Sign(digest)
	is.NoErr(err)
	sigBytes, err := hex.DecodeString(sigHex)
	is.NoErr(err)
	is.Equal(len(sigBytes), 64)

	s := new(big.Int).SetBytes(sigBytes[32:])
	half := new(big.Int).Rsh(secp256k1N, 1)
	is.True(s.Cmp(half) <= 0)

	digestBytes, err := hex.DecodeString(digest)
	is.NoErr(err)
	pub, err := secp256k1.ParsePubKey(k.PublicBytes())
	is.NoErr(err)
	var rScalar, sScalar secp256k1.ModNScalar
	rScalar.SetByteSlice(sigBytes[:32])
	sScalar.SetByteSlice(sigBytes[32:])
	is.True(secp256k1ecdsa.NewSignature(&rScalar, &sScalar).Verify(digestBytes, pub))

	// signatures over the same (key, message) need not be equal, but this
	// run should still succeed.
	_, err = k.Sign(digest)
	is.NoErr(err)
}

func TestP256LowS(t *testing.T) {
	is := is.New(t)
	k, err := Generate(P256)
	is.NoErr(err)
	digest := Digest([]byte("p256 message"))
	sigHex, err := k.Sign(digest)
	is.NoErr(err)
	sigBytes, err := hex.DecodeString(sigHex)
	is.NoErr(err)

	var der derSignature
	_, err = asn1.Unmarshal(sigBytes, &der)
	is.NoErr(err)
	n := elliptic.P256().Params().N
	half := new(big.Int).Rsh(n, 1)
	is.True(der.S.Cmp(half) <= 0)

	digestBytes, err := hex.DecodeString(digest)
	is.NoErr(err)
	x, y := elliptic.UnmarshalCompressed(elliptic.P256(), k.PublicBytes())
	is.True(x != nil)
	pub := &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}
	is.True(ecdsa.VerifyASN1(pub, digestBytes, sigBytes))
}

func TestLegacyPrivateDecode(t *testing.T) {
	is := is.New(t)
	k, err := Generate(Ed25519)
	is.NoErr(err)
	// A store that (incorrectly) persisted a private key under the public
	// multicodec tag must still decode as private.
	mis := encodeMultibaseKey(Ed25519, false, k.private)
	legacy, err := FromPrivate(mis)
	is.NoErr(err)
	is.True(legacy.IsPrivate())
	is.Equal(legacy.PublicBytes(), k.PublicBytes())
}

func TestUnsupportedCodec(t *testing.T) {
	is := is.New(t)
	_, err := FromPublic("zBogusTag")
	is.True(err != nil)
}
