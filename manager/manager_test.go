package manager

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secp256k1ecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/matryer/is"

	"github.com/atplc/plc/directory"
	"github.com/atplc/plc/key"
	"github.com/atplc/plc/keystore"
)

func newTestManager(t *testing.T, handler http.HandlerFunc) (*Manager, *keystore.Store) {
	t.Helper()
	is := is.New(t)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir, err := directory.New(srv.URL)
	is.NoErr(err)
	store, err := keystore.Open(filepath.Join(t.TempDir(), "keys.json"))
	is.NoErr(err)
	return New(dir, store), store
}

func TestCreatePersistsKeysOnSuccess(t *testing.T) {
	is := is.New(t)
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		is.Equal(r.URL.Path, "/")
		w.WriteHeader(http.StatusOK)
	})

	result, err := m.Create(context.Background(), "my-plugin", "")
	is.NoErr(err)
	is.True(result.DID != "")

	rec, ok, err := store.Get(result.DID)
	is.NoErr(err)
	is.True(ok)
	is.True(rec.Active)
	is.Equal(rec.RotationKey.Public, result.RotationKey.EncodePublic())
}

func TestCreateDoesNotPersistOnDirectoryRejection(t *testing.T) {
	is := is.New(t)
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := m.Create(context.Background(), "my-plugin", "")
	is.True(err != nil)

	recs, err := store.List()
	is.NoErr(err)
	is.Equal(len(recs), 0)
}

func TestRotateKeysSignsWithOldKey(t *testing.T) {
	is := is.New(t)

	rotation, err := key.Generate(key.Secp256k1)
	is.NoErr(err)
	verification, err := key.Generate(key.Ed25519)
	is.NoErr(err)
	rotPriv, err := rotation.EncodePrivate()
	is.NoErr(err)
	verPriv, err := verification.EncodePrivate()
	is.NoErr(err)

	did := "did:plc:aaaaaaaaaaaaaaaaaaaaaaaa"
	lastOp := map[string]any{
		"type":                "plc_operation",
		"rotationKeys":        []any{"did:key:" + rotation.EncodePublic()},
		"verificationMethods": map[string]any{"atproto": "did:key:" + verification.EncodePublic()},
		"alsoKnownAs":         []any{"at://my-plugin"},
		"services":            map[string]any{},
		"prev":                nil,
	}

	var sawUpdate bool
	var postBody map[string]any
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"cid":       "bafyreilastcid",
				"operation": lastOp,
			})
		case r.Method == http.MethodPost:
			sawUpdate = true
			is.NoErr(json.NewDecoder(r.Body).Decode(&postBody))
			w.WriteHeader(http.StatusOK)
		}
	})
	is.NoErr(store.Put(keystore.Record{
		DID: did,
		RotationKey: keystore.KeyPair{
			Private: rotPriv,
			Public:  rotation.EncodePublic(),
		},
		VerificationKey: keystore.KeyPair{
			Private: verPriv,
			Public:  verification.EncodePublic(),
		},
		Active: true,
	}))

	err = m.RotateKeys(context.Background(), did)
	is.NoErr(err)
	is.True(sawUpdate)

	rec, ok, err := store.Get(did)
	is.NoErr(err)
	is.True(ok)
	is.True(rec.RotationKey.Public != rotation.EncodePublic()) // replaced

	// the submitted operation's sig verifies under the outgoing rotation key,
	// not under the newly persisted one.
	submitted, err := decodeWireOperation(postBody)
	is.NoErr(err)
	prev, _ := postBody["prev"].(string)
	submitted.Prev = &prev
	payload, err := submitted.EncodeForSigning()
	is.NoErr(err)
	sigStr, _ := postBody["sig"].(string)
	sig, err := base64.RawURLEncoding.DecodeString(sigStr)
	is.NoErr(err)
	is.Equal(len(sig), 64)
	digest := sha256.Sum256(payload)
	newRotation, err := key.FromPublic(rec.RotationKey.Public)
	is.NoErr(err)
	is.True(verifySecp256k1(rotation.PublicBytes(), digest[:], sig))
	is.True(!verifySecp256k1(newRotation.PublicBytes(), digest[:], sig))
}

func verifySecp256k1(pub, digest, sig []byte) bool {
	pk, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return false
	}
	var r, s secp256k1.ModNScalar
	r.SetByteSlice(sig[:32])
	s.SetByteSlice(sig[32:])
	return secp256k1ecdsa.NewSignature(&r, &s).Verify(digest, pk)
}

func TestDeactivateSubmitsMinimalTombstone(t *testing.T) {
	is := is.New(t)

	rotation, err := key.Generate(key.Secp256k1)
	is.NoErr(err)
	rotPriv, err := rotation.EncodePrivate()
	is.NoErr(err)

	did := "did:plc:aaaaaaaaaaaaaaaaaaaaaaaa"
	var postBody map[string]any
	m, store := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{
				"cid": "bafyreilastcid",
				"operation": map[string]any{
					"type":                "plc_operation",
					"rotationKeys":        []any{"did:key:" + rotation.EncodePublic()},
					"verificationMethods": map[string]any{},
					"alsoKnownAs":         []any{},
					"services":            map[string]any{},
					"prev":                nil,
				},
			})
		case r.Method == http.MethodPost:
			is.NoErr(json.NewDecoder(r.Body).Decode(&postBody))
			w.WriteHeader(http.StatusOK)
		}
	})
	is.NoErr(store.Put(keystore.Record{
		DID:         did,
		RotationKey: keystore.KeyPair{Private: rotPriv, Public: rotation.EncodePublic()},
		Active:      true,
	}))

	err = m.Deactivate(context.Background(), did)
	is.NoErr(err)

	// the submitted tombstone carries only type, prev, and sig — never the
	// plc_operation collections.
	is.Equal(len(postBody), 3)
	is.Equal(postBody["type"], "plc_tombstone")
	is.Equal(postBody["prev"], "bafyreilastcid")
	is.True(postBody["sig"] != "")

	rec, ok, err := store.Get(did)
	is.NoErr(err)
	is.True(ok)
	is.True(!rec.Active)
}

func TestUpdateMissingLocalKeyFailsWithoutNetworkCall(t *testing.T) {
	is := is.New(t)
	called := false
	m, _ := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	err := m.Update(context.Background(), "did:plc:unknown", Changes{})
	is.True(err != nil)
	is.True(!called)
}
