// Package manager implements the did:plc DID lifecycle state machine:
// create, update, rotate keys, and deactivate (spec.md §4.6). It wires
// together package key, package operation, package didplc, package
// directory, and package keystore; it performs no cryptography or
// encoding of its own.
package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/pkg/errors"

	"github.com/atplc/plc/didplc"
	"github.com/atplc/plc/directory"
	"github.com/atplc/plc/key"
	"github.com/atplc/plc/keystore"
	"github.com/atplc/plc/operation"
)

const atprotoPDSService = "atproto_pds"

// Manager drives DID lifecycle operations for whatever DIDs its key store
// holds keys for.
type Manager struct {
	dir   *directory.Client
	store *keystore.Store
}

// New builds a Manager over an already-constructed directory client and
// key store.
func New(dir *directory.Client, store *keystore.Store) *Manager {
	return &Manager{dir: dir, store: store}
}

// CreateResult is returned by Create (spec.md §4.6 step 4).
type CreateResult struct {
	DID             string
	RotationKey     *key.Key
	VerificationKey *key.Key
	Handle          string
	ServiceEndpoint string
}

// Create generates a fresh rotation (secp256k1) and verification (Ed25519)
// key pair, builds and signs the genesis operation, submits it, and
// persists both keys (spec.md §4.6 "create").
func (m *Manager) Create(ctx context.Context, handle, serviceEndpoint string) (*CreateResult, error) {
	rotation, err := key.Generate(key.Secp256k1)
	if err != nil {
		return nil, err
	}
	verification, err := key.Generate(key.Ed25519)
	if err != nil {
		return nil, err
	}

	var alsoKnownAs []string
	if handle != "" {
		if _, err := syntax.ParseHandle(handle); err != nil {
			return nil, errors.Wrap(err, "manager: invalid handle")
		}
		alsoKnownAs = []string{"at://" + handle}
	}
	services := map[string]operation.Service{}
	if serviceEndpoint != "" {
		services[atprotoPDSService] = operation.Service{
			Type:     "AtprotoPersonalDataServer",
			Endpoint: serviceEndpoint,
		}
	}

	methodID := verificationMethodID(verification)
	genesis := operation.NewGenesis(
		[]*key.Key{rotation},
		map[string]*key.Key{methodID: verification},
		alsoKnownAs,
		services,
	)
	if err := genesis.Validate(); err != nil {
		return nil, err
	}
	signed, err := genesis.Sign(rotation)
	if err != nil {
		return nil, err
	}
	did, err := didplc.DeriveDID(signed)
	if err != nil {
		return nil, err
	}
	if _, err := syntax.ParseDID(did); err != nil {
		return nil, errors.Wrap(err, "manager: derived did failed shape validation")
	}
	if err := m.submitGenesis(ctx, signed); err != nil {
		return nil, err
	}

	if err := m.persistNew(did, rotation, verification); err != nil {
		return nil, err
	}

	return &CreateResult{
		DID:             did,
		RotationKey:     rotation,
		VerificationKey: verification,
		Handle:          handle,
		ServiceEndpoint: serviceEndpoint,
	}, nil
}

func (m *Manager) submitGenesis(ctx context.Context, signed *operation.Signed) error {
	body, err := wireJSON(signed)
	if err != nil {
		return err
	}
	if err := m.dir.CreateDID(ctx, body); err != nil {
		return err
	}
	return nil
}

func (m *Manager) persistNew(did string, rotation, verification *key.Key) error {
	rotPriv, err := rotation.EncodePrivate()
	if err != nil {
		return err
	}
	verPriv, err := verification.EncodePrivate()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return m.store.Put(keystore.Record{
		DID: did,
		RotationKey: keystore.KeyPair{
			Private: rotPriv,
			Public:  rotation.EncodePublic(),
		},
		VerificationKey: keystore.KeyPair{
			Private: verPriv,
			Public:  verification.EncodePublic(),
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Changes names the subset of a DID's document Update may alter (spec.md
// §4.6 "update").
type Changes struct {
	Handle          *string
	ServiceEndpoint *string
}

// Update fetches the head CID and last operation, reconstructs the
// current rotation keys and verification methods from that operation, applies changes, and
// submits a new signed operation (spec.md §4.6 "update").
func (m *Manager) Update(ctx context.Context, did string, changes Changes) error {
	rotationPriv, err := m.localRotationKey(did)
	if err != nil {
		return err
	}

	last, err := m.dir.GetLastOperation(ctx, did)
	if err != nil {
		return err
	}
	if last == nil {
		return errors.Errorf("manager: %s has no operations to update", did)
	}
	current, err := decodeWireOperation(last.Operation)
	if err != nil {
		return err
	}

	if changes.Handle != nil {
		if _, err := syntax.ParseHandle(*changes.Handle); err != nil {
			return errors.Wrap(err, "manager: invalid handle")
		}
		current.AlsoKnownAs = []string{"at://" + *changes.Handle}
	}
	if changes.ServiceEndpoint != nil {
		if current.Services == nil {
			current.Services = map[string]operation.Service{}
		}
		svc := current.Services[atprotoPDSService]
		svc.Type = "AtprotoPersonalDataServer"
		svc.Endpoint = *changes.ServiceEndpoint
		current.Services[atprotoPDSService] = svc
	}
	current.Prev = &last.CID

	if err := current.Validate(); err != nil {
		return err
	}
	signed, err := current.Sign(rotationPriv)
	if err != nil {
		return err
	}
	body, err := wireJSON(signed)
	if err != nil {
		return err
	}
	return m.dir.UpdateDID(ctx, did, body)
}

// RotateKeys generates a new rotation and verification key pair, builds an
// operation that replaces both, signs it with the outgoing rotation key,
// and on success replaces the persisted keys (spec.md §4.6 "rotate_keys").
// The signing key is always the current rotation key, never the new one.
func (m *Manager) RotateKeys(ctx context.Context, did string) error {
	outgoingRotation, err := m.localRotationKey(did)
	if err != nil {
		return err
	}

	last, err := m.dir.GetLastOperation(ctx, did)
	if err != nil {
		return err
	}
	if last == nil {
		return errors.Errorf("manager: %s has no operations to rotate from", did)
	}
	current, err := decodeWireOperation(last.Operation)
	if err != nil {
		return err
	}

	newRotation, err := key.Generate(key.Secp256k1)
	if err != nil {
		return err
	}
	newVerification, err := key.Generate(key.Ed25519)
	if err != nil {
		return err
	}

	current.RotationKeys = []*key.Key{newRotation}
	current.VerificationMethods = map[string]*key.Key{verificationMethodID(newVerification): newVerification}
	current.Prev = &last.CID

	if err := current.Validate(); err != nil {
		return err
	}
	signed, err := current.Sign(outgoingRotation)
	if err != nil {
		return err
	}
	body, err := wireJSON(signed)
	if err != nil {
		return err
	}
	if err := m.dir.UpdateDID(ctx, did, body); err != nil {
		return err
	}

	rotPriv, err := newRotation.EncodePrivate()
	if err != nil {
		return err
	}
	verPriv, err := newVerification.EncodePrivate()
	if err != nil {
		return err
	}
	return m.store.UpdateKeys(did,
		keystore.KeyPair{Private: rotPriv, Public: newRotation.EncodePublic()},
		keystore.KeyPair{Private: verPriv, Public: newVerification.EncodePublic()},
	)
}

// Deactivate attempts a tombstone first; if the directory rejects it, it
// falls back to a soft deactivation (spec.md §4.6 "deactivate"). Both paths
// mark the local record deactivated on success.
func (m *Manager) Deactivate(ctx context.Context, did string) error {
	rotationPriv, err := m.localRotationKey(did)
	if err != nil {
		return err
	}
	last, err := m.dir.GetLastOperation(ctx, did)
	if err != nil {
		return err
	}
	if last == nil {
		return errors.Errorf("manager: %s has no operations to deactivate", did)
	}

	tombstone := &operation.Unsigned{Type: operation.TypeTombstone, Prev: &last.CID}
	signed, err := tombstone.Sign(rotationPriv)
	if err != nil {
		return err
	}
	body, err := wireJSON(signed)
	if err != nil {
		return err
	}
	if err := m.dir.UpdateDID(ctx, did, body); err != nil {
		var derr *directory.Error
		if !errors.As(err, &derr) {
			return err
		}
		// Tombstone rejected; fall back to soft deactivation.
		soft := operation.NewSoftDeactivation(last.CID)
		signedSoft, serr := soft.Sign(rotationPriv)
		if serr != nil {
			return serr
		}
		softBody, serr := wireJSON(signedSoft)
		if serr != nil {
			return serr
		}
		if serr := m.dir.UpdateDID(ctx, did, softBody); serr != nil {
			return serr
		}
	}

	return m.store.Deactivate(did)
}

func (m *Manager) localRotationKey(did string) (*key.Key, error) {
	rec, ok, err := m.store.Get(did)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.WithStack(&MissingLocalKeyError{DID: did})
	}
	if rec.RotationKey.Private == "" {
		return nil, errors.WithStack(&MissingRotationKeyError{DID: did})
	}
	return key.FromPrivate(rec.RotationKey.Private)
}

// decodeWireOperation reconstructs an *operation.Unsigned from the wire map
// get_last_operation returns — the only place rotation keys reappear, since
// the public DID document never exposes them as verificationMethod entries.
func decodeWireOperation(m map[string]any) (*operation.Unsigned, error) {
	op := &operation.Unsigned{}
	if t, ok := m["type"].(string); ok {
		op.Type = t
	}
	if rks, ok := m["rotationKeys"].([]any); ok {
		op.RotationKeys = make([]*key.Key, 0, len(rks))
		for _, v := range rks {
			s, _ := v.(string)
			k, err := operation.ParseDIDKey(s)
			if err != nil {
				return nil, err
			}
			op.RotationKeys = append(op.RotationKeys, k)
		}
	}
	if vms, ok := m["verificationMethods"].(map[string]any); ok {
		op.VerificationMethods = make(map[string]*key.Key, len(vms))
		for id, v := range vms {
			s, _ := v.(string)
			k, err := operation.ParseDIDKey(s)
			if err != nil {
				return nil, err
			}
			op.VerificationMethods[id] = k
		}
	}
	if aka, ok := m["alsoKnownAs"].([]any); ok {
		for _, v := range aka {
			s, _ := v.(string)
			op.AlsoKnownAs = append(op.AlsoKnownAs, s)
		}
	}
	if svcs, ok := m["services"].(map[string]any); ok {
		op.Services = make(map[string]operation.Service, len(svcs))
		for id, v := range svcs {
			sm, _ := v.(map[string]any)
			typ, _ := sm["type"].(string)
			endpoint, _ := sm["endpoint"].(string)
			op.Services[id] = operation.Service{Type: typ, Endpoint: endpoint}
		}
	}
	return op, nil
}

func wireJSON(signed *operation.Signed) ([]byte, error) {
	b, err := json.Marshal(signed.ToWire())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

func verificationMethodID(k *key.Key) string {
	sum := sha256.Sum256([]byte(k.EncodePublic()))
	return "fair_" + hex.EncodeToString(sum[:])[:6]
}
