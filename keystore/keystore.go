// Package keystore persists the rotation and verification keys a did:plc
// manager holds for each DID it controls, in the single-JSON-document shape
// spec.md §6 names, with write-then-rename durability (spec.md §5).
package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// KeyPair is one role's public/private multibase-encoded key strings.
type KeyPair struct {
	Private string `json:"private"`
	Public  string `json:"public"`
}

// Record is the persisted state for a single DID (spec.md §6).
type Record struct {
	DID             string         `json:"did"`
	RotationKey     KeyPair        `json:"rotationKey"`
	VerificationKey KeyPair        `json:"verificationKey"`
	Type            string         `json:"type,omitempty"`
	Active          bool           `json:"active"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	DeactivatedAt   *time.Time     `json:"deactivatedAt,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type document struct {
	DIDs map[string]Record `json:"dids"`
}

// Store is a single-file, JSON-backed key store. It is safe for concurrent
// use by one process; cross-process coordination is out of scope (spec.md
// §5 "Shared resources").
type Store struct {
	path string
	mu   sync.Mutex
}

// Open loads or creates the key store file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.write(document{DIDs: map[string]Record{}}); err != nil {
			return nil, err
		}
		return s, nil
	}
	if _, err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) read() (document, error) {
	var doc document
	b, err := os.ReadFile(s.path)
	if err != nil {
		return doc, errors.Wrap(err, "keystore: read")
	}
	if len(b) == 0 {
		doc.DIDs = map[string]Record{}
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, errors.Wrap(err, "keystore: decode")
	}
	if doc.DIDs == nil {
		doc.DIDs = map[string]Record{}
	}
	return doc, nil
}

// write persists doc atomically: write to a temp file in the same
// directory, then rename over the target (spec.md §5 "write-then-rename").
func (s *Store) write(doc document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "keystore: encode")
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".keystore-*.tmp")
	if err != nil {
		return errors.Wrap(err, "keystore: create temp file")
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrap(err, "keystore: write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "keystore: close temp file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "keystore: rename temp file into place")
	}
	return nil
}

// Put inserts or fully replaces the record for rec.DID.
func (s *Store) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.DIDs[rec.DID] = rec
	return s.write(doc)
}

// Get returns the record for did, or ok == false if none exists.
func (s *Store) Get(did string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := doc.DIDs[did]
	return rec, ok, nil
}

// UpdateKeys replaces the rotation and verification key pairs for did, as
// package manager does after a successful key rotation (spec.md §5
// "old keys remain persisted until the directory confirms the new ones,
// then are atomically replaced").
func (s *Store) UpdateKeys(did string, rotation, verification KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	rec, ok := doc.DIDs[did]
	if !ok {
		return errors.Errorf("keystore: no record for %s", did)
	}
	rec.RotationKey = rotation
	rec.VerificationKey = verification
	rec.UpdatedAt = nowUTC()
	doc.DIDs[did] = rec
	return s.write(doc)
}

// UpdateMetadata merges kv into the record's metadata for did.
func (s *Store) UpdateMetadata(did string, kv map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	rec, ok := doc.DIDs[did]
	if !ok {
		return errors.Errorf("keystore: no record for %s", did)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}
	for k, v := range kv {
		rec.Metadata[k] = v
	}
	rec.UpdatedAt = nowUTC()
	doc.DIDs[did] = rec
	return s.write(doc)
}

// Deactivate marks did's local record deactivated; called after either the
// tombstone or soft-deactivation path succeeds against the directory
// (spec.md §4.6).
func (s *Store) Deactivate(did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	rec, ok := doc.DIDs[did]
	if !ok {
		return errors.Errorf("keystore: no record for %s", did)
	}
	now := nowUTC()
	rec.Active = false
	rec.DeactivatedAt = &now
	rec.UpdatedAt = now
	doc.DIDs[did] = rec
	return s.write(doc)
}

// List returns every persisted record.
func (s *Store) List() ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(doc.DIDs))
	for _, rec := range doc.DIDs {
		out = append(out, rec)
	}
	return out, nil
}

// Delete removes did's record entirely.
func (s *Store) Delete(did string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	delete(doc.DIDs, did)
	return s.write(doc)
}

func nowUTC() time.Time { return time.Now().UTC() }
