// Package trust implements the Trust Store (C3): a mutable, file-backed
// key policy consulted on every publish.
package trust

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/sgn-project/sgnd/errors"
	"go.uber.org/zap"
)

const (
	ModeEnforce = "enforce"
	ModeWarn    = "warn"
)

// KeyPolicy is the per-key entry of the trust document.
type KeyPolicy struct {
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Revoked   bool       `json:"revoked,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// document is the on-disk JSON shape, exactly §6.4.
type document struct {
	Mode   string               `json:"mode"`
	Allow  []string             `json:"allow"`
	Revoke []string             `json:"revoke"`
	Keys   map[string]KeyPolicy `json:"keys"`
}

func emptyDocument() document {
	return document{
		Mode:   ModeWarn,
		Allow:  []string{},
		Revoke: []string{},
		Keys:   map[string]KeyPolicy{},
	}
}

// Decision is the result of an is_trusted check.
type Decision struct {
	Trusted bool
	Reason  string
}

// Store holds the in-memory view of the trust document and the path it
// was loaded from. Reads dominate, so access is a single RWMutex per the
// concurrency model in §5.
type Store struct {
	path string
	log  *zap.SugaredLogger

	mu  sync.RWMutex
	doc document

	ownWriteMu sync.Mutex
	ownWrite   bool
}

// Open loads the trust document at path, creating an empty warn-mode
// document if the file does not yet exist.
func Open(path string, log *zap.SugaredLogger) (*Store, error) {
	s := &Store{path: path, log: log, doc: emptyDocument()}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := s.save(); err != nil {
			return nil, errors.Wrap(err, "creating initial trust store")
		}
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the trust document from disk, replacing the in-memory
// view atomically.
func (s *Store) Reload() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrapf(err, "reading trust store %s", s.path)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return errors.Wrapf(err, "parsing trust store %s", s.path)
	}
	if doc.Allow == nil {
		doc.Allow = []string{}
	}
	if doc.Revoke == nil {
		doc.Revoke = []string{}
	}
	if doc.Keys == nil {
		doc.Keys = map[string]KeyPolicy{}
	}
	if doc.Mode == "" {
		doc.Mode = ModeWarn
	}

	s.mu.Lock()
	s.doc = doc
	s.mu.Unlock()
	return nil
}

func (s *Store) save() error {
	s.mu.RLock()
	doc := s.doc
	s.mu.RUnlock()

	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling trust store")
	}

	s.ownWriteMu.Lock()
	s.ownWrite = true
	s.ownWriteMu.Unlock()

	return os.WriteFile(s.path, raw, 0o644)
}

// checkOwnWrite reports and clears whether the most recent file write was
// this process's own save(), so the fsnotify watcher can skip reloading.
func (s *Store) checkOwnWrite() bool {
	s.ownWriteMu.Lock()
	defer s.ownWriteMu.Unlock()
	if s.ownWrite {
		s.ownWrite = false
		return true
	}
	return false
}

// IsTrusted implements the policy table of §4.3.
func (s *Store) IsTrusted(keyID string) Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if contains(s.doc.Revoke, keyID) {
		return Decision{Trusted: false, Reason: "revoked"}
	}
	if kp, ok := s.doc.Keys[keyID]; ok {
		if kp.Revoked {
			return Decision{Trusted: false, Reason: "revoked"}
		}
		if kp.ExpiresAt != nil && time.Now().After(*kp.ExpiresAt) {
			return Decision{Trusted: false, Reason: "expired"}
		}
	}
	if s.doc.Mode == ModeEnforce && !contains(s.doc.Allow, keyID) {
		return Decision{Trusted: false, Reason: "not_in_allowlist"}
	}
	return Decision{Trusted: true}
}

// Add adds key_id to the allow-list and records its expiry, if any.
func (s *Store) Add(keyID string, expiresAt *time.Time) error {
	s.mu.Lock()
	if !contains(s.doc.Allow, keyID) {
		s.doc.Allow = append(s.doc.Allow, keyID)
	}
	kp := s.doc.Keys[keyID]
	kp.ExpiresAt = expiresAt
	s.doc.Keys[keyID] = kp
	s.mu.Unlock()
	return s.save()
}

// Revoke marks key_id revoked with the given reason.
func (s *Store) Revoke(keyID, reason string) error {
	s.mu.Lock()
	if !contains(s.doc.Revoke, keyID) {
		s.doc.Revoke = append(s.doc.Revoke, keyID)
	}
	kp := s.doc.Keys[keyID]
	kp.Revoked = true
	kp.Reason = reason
	s.doc.Keys[keyID] = kp
	s.mu.Unlock()
	return s.save()
}

// SetExpiry records an expiry timestamp for key_id without otherwise
// changing its trust status.
func (s *Store) SetExpiry(keyID string, ts time.Time) error {
	s.mu.Lock()
	kp := s.doc.Keys[keyID]
	kp.ExpiresAt = &ts
	s.doc.Keys[keyID] = kp
	s.mu.Unlock()
	return s.save()
}

// Mode returns the currently configured trust mode.
func (s *Store) Mode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Mode
}

// SetMode changes the trust mode between enforce and warn.
func (s *Store) SetMode(mode string) error {
	if mode != ModeEnforce && mode != ModeWarn {
		return errors.Newf("unknown trust mode %q", mode)
	}
	s.mu.Lock()
	s.doc.Mode = mode
	s.mu.Unlock()
	return s.save()
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
