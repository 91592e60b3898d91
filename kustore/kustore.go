// Package kustore implements the content-addressed Knowledge Unit store
// (C4): a CID-keyed map backed by SQLite, with an optional companion blob
// directory used only for the consistency check.
package kustore

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sgn-project/sgnd/errors"
	"github.com/sgn-project/sgnd/ku"
)

// Store is the content-addressed KU store. Put is expected to run inside
// a transaction shared with the outbox insert (see PutTx); Get/Exists/Count
// use the store's own handle directly.
type Store struct {
	db      *sql.DB
	blobDir string // empty disables the companion blob mirror
}

// Open wraps an already-migrated *sql.DB. blobDir may be empty to disable
// the best-effort blob mirror used by Consistency.
func Open(db *sql.DB, blobDir string) (*Store, error) {
	if blobDir != "" {
		if err := os.MkdirAll(blobDir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create blob dir %s", blobDir)
		}
	}
	return &Store{db: db, blobDir: blobDir}, nil
}

// PutTx inserts a KU row inside the caller-supplied transaction. It is
// idempotent: re-inserting an existing CID is a no-op, not an error, since
// the CID is a pure function of the content (invariant P4).
func PutTx(tx *sql.Tx, cid string, canonicalBytes []byte, k *ku.KU) error {
	kuJSON, err := json.Marshal(k)
	if err != nil {
		return errors.Wrap(err, "marshal ku")
	}

	_, err = tx.Exec(
		`INSERT INTO kus (cid, canonical_bytes, ku_json, stored_at)
		 VALUES (?, ?, ?, strftime('%s', 'now'))
		 ON CONFLICT(cid) DO NOTHING`,
		cid, canonicalBytes, kuJSON,
	)
	if err != nil {
		return errors.Wrapf(err, "insert ku %s", cid)
	}
	return nil
}

// WriteBlob mirrors a stored KU to the companion blob directory. Callers
// invoke this after the transaction in PutTx commits; failures here are
// reported by Consistency, never treated as a correctness fault, since the
// database row remains the source of truth (§4.4).
func (s *Store) WriteBlob(cid string, canonicalBytes []byte) error {
	if s.blobDir == "" {
		return nil
	}
	path := filepath.Join(s.blobDir, cid)
	if err := os.WriteFile(path, canonicalBytes, 0644); err != nil {
		return errors.Wrapf(err, "write blob %s", cid)
	}
	return nil
}

// Exists reports whether cid is already stored.
func (s *Store) Exists(cid string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM kus WHERE cid = ?)`, cid).Scan(&exists)
	if err != nil {
		return false, errors.Wrapf(err, "check existence of %s", cid)
	}
	return exists, nil
}

// Get fetches and unmarshals the KU stored under cid.
func (s *Store) Get(cid string) (*ku.KU, error) {
	var kuJSON []byte
	err := s.db.QueryRow(`SELECT ku_json FROM kus WHERE cid = ?`, cid).Scan(&kuJSON)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrNotFound, "cid %s", cid)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", cid)
	}

	var k ku.KU
	if err := json.Unmarshal(kuJSON, &k); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s", cid)
	}
	return &k, nil
}

// Count returns the total number of stored KUs.
func (s *Store) Count() (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM kus`).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count kus")
	}
	return count, nil
}

// ErrNotFound is returned by Get when the CID is not stored.
var ErrNotFound = errors.New("ku not found")

// ConsistencyReport summarizes the result of Consistency.
type ConsistencyReport struct {
	TotalRows     int      `json:"total_rows"`
	MissingBlobs  []string `json:"missing_blobs,omitempty"`
	OrphanedBlobs []string `json:"orphaned_blobs,omitempty"`
}

// Consistency reconciles the kus table against the companion blob
// directory. It never fails on mismatch -- a missing or orphaned blob is
// reportable, not fatal, per §4.4.
func (s *Store) Consistency() (*ConsistencyReport, error) {
	rows, err := s.db.Query(`SELECT cid FROM kus`)
	if err != nil {
		return nil, errors.Wrap(err, "query cids")
	}
	defer rows.Close()

	stored := make(map[string]struct{})
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, errors.Wrap(err, "scan cid")
		}
		stored[cid] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate cids")
	}

	report := &ConsistencyReport{TotalRows: len(stored)}
	if s.blobDir == "" {
		return report, nil
	}

	entries, err := os.ReadDir(s.blobDir)
	if err != nil {
		return nil, errors.Wrapf(err, "read blob dir %s", s.blobDir)
	}

	onDisk := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		onDisk[e.Name()] = struct{}{}
	}

	for cid := range stored {
		if _, ok := onDisk[cid]; !ok {
			report.MissingBlobs = append(report.MissingBlobs, cid)
		}
	}
	for name := range onDisk {
		if _, ok := stored[name]; !ok {
			report.OrphanedBlobs = append(report.OrphanedBlobs, name)
		}
	}
	return report, nil
}
