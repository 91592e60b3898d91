// Package outbox implements the durable delivery queue (C5): an
// append-only log of stored CIDs plus a per-subscriber delivery cursor,
// consumed by the fanout hub.
package outbox

import (
	"database/sql"

	"github.com/sgn-project/sgnd/errors"
)

// Store owns the outbox and cursor tables.
type Store struct {
	db *sql.DB
}

// Open wraps an already-migrated *sql.DB.
func Open(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnqueueTx appends a row to the outbox inside the caller's transaction.
// Callers must only enqueue after the corresponding KU row is stored in
// the SAME transaction (the "enqueue iff stored=true" invariant of §4.4),
// which is what makes the put+enqueue pair crash-safe as a unit.
func EnqueueTx(tx *sql.Tx, cid string) (int64, error) {
	res, err := tx.Exec(
		`INSERT INTO outbox (cid, enqueued_at) VALUES (?, strftime('%s', 'now'))`,
		cid,
	)
	if err != nil {
		return 0, errors.Wrapf(err, "enqueue %s", cid)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "read last insert id")
	}
	return seq, nil
}

// Entry is a single outbox row.
type Entry struct {
	Seq        int64  `json:"seq"`
	CID        string `json:"cid"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

// After returns entries with seq > afterSeq, in ascending order, at most
// limit of them. The fanout delivery loop passes its remaining in-flight
// budget as limit; the ?since= replay cap is applied separately by the hub
// when it picks a client's starting seq.
func (s *Store) After(afterSeq int64, limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT seq, cid, enqueued_at FROM outbox WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
		afterSeq, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query outbox")
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.CID, &e.EnqueuedAt); err != nil {
			return nil, errors.Wrap(err, "scan outbox row")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestSeq returns the highest seq currently in the outbox, or 0 if empty.
func (s *Store) LatestSeq() (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(seq) FROM outbox`).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "read latest seq")
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// InitCursor creates the subscriber's delivery cursor row (at
// last_acked_seq=0) if it doesn't already exist. Ack advances it
// monotonically: acking a seq lower than the current cursor is a no-op,
// never a regression (§4.5 step 4).
func (s *Store) InitCursor(subscriberID string) error {
	_, err := s.db.Exec(
		`INSERT INTO cursor (subscriber_id, last_acked_seq) VALUES (?, 0)
		 ON CONFLICT(subscriber_id) DO NOTHING`,
		subscriberID,
	)
	if err != nil {
		return errors.Wrapf(err, "init cursor %s", subscriberID)
	}
	return nil
}

// LastAcked returns the subscriber's last acknowledged seq.
func (s *Store) LastAcked(subscriberID string) (int64, error) {
	var seq int64
	err := s.db.QueryRow(`SELECT last_acked_seq FROM cursor WHERE subscriber_id = ?`, subscriberID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "read cursor %s", subscriberID)
	}
	return seq, nil
}

// Ack advances the subscriber's cursor to seq if seq is greater than the
// current value. Lower or equal acks are silently ignored.
func (s *Store) Ack(subscriberID string, seq int64) error {
	_, err := s.db.Exec(
		`UPDATE cursor SET last_acked_seq = ? WHERE subscriber_id = ? AND last_acked_seq < ?`,
		seq, subscriberID, seq,
	)
	if err != nil {
		return errors.Wrapf(err, "ack %s seq=%d", subscriberID, seq)
	}
	return nil
}
