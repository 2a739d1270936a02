// Package audit implements the submission audit ledger named in
// SPEC_FULL §11: one row per epoch holding its most recent submit
// attempt, used by the submitter's idempotence guard (§4.H step 2, §12
// "idempotent resubmission detection") independently of the on-chain
// root read — a rerun whose rebuilt root is already recorded as
// confirmed skips submission without another RPC round trip.
// Unlike the chain package, nothing here retries or logs: sqlite's
// correctness is enforced by the database itself, since every
// operation here is a single local embedded-file write.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Status is a submit attempt's outcome.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Record is one row of the audit ledger.
type Record struct {
	Epoch     uint64
	Root      string // 0x-prefixed hex
	Status    Status
	TxHash    string
	CreatedAt time.Time
}

// Ledger wraps a sqlite-backed audit table.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite audit database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit ledger: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}
	return &Ledger{db: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS submissions (
	epoch      INTEGER NOT NULL,
	root       TEXT NOT NULL,
	status     TEXT NOT NULL,
	tx_hash    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (epoch)
);
`

func (l *Ledger) Close() error {
	return l.db.Close()
}

// RecordAttempt upserts the ledger row for epoch. A later call for the
// same epoch overwrites the prior row — only the most recent attempt's
// outcome matters for the idempotence guard.
func (l *Ledger) RecordAttempt(ctx context.Context, rec Record) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO submissions (epoch, root, status, tx_hash, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(epoch) DO UPDATE SET root=excluded.root, status=excluded.status, tx_hash=excluded.tx_hash, created_at=excluded.created_at`,
		rec.Epoch, rec.Root, string(rec.Status), rec.TxHash, rec.CreatedAt.Unix())
	return err
}

// Lookup returns the ledger's record for epoch, or (Record{}, false) if
// none exists.
func (l *Ledger) Lookup(ctx context.Context, epoch uint64) (Record, bool, error) {
	row := l.db.QueryRowContext(ctx,
		`SELECT epoch, root, status, tx_hash, created_at FROM submissions WHERE epoch = ?`, epoch)

	var rec Record
	var status string
	var createdAt int64
	err := row.Scan(&rec.Epoch, &rec.Root, &status, &rec.TxHash, &createdAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec.Status = Status(status)
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	return rec, true, nil
}

// AlreadyConfirmed reports whether epoch has a confirmed submission for
// root — the short-circuit the submit stage uses to skip resubmitting a
// root a prior run already confirmed.
func (l *Ledger) AlreadyConfirmed(ctx context.Context, epoch uint64, root string) (bool, error) {
	rec, ok, err := l.Lookup(ctx, epoch)
	if err != nil {
		return false, err
	}
	return ok && rec.Status == StatusConfirmed && rec.Root == root, nil
}
