package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
)

// Tx is a write transaction. It exposes the record, mirror, event and
// ledger writes an operation needs and implements directory.Accounts so a
// bound directory program writes into the same transaction.
type Tx struct {
	tx *sql.Tx
}

var _ directory.Accounts = (*Tx)(nil)

// WithTx runs fn inside a transaction. The transaction commits if fn
// returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback() // No-op if committed

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetRecord loads a record and its mirror. Returns ErrNotFound if absent.
func (t *Tx) GetRecord(ctx context.Context, addr ir.Address) (ir.Record, error) {
	return getRecord(ctx, t.tx, addr)
}

// InsertRecord stores a new record. Returns ErrConflict if the address,
// the (owner, id) pair or the directory address is already taken.
func (t *Tx) InsertRecord(ctx context.Context, rec ir.Record) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO records
		(address, bump, owner, record_id, directory_address, entry_count, last_mutated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Address.String(),
		int64(rec.Bump),
		rec.Owner.String(),
		int64(rec.ID),
		rec.DirectoryAddress.String(),
		int64(rec.EntryCount),
		int64(rec.LastMutatedAt),
		int64(rec.CreatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("insert record %s: %w", rec.Address, ErrConflict)
		}
		return fmt.Errorf("insert record %s: %w", rec.Address, err)
	}
	return nil
}

// UpdateRecord writes the mutable fields of rec (entry count and last
// mutated slot). Returns ErrNotFound if the record does not exist.
func (t *Tx) UpdateRecord(ctx context.Context, rec ir.Record) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE records SET entry_count = ?, last_mutated_at = ?
		WHERE address = ?
	`, int64(rec.EntryCount), int64(rec.LastMutatedAt), rec.Address.String())
	if err != nil {
		return fmt.Errorf("update record %s: %w", rec.Address, err)
	}
	return expectOneRow(res, "update record", rec.Address)
}

// DeleteRecord removes a record. Its mirror rows cascade.
func (t *Tx) DeleteRecord(ctx context.Context, addr ir.Address) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM records WHERE address = ?`, addr.String())
	if err != nil {
		return fmt.Errorf("delete record %s: %w", addr, err)
	}
	return expectOneRow(res, "delete record", addr)
}

// AppendKnownEntries appends entries to a record's mirror starting at
// position start.
func (t *Tx) AppendKnownEntries(ctx context.Context, record ir.Address, start int, entries []ir.Address) error {
	for i, e := range entries {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO known_entries (record, position, entry) VALUES (?, ?, ?)
		`, record.String(), start+i, e.String())
		if err != nil {
			if isConstraintError(err) {
				return fmt.Errorf("append known entry %s: %w", e, ErrConflict)
			}
			return fmt.Errorf("append known entry %s: %w", e, err)
		}
	}
	return nil
}

// AppendEvent writes ev to the log and returns it with its assigned Seq.
// ev.ID must already be set.
func (t *Tx) AppendEvent(ctx context.Context, ev ir.Event) (ir.Event, error) {
	if ev.ID == "" {
		return ev, fmt.Errorf("append event: missing id")
	}
	payload, err := ir.MarshalCanonical(ev.Payload())
	if err != nil {
		return ev, fmt.Errorf("append event: %w", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO events (id, kind, request_id, record, table_address, slot, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID,
		string(ev.Kind),
		ev.RequestID,
		ev.Record.String(),
		ev.Table.String(),
		int64(ev.Slot),
		string(payload),
	)
	if err != nil {
		if isConstraintError(err) {
			return ev, fmt.Errorf("append event %s: %w", ev.ID, ErrConflict)
		}
		return ev, fmt.Errorf("append event %s: %w", ev.ID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return ev, fmt.Errorf("append event: %w", err)
	}
	ev.Seq = seq
	return ev, nil
}

// LoadTable implements directory.Accounts.
func (t *Tx) LoadTable(ctx context.Context, addr ir.Address) ([]byte, bool, error) {
	return loadTable(ctx, t.tx, addr)
}

// StoreTable implements directory.Accounts.
func (t *Tx) StoreTable(ctx context.Context, addr ir.Address, data []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tables (address, data) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET data = excluded.data
	`, addr.String(), data)
	if err != nil {
		return fmt.Errorf("store table %s: %w", addr, err)
	}
	return nil
}

// DeleteTable implements directory.Accounts.
func (t *Tx) DeleteTable(ctx context.Context, addr ir.Address) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM tables WHERE address = ?`, addr.String()); err != nil {
		return fmt.Errorf("delete table %s: %w", addr, err)
	}
	return nil
}

func expectOneRow(res sql.Result, op string, addr ir.Address) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, addr, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, addr, ErrNotFound)
	}
	return nil
}
