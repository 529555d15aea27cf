package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
)

const recordColumns = `address, bump, owner, record_id, directory_address, entry_count, last_mutated_at, created_at`

// GetRecord loads a record and its mirror. Returns ErrNotFound if absent.
func (s *Store) GetRecord(ctx context.Context, addr ir.Address) (ir.Record, error) {
	return getRecord(ctx, s.db, addr)
}

// ListRecords returns the records of owner ordered by id.
// Returns an empty slice (not nil) if the owner has none.
func (s *Store) ListRecords(ctx context.Context, owner ir.Address) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE owner = ?
		ORDER BY record_id ASC
	`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func getRecord(ctx context.Context, q querier, addr ir.Address) (ir.Record, error) {
	row := q.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE address = ?`, addr.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("record %s: %w", addr, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, err
	}

	known, err := loadKnownEntries(ctx, q, addr)
	if err != nil {
		return ir.Record{}, err
	}
	rec.Known = known
	return rec, nil
}

// loadKnownEntries returns the record's mirror, or nil if it has none.
func loadKnownEntries(ctx context.Context, q querier, record ir.Address) (*ir.EntrySet, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT entry FROM known_entries WHERE record = ? ORDER BY position ASC
	`, record.String())
	if err != nil {
		return nil, fmt.Errorf("query known entries: %w", err)
	}
	defer rows.Close()

	var entries []ir.Address
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan known entry: %w", err)
		}
		a, err := ir.ParseAddress(s)
		if err != nil {
			return nil, err
		}
		entries = append(entries, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known entries: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return ir.NewEntrySet(entries)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ir.Record, error) {
	var (
		rec                               ir.Record
		address, owner, dir               string
		bump, id, count, mutated, created int64
	)
	if err := row.Scan(&address, &bump, &owner, &id, &dir, &count, &mutated, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan record: %w", err)
	}

	var err error
	if rec.Address, err = ir.ParseAddress(address); err != nil {
		return rec, err
	}
	if rec.Owner, err = ir.ParseAddress(owner); err != nil {
		return rec, err
	}
	if rec.DirectoryAddress, err = ir.ParseAddress(dir); err != nil {
		return rec, err
	}
	rec.Bump = uint8(bump)
	rec.ID = uint64(id)
	rec.EntryCount = uint64(count)
	rec.LastMutatedAt = ir.Slot(mutated)
	rec.CreatedAt = ir.Slot(created)
	return rec, nil
}
