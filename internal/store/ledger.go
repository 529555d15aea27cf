package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
)

const slotKey = "slot"

// Slot returns the persisted ledger slot, or zero if none was stored.
func (s *Store) Slot(ctx context.Context) (ir.Slot, error) {
	return readSlot(ctx, s.db)
}

// SetSlot persists the ledger slot.
func (s *Store) SetSlot(ctx context.Context, slot ir.Slot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, slotKey, int64(slot))
	if err != nil {
		return fmt.Errorf("set slot: %w", err)
	}
	return nil
}

func readSlot(ctx context.Context, q querier) (ir.Slot, error) {
	var v int64
	err := q.QueryRowContext(ctx, `SELECT value FROM ledger WHERE key = ?`, slotKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read slot: %w", err)
	}
	return ir.Slot(v), nil
}
