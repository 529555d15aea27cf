package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
)

// LoadTable returns the raw data of a directory table account.
func (s *Store) LoadTable(ctx context.Context, addr ir.Address) ([]byte, bool, error) {
	return loadTable(ctx, s.db, addr)
}

func loadTable(ctx context.Context, q querier, addr ir.Address) ([]byte, bool, error) {
	var data []byte
	err := q.QueryRowContext(ctx, `SELECT data FROM tables WHERE address = ?`, addr.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load table %s: %w", addr, err)
	}
	return data, true, nil
}
