package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/lutwrap/internal/ir"
)

// DefaultEventLimit caps Events when the filter sets no limit.
const DefaultEventLimit = 100

// EventFilter narrows an event log read.
type EventFilter struct {
	Record *ir.Address // Only events of this record
	After  int64       // Only events with seq > After
	Limit  int         // At most Limit events; 0 means DefaultEventLimit
}

// Events returns events matching f ordered by seq.
// Returns an empty slice (not nil) if none match.
func (s *Store) Events(ctx context.Context, f EventFilter) ([]ir.Event, error) {
	var (
		where = []string{"seq > ?"}
		args  = []any{f.After}
	)
	if f.Record != nil {
		where = append(where, "record = ?")
		args = append(args, f.Record.String())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, payload
		FROM events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY seq ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev      ir.Event
			payload string
		)
		if err := rows.Scan(&ev.Seq, &ev.ID, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event %d payload: %w", ev.Seq, err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// VerifyEvents recomputes every event id from its stored payload and
// returns an error naming the first event whose id does not match.
func (s *Store) VerifyEvents(ctx context.Context) (int, error) {
	var (
		after    int64
		verified int
	)
	for {
		batch, err := s.Events(ctx, EventFilter{After: after, Limit: DefaultEventLimit})
		if err != nil {
			return verified, err
		}
		if len(batch) == 0 {
			return verified, nil
		}
		for _, ev := range batch {
			want, err := ir.EventID(ev)
			if err != nil {
				return verified, fmt.Errorf("event %d: %w", ev.Seq, err)
			}
			if want != ev.ID {
				return verified, fmt.Errorf("event %d: stored id %s does not match payload id %s", ev.Seq, ev.ID, want)
			}
			verified++
			after = ev.Seq
		}
	}
}
