package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lutwrap/internal/ir"
)

func appendTestEvents(t *testing.T, s *Store, events ...ir.Event) []ir.Event {
	t.Helper()
	ctx := context.Background()
	var out []ir.Event
	require.NoError(t, s.WithTx(ctx, func(tx *Tx) error {
		for _, ev := range events {
			ev.ID = ir.MustEventID(ev)
			stored, err := tx.AppendEvent(ctx, ev)
			if err != nil {
				return err
			}
			out = append(out, stored)
		}
		return nil
	}))
	return out
}

func TestEvents_AppendAssignsSeqAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	owner := testAddr("alice")
	rec, table := testAddr("record"), testAddr("table")

	stored := appendTestEvents(t, s,
		ir.Event{Kind: ir.EventCreated, RequestID: "req-1", Record: rec, Table: table, Slot: 100, Owner: &owner},
		ir.Event{Kind: ir.EventExtended, RequestID: "req-2", Record: rec, Table: table, Slot: 117, EntriesAdded: 2, TotalEntries: 2},
		ir.Event{Kind: ir.EventClosed, RequestID: "req-3", Record: rec, Table: table, Slot: 663, Reclaimed: 1_000_000},
	)
	require.Len(t, stored, 3)
	assert.Less(t, stored[0].Seq, stored[1].Seq)
	assert.Less(t, stored[1].Seq, stored[2].Seq)

	got, err := s.Events(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, stored, got)
}

func TestEvents_Filter(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	r1, r2, table := testAddr("r1"), testAddr("r2"), testAddr("table")

	stored := appendTestEvents(t, s,
		ir.Event{Kind: ir.EventDeactivated, RequestID: "a", Record: r1, Table: table, Slot: 1},
		ir.Event{Kind: ir.EventDeactivated, RequestID: "b", Record: r2, Table: table, Slot: 2},
		ir.Event{Kind: ir.EventDeactivated, RequestID: "c", Record: r1, Table: table, Slot: 3},
	)

	byRecord, err := s.Events(ctx, EventFilter{Record: &r1})
	require.NoError(t, err)
	require.Len(t, byRecord, 2)
	assert.Equal(t, "a", byRecord[0].RequestID)
	assert.Equal(t, "c", byRecord[1].RequestID)

	after, err := s.Events(ctx, EventFilter{After: stored[0].Seq, Limit: 1})
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "b", after[0].RequestID)
}

func TestEvents_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ev := ir.Event{Kind: ir.EventDeactivated, RequestID: "a", Record: testAddr("r"), Table: testAddr("t"), Slot: 1}
	appendTestEvents(t, s, ev)

	err := s.WithTx(ctx, func(tx *Tx) error {
		ev.ID = ir.MustEventID(ev)
		_, err := tx.AppendEvent(ctx, ev)
		return err
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEvents_AppendRequiresID(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	err := s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.AppendEvent(ctx, ir.Event{Kind: ir.EventClosed})
		return err
	})
	assert.Error(t, err)
}

func TestVerifyEvents(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	appendTestEvents(t, s,
		ir.Event{Kind: ir.EventDeactivated, RequestID: "a", Record: testAddr("r"), Table: testAddr("t"), Slot: 1},
		ir.Event{Kind: ir.EventDeactivated, RequestID: "b", Record: testAddr("r"), Table: testAddr("t"), Slot: 2},
	)

	n, err := s.VerifyEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.DB().Exec(`UPDATE events SET payload = replace(payload, '"slot":2', '"slot":3') WHERE request_id = 'b'`)
	require.NoError(t, err)

	n, err = s.VerifyEvents(ctx)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
