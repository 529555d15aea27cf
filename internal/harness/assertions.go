package harness

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/store"
)

// evaluate checks one assertion against the final state.
func (h *Harness) evaluate(ctx context.Context, a Assertion) error {
	switch a.Type {
	case AssertRecord:
		return h.assertRecord(ctx, a)
	case AssertRecordAbsent:
		return h.assertRecordAbsent(ctx, a)
	case AssertTable:
		return h.assertTable(ctx, a)
	case AssertTableAbsent:
		return h.assertTableAbsent(ctx, a)
	case AssertEventKinds:
		return h.assertEventKinds(ctx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func (h *Harness) lookup(name string) (ir.Address, error) {
	a, ok := h.book.Lookup(name)
	if !ok {
		return ir.Address{}, fmt.Errorf("unknown name %q", name)
	}
	return a, nil
}

func (h *Harness) assertRecord(ctx context.Context, a Assertion) error {
	addr, err := h.lookup(a.Record)
	if err != nil {
		return err
	}
	rec, err := h.store.GetRecord(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("record %s does not exist", a.Record)
	}
	if err != nil {
		return err
	}

	if a.EntryCount != nil && rec.EntryCount != *a.EntryCount {
		return fmt.Errorf("record %s: entry_count = %d, expected %d", a.Record, rec.EntryCount, *a.EntryCount)
	}
	if a.LastMutatedAt != nil && uint64(rec.LastMutatedAt) != *a.LastMutatedAt {
		return fmt.Errorf("record %s: last_mutated_at = %d, expected %d", a.Record, rec.LastMutatedAt, *a.LastMutatedAt)
	}
	return nil
}

func (h *Harness) assertRecordAbsent(ctx context.Context, a Assertion) error {
	addr, err := h.lookup(a.Record)
	if err != nil {
		// Never created, so certainly absent.
		return nil
	}
	_, err = h.store.GetRecord(ctx, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("record %s exists", a.Record)
}

func (h *Harness) assertTable(ctx context.Context, a Assertion) error {
	tbl, found, err := h.loadTable(ctx, a.Table)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("table %s does not exist", a.Table)
	}

	cooldown := h.native.Config().DeactivationCooldown
	if got := tbl.Status(h.clock.Now(), cooldown).State; string(got) != a.State {
		return fmt.Errorf("table %s: state = %s, expected %s", a.Table, got, a.State)
	}
	if a.Entries != nil {
		got := make([]string, len(tbl.Addresses))
		for i, addr := range tbl.Addresses {
			got[i] = h.book.Name(addr)
		}
		if !slices.Equal(got, a.Entries) {
			return fmt.Errorf("table %s: entries = %v, expected %v", a.Table, got, a.Entries)
		}
	}
	return nil
}

func (h *Harness) assertTableAbsent(ctx context.Context, a Assertion) error {
	_, found, err := h.loadTable(ctx, a.Table)
	if err != nil {
		return err
	}
	if found {
		return fmt.Errorf("table %s exists", a.Table)
	}
	return nil
}

func (h *Harness) assertEventKinds(ctx context.Context, a Assertion) error {
	events, err := h.store.Events(ctx, store.EventFilter{Limit: 10000})
	if err != nil {
		return err
	}
	got := make([]string, len(events))
	for i, ev := range events {
		got[i] = string(ev.Kind)
	}
	if !slices.Equal(got, a.Kinds) {
		return fmt.Errorf("event kinds = %v, expected %v", got, a.Kinds)
	}
	return nil
}

func (h *Harness) loadTable(ctx context.Context, name string) (directory.Table, bool, error) {
	addr, err := h.lookup(name)
	if err != nil {
		return directory.Table{}, false, err
	}
	data, found, err := h.store.LoadTable(ctx, addr)
	if err != nil || !found {
		return directory.Table{}, false, err
	}
	tbl, err := directory.DecodeTable(data)
	if err != nil {
		return directory.Table{}, false, fmt.Errorf("table %s: %w", name, err)
	}
	return tbl, true, nil
}
