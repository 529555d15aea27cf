package engine

import (
	"context"
	"errors"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/pda"
	"github.com/roach88/lutwrap/internal/store"
)

func (r CreateRequest) execute(ctx context.Context, e *Engine, requestID string) (Result, error) {
	if r.Caller.IsZero() {
		return Result{}, errInvalidRequest("create: caller is required")
	}

	auth, err := pda.RecordAuthority(e.programID, r.Caller, r.ID)
	if err != nil {
		return Result{}, errInternal("derive record authority", err)
	}
	expected, _, err := pda.TableAddress(e.directoryProgramID, auth.Address, r.RecentSlot)
	if err != nil {
		return Result{}, errInternal("derive table address", err)
	}
	if r.Table != nil && *r.Table != expected {
		return Result{}, errInvalidLookupTable(expected, *r.Table)
	}

	now := e.clock.Now()
	var res Result
	err = e.store.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.GetRecord(ctx, auth.Address)
		switch {
		case err == nil:
			return errRecordExists(auth.Address)
		case !errors.Is(err, store.ErrNotFound):
			return errInternal("load record", err)
		}

		table, err := e.host.Bind(tx).CreateTable(ctx, directory.CreateTableCall{
			Authority:  auth,
			Payer:      r.Caller,
			RecentSlot: r.RecentSlot,
		})
		if err != nil {
			return errDelegated("create_table", err)
		}
		if table != expected {
			return errInvalidLookupTable(expected, table)
		}

		rec := ir.Record{
			Address:          auth.Address,
			Bump:             auth.Bump,
			Owner:            r.Caller,
			ID:               r.ID,
			DirectoryAddress: table,
			LastMutatedAt:    now,
			CreatedAt:        now,
		}
		if err := tx.InsertRecord(ctx, rec); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return errRecordExists(rec.Address)
			}
			return errInternal("insert record", err)
		}

		owner := r.Caller
		ev, err := e.appendEvent(ctx, tx, ir.Event{
			Kind:      ir.EventCreated,
			RequestID: requestID,
			Record:    rec.Address,
			Table:     table,
			Slot:      now,
			Owner:     &owner,
		})
		if err != nil {
			return err
		}

		res = Result{Record: rec, Event: &ev, ReadyAt: rec.ReadyAt(e.policy.CooldownSlots)}
		return nil
	})
	if err != nil {
		return Result{}, errInternal("create", err)
	}
	return res, nil
}

func (r ExtendRequest) execute(ctx context.Context, e *Engine, requestID string) (Result, error) {
	if r.Caller.IsZero() {
		return Result{}, errInvalidRequest("extend: caller is required")
	}
	if len(r.Entries) == 0 {
		return Result{}, errInvalidRequest("extend: at least one entry is required")
	}

	now := e.clock.Now()
	var res Result
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, auth, err := e.authorize(ctx, tx, r.Caller, r.Record, r.Table)
		if err != nil {
			return err
		}

		if !rec.IsReady(now, e.policy.CooldownSlots) {
			return errNotReady(rec, now, e.policy.CooldownSlots)
		}

		prog := e.host.Bind(tx)
		guard, err := e.newGuard(ctx, prog, rec)
		if err != nil {
			return err
		}

		fresh := guard.filter(r.Entries)
		if len(fresh) == 0 {
			if e.policy.EmptyBatch == EmptyBatchNoop {
				res = Result{
					Record:  rec,
					Total:   rec.EntryCount,
					ReadyAt: rec.ReadyAt(e.policy.CooldownSlots),
					NoOp:    true,
				}
				return nil
			}
			return errNoNewEntries(len(r.Entries))
		}
		if err := guard.checkCapacity(len(fresh), e.policy.MaxEntries); err != nil {
			return err
		}

		start := rec.Known.Len()
		rec.EntryCount += uint64(len(fresh))
		rec.LastMutatedAt = now

		if err := prog.ExtendTable(ctx, directory.ExtendTableCall{
			Table:     rec.DirectoryAddress,
			Authority: auth,
			Payer:     r.Caller,
			Entries:   fresh,
		}); err != nil {
			return errDelegated("extend_table", err)
		}

		if err := tx.UpdateRecord(ctx, rec); err != nil {
			return errInternal("update record", err)
		}
		if e.policy.DedupSource == DedupMirror {
			if err := tx.AppendKnownEntries(ctx, rec.Address, start, fresh); err != nil {
				return errInternal("append known entries", err)
			}
			rec.Known = guard.mirrorWith(fresh)
		}

		ev, err := e.appendEvent(ctx, tx, ir.Event{
			Kind:         ir.EventExtended,
			RequestID:    requestID,
			Record:       rec.Address,
			Table:        rec.DirectoryAddress,
			Slot:         now,
			EntriesAdded: uint32(len(fresh)),
			TotalEntries: uint32(rec.EntryCount),
		})
		if err != nil {
			return err
		}

		res = Result{
			Record:  rec,
			Event:   &ev,
			Added:   len(fresh),
			Total:   rec.EntryCount,
			ReadyAt: rec.ReadyAt(e.policy.CooldownSlots),
		}
		return nil
	})
	if err != nil {
		return Result{}, errInternal("extend", err)
	}
	return res, nil
}

func (r DeactivateRequest) execute(ctx context.Context, e *Engine, requestID string) (Result, error) {
	if r.Caller.IsZero() {
		return Result{}, errInvalidRequest("deactivate: caller is required")
	}

	now := e.clock.Now()
	var res Result
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, auth, err := e.authorize(ctx, tx, r.Caller, r.Record, r.Table)
		if err != nil {
			return err
		}

		if err := e.host.Bind(tx).DeactivateTable(ctx, directory.DeactivateTableCall{
			Table:     rec.DirectoryAddress,
			Authority: auth,
		}); err != nil {
			return errDelegated("deactivate_table", err)
		}

		ev, err := e.appendEvent(ctx, tx, ir.Event{
			Kind:      ir.EventDeactivated,
			RequestID: requestID,
			Record:    rec.Address,
			Table:     rec.DirectoryAddress,
			Slot:      now,
		})
		if err != nil {
			return err
		}

		res = Result{Record: rec, Event: &ev}
		return nil
	})
	if err != nil {
		return Result{}, errInternal("deactivate", err)
	}
	return res, nil
}

func (r CloseRequest) execute(ctx context.Context, e *Engine, requestID string) (Result, error) {
	if r.Caller.IsZero() {
		return Result{}, errInvalidRequest("close: caller is required")
	}

	now := e.clock.Now()
	var res Result
	err := e.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, auth, err := e.authorize(ctx, tx, r.Caller, r.Record, r.Table)
		if err != nil {
			return err
		}

		tableRent, err := e.host.Bind(tx).CloseTable(ctx, directory.CloseTableCall{
			Table:     rec.DirectoryAddress,
			Authority: auth,
			Recipient: r.Caller,
		})
		if err != nil {
			return errDelegated("close_table", err)
		}

		// The record goes only after the table close has succeeded.
		if err := tx.DeleteRecord(ctx, rec.Address); err != nil {
			return errInternal("delete record", err)
		}

		reclaimed := tableRent + directory.RentExempt(ir.RecordSpace)
		ev, err := e.appendEvent(ctx, tx, ir.Event{
			Kind:      ir.EventClosed,
			RequestID: requestID,
			Record:    rec.Address,
			Table:     rec.DirectoryAddress,
			Slot:      now,
			Reclaimed: reclaimed,
		})
		if err != nil {
			return err
		}

		res = Result{Record: rec, Event: &ev, Reclaimed: reclaimed}
		return nil
	})
	if err != nil {
		return Result{}, errInternal("close", err)
	}
	return res, nil
}

// authorize loads the record and checks that caller owns it and that
// table is its directory table. It returns the record's signing token.
func (e *Engine) authorize(ctx context.Context, tx *store.Tx, caller, record, table ir.Address) (ir.Record, pda.Authority, error) {
	rec, err := tx.GetRecord(ctx, record)
	if errors.Is(err, store.ErrNotFound) {
		return ir.Record{}, pda.Authority{}, errRecordNotFound(record)
	}
	if err != nil {
		return ir.Record{}, pda.Authority{}, errInternal("load record", err)
	}

	if rec.Owner != caller {
		return ir.Record{}, pda.Authority{}, errUnauthorized("caller does not own the record")
	}
	if rec.DirectoryAddress != table {
		return ir.Record{}, pda.Authority{}, errUnauthorized("table is not the record's directory table")
	}

	auth, err := pda.RecordAuthorityWithBump(e.programID, rec)
	if err != nil {
		return ir.Record{}, pda.Authority{}, errInternal("rebuild record authority", err)
	}
	return rec, auth, nil
}

// appendEvent assigns the event id and writes it in tx.
func (e *Engine) appendEvent(ctx context.Context, tx *store.Tx, ev ir.Event) (ir.Event, error) {
	id, err := ir.EventID(ev)
	if err != nil {
		return ev, errInternal("compute event id", err)
	}
	ev.ID = id
	stored, err := tx.AppendEvent(ctx, ev)
	if err != nil {
		return ev, errInternal("append event", err)
	}
	return stored, nil
}
