package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/store"
)

func TestLifecycle_EndToEnd(t *testing.T) {
	f := newFixture(t)
	a, b := addr("A"), addr("B")

	// create at slot 100 with recent slot 99
	res, err := f.engine.Create(f.ctx, CreateRequest{Caller: f.owner, ID: 0, RecentSlot: 99})
	require.NoError(t, err)
	rec := res.Record

	wantRecord, wantTable := expectedTable(t, f.owner, 0, 99)
	assert.Equal(t, wantRecord, rec.Address)
	assert.Equal(t, wantTable, rec.DirectoryAddress)
	assert.Equal(t, uint64(0), rec.EntryCount)
	assert.Equal(t, ir.Slot(100), rec.LastMutatedAt)
	assert.Equal(t, "req-1", res.RequestID)
	require.NotNil(t, res.Event)
	assert.Equal(t, ir.EventCreated, res.Event.Kind)

	tbl := f.table(t, rec.DirectoryAddress)
	assert.True(t, tbl.IsActive())
	require.NotNil(t, tbl.Meta.Authority)
	assert.Equal(t, rec.Address, *tbl.Meta.Authority)

	// extend at 110 fails inside the cooldown
	f.warp(t, 110)
	_, err = f.extend(rec, a, b)
	require.True(t, IsNotReady(err), "got %v", err)
	meta := ErrorMetadata(err)
	assert.Equal(t, uint64(115), meta["ready_at"])
	assert.Equal(t, uint64(5), meta["slots_remaining"])
	assert.Equal(t, uint64(0), f.record(t, rec.Address).EntryCount)

	// extend at 117 succeeds
	f.warp(t, 117)
	res, err = f.extend(rec, a, b)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, uint64(2), res.Total)
	assert.Equal(t, ir.Slot(132), res.ReadyAt)
	assert.Equal(t, []ir.Address{a, b}, f.table(t, rec.DirectoryAddress).Addresses)

	stored := f.record(t, rec.Address)
	assert.Equal(t, uint64(2), stored.EntryCount)
	assert.Equal(t, ir.Slot(117), stored.LastMutatedAt)

	// extend at 140 with only duplicates
	f.warp(t, 140)
	_, err = f.extend(rec, a, b)
	assert.True(t, IsNoNewEntries(err), "got %v", err)
	assert.Equal(t, uint64(2), f.record(t, rec.Address).EntryCount)

	// deactivate at 140, close at 141 is rejected by the directory
	_, err = f.engine.Deactivate(f.ctx, DeactivateRequest{Caller: f.owner, Record: rec.Address, Table: rec.DirectoryAddress})
	require.NoError(t, err)

	f.warp(t, 141)
	_, err = f.engine.Close(f.ctx, CloseRequest{Caller: f.owner, Record: rec.Address, Table: rec.DirectoryAddress})
	require.True(t, IsDelegatedFailure(err), "got %v", err)
	assert.Equal(t, string(directory.ErrCodeDeactivationCooldown), ErrorMetadata(err)["directory_code"])
	f.record(t, rec.Address)
	f.table(t, rec.DirectoryAddress)

	// close after the cooldown
	f.warp(t, 140+513+10)
	res, err = f.engine.Close(f.ctx, CloseRequest{Caller: f.owner, Record: rec.Address, Table: rec.DirectoryAddress})
	require.NoError(t, err)
	wantReclaimed := directory.RentExempt(directory.HeaderSize+2*ir.AddressSize) + directory.RentExempt(ir.RecordSpace)
	assert.Equal(t, wantReclaimed, res.Reclaimed)
	assert.Equal(t, wantReclaimed, res.Event.Reclaimed)

	_, err = f.store.GetRecord(f.ctx, rec.Address)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, ok, err := f.store.LoadTable(f.ctx, rec.DirectoryAddress)
	require.NoError(t, err)
	assert.False(t, ok)

	kinds := []ir.EventKind{}
	for _, ev := range f.events(t) {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []ir.EventKind{ir.EventCreated, ir.EventExtended, ir.EventDeactivated, ir.EventClosed}, kinds)
}

func TestCreate_DuplicateRecord(t *testing.T) {
	f := newFixture(t)
	f.create(t, 0)

	f.warp(t, 101)
	_, err := f.engine.Create(f.ctx, CreateRequest{Caller: f.owner, ID: 0, RecentSlot: 100})
	assert.Equal(t, CodeRecordExists, ErrorCode(err))

	// Same owner with another id is a separate record.
	other := f.create(t, 1)
	assert.Equal(t, uint64(1), other.ID)
}

func TestCreate_SuppliedTableMustMatch(t *testing.T) {
	f := newFixture(t)
	wrong := addr("not-the-table")

	_, err := f.engine.Create(f.ctx, CreateRequest{Caller: f.owner, ID: 0, RecentSlot: 99, Table: &wrong})
	assert.Equal(t, CodeInvalidLookupTable, ErrorCode(err))
	assert.Empty(t, f.events(t))

	_, table := expectedTable(t, f.owner, 0, 99)
	res, err := f.engine.Create(f.ctx, CreateRequest{Caller: f.owner, ID: 0, RecentSlot: 99, Table: &table})
	require.NoError(t, err)
	assert.Equal(t, table, res.Record.DirectoryAddress)
}

func TestCreate_ReturnedTableMismatchRollsBack(t *testing.T) {
	bogus := addr("bogus")
	f := newFixtureWithHost(t, func(p directory.Program) directory.Program {
		return faultyProgram{Program: p, createAddr: &bogus}
	})
	wantRecord, wantTable := expectedTable(t, f.owner, 0, 99)

	_, err := f.engine.Create(f.ctx, CreateRequest{Caller: f.owner, ID: 0, RecentSlot: 99})
	assert.Equal(t, CodeInvalidLookupTable, ErrorCode(err))

	_, err = f.store.GetRecord(f.ctx, wantRecord)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, ok, err := f.store.LoadTable(f.ctx, wantTable)
	require.NoError(t, err)
	assert.False(t, ok, "table created by the delegated call must roll back")
}

func TestCreate_StaleRecentSlot(t *testing.T) {
	f := newFixture(t)
	f.warp(t, 1000)

	_, err := f.engine.Create(f.ctx, CreateRequest{Caller: f.owner, ID: 0, RecentSlot: 10})
	assert.True(t, IsDelegatedFailure(err))
	assert.Equal(t, string(directory.ErrCodeSlotNotRecent), ErrorMetadata(err)["directory_code"])
}

func TestCreate_RequiresCaller(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(f.ctx, CreateRequest{ID: 0, RecentSlot: 99})
	assert.Equal(t, CodeInvalidRequest, ErrorCode(err))
}

func TestAuthorize_Rejections(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)
	other := f.create(t, 1)
	f.warp(t, 200)

	tests := []struct {
		name string
		req  ExtendRequest
		code string
	}{
		{"wrong caller", ExtendRequest{Caller: addr("mallory"), Record: rec.Address, Table: rec.DirectoryAddress, Entries: []ir.Address{addr("x")}}, CodeUnauthorized},
		{"other record's table", ExtendRequest{Caller: f.owner, Record: rec.Address, Table: other.DirectoryAddress, Entries: []ir.Address{addr("x")}}, CodeUnauthorized},
		{"missing record", ExtendRequest{Caller: f.owner, Record: addr("nope"), Table: rec.DirectoryAddress, Entries: []ir.Address{addr("x")}}, CodeRecordNotFound},
		{"no entries", ExtendRequest{Caller: f.owner, Record: rec.Address, Table: rec.DirectoryAddress}, CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.Extend(f.ctx, tt.req)
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}

	_, err := f.engine.Deactivate(f.ctx, DeactivateRequest{Caller: addr("mallory"), Record: rec.Address, Table: rec.DirectoryAddress})
	assert.True(t, IsUnauthorized(err))
	_, err = f.engine.Close(f.ctx, CloseRequest{Caller: f.owner, Record: addr("nope"), Table: rec.DirectoryAddress})
	assert.True(t, IsNotFound(err))
}

func TestExtend_IntraBatchDuplicatesCollapse(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)
	f.warp(t, 115)
	a, b := addr("A"), addr("B")

	res, err := f.extend(rec, a, a, b, a)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, []ir.Address{a, b}, f.table(t, rec.DirectoryAddress).Addresses)
}

func TestExtend_PartialDuplicatesAddOnlyNew(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)
	a, b, c := addr("A"), addr("B"), addr("C")

	f.warp(t, 115)
	_, err := f.extend(rec, a, b)
	require.NoError(t, err)

	f.warp(t, 130)
	res, err := f.extend(rec, b, c, a)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, uint64(3), res.Total)
	assert.Equal(t, []ir.Address{a, b, c}, f.table(t, rec.DirectoryAddress).Addresses)
}

func TestExtend_DuplicateBatchNeverIncreasesCount(t *testing.T) {
	for _, policy := range []EmptyBatchPolicy{EmptyBatchReject, EmptyBatchNoop} {
		t.Run(string(policy), func(t *testing.T) {
			p := DefaultPolicy()
			p.EmptyBatch = policy
			f := newFixture(t, WithPolicy(p))
			rec := f.create(t, 0)
			a := addr("A")

			f.warp(t, 115)
			_, err := f.extend(rec, a)
			require.NoError(t, err)
			before := f.events(t)

			f.warp(t, 200)
			res, err := f.extend(rec, a, a)
			if policy == EmptyBatchReject {
				assert.True(t, IsNoNewEntries(err))
			} else {
				require.NoError(t, err)
				assert.True(t, res.NoOp)
				assert.Nil(t, res.Event)
				assert.Equal(t, uint64(1), res.Total)
			}

			after := f.record(t, rec.Address)
			assert.Equal(t, uint64(1), after.EntryCount)
			assert.Equal(t, ir.Slot(115), after.LastMutatedAt, "a no-op does not restart the cooldown")
			assert.Equal(t, before, f.events(t))
		})
	}
}

func TestExtend_CapacityCeiling(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)

	batch := make([]ir.Address, ir.MaxEntries+1)
	for i := range batch {
		batch[i] = addr(string(rune(0x100 + i)))
	}

	f.warp(t, 115)
	_, err := f.extend(rec, batch...)
	assert.True(t, IsCapacityExceeded(err), "got %v", err)

	res, err := f.extend(rec, batch[:ir.MaxEntries-1]...)
	require.NoError(t, err)
	assert.Equal(t, uint64(ir.MaxEntries-1), res.Total)

	f.warp(t, 200)
	_, err = f.extend(rec, batch[ir.MaxEntries-1:]...)
	assert.True(t, IsCapacityExceeded(err))
	meta := ErrorMetadata(err)
	assert.Equal(t, ir.MaxEntries-1, meta["current"])
	assert.Equal(t, 2, meta["adding"])

	res, err = f.extend(rec, batch[ir.MaxEntries-1])
	require.NoError(t, err)
	assert.Equal(t, uint64(ir.MaxEntries), res.Total)
	assert.Len(t, f.table(t, rec.DirectoryAddress).Addresses, ir.MaxEntries)
}

func TestExtend_PolicyMaxEntries(t *testing.T) {
	p := DefaultPolicy()
	p.MaxEntries = 3
	f := newFixture(t, WithPolicy(p))
	rec := f.create(t, 0)

	f.warp(t, 115)
	_, err := f.extend(rec, addr("a"), addr("b"), addr("c"), addr("d"))
	assert.True(t, IsCapacityExceeded(err))
}

func TestExtend_CooldownMonotonic(t *testing.T) {
	p := DefaultPolicy()
	p.CooldownSlots = 150
	f := newFixture(t, WithPolicy(p))
	rec := f.create(t, 0)

	for _, slot := range []ir.Slot{100, 149, 249} {
		f.warp(t, slot)
		_, err := f.extend(rec, addr("x"))
		assert.True(t, IsNotReady(err), "slot %d", slot)
	}
	f.warp(t, 250)
	_, err := f.extend(rec, addr("x"))
	assert.NoError(t, err)
}

func TestExtend_DelegatedFailureRollsBack(t *testing.T) {
	boom := errors.New("ledger unavailable")
	f := newFixtureWithHost(t, func(p directory.Program) directory.Program {
		return faultyProgram{Program: p, extendErr: boom}
	})
	rec := f.create(t, 0)

	f.warp(t, 115)
	_, err := f.extend(rec, addr("a"))
	assert.True(t, IsDelegatedFailure(err))

	after := f.record(t, rec.Address)
	assert.Equal(t, uint64(0), after.EntryCount)
	assert.Equal(t, ir.Slot(100), after.LastMutatedAt)
	assert.Empty(t, f.table(t, rec.DirectoryAddress).Addresses)
	assert.Len(t, f.events(t), 1)
}

func TestExtend_MirrorDedup(t *testing.T) {
	p := DefaultPolicy()
	p.DedupSource = DedupMirror
	f := newFixture(t, WithPolicy(p))
	rec := f.create(t, 0)
	a, b := addr("A"), addr("B")

	f.warp(t, 115)
	res, err := f.extend(rec, a)
	require.NoError(t, err)
	assert.Equal(t, []ir.Address{a}, res.Record.KnownEntries())

	f.warp(t, 130)
	res, err = f.extend(rec, a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, []ir.Address{a, b}, f.record(t, rec.Address).KnownEntries())

	f.warp(t, 145)
	_, err = f.extend(rec, b)
	assert.True(t, IsNoNewEntries(err))
}

func TestExtend_TableModeKeepsNoMirror(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)

	f.warp(t, 115)
	_, err := f.extend(rec, addr("A"))
	require.NoError(t, err)
	assert.Nil(t, f.record(t, rec.Address).Known)
}

func TestDeactivate_Twice(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)
	req := DeactivateRequest{Caller: f.owner, Record: rec.Address, Table: rec.DirectoryAddress}

	_, err := f.engine.Deactivate(f.ctx, req)
	require.NoError(t, err)
	_, err = f.engine.Deactivate(f.ctx, req)
	assert.True(t, IsDelegatedFailure(err))
	assert.Equal(t, string(directory.ErrCodeTableAlreadyDeactivated), ErrorMetadata(err)["directory_code"])

	// Extending a deactivated table is refused by the directory.
	f.warp(t, 200)
	_, err = f.extend(rec, addr("x"))
	assert.True(t, IsDelegatedFailure(err))
}

func TestClose_ActiveTableRejected(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)

	_, err := f.engine.Close(f.ctx, CloseRequest{Caller: f.owner, Record: rec.Address, Table: rec.DirectoryAddress})
	assert.True(t, IsDelegatedFailure(err))
	f.record(t, rec.Address)
}

func TestApply_RecordsOutcomes(t *testing.T) {
	f := newFixture(t)
	rec := f.create(t, 0)
	_, _ = f.extend(rec, addr("A"))
	f.warp(t, 115)
	_, err := f.extend(rec, addr("A"))
	require.NoError(t, err)

	assert.Equal(t, []observation{
		{OpCreate, OutcomeOK},
		{OpExtend, CodeNotReady},
		{OpExtend, OutcomeOK},
	}, f.recorder.ops)
	assert.Equal(t, uint64(1), f.recorder.extends[rec.Address])
}
