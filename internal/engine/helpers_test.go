package engine

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"sync"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/pda"
	"github.com/roach88/lutwrap/internal/store"
)

func addr(name string) ir.Address {
	return ir.Address(sha256.Sum256([]byte("engine-test/" + name)))
}

type fixture struct {
	ctx      context.Context
	store    *store.Store
	clock    *Clock
	engine   *Engine
	recorder *captureRecorder
	owner    ir.Address
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithHost(t, nil, opts...)
}

// newFixtureWithHost builds an engine over a temp store and the native
// program. wrap, when non-nil, decorates every bound program.
func newFixtureWithHost(t *testing.T, wrap func(directory.Program) directory.Program, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "lutwrap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := NewClockAt(100)
	var host directory.Host = directory.NewNative(clock, directory.NativeConfig{})
	if wrap != nil {
		host = wrappedHost{Host: host, wrap: wrap}
	}

	rec := &captureRecorder{}
	base := []Option{
		WithLogger(glog.Nop()),
		WithRequestIDs(NewSequenceGenerator("req")),
		WithRecorder(rec),
	}
	e := New(s, host, clock, append(base, opts...)...)

	return &fixture{
		ctx:      context.Background(),
		store:    s,
		clock:    clock,
		engine:   e,
		recorder: rec,
		owner:    addr("alice"),
	}
}

// create makes record id for the fixture owner at the current slot with
// recent slot now-1.
func (f *fixture) create(t *testing.T, id uint64) ir.Record {
	t.Helper()
	res, err := f.engine.Create(f.ctx, CreateRequest{Caller: f.owner, ID: id, RecentSlot: f.clock.Now() - 1})
	require.NoError(t, err)
	return res.Record
}

func (f *fixture) extend(rec ir.Record, entries ...ir.Address) (Result, error) {
	return f.engine.Extend(f.ctx, ExtendRequest{Caller: f.owner, Record: rec.Address, Table: rec.DirectoryAddress, Entries: entries})
}

func (f *fixture) warp(t *testing.T, slot ir.Slot) {
	t.Helper()
	require.NoError(t, f.clock.WarpTo(slot))
}

func (f *fixture) record(t *testing.T, a ir.Address) ir.Record {
	t.Helper()
	rec, err := f.store.GetRecord(f.ctx, a)
	require.NoError(t, err)
	return rec
}

func (f *fixture) table(t *testing.T, a ir.Address) directory.Table {
	t.Helper()
	data, ok, err := f.store.LoadTable(f.ctx, a)
	require.NoError(t, err)
	require.True(t, ok, "table %s missing", a)
	tbl, err := directory.DecodeTable(data)
	require.NoError(t, err)
	return tbl
}

func (f *fixture) events(t *testing.T) []ir.Event {
	t.Helper()
	evs, err := f.store.Events(f.ctx, store.EventFilter{})
	require.NoError(t, err)
	return evs
}

func expectedTable(t *testing.T, owner ir.Address, id uint64, recent ir.Slot) (ir.Address, ir.Address) {
	t.Helper()
	rec, _, err := pda.RecordAddress(ir.WrapperProgramID, owner, id)
	require.NoError(t, err)
	table, _, err := pda.TableAddress(ir.DirectoryProgramID, rec, recent)
	require.NoError(t, err)
	return rec, table
}

type wrappedHost struct {
	directory.Host
	wrap func(directory.Program) directory.Program
}

func (h wrappedHost) Bind(a directory.Accounts) directory.Program {
	return h.wrap(h.Host.Bind(a))
}

// faultyProgram lets tests substitute results of the native program.
type faultyProgram struct {
	directory.Program
	createAddr *ir.Address // Returned instead of the real table address
	extendErr  error       // Returned after the real extend ran
}

func (p faultyProgram) CreateTable(ctx context.Context, call directory.CreateTableCall) (ir.Address, error) {
	got, err := p.Program.CreateTable(ctx, call)
	if err == nil && p.createAddr != nil {
		return *p.createAddr, nil
	}
	return got, err
}

func (p faultyProgram) ExtendTable(ctx context.Context, call directory.ExtendTableCall) error {
	if err := p.Program.ExtendTable(ctx, call); err != nil {
		return err
	}
	return p.extendErr
}

type observation struct {
	op      Operation
	outcome string
}

type captureRecorder struct {
	mu        sync.Mutex
	ops       []observation
	extends   map[ir.Address]uint64
	forgotten []ir.Address
}

func (r *captureRecorder) ObserveOperation(op Operation, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, observation{op, outcome})
}

func (r *captureRecorder) ObserveExtend(record ir.Address, _ int, total uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.extends == nil {
		r.extends = make(map[ir.Address]uint64)
	}
	r.extends[record] = total
}

func (r *captureRecorder) ForgetRecord(record ir.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgotten = append(r.forgotten, record)
}
