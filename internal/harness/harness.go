package harness

import (
	"context"
	"fmt"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/store"
	"github.com/roach88/lutwrap/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios with a deterministic clock, request ids and addresses.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *engine.Clock
	native *directory.Native
	book   *testutil.AddressBook
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// A returned error means the harness itself failed; scenario failures are
// reported through Result.Pass and Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.runStep(ctx, i, step)
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		result.AddTrace(ev)
		for _, msg := range checkExpect(step, ev) {
			result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Op, msg))
		}
	}

	for i, a := range scenario.Assertions {
		if err := h.evaluate(ctx, a); err != nil {
			result.AddError(fmt.Sprintf("assertions[%d] (%s): %v", i, a.Type, err))
		}
	}
	return result, nil
}

func newHarness(scenario *Scenario) (*Harness, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var native directory.NativeConfig
	if d := scenario.Directory; d != nil {
		native.RecentSlotWindow = d.RecentSlotWindow
		native.DeactivationCooldown = d.DeactivationCooldown
	}

	clock := engine.NewClockAt(ir.Slot(scenario.startSlot()))
	host := directory.NewNative(clock, native)
	eng := engine.New(st, host, clock,
		engine.WithPolicy(scenario.policy()),
		engine.WithRequestIDs(engine.NewSequenceGenerator("req")),
		engine.WithLogger(glog.Nop()),
	)

	return &Harness{
		store:  st,
		engine: eng,
		clock:  clock,
		native: host,
		book:   testutil.NewAddressBook(),
	}, nil
}

// runStep executes one step. Operation failures become the trace outcome;
// only harness failures (unknown names, clock misuse) are returned.
func (h *Harness) runStep(ctx context.Context, index int, step Step) (TraceEvent, error) {
	if step.At != nil {
		if err := h.clock.WarpTo(ir.Slot(*step.At)); err != nil {
			return TraceEvent{}, err
		}
	}

	ev := TraceEvent{Step: index, Op: step.Op, Slot: uint64(h.clock.Now())}
	if step.Op == OpWarp {
		ev.Outcome = engine.OutcomeOK
		return ev, nil
	}

	req, err := h.request(ctx, step)
	if err != nil {
		return TraceEvent{}, err
	}

	res, err := h.engine.Apply(ctx, req)
	if err != nil {
		ev.Outcome = engine.ErrorCode(err)
		if code, ok := engine.ErrorMetadata(err)["directory_code"].(string); ok {
			ev.DirectoryCode = code
		}
		return ev, nil
	}

	if step.Op == OpCreate {
		name := fmt.Sprintf("%s/%d", step.Caller, step.ID)
		h.book.Alias(name, res.Record.Address)
		h.book.Alias(name+"/table", res.Record.DirectoryAddress)
	}

	ev.Outcome = engine.OutcomeOK
	if res.NoOp {
		ev.Outcome = engine.OutcomeNoop
	}
	ev.RequestID = res.RequestID
	ev.Record = h.book.Name(res.Record.Address)
	ev.Table = h.book.Name(res.Record.DirectoryAddress)
	switch step.Op {
	case OpExtend:
		ev.Added = res.Added
		ev.Total = res.Total
		ev.ReadyAt = uint64(res.ReadyAt)
	case OpClose:
		ev.Reclaimed = res.Reclaimed
	}
	if res.Event != nil {
		ev.Event = string(res.Event.Kind)
		ev.EventSeq = res.Event.Seq
	}
	return ev, nil
}

// request builds the engine request for step, resolving names through
// the address book.
func (h *Harness) request(ctx context.Context, step Step) (engine.Request, error) {
	caller := h.book.Address(step.Caller)

	if step.Op == OpCreate {
		recent := h.clock.Now().SubSat(1)
		if step.RecentSlot != nil {
			recent = *step.RecentSlot
		}
		req := engine.CreateRequest{Caller: caller, ID: step.ID, RecentSlot: ir.Slot(recent)}
		if step.Table != "" {
			table := h.resolve(step.Table)
			req.Table = &table
		}
		return req, nil
	}

	record, ok := h.book.Lookup(step.Record)
	if !ok {
		return nil, fmt.Errorf("unknown record %q", step.Record)
	}
	table, err := h.table(ctx, step, record)
	if err != nil {
		return nil, err
	}

	switch step.Op {
	case OpExtend:
		return engine.ExtendRequest{Caller: caller, Record: record, Table: table, Entries: h.book.Addresses(step.Entries...)}, nil
	case OpDeactivate:
		return engine.DeactivateRequest{Caller: caller, Record: record, Table: table}, nil
	default:
		return engine.CloseRequest{Caller: caller, Record: record, Table: table}, nil
	}
}

// table resolves the supplied table of step: an explicit name, else the
// record's own table.
func (h *Harness) table(ctx context.Context, step Step, record ir.Address) (ir.Address, error) {
	if step.Table != "" {
		return h.resolve(step.Table), nil
	}
	if a, ok := h.book.Lookup(step.Record + "/table"); ok {
		return a, nil
	}
	rec, err := h.store.GetRecord(ctx, record)
	if err != nil {
		return ir.Address{}, fmt.Errorf("record %q: %w", step.Record, err)
	}
	return rec.DirectoryAddress, nil
}

// resolve returns the registered address for name, or a fresh book
// address for names never registered.
func (h *Harness) resolve(name string) ir.Address {
	if a, ok := h.book.Lookup(name); ok {
		return a
	}
	return h.book.Address(name)
}

// checkExpect compares a step outcome with its expectation.
func checkExpect(step Step, ev TraceEvent) []string {
	var errs []string
	want := step.Expect
	if want == nil {
		want = &Expect{}
	}

	switch {
	case want.Error == "" && ev.Outcome != engine.OutcomeOK && ev.Outcome != engine.OutcomeNoop:
		return append(errs, fmt.Sprintf("expected success, got %s", ev.Outcome))
	case want.Error != "" && ev.Outcome != want.Error:
		return append(errs, fmt.Sprintf("expected error %s, got %s", want.Error, ev.Outcome))
	case want.Error != "":
		if want.DirectoryCode != "" && ev.DirectoryCode != want.DirectoryCode {
			errs = append(errs, fmt.Sprintf("expected directory code %s, got %q", want.DirectoryCode, ev.DirectoryCode))
		}
		return errs
	}

	noop := ev.Outcome == engine.OutcomeNoop
	if want.NoOp != nil && *want.NoOp != noop {
		errs = append(errs, fmt.Sprintf("expected noop=%t, got %t", *want.NoOp, noop))
	}
	if want.NoOp == nil && noop {
		errs = append(errs, "unexpected noop")
	}
	if want.Added != nil && *want.Added != ev.Added {
		errs = append(errs, fmt.Sprintf("expected added=%d, got %d", *want.Added, ev.Added))
	}
	if want.Total != nil && *want.Total != ev.Total {
		errs = append(errs, fmt.Sprintf("expected total=%d, got %d", *want.Total, ev.Total))
	}
	if want.ReadyAt != nil && *want.ReadyAt != ev.ReadyAt {
		errs = append(errs, fmt.Sprintf("expected ready_at=%d, got %d", *want.ReadyAt, ev.ReadyAt))
	}
	if want.Reclaimed != nil && *want.Reclaimed != ev.Reclaimed {
		errs = append(errs, fmt.Sprintf("expected reclaimed=%d, got %d", *want.Reclaimed, ev.Reclaimed))
	}
	return errs
}
