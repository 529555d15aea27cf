package engine

import (
	"context"
	"errors"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/store"
)

// ErrStopped is returned by Submit once the engine has stopped.
var ErrStopped = errors.New("engine: stopped")

// RequestIDGenerator generates unique request ids for correlation.
// Implemented by UUIDv7Generator (production), FixedGenerator and
// SequenceGenerator (tests, scenarios).
type RequestIDGenerator interface {
	Generate() string
}

// Engine applies lifecycle operations to wrapper records.
//
// Each operation runs in a single store transaction. The directory program
// is bound to that transaction, so the record change, the table account
// change and the event are committed together or not at all.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine, serialized through the Run loop
//   - Run(): must be called from exactly one goroutine
//   - Create/Extend/Deactivate/Close: callers must serialize access
//     themselves (CLI, harness); SQLite's single connection is the only
//     guard otherwise
type Engine struct {
	store              *store.Store
	host               directory.Host
	clock              ir.Clock
	policy             Policy
	programID          ir.Address
	directoryProgramID ir.Address
	queue              *requestQueue
	reqGen             RequestIDGenerator
	logger             glog.Logger
	recorder           Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the lifecycle policy. Default: DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithProgramID sets the wrapper program that owns records.
// Default: ir.WrapperProgramID.
func WithProgramID(id ir.Address) Option {
	return func(e *Engine) {
		e.programID = id
	}
}

// WithDirectoryProgramID sets the program table addresses are derived
// under. It must match the program the host runs.
// Default: ir.DirectoryProgramID.
func WithDirectoryProgramID(id ir.Address) Option {
	return func(e *Engine) {
		e.directoryProgramID = id
	}
}

// WithRequestIDs sets the request id generator. Default: UUIDv7Generator.
func WithRequestIDs(gen RequestIDGenerator) Option {
	return func(e *Engine) {
		e.reqGen = gen
	}
}

// WithLogger sets the logger. Default: the "lutwrap" logger from glog.
func WithLogger(logger glog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithRecorder sets the outcome recorder. Default: NopRecorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// New creates an Engine over s that issues delegated calls through host
// and reads "now" from clock.
func New(s *store.Store, host directory.Host, clock ir.Clock, opts ...Option) *Engine {
	e := &Engine{
		store:              s,
		host:               host,
		clock:              clock,
		policy:             DefaultPolicy(),
		programID:          ir.WrapperProgramID,
		directoryProgramID: ir.DirectoryProgramID,
		queue:              newRequestQueue(),
		reqGen:             UUIDv7Generator{},
		recorder:           NopRecorder{},
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		_, logger := glog.Resolve("lutwrap", nil, nil)
		e.logger = logger
	}
	e.logger = glog.Ensure(e.logger)

	return e
}

// Policy returns the engine's lifecycle policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Clock returns the engine's slot source.
func (e *Engine) Clock() ir.Clock {
	return e.clock
}

// Create derives a new record and creates its directory table.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (Result, error) {
	return e.apply(ctx, req)
}

// Extend adds the new entries of req to the record's table.
func (e *Engine) Extend(ctx context.Context, req ExtendRequest) (Result, error) {
	return e.apply(ctx, req)
}

// Deactivate starts deactivation of the record's table.
func (e *Engine) Deactivate(ctx context.Context, req DeactivateRequest) (Result, error) {
	return e.apply(ctx, req)
}

// Close closes the record's table and destroys the record.
func (e *Engine) Close(ctx context.Context, req CloseRequest) (Result, error) {
	return e.apply(ctx, req)
}

// Apply runs req synchronously. Like the typed methods it leaves
// serialization to the caller.
func (e *Engine) Apply(ctx context.Context, req Request) (Result, error) {
	return e.apply(ctx, req)
}

// Submit enqueues req for the Run loop and waits for its result.
// Thread-safe: may be called from any goroutine.
func (e *Engine) Submit(ctx context.Context, req Request) (Result, error) {
	env := envelope{ctx: ctx, req: req, reply: make(chan reply, 1)}
	if !e.queue.Enqueue(env) {
		return Result{}, ErrStopped
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-env.reply:
		return r.result, r.err
	}
}

// Run starts the single-writer loop that applies submitted requests in
// FIFO order. Blocks until ctx is cancelled or Stop is called. Requests
// still queued when the loop stops fail with ErrStopped.
//
// CRITICAL: Must be called from exactly ONE goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "policy_dedup", string(e.policy.DedupSource), "cooldown_slots", e.policy.CooldownSlots)

	for {
		if env, ok := e.queue.TryDequeue(); ok {
			e.dispatch(env)
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			e.failPending(e.queue.Close())
			return ctx.Err()

		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				e.logger.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue, which causes Run to return.
func (e *Engine) Stop() {
	e.failPending(e.queue.Close())
}

func (e *Engine) dispatch(env envelope) {
	if err := env.ctx.Err(); err != nil {
		env.reply <- reply{err: err}
		return
	}
	res, err := e.apply(env.ctx, env.req)
	env.reply <- reply{result: res, err: err}
}

func (e *Engine) failPending(pending []envelope) {
	for _, env := range pending {
		env.reply <- reply{err: ErrStopped}
	}
}

// apply runs one request with a fresh request id and reports its outcome.
func (e *Engine) apply(ctx context.Context, req Request) (Result, error) {
	requestID := e.reqGen.Generate()
	op := req.Operation()
	logger := e.logger.WithContext(ctx)

	res, err := req.execute(ctx, e, requestID)
	if err != nil {
		code := ErrorCode(err)
		e.recorder.ObserveOperation(op, code)
		if code == CodeInternal {
			logger.Error("operation failed", "operation", string(op), "request_id", requestID, "error", err)
		} else {
			logger.Warn("operation rejected", "operation", string(op), "request_id", requestID, "code", code, "error", err)
		}
		return Result{}, err
	}

	res.RequestID = requestID
	if res.NoOp {
		e.recorder.ObserveOperation(op, OutcomeNoop)
		logger.Debug("extend was a no-op", "request_id", requestID, "record", res.Record.Address.String())
		return res, nil
	}

	e.recorder.ObserveOperation(op, OutcomeOK)
	switch op {
	case OpExtend:
		e.recorder.ObserveExtend(res.Record.Address, res.Added, res.Total)
	case OpClose:
		e.recorder.ForgetRecord(res.Record.Address)
	}
	logger.Info("operation committed",
		"operation", string(op),
		"request_id", requestID,
		"record", res.Record.Address.String(),
		"table", res.Record.DirectoryAddress.String(),
		"slot", uint64(res.Event.Slot),
		"event_seq", res.Event.Seq,
	)
	return res, nil
}
