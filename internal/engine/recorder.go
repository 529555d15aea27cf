package engine

import "github.com/roach88/lutwrap/internal/ir"

// Outcome labels for Recorder.ObserveOperation besides error text codes.
const (
	OutcomeOK   = "ok"
	OutcomeNoop = "noop"
)

// Recorder observes lifecycle outcomes. internal/metrics implements it
// with Prometheus collectors.
type Recorder interface {
	// ObserveOperation counts a finished operation. outcome is OutcomeOK,
	// OutcomeNoop or the error text code.
	ObserveOperation(op Operation, outcome string)

	// ObserveExtend records a committed extend.
	ObserveExtend(record ir.Address, added int, total uint64)

	// ForgetRecord drops per-record series once a record is closed.
	ForgetRecord(record ir.Address)
}

// NopRecorder discards all observations.
type NopRecorder struct{}

func (NopRecorder) ObserveOperation(Operation, string) {}
func (NopRecorder) ObserveExtend(ir.Address, int, uint64) {}
func (NopRecorder) ForgetRecord(ir.Address) {}
