package engine

import (
	"context"

	"github.com/roach88/lutwrap/internal/ir"
)

// Operation names a lifecycle operation.
type Operation string

const (
	OpCreate     Operation = "create"
	OpExtend     Operation = "extend"
	OpDeactivate Operation = "deactivate"
	OpClose      Operation = "close"
)

// Request is a lifecycle request that can be submitted to the Run loop.
// Implemented by CreateRequest, ExtendRequest, DeactivateRequest and
// CloseRequest.
type Request interface {
	Operation() Operation
	execute(ctx context.Context, e *Engine, requestID string) (Result, error)
}

// CreateRequest derives a new record for (Caller, ID) and creates its
// directory table keyed by RecentSlot.
type CreateRequest struct {
	Caller     ir.Address
	ID         uint64
	RecentSlot ir.Slot

	// Table, when set, is the table account the caller expects. It must
	// equal the derived table address.
	Table *ir.Address
}

// ExtendRequest appends Entries to the record's table.
type ExtendRequest struct {
	Caller  ir.Address
	Record  ir.Address
	Table   ir.Address
	Entries []ir.Address
}

// DeactivateRequest starts deactivation of the record's table.
type DeactivateRequest struct {
	Caller ir.Address
	Record ir.Address
	Table  ir.Address
}

// CloseRequest closes the record's deactivated table and the record.
type CloseRequest struct {
	Caller ir.Address
	Record ir.Address
	Table  ir.Address
}

func (CreateRequest) Operation() Operation { return OpCreate }
func (ExtendRequest) Operation() Operation { return OpExtend }
func (DeactivateRequest) Operation() Operation { return OpDeactivate }
func (CloseRequest) Operation() Operation { return OpClose }

// Result describes a completed operation.
type Result struct {
	RequestID string `json:"request_id"`

	// Record is the record after the operation. For close it is the state
	// the record had when it was destroyed.
	Record ir.Record `json:"record"`

	// Event is the event written, nil for a no-op extend.
	Event *ir.Event `json:"event,omitempty"`

	// Extend only.
	Added   int     `json:"added,omitempty"`
	Total   uint64  `json:"total,omitempty"`
	ReadyAt ir.Slot `json:"ready_at,omitempty"`
	NoOp    bool    `json:"no_op,omitempty"`

	// Close only: table rent plus record rent.
	Reclaimed uint64 `json:"reclaimed_lamports,omitempty"`
}
