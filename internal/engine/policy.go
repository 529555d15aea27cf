package engine

import (
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
)

// DedupSource selects what an extend deduplicates against.
type DedupSource string

const (
	// DedupTable reads the live directory table on every extend.
	DedupTable DedupSource = "table"

	// DedupMirror trusts the record's local mirror of added entries.
	DedupMirror DedupSource = "mirror"
)

// EmptyBatchPolicy decides what an extend does when every entry is a
// duplicate.
type EmptyBatchPolicy string

const (
	// EmptyBatchReject fails with NO_NEW_ENTRIES.
	EmptyBatchReject EmptyBatchPolicy = "reject"

	// EmptyBatchNoop succeeds without mutation or event.
	EmptyBatchNoop EmptyBatchPolicy = "noop"
)

// DefaultCooldownSlots is the default number of slots between mutations.
const DefaultCooldownSlots = 15

// Policy holds the configurable rules of the lifecycle operations.
type Policy struct {
	CooldownSlots uint64
	DedupSource   DedupSource
	EmptyBatch    EmptyBatchPolicy
	MaxEntries    int
}

// DefaultPolicy returns the canonical defaults.
func DefaultPolicy() Policy {
	return Policy{
		CooldownSlots: DefaultCooldownSlots,
		DedupSource:   DedupTable,
		EmptyBatch:    EmptyBatchReject,
		MaxEntries:    ir.MaxEntries,
	}
}

// Validate checks that every field holds a known value.
func (p Policy) Validate() error {
	switch p.DedupSource {
	case DedupTable, DedupMirror:
	default:
		return fmt.Errorf("policy: unknown dedup source %q", p.DedupSource)
	}
	switch p.EmptyBatch {
	case EmptyBatchReject, EmptyBatchNoop:
	default:
		return fmt.Errorf("policy: unknown empty batch policy %q", p.EmptyBatch)
	}
	if p.MaxEntries < 1 || p.MaxEntries > ir.MaxEntries {
		return fmt.Errorf("policy: max entries %d outside 1..%d", p.MaxEntries, ir.MaxEntries)
	}
	return nil
}
