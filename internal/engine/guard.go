package engine

import (
	"context"

	"github.com/roach88/lutwrap/internal/directory"
	"github.com/roach88/lutwrap/internal/ir"
)

// guard filters an extend batch against the entries already known for a
// record and enforces the capacity ceiling. The source of known entries is
// fixed by the policy: the live table or the local mirror, never both.
type guard struct {
	known   func(ir.Address) bool
	current int // Entries already in the table
	mirror  *ir.EntrySet
}

func (e *Engine) newGuard(ctx context.Context, prog directory.Program, rec ir.Record) (*guard, error) {
	switch e.policy.DedupSource {
	case DedupMirror:
		mirror := rec.Known.Clone()
		if mirror == nil {
			mirror = &ir.EntrySet{}
		}
		return &guard{known: mirror.Contains, current: int(rec.EntryCount), mirror: mirror}, nil

	default:
		data, err := prog.ReadTable(ctx, rec.DirectoryAddress)
		if err != nil {
			return nil, errDelegated("read_table", err)
		}
		table, err := directory.DecodeTable(data)
		if err != nil {
			return nil, errInvalidLookupTable(rec.DirectoryAddress, rec.DirectoryAddress).
				WithMetadata(map[string]any{"decode_error": err.Error()})
		}
		current := len(table.Addresses)
		if int(rec.EntryCount) > current {
			current = int(rec.EntryCount)
		}
		return &guard{known: table.Contains, current: current}, nil
	}
}

// filter returns the entries of batch that are not yet known, in order.
// Duplicates within the batch collapse to their first occurrence.
func (g *guard) filter(batch []ir.Address) []ir.Address {
	seen := make(map[ir.Address]struct{}, len(batch))
	fresh := make([]ir.Address, 0, len(batch))
	for _, a := range batch {
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		if g.known(a) {
			continue
		}
		fresh = append(fresh, a)
	}
	return fresh
}

func (g *guard) checkCapacity(adding, limit int) error {
	if g.current+adding > limit {
		return errMaxEntries(g.current, adding, limit)
	}
	return nil
}

// mirrorWith returns the mirror extended by fresh. Only valid in mirror
// mode after checkCapacity passed.
func (g *guard) mirrorWith(fresh []ir.Address) *ir.EntrySet {
	next := g.mirror.Clone()
	for _, a := range fresh {
		// Capacity was checked against the same count.
		_ = next.Append(a)
	}
	return next
}
