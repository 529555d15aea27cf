package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/lutwrap/internal/ir"
)

// Clock is the logical slot clock shared by the engine and the directory
// program. Slots only move forward.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	slot atomic.Uint64
}

var _ ir.Clock = (*Clock)(nil)

// NewClock creates a clock at slot 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a specific slot.
// Used to resume from a persisted ledger slot.
func NewClockAt(start ir.Slot) *Clock {
	c := &Clock{}
	c.slot.Store(uint64(start))
	return c
}

// Now returns the current slot.
func (c *Clock) Now() ir.Slot {
	return ir.Slot(c.slot.Load())
}

// Advance moves the clock forward by n slots, saturating at ir.MaxSlot,
// and returns the new slot.
func (c *Clock) Advance(n uint64) ir.Slot {
	for {
		cur := c.slot.Load()
		next := uint64(ir.Slot(cur).AddSat(n))
		if c.slot.CompareAndSwap(cur, next) {
			return ir.Slot(next)
		}
	}
}

// WarpTo moves the clock to slot. Moving backwards is an error.
func (c *Clock) WarpTo(slot ir.Slot) error {
	for {
		cur := c.slot.Load()
		if uint64(slot) < cur {
			return fmt.Errorf("clock: cannot warp back from slot %d to %d", cur, slot)
		}
		if c.slot.CompareAndSwap(cur, uint64(slot)) {
			return nil
		}
	}
}
