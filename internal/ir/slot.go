package ir

import "math"

// Slot is the ledger's logical time unit.
type Slot uint64

// MaxSlot marks a slot that is never reached. An active directory table
// records MaxSlot as its deactivation slot.
const MaxSlot = Slot(math.MaxUint64)

// Clock supplies the current slot. Every "now" in lutwrap comes from a Clock.
type Clock interface {
	Now() Slot
}

// AddSat returns s+n, saturating at MaxSlot.
func (s Slot) AddSat(n uint64) Slot {
	if uint64(MaxSlot-s) < n {
		return MaxSlot
	}
	return s + Slot(n)
}

// SubSat returns s-o, saturating at zero.
func (s Slot) SubSat(o Slot) uint64 {
	if o >= s {
		return 0
	}
	return uint64(s - o)
}
