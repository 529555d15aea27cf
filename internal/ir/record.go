package ir

// RecordSeed is the constant first seed of every wrapper record derivation.
const RecordSeed = "UserAddressLookupTable"

// RecordSpace is the fixed on-ledger size of a wrapper record account:
// discriminator, bump, owner, id, size, table, mirror (length prefix plus
// MaxEntries addresses), last updated slot, last updated timestamp, padding.
const RecordSpace = 8 + 1 + AddressSize + 8 + 8 + AddressSize + 4 + MaxEntries*AddressSize + 8 + 8 + 100

// Record is the per-(owner, id) authority over one directory table.
//
// INVARIANTS:
//   - DirectoryAddress never changes after creation
//   - EntryCount never decreases and never exceeds MaxEntries
//   - Address is derived from (RecordSeed, Owner, ID) and Bump
type Record struct {
	Address          Address `json:"address"`
	Bump             uint8   `json:"bump"`
	Owner            Address `json:"owner"`
	ID               uint64  `json:"id"`
	DirectoryAddress Address `json:"directory_address"`
	EntryCount       uint64  `json:"entry_count"`
	LastMutatedAt    Slot    `json:"last_mutated_at"`
	CreatedAt        Slot    `json:"created_at"`

	// Known is the local mirror of entries added through this record.
	// Nil unless the engine runs with the mirror as its dedup source.
	Known *EntrySet `json:"-"`
}

// ReadyAt returns the first slot at which the record may be extended again.
func (r Record) ReadyAt(cooldown uint64) Slot {
	return r.LastMutatedAt.AddSat(cooldown)
}

// IsReady reports whether now is at or past the end of the cooldown window.
func (r Record) IsReady(now Slot, cooldown uint64) bool {
	return now >= r.ReadyAt(cooldown)
}

// SlotsUntilReady returns the number of slots left in the cooldown window,
// or zero once the record is ready.
func (r Record) SlotsUntilReady(now Slot, cooldown uint64) uint64 {
	return r.ReadyAt(cooldown).SubSat(now)
}

// RemainingCapacity returns how many more entries the record may add.
func (r Record) RemainingCapacity() uint64 {
	if r.EntryCount >= MaxEntries {
		return 0
	}
	return MaxEntries - r.EntryCount
}

// KnownEntries returns the mirrored entries, or nil without a mirror.
func (r Record) KnownEntries() []Address {
	return r.Known.Entries()
}
