package directory

import (
	"encoding/binary"
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
)

// Raw layout constants.
const (
	// TableTypeLookup is the discriminator of an initialized lookup table.
	TableTypeLookup uint32 = 1

	// HeaderSize is the fixed metadata prefix before the address list.
	HeaderSize = 56

	// MaxAddresses is the native ceiling on addresses per table.
	MaxAddresses = ir.MaxEntries
)

// Rent parameters of the reference program.
const (
	accountStorageOverhead = 128
	lamportsPerByteYear    = 3480
	exemptionYears         = 2
)

// TableMeta is the decoded header of a lookup table account.
type TableMeta struct {
	DeactivationSlot       ir.Slot     `json:"deactivation_slot"`
	LastExtendedSlot       ir.Slot     `json:"last_extended_slot"`
	LastExtendedStartIndex uint8       `json:"last_extended_start_index"`
	Authority              *ir.Address `json:"authority,omitempty"` // Nil once frozen
}

// Table is a decoded lookup table account.
type Table struct {
	Meta      TableMeta    `json:"meta"`
	Addresses []ir.Address `json:"addresses"`
}

// IsActive reports whether the table has not been deactivated.
func (t Table) IsActive() bool {
	return t.Meta.DeactivationSlot == ir.MaxSlot
}

// Contains reports whether a is already stored in the table.
func (t Table) Contains(a ir.Address) bool {
	for _, have := range t.Addresses {
		if have == a {
			return true
		}
	}
	return false
}

// Encode serializes the table using the native layout:
//
//	u32  type (1)
//	u64  deactivation slot
//	u64  last extended slot
//	u8   last extended start index
//	u8   authority option tag
//	[32] authority
//	u16  padding
//	[32]* addresses
func (t Table) Encode() []byte {
	buf := make([]byte, HeaderSize+len(t.Addresses)*ir.AddressSize)
	binary.LittleEndian.PutUint32(buf[0:4], TableTypeLookup)
	binary.LittleEndian.PutUint64(buf[4:12], uint64(t.Meta.DeactivationSlot))
	binary.LittleEndian.PutUint64(buf[12:20], uint64(t.Meta.LastExtendedSlot))
	buf[20] = t.Meta.LastExtendedStartIndex
	if t.Meta.Authority != nil {
		buf[21] = 1
		copy(buf[22:54], t.Meta.Authority[:])
	}
	off := HeaderSize
	for _, a := range t.Addresses {
		copy(buf[off:off+ir.AddressSize], a[:])
		off += ir.AddressSize
	}
	return buf
}

// DecodeTable parses raw account data.
func DecodeTable(data []byte) (Table, error) {
	var t Table
	if len(data) < HeaderSize {
		return t, fmt.Errorf("decode table: %d bytes is shorter than the %d byte header", len(data), HeaderSize)
	}
	if typ := binary.LittleEndian.Uint32(data[0:4]); typ != TableTypeLookup {
		return t, fmt.Errorf("decode table: unexpected account type %d", typ)
	}
	body := len(data) - HeaderSize
	if body%ir.AddressSize != 0 {
		return t, fmt.Errorf("decode table: address region of %d bytes is not a multiple of %d", body, ir.AddressSize)
	}
	n := body / ir.AddressSize
	if n > MaxAddresses {
		return t, fmt.Errorf("decode table: %d addresses exceeds maximum %d", n, MaxAddresses)
	}

	t.Meta.DeactivationSlot = ir.Slot(binary.LittleEndian.Uint64(data[4:12]))
	t.Meta.LastExtendedSlot = ir.Slot(binary.LittleEndian.Uint64(data[12:20]))
	t.Meta.LastExtendedStartIndex = data[20]
	switch data[21] {
	case 0:
	case 1:
		var auth ir.Address
		copy(auth[:], data[22:54])
		t.Meta.Authority = &auth
	default:
		return t, fmt.Errorf("decode table: invalid authority option tag %d", data[21])
	}

	t.Addresses = make([]ir.Address, n)
	for i := range t.Addresses {
		off := HeaderSize + i*ir.AddressSize
		copy(t.Addresses[i][:], data[off:off+ir.AddressSize])
	}
	return t, nil
}

// TableState is the lifecycle state of a table at a given slot.
type TableState string

const (
	StateActivated    TableState = "activated"
	StateDeactivating TableState = "deactivating"
	StateDeactivated  TableState = "deactivated"
)

// TableStatus reports the state of a table and, while deactivating, how
// many slots remain before it can be closed.
type TableStatus struct {
	State          TableState `json:"state"`
	RemainingSlots uint64     `json:"remaining_slots,omitempty"`
}

// Status evaluates the table's lifecycle state at now. A table
// deactivated at slot d becomes closable once now > d + cooldown.
func (t Table) Status(now ir.Slot, cooldown uint64) TableStatus {
	if t.IsActive() {
		return TableStatus{State: StateActivated}
	}
	closableAt := t.Meta.DeactivationSlot.AddSat(cooldown).AddSat(1)
	if now >= closableAt {
		return TableStatus{State: StateDeactivated}
	}
	return TableStatus{State: StateDeactivating, RemainingSlots: closableAt.SubSat(now)}
}

// RentExempt returns the rent-exempt balance of an account holding
// dataLen bytes.
func RentExempt(dataLen int) uint64 {
	return uint64(accountStorageOverhead+dataLen) * lamportsPerByteYear * exemptionYears
}
