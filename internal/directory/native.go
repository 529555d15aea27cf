package directory

import (
	"context"
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/pda"
)

// Native defaults.
const (
	DefaultRecentSlotWindow     = 150
	DefaultDeactivationCooldown = 512
)

// NativeConfig holds the tunables of the reference directory program.
type NativeConfig struct {
	// ProgramID derives table addresses. Defaults to ir.DirectoryProgramID.
	ProgramID ir.Address

	// RecentSlotWindow bounds how far behind now a create's recent slot
	// may be.
	RecentSlotWindow uint64

	// DeactivationCooldown is the number of slots after deactivation during
	// which the table may still be in use and cannot be closed.
	DeactivationCooldown uint64
}

// DefaultNativeConfig returns the native program's defaults.
func DefaultNativeConfig() NativeConfig {
	return NativeConfig{
		ProgramID:            ir.DirectoryProgramID,
		RecentSlotWindow:     DefaultRecentSlotWindow,
		DeactivationCooldown: DefaultDeactivationCooldown,
	}
}

// Native is the in-process reference directory program. It is stateless;
// all table state lives in the Accounts it is bound to.
type Native struct {
	cfg   NativeConfig
	clock ir.Clock
}

var _ Host = (*Native)(nil)

// NewNative creates a reference program reading "now" from clock.
// Zero-valued config fields take their defaults.
func NewNative(clock ir.Clock, cfg NativeConfig) *Native {
	def := DefaultNativeConfig()
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = def.ProgramID
	}
	if cfg.RecentSlotWindow == 0 {
		cfg.RecentSlotWindow = def.RecentSlotWindow
	}
	if cfg.DeactivationCooldown == 0 {
		cfg.DeactivationCooldown = def.DeactivationCooldown
	}
	return &Native{cfg: cfg, clock: clock}
}

// Config returns the effective configuration.
func (n *Native) Config() NativeConfig {
	return n.cfg
}

// Bind returns a Program operating on accounts.
func (n *Native) Bind(accounts Accounts) Program {
	return &boundNative{Native: n, accounts: accounts}
}

type boundNative struct {
	*Native
	accounts Accounts
}

func (b *boundNative) CreateTable(ctx context.Context, call CreateTableCall) (ir.Address, error) {
	if err := call.Authority.Verify(); err != nil {
		return ir.Address{}, newProgramError(ErrCodeMissingSignature, ir.Address{}, "authority did not sign: %v", err)
	}
	if call.Payer.IsZero() {
		return ir.Address{}, newProgramError(ErrCodeMissingSignature, ir.Address{}, "payer did not sign")
	}

	now := b.clock.Now()
	if call.RecentSlot >= now || now.SubSat(call.RecentSlot) > b.cfg.RecentSlotWindow {
		return ir.Address{}, newProgramError(ErrCodeSlotNotRecent, ir.Address{},
			"slot %d is not a recent slot at %d (window %d)", call.RecentSlot, now, b.cfg.RecentSlotWindow)
	}

	addr, _, err := pda.TableAddress(b.cfg.ProgramID, call.Authority.Address, call.RecentSlot)
	if err != nil {
		return ir.Address{}, fmt.Errorf("derive table address: %w", err)
	}

	_, exists, err := b.accounts.LoadTable(ctx, addr)
	if err != nil {
		return ir.Address{}, err
	}
	if exists {
		return ir.Address{}, newProgramError(ErrCodeTableAlreadyExists, addr, "table already initialized")
	}

	auth := call.Authority.Address
	t := Table{Meta: TableMeta{DeactivationSlot: ir.MaxSlot, Authority: &auth}}
	if err := b.accounts.StoreTable(ctx, addr, t.Encode()); err != nil {
		return ir.Address{}, err
	}
	return addr, nil
}

func (b *boundNative) ExtendTable(ctx context.Context, call ExtendTableCall) error {
	t, err := b.authorized(ctx, call.Table, call.Authority)
	if err != nil {
		return err
	}
	if !t.IsActive() {
		return newProgramError(ErrCodeTableDeactivated, call.Table, "table is deactivated")
	}
	if len(call.Entries) == 0 {
		return newProgramError(ErrCodeEmptyExtension, call.Table, "must extend with at least one address")
	}
	if len(t.Addresses)+len(call.Entries) > MaxAddresses {
		return newProgramError(ErrCodeMaxAddressesExceeded, call.Table,
			"extended table would hold %d addresses, maximum is %d", len(t.Addresses)+len(call.Entries), MaxAddresses)
	}

	now := b.clock.Now()
	if t.Meta.LastExtendedSlot != now {
		t.Meta.LastExtendedSlot = now
		t.Meta.LastExtendedStartIndex = uint8(len(t.Addresses))
	}
	t.Addresses = append(t.Addresses, call.Entries...)
	return b.accounts.StoreTable(ctx, call.Table, t.Encode())
}

func (b *boundNative) DeactivateTable(ctx context.Context, call DeactivateTableCall) error {
	t, err := b.authorized(ctx, call.Table, call.Authority)
	if err != nil {
		return err
	}
	if !t.IsActive() {
		return newProgramError(ErrCodeTableAlreadyDeactivated, call.Table, "table already deactivated at slot %d", t.Meta.DeactivationSlot)
	}
	t.Meta.DeactivationSlot = b.clock.Now()
	return b.accounts.StoreTable(ctx, call.Table, t.Encode())
}

func (b *boundNative) CloseTable(ctx context.Context, call CloseTableCall) (uint64, error) {
	t, err := b.authorized(ctx, call.Table, call.Authority)
	if err != nil {
		return 0, err
	}
	if call.Recipient.IsZero() {
		return 0, newProgramError(ErrCodeMissingSignature, call.Table, "recipient is required")
	}

	status := t.Status(b.clock.Now(), b.cfg.DeactivationCooldown)
	switch status.State {
	case StateActivated:
		return 0, newProgramError(ErrCodeTableNotDeactivated, call.Table, "table is not deactivated")
	case StateDeactivating:
		pe := newProgramError(ErrCodeDeactivationCooldown, call.Table,
			"table cannot be closed until it is fully deactivated in %d slots", status.RemainingSlots)
		pe.Details = map[string]string{"remaining_slots": fmt.Sprintf("%d", status.RemainingSlots)}
		return 0, pe
	}

	lamports := RentExempt(HeaderSize + len(t.Addresses)*ir.AddressSize)
	if err := b.accounts.DeleteTable(ctx, call.Table); err != nil {
		return 0, err
	}
	return lamports, nil
}

func (b *boundNative) ReadTable(ctx context.Context, table ir.Address) ([]byte, error) {
	data, ok, err := b.accounts.LoadTable(ctx, table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newProgramError(ErrCodeTableNotFound, table, "table account does not exist")
	}
	return data, nil
}

// authorized loads table and checks that auth is a valid signer matching
// the table's stored authority.
func (b *boundNative) authorized(ctx context.Context, table ir.Address, auth pda.Authority) (Table, error) {
	data, err := b.ReadTable(ctx, table)
	if err != nil {
		return Table{}, err
	}
	t, err := DecodeTable(data)
	if err != nil {
		return Table{}, newProgramError(ErrCodeInvalidTableData, table, "%v", err)
	}
	if t.Meta.Authority == nil {
		return Table{}, newProgramError(ErrCodeIncorrectAuthority, table, "table is frozen")
	}
	if *t.Meta.Authority != auth.Address {
		return Table{}, newProgramError(ErrCodeIncorrectAuthority, table, "authority %s does not own the table", auth.Address)
	}
	if err := auth.Verify(); err != nil {
		return Table{}, newProgramError(ErrCodeMissingSignature, table, "authority did not sign: %v", err)
	}
	return t, nil
}
