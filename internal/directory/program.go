package directory

import (
	"context"

	"github.com/roach88/lutwrap/internal/ir"
	"github.com/roach88/lutwrap/internal/pda"
)

// CreateTableCall asks the directory program to create a table owned by
// Authority, funded by Payer, keyed by RecentSlot.
type CreateTableCall struct {
	Authority  pda.Authority
	Payer      ir.Address
	RecentSlot ir.Slot
}

// ExtendTableCall appends Entries to Table.
type ExtendTableCall struct {
	Table     ir.Address
	Authority pda.Authority
	Payer     ir.Address
	Entries   []ir.Address
}

// DeactivateTableCall starts the deactivation of Table.
type DeactivateTableCall struct {
	Table     ir.Address
	Authority pda.Authority
}

// CloseTableCall deletes a fully deactivated Table and sends its lamports
// to Recipient.
type CloseTableCall struct {
	Table     ir.Address
	Authority pda.Authority
	Recipient ir.Address
}

// Program is the delegated-call interface of the directory program.
// Every mutating call carries the authority token explicitly.
type Program interface {
	CreateTable(ctx context.Context, call CreateTableCall) (ir.Address, error)
	ExtendTable(ctx context.Context, call ExtendTableCall) error
	DeactivateTable(ctx context.Context, call DeactivateTableCall) error
	CloseTable(ctx context.Context, call CloseTableCall) (uint64, error)
	ReadTable(ctx context.Context, table ir.Address) ([]byte, error)
}

// Accounts is the account view a Program reads and writes. The store's
// transaction implements it so table writes commit or roll back together
// with the wrapper's own state.
type Accounts interface {
	LoadTable(ctx context.Context, addr ir.Address) (data []byte, ok bool, err error)
	StoreTable(ctx context.Context, addr ir.Address, data []byte) error
	DeleteTable(ctx context.Context, addr ir.Address) error
}

// Host hands out Programs bound to an account view.
type Host interface {
	Bind(accounts Accounts) Program
}
