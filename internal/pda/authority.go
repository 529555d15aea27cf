package pda

import (
	"errors"
	"fmt"

	"github.com/roach88/lutwrap/internal/ir"
)

// ErrAuthorityMismatch is returned when seeds and bump do not reproduce the
// claimed authority address.
var ErrAuthorityMismatch = errors.New("pda: seeds do not reproduce authority address")

// Authority is the capability token for a program-derived signer. It pairs
// the derived address with the seeds and bump that prove the program may
// act for it. Delegated calls receive it explicitly; nothing signs from
// ambient state.
type Authority struct {
	Address   ir.Address
	ProgramID ir.Address
	Seeds     [][]byte // Without the bump seed
	Bump      uint8
}

// SignerSeeds returns the full seed list including the bump.
func (a Authority) SignerSeeds() [][]byte {
	out := make([][]byte, 0, len(a.Seeds)+1)
	for _, s := range a.Seeds {
		out = append(out, append([]byte(nil), s...))
	}
	return append(out, []byte{a.Bump})
}

// Verify re-derives the address from seeds and bump and checks it matches.
func (a Authority) Verify() error {
	derived, err := CreateProgramAddress(a.SignerSeeds(), a.ProgramID)
	if err != nil {
		return fmt.Errorf("verify authority %s: %w", a.Address, err)
	}
	if derived != a.Address {
		return fmt.Errorf("%w: derived %s, claimed %s", ErrAuthorityMismatch, derived, a.Address)
	}
	return nil
}

// recordSeeds returns the derivation key (RecordSeed, owner, id LE8).
func recordSeeds(owner ir.Address, id uint64) [][]byte {
	return [][]byte{
		[]byte(ir.RecordSeed),
		owner.Bytes(),
		U64Seed(id),
	}
}

// RecordAddress derives the wrapper record address for (owner, id).
func RecordAddress(programID, owner ir.Address, id uint64) (ir.Address, uint8, error) {
	return FindProgramAddress(recordSeeds(owner, id), programID)
}

// RecordAuthority derives the capability token of the record for (owner, id).
func RecordAuthority(programID, owner ir.Address, id uint64) (Authority, error) {
	seeds := recordSeeds(owner, id)
	addr, bump, err := FindProgramAddress(seeds, programID)
	if err != nil {
		return Authority{}, fmt.Errorf("derive record authority: %w", err)
	}
	return Authority{Address: addr, ProgramID: programID, Seeds: seeds, Bump: bump}, nil
}

// RecordAuthorityWithBump rebuilds a record's capability token from its
// stored bump and checks that it reproduces the stored address.
func RecordAuthorityWithBump(programID ir.Address, rec ir.Record) (Authority, error) {
	a := Authority{
		Address:   rec.Address,
		ProgramID: programID,
		Seeds:     recordSeeds(rec.Owner, rec.ID),
		Bump:      rec.Bump,
	}
	if err := a.Verify(); err != nil {
		return Authority{}, err
	}
	return a, nil
}

// TableAddress derives the directory table address the native program
// assigns to authority for recentSlot.
func TableAddress(directoryProgramID, authority ir.Address, recentSlot ir.Slot) (ir.Address, uint8, error) {
	return FindProgramAddress([][]byte{authority.Bytes(), U64Seed(uint64(recentSlot))}, directoryProgramID)
}
