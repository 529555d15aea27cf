package pda

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/roach88/lutwrap/internal/ir"
)

// Derivation limits.
const (
	MaxSeeds      = 16
	MaxSeedLength = 32
)

// pdaMarker is appended after the program id in every derivation.
const pdaMarker = "ProgramDerivedAddress"

var (
	// ErrOnCurve is returned when the derived hash is a valid ed25519 point.
	ErrOnCurve = errors.New("pda: derived address lies on the ed25519 curve")

	// ErrNoViableBump is returned when every bump in 255..0 lands on the curve.
	ErrNoViableBump = errors.New("pda: unable to find a viable bump seed")

	// ErrMaxSeedLength is returned when a seed exceeds MaxSeedLength bytes.
	ErrMaxSeedLength = errors.New("pda: seed exceeds maximum length")

	// ErrTooManySeeds is returned when more than MaxSeeds seeds are given.
	ErrTooManySeeds = errors.New("pda: too many seeds")
)

// CreateProgramAddress derives the address for seeds under programID.
// Fails with ErrOnCurve if the result is a curve point.
func CreateProgramAddress(seeds [][]byte, programID ir.Address) (ir.Address, error) {
	var out ir.Address
	if len(seeds) > MaxSeeds {
		return out, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return out, fmt.Errorf("%w: %d bytes", ErrMaxSeedLength, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))
	copy(out[:], h.Sum(nil))

	if IsOnCurve(out) {
		return ir.Address{}, ErrOnCurve
	}
	return out, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// off-curve address together with its bump. Seeds must leave room for the
// bump seed.
func FindProgramAddress(seeds [][]byte, programID ir.Address) (ir.Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return ir.Address{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return ir.Address{}, 0, err
		}
	}
	return ir.Address{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether a decodes to a point on edwards25519.
func IsOnCurve(a ir.Address) bool {
	_, err := new(edwards25519.Point).SetBytes(a[:])
	return err == nil
}

// U64Seed encodes v as an 8-byte little-endian seed.
func U64Seed(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
