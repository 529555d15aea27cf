package ir

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// AddressSize is the length of an address in bytes.
const AddressSize = 32

// Address identifies an account on the ledger: an owner, a wrapper record,
// a directory table, or a table entry.
type Address [AddressSize]byte

// Well-known program addresses.
var (
	// WrapperProgramID is the default program that owns wrapper records.
	WrapperProgramID = MustParseAddress("846qK5Drj9NEn2P4AvXCKxoVnyYQYGzMu2W7gyvoYjHT")

	// DirectoryProgramID is the native address lookup table program.
	DirectoryProgramID = MustParseAddress("AddressLookupTab1e1111111111111111111111111")
)

// ParseAddress decodes a base58 address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	if len(raw) != AddressSize {
		return a, fmt.Errorf("parse address %q: expected %d bytes, got %d", s, AddressSize, len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Use only for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes copies b into an Address. b must be exactly 32 bytes.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("address: expected %d bytes, got %d", AddressSize, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String returns the base58 form.
func (a Address) String() string {
	return base58.Encode(a[:])
}

// Bytes returns a copy of the raw bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Compare orders addresses by their raw bytes.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddresses decodes a list of base58 addresses, preserving order.
func ParseAddresses(values []string) ([]Address, error) {
	out := make([]Address, 0, len(values))
	for i, v := range values {
		a, err := ParseAddress(v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}
