// Package testutil provides deterministic fixtures shared by tests and
// scenario runs.
package testutil

import (
	"crypto/sha256"
	"sort"
	"sync"

	"github.com/roach88/lutwrap/internal/ir"
)

// addressDomain separates book addresses from every other hash in the
// repository.
const addressDomain = "lutwrap/testutil/address/v1\x00"

// AddressBook maps human-readable names to deterministic addresses and
// back.
//
// The same name always yields the same address, across runs and across
// books, so scenario files and golden traces can refer to "alice" instead
// of a base58 string.
//
// Thread-safety: All methods are safe for concurrent use.
type AddressBook struct {
	mu     sync.Mutex
	byName map[string]ir.Address
	byAddr map[ir.Address]string
}

// NewAddressBook creates an empty book.
func NewAddressBook() *AddressBook {
	return &AddressBook{
		byName: make(map[string]ir.Address),
		byAddr: make(map[ir.Address]string),
	}
}

// NamedAddress returns the deterministic address for name without
// recording it in any book.
func NamedAddress(name string) ir.Address {
	return ir.Address(sha256.Sum256([]byte(addressDomain + name)))
}

// Address returns the address for name and remembers the pairing.
func (b *AddressBook) Address(name string) ir.Address {
	b.mu.Lock()
	defer b.mu.Unlock()

	if a, ok := b.byName[name]; ok {
		return a
	}
	a := NamedAddress(name)
	b.byName[name] = a
	b.byAddr[a] = name
	return a
}

// Addresses returns the addresses for names, in order.
func (b *AddressBook) Addresses(names ...string) []ir.Address {
	out := make([]ir.Address, len(names))
	for i, n := range names {
		out[i] = b.Address(n)
	}
	return out
}

// Alias records name for an address that was not produced by the book,
// such as a derived record or table address.
func (b *AddressBook) Alias(name string, a ir.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byName[name] = a
	b.byAddr[a] = name
}

// Lookup returns the address recorded for name.
func (b *AddressBook) Lookup(name string) (ir.Address, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	a, ok := b.byName[name]
	return a, ok
}

// Name returns the name recorded for a, or its base58 form when unknown.
func (b *AddressBook) Name(a ir.Address) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.byAddr[a]; ok {
		return n
	}
	return a.String()
}

// Names returns every recorded name, sorted.
func (b *AddressBook) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.byName))
	for n := range b.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
