package directory

import (
	"context"
	"sync"

	"github.com/roach88/lutwrap/internal/ir"
)

// MemoryAccounts is an in-memory Accounts implementation.
//
// Thread-safety: MemoryAccounts is safe for concurrent use.
type MemoryAccounts struct {
	mu     sync.Mutex
	tables map[ir.Address][]byte
}

var _ Accounts = (*MemoryAccounts)(nil)

// NewMemoryAccounts creates an empty account view.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{tables: make(map[ir.Address][]byte)}
}

func (m *MemoryAccounts) LoadTable(_ context.Context, addr ir.Address) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.tables[addr]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryAccounts) StoreTable(_ context.Context, addr ir.Address, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[addr] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryAccounts) DeleteTable(_ context.Context, addr ir.Address) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, addr)
	return nil
}

// Len returns the number of stored tables.
func (m *MemoryAccounts) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables)
}
