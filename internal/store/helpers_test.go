package store

import (
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/roach88/lutwrap/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAddr(name string) ir.Address {
	return ir.Address(sha256.Sum256([]byte("store-test/" + name)))
}

// createTestRecord creates a record with minimal required fields.
func createTestRecord(owner string, id uint64) ir.Record {
	return ir.Record{
		Address:          testAddr("record/" + owner + "/" + string(rune('0'+id))),
		Bump:             254,
		Owner:            testAddr(owner),
		ID:               id,
		DirectoryAddress: testAddr("table/" + owner + "/" + string(rune('0'+id))),
		LastMutatedAt:    100,
		CreatedAt:        100,
	}
}
