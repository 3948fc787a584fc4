package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// backend is the method set shared by Store and Memory.
type backend interface {
	ReadSlot(ctx context.Context, account calldata.Address, slot wire.SlotID, offset, length uint32) ([]byte, error)
	WriteSlot(ctx context.Context, account calldata.Address, slot wire.SlotID, offset uint32, data []byte) error
	Append(ctx context.Context, e Entry) (int64, error)
	LeaderResult(ctx context.Context, tx string, callNo uint32) (result.Result, bool, error)
	Entries(ctx context.Context, tx string) ([]Entry, error)
	Transactions(ctx context.Context) ([]string, error)
}

// createTestStore creates a new file-backed store for testing.
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

// forEachBackend runs fn against a fresh Store and a fresh Memory.
func forEachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		fn(t, createTestStore(t))
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemory())
	})
}

func testAccount(b byte) calldata.Address {
	var a calldata.Address
	for i := range a {
		a[i] = b
	}
	return a
}

func testSlot(b byte) wire.SlotID {
	var s wire.SlotID
	s[0] = b
	return s
}
