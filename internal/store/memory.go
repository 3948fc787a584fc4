package store

import (
	"context"
	"slices"
	"sync"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// Memory is the in-process implementation of slot storage and the journal.
// It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	slots   map[slotKey][]byte
	entries []Entry
	nondet  map[entryKey]int64
}

// NewMemory creates an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		slots:  make(map[slotKey][]byte),
		nondet: make(map[entryKey]int64),
	}
}

// ReadSlot implements the same contract as Store.ReadSlot.
func (m *Memory) ReadSlot(_ context.Context, account calldata.Address, slot wire.SlotID, offset, length uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return window(m.slots[slotKey{account, slot}], offset, length), nil
}

// WriteSlot implements the same contract as Store.WriteSlot.
func (m *Memory) WriteSlot(_ context.Context, account calldata.Address, slot wire.SlotID, offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKey{account, slot}
	m.slots[key] = patch(m.slots[key], offset, data)
	return nil
}

// Append implements the same contract as Store.Append.
func (m *Memory) Append(_ context.Context, e Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Nondet() {
		if seq, ok := m.nondet[e.key()]; ok {
			return seq, nil
		}
	}
	e.Seq = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	if e.Nondet() {
		m.nondet[e.key()] = e.Seq
	}
	return e.Seq, nil
}

// LeaderResult implements the same contract as Store.LeaderResult.
func (m *Memory) LeaderResult(_ context.Context, tx string, callNo uint32) (result.Result, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Tx == tx && e.Kind == KindLeaderResult && e.CallNo == callNo {
			return e.Result, true, nil
		}
	}
	return nil, false, nil
}

// Entries implements the same contract as Store.Entries.
func (m *Memory) Entries(_ context.Context, tx string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Entry{}
	for _, e := range m.entries {
		if e.Tx == tx {
			out = append(out, e)
		}
	}
	return out, nil
}

// Transactions implements the same contract as Store.Transactions.
func (m *Memory) Transactions(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txs := []string{}
	for _, e := range m.entries {
		if !slices.Contains(txs, e.Tx) {
			txs = append(txs, e.Tx)
		}
	}
	return txs, nil
}
