package host

import (
	"context"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/wire"
)

// Storage is the slot storage collaborator.
type Storage interface {
	ReadSlot(ctx context.Context, account calldata.Address, slot wire.SlotID, offset, length uint32) ([]byte, error)
	WriteSlot(ctx context.Context, account calldata.Address, slot wire.SlotID, offset uint32, data []byte) error
}

// Journal records what the host observed per transaction.
type Journal interface {
	Append(ctx context.Context, e store.Entry) (int64, error)
	LeaderResult(ctx context.Context, tx string, callNo uint32) (result.Result, bool, error)
	Entries(ctx context.Context, tx string) ([]store.Entry, error)
}

var (
	_ Storage = (*store.Store)(nil)
	_ Storage = (*store.Memory)(nil)
	_ Journal = (*store.Store)(nil)
	_ Journal = (*store.Memory)(nil)
)

type slotKey struct {
	account calldata.Address
	slot    wire.SlotID
}

type slotWrite struct {
	key    slotKey
	offset uint32
	data   []byte
}

// overlay buffers writes over a base storage. Reads see the buffered
// writes; commit replays them in order.
type overlay struct {
	base   Storage
	writes []slotWrite
}

func newOverlay(base Storage) *overlay {
	return &overlay{base: base}
}

// child returns an overlay reading through o.
func (o *overlay) child() *overlay {
	return &overlay{base: o}
}

// ReadSlot implements Storage.
func (o *overlay) ReadSlot(ctx context.Context, account calldata.Address, slot wire.SlotID, offset, length uint32) ([]byte, error) {
	out, err := o.base.ReadSlot(ctx, account, slot, offset, length)
	if err != nil {
		return nil, err
	}
	key := slotKey{account, slot}
	lo, hi := uint64(offset), uint64(offset)+uint64(length)
	for _, w := range o.writes {
		if w.key != key {
			continue
		}
		wlo, whi := uint64(w.offset), uint64(w.offset)+uint64(len(w.data))
		if whi <= lo || wlo >= hi {
			continue
		}
		from, to := max(lo, wlo), min(hi, whi)
		copy(out[from-lo:to-lo], w.data[from-wlo:to-wlo])
	}
	return out, nil
}

// WriteSlot implements Storage.
func (o *overlay) WriteSlot(_ context.Context, account calldata.Address, slot wire.SlotID, offset uint32, data []byte) error {
	o.writes = append(o.writes, slotWrite{
		key:    slotKey{account, slot},
		offset: offset,
		data:   append([]byte(nil), data...),
	})
	return nil
}

// commit replays the buffered writes into the base storage and clears them.
func (o *overlay) commit(ctx context.Context) error {
	for _, w := range o.writes {
		if err := o.base.WriteSlot(ctx, w.key.account, w.key.slot, w.offset, w.data); err != nil {
			return err
		}
	}
	o.writes = nil
	return nil
}

func (o *overlay) discard() {
	o.writes = nil
}
