package programs

import (
	"encoding/binary"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/vm"
	"github.com/roach88/ndvm/internal/wire"
)

// StorageRead returns length bytes of a contract slot at offset.
func StorageRead(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	slot, err := a.slot("slot")
	if err != nil {
		return nil, err
	}
	offset, err := a.uint32("offset", 0)
	if err != nil {
		return nil, err
	}
	length, err := a.uint32("length", wire.SlotSize)
	if err != nil {
		return nil, err
	}
	data, err := c.Read(slot, offset, length)
	if err != nil {
		return nil, err
	}
	return calldata.Bytes(data), nil
}

// StorageWrite writes data into a contract slot at offset.
func StorageWrite(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	slot, err := a.slot("slot")
	if err != nil {
		return nil, err
	}
	offset, err := a.uint32("offset", 0)
	if err != nil {
		return nil, err
	}
	data, err := a.bytes("data")
	if err != nil {
		return nil, err
	}
	if err := c.Write(slot, offset, data); err != nil {
		return nil, err
	}
	return calldata.Null{}, nil
}

// Increment adds one to the little-endian uint64 counter in slot 0 and
// returns the new value.
func Increment(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
	var slot wire.SlotID
	raw, err := c.Read(slot, 0, 8)
	if err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint64(raw) + 1
	if err := c.Write(slot, 0, binary.LittleEndian.AppendUint64(nil, n)); err != nil {
		return nil, err
	}
	return calldata.NewUint(n), nil
}
