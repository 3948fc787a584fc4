package testutil

import (
	"io"
	"log/slog"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/wire"
)

// Address returns the address whose 20 bytes are all b.
func Address(b byte) calldata.Address {
	var a calldata.Address
	for i := range a {
		a[i] = b
	}
	return a
}

// Slot returns the slot id whose first byte is b.
func Slot(b byte) wire.SlotID {
	var s wire.SlotID
	s[0] = b
	return s
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
