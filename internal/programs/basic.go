package programs

import (
	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
)

// Echo returns its arguments.
func Echo(_ *vm.Context, args calldata.Value) (calldata.Value, error) {
	return args, nil
}

// Add returns a+b.
func Add(_ *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	x, err := a.integer("a")
	if err != nil {
		return nil, err
	}
	y, err := a.integer("b")
	if err != nil {
		return nil, err
	}
	sum := x.Big()
	sum.Add(sum, y.Big())
	return calldata.NewBigInt(sum), nil
}

// Rollback rolls back with the given message. Nothing after it runs.
func Rollback(_ *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	msg, err := a.strOr("message", "")
	if err != nil {
		return nil, err
	}
	return nil, result.Rollback{Message: msg}
}

// Fail raises a user error with the given message.
func Fail(_ *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	msg, err := a.strOr("message", "")
	if err != nil {
		return nil, err
	}
	return nil, result.UserError{Message: msg}
}

// Panic panics with the given message.
func Panic(_ *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	msg, _ := a.strOr("message", "boom")
	panic(msg)
}

// Message returns the message data of the invocation.
func Message(c *vm.Context, _ calldata.Value) (calldata.Value, error) {
	return c.Message().ToValue(), nil
}

// Burn consumes the given amount of gas.
func Burn(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	n, err := a.integer("gas")
	if err != nil {
		return nil, err
	}
	gas, ok := n.Int64()
	if !ok || gas < 0 {
		return nil, result.UserErrorf("gas out of range: %s", n)
	}
	if err := c.ConsumeFuel(uint64(gas)); err != nil {
		return nil, err
	}
	return calldata.NewUint(c.Gas()), nil
}

// Balance returns the balance of the given address, or of the contract.
func Balance(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	account := c.Message().Contract
	if addr, ok := a.value("address").(calldata.Address); ok {
		account = addr
	}
	bal, err := c.Balance(account)
	if err != nil {
		return nil, err
	}
	return calldata.NewBigInt(bal.ToBig()), nil
}

// Code returns the code of the given address, or of the contract.
func Code(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	account := c.Message().Contract
	if addr, ok := a.value("address").(calldata.Address); ok {
		account = addr
	}
	code, err := c.Code(account)
	if err != nil {
		return nil, err
	}
	return calldata.Bytes(code), nil
}

// EthCall performs a read-only interop call and returns the raw reply.
//
//	{"to": <address>, "data": <bytes>}
func EthCall(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	to, err := a.address("to")
	if err != nil {
		return nil, err
	}
	data, err := a.bytes("data")
	if err != nil {
		return nil, err
	}
	out, err := c.EthCall(to, data)
	if err != nil {
		return nil, err
	}
	return calldata.Bytes(out), nil
}
