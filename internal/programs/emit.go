package programs

import (
	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
	"github.com/roach88/ndvm/internal/wire"
)

// Emit posts an event with the given topics and payload.
func Emit(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	var topics []wire.Topic
	if raw, ok := a.value("topics").(calldata.Array); ok {
		for i, t := range raw {
			b, ok := t.(calldata.Bytes)
			if !ok || len(b) > len(wire.Topic{}) {
				return nil, result.UserErrorf("topic %d must be at most 32 bytes", i)
			}
			var topic wire.Topic
			copy(topic[:], b)
			topics = append(topics, topic)
		}
	}
	if err := c.PostEvent(topics, a.value("payload")); err != nil {
		return nil, err
	}
	return calldata.Null{}, nil
}

// Send posts a message calling another contract with the given arguments.
func Send(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	to, err := a.address("to")
	if err != nil {
		return nil, err
	}
	value, err := a.amount("value")
	if err != nil {
		return nil, err
	}
	gas, err := a.uint64("gas", 0)
	if err != nil {
		return nil, err
	}
	if err := c.PostMessage(to, a.value("args"), value, gas); err != nil {
		return nil, err
	}
	return calldata.Null{}, nil
}

// Deploy emits a deployment of code with constructor arguments.
//
//	{"code": <bytes>, "args": ..., "value": 0, "gas": 0}
func Deploy(c *vm.Context, v calldata.Value) (calldata.Value, error) {
	a, err := mapArgs(v)
	if err != nil {
		return nil, err
	}
	code, err := a.bytes("code")
	if err != nil {
		return nil, err
	}
	value, err := a.amount("value")
	if err != nil {
		return nil, err
	}
	gas, err := a.uint64("gas", 0)
	if err != nil {
		return nil, err
	}
	if err := c.DeployContract(code, a.value("args"), value, gas); err != nil {
		return nil, err
	}
	return calldata.Null{}, nil
}

// EthSend emits an interop transaction with raw calldata.
//
//	{"to": <address>, "data": <bytes>, "value": 0}
func EthSend(c *vm.Context, v calldata.Value) (calldata.Value, error) {
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
	value, err := a.amount("value")
	if err != nil {
		return nil, err
	}
	if err := c.EthSend(to, data, value); err != nil {
		return nil, err
	}
	return calldata.Null{}, nil
}
