package vm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/deferred"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// ErrOutOfGas is returned once the host reports exhausted gas.
var ErrOutOfGas = result.VMError{Message: "out of gas"}

func forbidden(what string) error {
	return result.VMErrorf("%s is forbidden in this context", what)
}

// StorageRead reads length bytes of a slot of any account. Bytes past the
// written data read as zero.
func (c *Context) StorageRead(account calldata.Address, slot wire.SlotID, offset, length uint32) ([]byte, error) {
	if !c.perms.CanReadStorage {
		return nil, forbidden("storage read")
	}
	reply, err := c.client.StorageRead(c.ctx, wire.StorageRead{
		Gas:     c.gas.get(),
		Account: account,
		Slot:    slot,
		Offset:  offset,
		Length:  length,
	})
	if err != nil {
		return nil, err
	}
	c.gas.set(reply.Gas)
	if reply.Gas == 0 {
		return nil, ErrOutOfGas
	}
	return reply.Data, nil
}

// Read reads from a slot of the executing contract.
func (c *Context) Read(slot wire.SlotID, offset, length uint32) ([]byte, error) {
	return c.StorageRead(c.msg.Contract, slot, offset, length)
}

// Write writes data into a slot of the executing contract.
func (c *Context) Write(slot wire.SlotID, offset uint32, data []byte) error {
	if !c.perms.CanWriteStorage {
		return forbidden("storage write")
	}
	gas, err := c.client.StorageWrite(c.ctx, wire.StorageWrite{
		Gas:     c.gas.get(),
		Account: c.msg.Contract,
		Slot:    slot,
		Offset:  offset,
		Data:    data,
	})
	if err != nil {
		return err
	}
	c.gas.set(gas)
	if gas == 0 {
		return ErrOutOfGas
	}
	return nil
}

// ConsumeFuel charges gas for computation.
func (c *Context) ConsumeFuel(gas uint64) error {
	if err := c.client.ConsumeFuel(c.ctx, gas); err != nil {
		return err
	}
	if !c.gas.charge(gas) {
		return ErrOutOfGas
	}
	return nil
}

// Code returns the code of account.
func (c *Context) Code(account calldata.Address) ([]byte, error) {
	if !c.perms.Deterministic {
		return nil, forbidden("get_code")
	}
	return c.client.GetCode(c.ctx, account)
}

// Balance returns the balance of account.
func (c *Context) Balance(account calldata.Address) (*uint256.Int, error) {
	if !c.perms.Deterministic {
		return nil, forbidden("get_balance")
	}
	v, err := c.client.GetBalance(c.ctx, account)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Context) canEmit(what string) error {
	if !c.perms.Deterministic || !c.perms.CanSendMessages {
		return forbidden(what)
	}
	return nil
}

// PostMessage emits a message carrying args to another contract.
// A nil value sends no value.
func (c *Context) PostMessage(account calldata.Address, args calldata.Value, value *uint256.Int, gas uint64) error {
	if err := c.canEmit("post_message"); err != nil {
		return err
	}
	data, err := calldata.Encode(args)
	if err != nil {
		return result.VMErrorf("post_message: %v", err)
	}
	req := wire.PostMessage{Account: account, Gas: gas, Calldata: data}
	if value != nil {
		req.Value = *value
	}
	return c.client.PostMessage(c.ctx, req)
}

// DeployContract emits a deployment of code with constructor args.
func (c *Context) DeployContract(code []byte, args calldata.Value, value *uint256.Int, gas uint64) error {
	if err := c.canEmit("deploy_contract"); err != nil {
		return err
	}
	data, err := calldata.Encode(args)
	if err != nil {
		return result.VMErrorf("deploy_contract: %v", err)
	}
	req := wire.DeployContract{Gas: gas, Calldata: data, Code: code}
	if value != nil {
		req.Value = *value
	}
	return c.client.DeployContract(c.ctx, req)
}

// EthCall performs a read-only interop call.
func (c *Context) EthCall(account calldata.Address, data []byte) ([]byte, error) {
	if !c.perms.Deterministic {
		return nil, forbidden("eth_call")
	}
	return c.client.EthCall(c.ctx, wire.EthCall{Account: account, Calldata: data})
}

// EthSend emits an interop transaction.
func (c *Context) EthSend(account calldata.Address, data []byte, value *uint256.Int) error {
	if err := c.canEmit("eth_send"); err != nil {
		return err
	}
	req := wire.EthSend{Account: account, Calldata: data}
	if value != nil {
		req.Value = *value
	}
	return c.client.EthSend(c.ctx, req)
}

// PostEvent emits an event whose blob is the encoding of payload.
func (c *Context) PostEvent(topics []wire.Topic, payload calldata.Value) error {
	if err := c.canEmit("post_event"); err != nil {
		return err
	}
	if len(topics) > wire.MaxTopics {
		return result.UserErrorf("too many topics: %d > %d", len(topics), wire.MaxTopics)
	}
	blob, err := calldata.Encode(payload)
	if err != nil {
		return result.VMErrorf("post_event: %v", err)
	}
	return c.client.PostEvent(c.ctx, wire.PostEvent{Topics: topics, Blob: blob})
}

func (c *Context) moduleRequest(module string, payload calldata.Value) (wire.ModuleCall, error) {
	if c.perms.Deterministic {
		return wire.ModuleCall{}, result.VMErrorf("%s is forbidden in deterministic mode", module)
	}
	data, err := calldata.Encode(payload)
	if err != nil {
		return wire.ModuleCall{}, result.VMErrorf("%s: %v", module, err)
	}
	return wire.ModuleCall{Module: module, Payload: data}, nil
}

// ModuleCall submits payload to a host module and waits for its answer.
// The returned error is either a permission VMError or a fatal transport
// failure; module failures arrive as the Result.
func (c *Context) ModuleCall(module string, payload calldata.Value) (result.Result, error) {
	req, err := c.moduleRequest(module, payload)
	if err != nil {
		return nil, err
	}
	return c.client.ModuleCall(c.ctx, req)
}

// ModuleCallLazy is ModuleCall with the exchange postponed until the
// handle is forced. Closing an unforced handle sends nothing.
func (c *Context) ModuleCallLazy(module string, payload calldata.Value) *deferred.Handle[result.Result] {
	req, err := c.moduleRequest(module, payload)
	if err != nil {
		return deferred.Failed[result.Result](err)
	}
	src, err := c.client.Defer(c.ctx, req)
	if err != nil {
		return deferred.Failed[result.Result](err)
	}
	return deferred.New(src, wire.DecodeResult)
}

func (c *Context) sandboxRequest(op Operation, allowWrite bool) (wire.SpawnSandbox, error) {
	entry, err := op.Encode()
	if err != nil {
		return wire.SpawnSandbox{}, result.VMErrorf("spawn_sandbox: %v", err)
	}
	return wire.SpawnSandbox{
		AllowWrite: allowWrite && c.perms.CanWriteStorage,
		Nondet:     !c.perms.Deterministic,
		Entry:      entry,
	}, nil
}

// SpawnSandbox runs op in a nested, isolated execution and returns its
// outcome instead of raising it. Write access is granted only if requested
// and held by this context. A sandbox spawned from a nondet block runs
// non-deterministically as well.
func (c *Context) SpawnSandbox(op Operation, allowWrite bool) (result.Result, error) {
	req, err := c.sandboxRequest(op, allowWrite)
	if err != nil {
		return nil, err
	}
	return c.client.SpawnSandbox(c.ctx, req)
}

// SpawnSandboxLazy is SpawnSandbox with the exchange postponed until the
// handle is forced.
func (c *Context) SpawnSandboxLazy(op Operation, allowWrite bool) *deferred.Handle[result.Result] {
	req, err := c.sandboxRequest(op, allowWrite)
	if err != nil {
		return deferred.Failed[result.Result](err)
	}
	src, err := c.client.Defer(c.ctx, req)
	if err != nil {
		return deferred.Failed[result.Result](err)
	}
	return deferred.New(src, wire.DecodeResult)
}

// Execute performs op in this context.
func (c *Context) Execute(op Operation) (calldata.Value, error) {
	if err := op.Validate(); err != nil {
		return nil, result.VMErrorf("invalid operation: %v", err)
	}
	c.logger.Debug("execute operation", "kind", string(op.Kind))

	switch op.Kind {
	case OpExecPrompt:
		return c.moduleValue(ModuleLLMPrompt, op.Args)

	case OpWebRequest:
		return c.moduleValue(ModuleWebRender, op.Args)

	case OpSandboxedEval:
		program, ok := c.registry.Program(op.Program())
		if !ok {
			return nil, result.VMErrorf("unknown program %q", op.Program())
		}
		return program(c, op.Args["args"])

	case OpEqualityCheck:
		check, ok := c.registry.Check(op.Program())
		if !ok {
			return nil, result.VMErrorf("unknown check %q", op.Program())
		}
		leader, err := op.Leader()
		if err != nil {
			return nil, result.VMErrorf("equality_check: %v", err)
		}
		agree, err := check(c, leader, op.Args["args"])
		if err != nil {
			return nil, err
		}
		return calldata.Bool(agree), nil

	default:
		return nil, result.VMErrorf("unknown operation kind %q", op.Kind)
	}
}

func (c *Context) moduleValue(module string, args calldata.Value) (calldata.Value, error) {
	r, err := c.ModuleCall(module, args)
	if err != nil {
		return nil, err
	}
	v, err := result.Raise(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", module, err)
	}
	return v, nil
}
