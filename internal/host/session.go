package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/vm"
	"github.com/roach88/ndvm/internal/wire"
)

// Module names answered by the host itself rather than by providers.
const (
	ModuleEthCall = "eth.call"
)

// Session serves one guest connection. It implements wire.Handler.
//
// A Session is driven by a single wire.Server and is not safe for
// concurrent use.
type Session struct {
	host   *Host
	tx     Tx
	perms  vm.Permissions
	entry  []byte
	writes *overlay
	logger *slog.Logger

	gas     uint64
	depth   int
	pending []store.Entry
	outcome result.Result
}

var _ wire.Handler = (*Session)(nil)

func (h *Host) newSession(tx Tx) (*Session, error) {
	entry, err := tx.Entry.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode entry: %w", err)
	}
	if tx.Gas == 0 {
		tx.Gas = h.initialGas
	}
	return &Session{
		host:   h,
		tx:     tx,
		perms:  vm.TopLevel(),
		entry:  entry,
		writes: newOverlay(h.storage),
		logger: h.logger.With("tx", tx.ID, "node", tx.node()),
		gas:    tx.Gas,
	}, nil
}

// child derives the session of a sandbox spawned by s.
func (s *Session) child(req wire.SpawnSandbox) *Session {
	perms := s.perms.Sandbox(req.AllowWrite)
	if req.Nondet {
		perms = vm.Nondet()
	}
	return &Session{
		host:   s.host,
		tx:     s.tx,
		perms:  perms,
		entry:  req.Entry,
		writes: s.writes.child(),
		logger: s.logger.With("sandbox", s.depth+1),
		gas:    s.gas,
		depth:  s.depth + 1,
	}
}

func (s *Session) root() bool {
	return s.depth == 0
}

// finish settles the session once its connection is done: a Return commits
// buffered writes and messages, anything else discards them.
func (s *Session) finish(ctx context.Context, serveErr error) (Outcome, error) {
	if s.outcome == nil {
		msg := "connection closed before result"
		if serveErr != nil {
			msg = serveErr.Error()
		}
		s.outcome = result.VMError{Message: msg}
	}
	out := Outcome{Tx: s.tx.ID, Node: s.tx.node(), Result: s.outcome, Gas: s.gas}

	if _, ok := s.outcome.(result.Return); ok {
		if err := s.writes.commit(ctx); err != nil {
			return out, fmt.Errorf("commit storage: %w", err)
		}
		for _, e := range s.pending {
			if err := s.host.appendEntry(ctx, e); err != nil {
				return out, fmt.Errorf("journal %s: %w", e.Kind, err)
			}
		}
	} else {
		s.writes.discard()
	}
	s.pending = nil

	if s.root() {
		s.host.metrics.Outcomes.With("code", s.outcome.Code().String()).Add(1)
		err := s.host.appendEntry(ctx, store.Entry{
			Tx:     s.tx.ID,
			Node:   s.tx.node(),
			Kind:   store.KindOutcome,
			Result: s.outcome,
		})
		if err != nil {
			return out, fmt.Errorf("journal outcome: %w", err)
		}
	}
	s.logger.Debug("session finished", "result", result.String(s.outcome), "gas", s.gas)
	return out, nil
}

func (s *Session) charge(before uint64, n int) uint64 {
	cost := uint64(n) * s.host.gasPerByte
	if cost > before {
		s.gas = 0
	} else {
		s.gas = before - cost
	}
	return s.gas
}

func (s *Session) emit(kind store.Kind, detail calldata.Map) {
	s.pending = append(s.pending, store.Entry{
		Tx:     s.tx.ID,
		Node:   s.tx.node(),
		Kind:   kind,
		Detail: detail,
	})
}

// deny refuses a storage request by exhausting gas. The reply keeps its
// normal shape, so the guest sees out of gas and the connection survives.
func (s *Session) deny(op wire.Opcode, reason string) uint64 {
	s.logger.Warn("request denied", "opcode", op.String(), "reason", reason)
	s.gas = 0
	return 0
}

// requireEmit guards emitting opcodes. Their replies carry no gas, so a
// denial fails the connection.
func (s *Session) requireEmit(op wire.Opcode) error {
	if !s.perms.CanSendMessages {
		return fmt.Errorf("%s is not permitted in a sandbox", op)
	}
	return nil
}

func valueOf(v uint256.Int) calldata.Int {
	return calldata.NewBigInt(v.ToBig())
}

// GetCalldata implements wire.Handler.
func (s *Session) GetCalldata(context.Context) ([]byte, error) {
	return s.entry, nil
}

// GetCode implements wire.Handler.
func (s *Session) GetCode(_ context.Context, account calldata.Address) ([]byte, error) {
	return s.host.world.Accounts[account].Code, nil
}

// StorageRead implements wire.Handler.
func (s *Session) StorageRead(ctx context.Context, req wire.StorageRead) (wire.StorageReadReply, error) {
	if !s.perms.CanReadStorage {
		return wire.StorageReadReply{Gas: s.deny(wire.OpStorageRead, "storage read is not permitted"), Data: make([]byte, req.Length)}, nil
	}
	data, err := s.writes.ReadSlot(ctx, req.Account, req.Slot, req.Offset, req.Length)
	if err != nil {
		return wire.StorageReadReply{}, err
	}
	return wire.StorageReadReply{Gas: s.charge(req.Gas, len(data)), Data: data}, nil
}

// StorageWrite implements wire.Handler.
func (s *Session) StorageWrite(ctx context.Context, req wire.StorageWrite) (uint64, error) {
	if !s.perms.CanWriteStorage {
		return s.deny(wire.OpStorageWrite, "storage write is not permitted"), nil
	}
	if req.Account != s.tx.Message.Contract {
		return s.deny(wire.OpStorageWrite, fmt.Sprintf("storage write to foreign account %s", req.Account)), nil
	}
	if err := s.writes.WriteSlot(ctx, req.Account, req.Slot, req.Offset, req.Data); err != nil {
		return 0, err
	}
	return s.charge(req.Gas, len(req.Data)), nil
}

// ConsumeResult implements wire.Handler.
func (s *Session) ConsumeResult(_ context.Context, r result.Result) error {
	s.outcome = r
	return nil
}

// GetLeaderNondetResult implements wire.Handler. A leader has no leader
// context and always gets Absent.
func (s *Session) GetLeaderNondetResult(ctx context.Context, callNo uint32) (result.Result, bool, error) {
	if s.tx.Role == vm.RoleLeader {
		return nil, false, nil
	}
	return s.host.journal.LeaderResult(ctx, s.tx.ID, callNo)
}

// PostNondetResult implements wire.Handler. Results are journaled at once,
// independently of the outcome of the execution.
func (s *Session) PostNondetResult(ctx context.Context, callNo uint32, r result.Result) error {
	if !s.root() {
		return fmt.Errorf("nondet results cannot be posted from a sandbox")
	}
	kind := store.KindLeaderResult
	if s.tx.Role == vm.RoleValidator {
		kind = store.KindVote
		agree := result.Equal(r, result.Vote(true))
		s.host.metrics.Votes.With("agree", fmt.Sprint(agree)).Add(1)
	}
	return s.host.appendEntry(ctx, store.Entry{
		Tx:     s.tx.ID,
		Node:   s.tx.node(),
		Kind:   kind,
		CallNo: callNo,
		Result: r,
	})
}

// PostMessage implements wire.Handler.
func (s *Session) PostMessage(_ context.Context, req wire.PostMessage) error {
	if err := s.requireEmit(wire.OpPostMessage); err != nil {
		return err
	}
	s.emit(store.KindMessage, calldata.Map{
		"account":  req.Account,
		"gas":      calldata.NewUint(req.Gas),
		"value":    valueOf(req.Value),
		"calldata": calldata.Bytes(req.Calldata),
		"code":     calldata.Bytes(req.Code),
	})
	return nil
}

// ConsumeFuel implements wire.Handler.
func (s *Session) ConsumeFuel(_ context.Context, gas uint64) error {
	if gas > s.gas {
		s.gas = 0
	} else {
		s.gas -= gas
	}
	return nil
}

// DeployContract implements wire.Handler.
func (s *Session) DeployContract(_ context.Context, req wire.DeployContract) error {
	if err := s.requireEmit(wire.OpDeployContract); err != nil {
		return err
	}
	s.emit(store.KindDeploy, calldata.Map{
		"gas":      calldata.NewUint(req.Gas),
		"value":    valueOf(req.Value),
		"calldata": calldata.Bytes(req.Calldata),
		"code":     calldata.Bytes(req.Code),
	})
	return nil
}

// EthCall implements wire.Handler by asking the eth.call module.
func (s *Session) EthCall(ctx context.Context, req wire.EthCall) ([]byte, error) {
	m, ok := s.host.modules[ModuleEthCall]
	if !ok {
		return nil, fmt.Errorf("no %s module configured", ModuleEthCall)
	}
	r, err := m.Call(ctx, s.tx.node(), calldata.Map{
		"account":  req.Account,
		"calldata": calldata.Bytes(req.Calldata),
	})
	if err != nil {
		return nil, err
	}
	ret, ok := r.(result.Return)
	if !ok {
		return nil, fmt.Errorf("%s failed: %s", ModuleEthCall, result.String(r))
	}
	b, ok := ret.Value.(calldata.Bytes)
	if !ok {
		return nil, fmt.Errorf("%s answered %s, want bytes", ModuleEthCall, calldata.KindName(ret.Value))
	}
	return b, nil
}

// EthSend implements wire.Handler.
func (s *Session) EthSend(_ context.Context, req wire.EthSend) error {
	if err := s.requireEmit(wire.OpEthSend); err != nil {
		return err
	}
	s.emit(store.KindEthSend, calldata.Map{
		"account":  req.Account,
		"value":    valueOf(req.Value),
		"calldata": calldata.Bytes(req.Calldata),
	})
	return nil
}

// GetBalance implements wire.Handler.
func (s *Session) GetBalance(_ context.Context, account calldata.Address) (uint256.Int, error) {
	return s.host.world.Accounts[account].Balance, nil
}

// ModuleCall implements wire.Handler. Module failures are answered as
// results; only provider errors tear the connection down.
func (s *Session) ModuleCall(ctx context.Context, req wire.ModuleCall) (result.Result, error) {
	m, ok := s.host.modules[req.Module]
	if !ok {
		return result.VMError{Message: fmt.Sprintf("unknown module %q", req.Module)}, nil
	}
	payload, err := calldata.Decode(req.Payload)
	if err != nil {
		return result.VMError{Message: fmt.Sprintf("%s: invalid payload: %v", req.Module, err)}, nil
	}
	s.logger.Debug("module call", "module", req.Module, "payload", calldata.Format(payload))
	return m.Call(ctx, s.tx.node(), payload)
}

// SpawnSandbox implements wire.Handler. The child runs to completion before
// the reply is sent. Its writes reach this session only when it was allowed
// to write and returned normally.
func (s *Session) SpawnSandbox(ctx context.Context, req wire.SpawnSandbox) (result.Result, error) {
	if s.host.runner == nil {
		return result.VMError{Message: "sandboxes are not supported by this host"}, nil
	}
	if s.depth >= s.host.maxDepth {
		return result.VMError{Message: "sandbox depth exceeded"}, nil
	}

	child := s.child(req)
	s.host.metrics.Sandboxes.Add(1)
	out, err := s.host.run(ctx, child)
	s.host.metrics.Sandboxes.Add(-1)
	s.gas = out.Gas

	if err != nil {
		s.logger.Warn("sandbox failed", "error", err)
		if out.Result == nil {
			return result.VMError{Message: err.Error()}, nil
		}
	}
	return out.Result, nil
}

// PostEvent implements wire.Handler.
func (s *Session) PostEvent(_ context.Context, req wire.PostEvent) error {
	if err := s.requireEmit(wire.OpPostEvent); err != nil {
		return err
	}
	topics := make(calldata.Array, len(req.Topics))
	for i, t := range req.Topics {
		topics[i] = calldata.Bytes(t[:])
	}
	s.emit(store.KindEvent, calldata.Map{
		"topics": topics,
		"blob":   calldata.Bytes(req.Blob),
	})
	return nil
}
