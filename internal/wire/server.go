package wire

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

// State is the host-side protocol state of a connection.
type State int32

const (
	StateAwaitingOpcode State = iota
	StateReadingFixedFields
	StateReadingVariableFields
	StateDispatching
	StateClosed
)

var stateNames = map[State]string{
	StateAwaitingOpcode:        "awaiting_opcode",
	StateReadingFixedFields:    "reading_fixed_fields",
	StateReadingVariableFields: "reading_variable_fields",
	StateDispatching:           "dispatching",
	StateClosed:                "closed",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Handler implements the host side of every opcode.
//
// A handler error is a host fault: the connection is closed and Serve
// returns the error. Domain outcomes such as exhausted gas are expressed in
// the reply values, never as errors.
type Handler interface {
	GetCalldata(ctx context.Context) ([]byte, error)
	GetCode(ctx context.Context, account calldata.Address) ([]byte, error)
	StorageRead(ctx context.Context, req StorageRead) (StorageReadReply, error)
	StorageWrite(ctx context.Context, req StorageWrite) (uint64, error)
	ConsumeResult(ctx context.Context, r result.Result) error
	GetLeaderNondetResult(ctx context.Context, callNo uint32) (result.Result, bool, error)
	PostNondetResult(ctx context.Context, callNo uint32, r result.Result) error
	PostMessage(ctx context.Context, req PostMessage) error
	ConsumeFuel(ctx context.Context, gas uint64) error
	DeployContract(ctx context.Context, req DeployContract) error
	EthCall(ctx context.Context, req EthCall) ([]byte, error)
	EthSend(ctx context.Context, req EthSend) error
	GetBalance(ctx context.Context, account calldata.Address) (uint256.Int, error)
	ModuleCall(ctx context.Context, req ModuleCall) (result.Result, error)
	SpawnSandbox(ctx context.Context, req SpawnSandbox) (result.Result, error)
	PostEvent(ctx context.Context, req PostEvent) error
}

// ObserveFunc is called once per dispatched frame.
type ObserveFunc func(op Opcode, elapsed time.Duration, err error)

// Server runs the host-side state machine for one connection.
type Server struct {
	handler Handler
	logger  *slog.Logger
	timeout time.Duration
	observe ObserveFunc
	state   atomic.Int32
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithFrameTimeout bounds the time spent reading one frame. Zero disables it.
// The deadline only applies when the connection supports SetReadDeadline.
func WithFrameTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = d
	}
}

// WithObserver registers a per-frame callback, typically for metrics.
func WithObserver(fn ObserveFunc) ServerOption {
	return func(s *Server) {
		s.observe = fn
	}
}

// NewServer creates a Server dispatching to h.
func NewServer(h Handler, opts ...ServerOption) *Server {
	s := &Server{
		handler: h,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current protocol state.
func (s *Server) State() State {
	return State(s.state.Load())
}

func (s *Server) setState(st State) {
	s.state.Store(int32(st))
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// Serve processes frames until CONSUME_RESULT has been acknowledged, which
// returns nil, or until a fatal failure, which returns a *TransportError or
// a wrapped handler error. The state is StateClosed when Serve returns.
//
// Serve never reads past a frame it cannot interpret.
func (s *Server) Serve(ctx context.Context, conn io.ReadWriter) error {
	defer s.setState(StateClosed)

	if d, ok := conn.(deadliner); ok {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(time.Now())
		})
		defer stop()
	}

	fr := &frameReader{r: conn, onState: s.setState}
	for {
		s.setState(StateAwaitingOpcode)
		if err := ctx.Err(); err != nil {
			return &TransportError{State: StateAwaitingOpcode, Reason: "cancelled", Err: err}
		}
		if rd, ok := conn.(readDeadliner); ok && s.timeout > 0 {
			_ = rd.SetReadDeadline(time.Now().Add(s.timeout))
		}

		var opb [1]byte
		if _, err := io.ReadFull(conn, opb[:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return &TransportError{State: StateAwaitingOpcode, Reason: "connection closed before result", Err: err}
		}

		op := Opcode(opb[0])
		if !op.Known() {
			s.setState(StateClosed)
			s.logger.Warn("unknown opcode", "opcode", op.String())
			return &TransportError{Op: op, HasOp: true, State: StateAwaitingOpcode, Reason: "unknown opcode"}
		}

		start := time.Now()
		terminal, err := s.dispatch(ctx, op, fr, conn)
		if s.observe != nil {
			s.observe(op, time.Since(start), err)
		}
		if err != nil {
			s.logger.Debug("frame failed", "opcode", op.String(), "state", s.State().String(), "error", err)
			return err
		}
		s.logger.Debug("frame handled", "opcode", op.String())
		if terminal {
			return nil
		}
	}
}

func (s *Server) dispatch(ctx context.Context, op Opcode, fr *frameReader, w io.Writer) (bool, error) {
	readErr := func(err error) error {
		reason := "truncated frame"
		var big errFieldTooLarge
		var bad errBadResultCode
		var topics errBadTopicCount
		switch {
		case errors.As(err, &big):
			reason = "oversized field"
		case errors.As(err, &bad), errors.As(err, &topics), calldata.IsDecodingError(err):
			reason = "malformed frame"
		}
		return &TransportError{Op: op, HasOp: true, State: s.State(), Reason: reason, Err: err}
	}
	handleErr := func(err error) error {
		return fmt.Errorf("handle %s: %w", op, err)
	}

	var reply []byte
	terminal := false

	switch op {
	case OpGetCalldata:
		s.setState(StateDispatching)
		data, err := s.handler.GetCalldata(ctx)
		if err != nil {
			return false, handleErr(err)
		}
		if reply, err = appendField(nil, data); err != nil {
			return false, handleErr(err)
		}

	case OpGetCode:
		account, err := fr.address()
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		code, err := s.handler.GetCode(ctx, account)
		if err != nil {
			return false, handleErr(err)
		}
		if reply, err = appendField(nil, code); err != nil {
			return false, handleErr(err)
		}

	case OpStorageRead:
		req, err := readStorageRead(fr)
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		out, err := s.handler.StorageRead(ctx, req)
		if err != nil {
			return false, handleErr(err)
		}
		if uint32(len(out.Data)) != req.Length {
			return false, handleErr(fmt.Errorf("storage read returned %d bytes, want %d", len(out.Data), req.Length))
		}
		reply = binary.LittleEndian.AppendUint64(nil, out.Gas)
		reply = append(reply, out.Data...)

	case OpStorageWrite:
		req, err := readStorageWrite(fr)
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		gas, err := s.handler.StorageWrite(ctx, req)
		if err != nil {
			return false, handleErr(err)
		}
		reply = binary.LittleEndian.AppendUint64(nil, gas)

	case OpConsumeResult:
		r, err := fr.result()
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		if err := s.handler.ConsumeResult(ctx, r); err != nil {
			return false, handleErr(err)
		}
		reply = []byte{0}
		terminal = true

	case OpGetLeaderNondetResult:
		callNo, err := fr.u32()
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		r, present, err := s.handler.GetLeaderNondetResult(ctx, callNo)
		if err != nil {
			return false, handleErr(err)
		}
		if reply, err = appendOptionalResult(nil, r, present); err != nil {
			return false, handleErr(err)
		}

	case OpPostNondetResult:
		callNo, err := fr.u32()
		if err != nil {
			return false, readErr(err)
		}
		r, err := fr.result()
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		if err := s.handler.PostNondetResult(ctx, callNo, r); err != nil {
			return false, handleErr(err)
		}

	case OpPostMessage:
		req, err := readPostMessage(fr)
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		if err := s.handler.PostMessage(ctx, req); err != nil {
			return false, handleErr(err)
		}

	case OpConsumeFuel:
		gas, err := fr.u64()
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		if err := s.handler.ConsumeFuel(ctx, gas); err != nil {
			return false, handleErr(err)
		}

	case OpDeployContract:
		req, err := readDeployContract(fr)
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		if err := s.handler.DeployContract(ctx, req); err != nil {
			return false, handleErr(err)
		}

	case OpEthCall:
		var req EthCall
		var err error
		if req.Account, err = fr.address(); err != nil {
			return false, readErr(err)
		}
		if req.Calldata, err = fr.field(); err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		out, err := s.handler.EthCall(ctx, req)
		if err != nil {
			return false, handleErr(err)
		}
		if reply, err = appendField(nil, out); err != nil {
			return false, handleErr(err)
		}

	case OpEthSend:
		var req EthSend
		var err error
		if req.Account, err = fr.address(); err != nil {
			return false, readErr(err)
		}
		if req.Value, err = fr.value(); err != nil {
			return false, readErr(err)
		}
		if req.Calldata, err = fr.field(); err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		if err := s.handler.EthSend(ctx, req); err != nil {
			return false, handleErr(err)
		}

	case OpGetBalance:
		account, err := fr.address()
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		balance, err := s.handler.GetBalance(ctx, account)
		if err != nil {
			return false, handleErr(err)
		}
		reply = appendValue(nil, &balance)

	case OpModuleCall:
		var req ModuleCall
		module, err := fr.field()
		if err != nil {
			return false, readErr(err)
		}
		req.Module = string(module)
		if req.Payload, err = fr.field(); err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		r, err := s.handler.ModuleCall(ctx, req)
		if err != nil {
			return false, handleErr(err)
		}
		if reply, err = appendResult(nil, r); err != nil {
			return false, handleErr(err)
		}

	case OpSpawnSandbox:
		var req SpawnSandbox
		flags, err := fr.u8()
		if err != nil {
			return false, readErr(err)
		}
		req.AllowWrite = flags&sandboxAllowWrite != 0
		req.Nondet = flags&sandboxNondet != 0
		if req.Entry, err = fr.field(); err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		r, err := s.handler.SpawnSandbox(ctx, req)
		if err != nil {
			return false, handleErr(err)
		}
		if reply, err = appendResult(nil, r); err != nil {
			return false, handleErr(err)
		}

	case OpPostEvent:
		req, err := readPostEvent(fr)
		if err != nil {
			return false, readErr(err)
		}
		s.setState(StateDispatching)
		if err := s.handler.PostEvent(ctx, req); err != nil {
			return false, handleErr(err)
		}
	}

	if len(reply) > 0 {
		if _, err := w.Write(reply); err != nil {
			return false, &TransportError{Op: op, HasOp: true, State: StateDispatching, Reason: "write reply", Err: err}
		}
	}
	return terminal, nil
}

func readStorageRead(fr *frameReader) (StorageRead, error) {
	var req StorageRead
	var err error
	if req.Gas, err = fr.u64(); err != nil {
		return req, err
	}
	if req.Account, err = fr.address(); err != nil {
		return req, err
	}
	if req.Slot, err = fr.slot(); err != nil {
		return req, err
	}
	if req.Offset, err = fr.u32(); err != nil {
		return req, err
	}
	if req.Length, err = fr.u32(); err != nil {
		return req, err
	}
	if req.Length > MaxFieldSize {
		return req, errFieldTooLarge{size: req.Length}
	}
	return req, nil
}

func readStorageWrite(fr *frameReader) (StorageWrite, error) {
	var req StorageWrite
	var err error
	if req.Gas, err = fr.u64(); err != nil {
		return req, err
	}
	if req.Account, err = fr.address(); err != nil {
		return req, err
	}
	if req.Slot, err = fr.slot(); err != nil {
		return req, err
	}
	if req.Offset, err = fr.u32(); err != nil {
		return req, err
	}
	req.Data, err = fr.field()
	return req, err
}

func readPostMessage(fr *frameReader) (PostMessage, error) {
	var req PostMessage
	var err error
	if req.Account, err = fr.address(); err != nil {
		return req, err
	}
	if req.Gas, err = fr.u64(); err != nil {
		return req, err
	}
	if req.Value, err = fr.value(); err != nil {
		return req, err
	}
	if req.Calldata, err = fr.field(); err != nil {
		return req, err
	}
	req.Code, err = fr.field()
	return req, err
}

func readDeployContract(fr *frameReader) (DeployContract, error) {
	var req DeployContract
	var err error
	if req.Gas, err = fr.u64(); err != nil {
		return req, err
	}
	if req.Value, err = fr.value(); err != nil {
		return req, err
	}
	if req.Calldata, err = fr.field(); err != nil {
		return req, err
	}
	req.Code, err = fr.field()
	return req, err
}

func readPostEvent(fr *frameReader) (PostEvent, error) {
	var req PostEvent
	count, err := fr.u8()
	if err != nil {
		return req, err
	}
	if count > MaxTopics {
		return req, errBadTopicCount{count: count}
	}
	req.Topics = make([]Topic, count)
	for i := range req.Topics {
		b, err := fr.fixed(32)
		if err != nil {
			return req, err
		}
		copy(req.Topics[i][:], b)
	}
	req.Blob, err = fr.field()
	return req, err
}

type errBadTopicCount struct{ count byte }

func (e errBadTopicCount) Error() string {
	return fmt.Sprintf("event has %d topics, at most %d allowed", e.count, MaxTopics)
}
