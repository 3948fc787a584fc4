package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

// SlotSize is the size of a storage slot identifier.
const SlotSize = 32

// ValueSize is the size of a 256-bit value field.
const ValueSize = 32

// MaxTopics is the maximum number of topics of one event.
const MaxTopics = 4

// MaxFieldSize bounds every variable-length field.
const MaxFieldSize = 64 << 20

// SlotID identifies a storage slot. Its layout is opaque to this package.
type SlotID [SlotSize]byte

// Topic is one 32-byte event topic.
type Topic [32]byte

// Request is one guest-to-host frame body.
type Request interface {
	Opcode() Opcode
	appendFields(dst []byte) ([]byte, error)
}

// GetCalldata asks for the entry payload of the current execution.
type GetCalldata struct{}

// GetCode asks for the code of an account.
type GetCode struct {
	Account calldata.Address
}

// StorageRead reads Length bytes at Offset of a slot.
type StorageRead struct {
	Gas     uint64
	Account calldata.Address
	Slot    SlotID
	Offset  uint32
	Length  uint32
}

// StorageReadReply carries the bytes read and the gas left afterwards.
type StorageReadReply struct {
	Gas  uint64
	Data []byte
}

// StorageWrite writes Data at Offset of a slot.
type StorageWrite struct {
	Gas     uint64
	Account calldata.Address
	Slot    SlotID
	Offset  uint32
	Data    []byte
}

// ConsumeResult reports the terminal outcome of the execution.
type ConsumeResult struct {
	Result result.Result
}

// GetLeaderNondetResult asks for the leader outcome of nondet call CallNo.
type GetLeaderNondetResult struct {
	CallNo uint32
}

// PostNondetResult reports the outcome (leader) or vote (validator) of a call.
type PostNondetResult struct {
	CallNo uint32
	Result result.Result
}

// PostMessage emits a message to another account.
type PostMessage struct {
	Account  calldata.Address
	Gas      uint64
	Value    uint256.Int
	Calldata []byte
	Code     []byte
}

// ConsumeFuel charges gas outside of storage operations.
type ConsumeFuel struct {
	Gas uint64
}

// DeployContract emits a deployment of new code.
type DeployContract struct {
	Gas      uint64
	Value    uint256.Int
	Calldata []byte
	Code     []byte
}

// EthCall performs a read-only call on the interop chain.
type EthCall struct {
	Account  calldata.Address
	Calldata []byte
}

// EthSend emits a transaction on the interop chain.
type EthSend struct {
	Account  calldata.Address
	Value    uint256.Int
	Calldata []byte
}

// GetBalance asks for the balance of an account.
type GetBalance struct {
	Account calldata.Address
}

// ModuleCall submits Payload (calldata) to the named host module.
type ModuleCall struct {
	Module  string
	Payload []byte
}

// SpawnSandbox starts a nested execution with the given entry payload.
// The flags byte carries AllowWrite in bit 0 and Nondet in bit 1.
type SpawnSandbox struct {
	AllowWrite bool

	// Nondet runs the child non-deterministically: host modules are
	// reachable and storage is not.
	Nondet bool

	Entry []byte
}

const (
	sandboxAllowWrite byte = 1 << iota
	sandboxNondet
)

// PostEvent emits an event with up to MaxTopics topics.
type PostEvent struct {
	Topics []Topic
	Blob   []byte
}

func (GetCalldata) Opcode() Opcode           { return OpGetCalldata }
func (GetCode) Opcode() Opcode               { return OpGetCode }
func (StorageRead) Opcode() Opcode           { return OpStorageRead }
func (StorageWrite) Opcode() Opcode          { return OpStorageWrite }
func (ConsumeResult) Opcode() Opcode         { return OpConsumeResult }
func (GetLeaderNondetResult) Opcode() Opcode { return OpGetLeaderNondetResult }
func (PostNondetResult) Opcode() Opcode      { return OpPostNondetResult }
func (PostMessage) Opcode() Opcode           { return OpPostMessage }
func (ConsumeFuel) Opcode() Opcode           { return OpConsumeFuel }
func (DeployContract) Opcode() Opcode        { return OpDeployContract }
func (EthCall) Opcode() Opcode               { return OpEthCall }
func (EthSend) Opcode() Opcode               { return OpEthSend }
func (GetBalance) Opcode() Opcode            { return OpGetBalance }
func (ModuleCall) Opcode() Opcode            { return OpModuleCall }
func (SpawnSandbox) Opcode() Opcode          { return OpSpawnSandbox }
func (PostEvent) Opcode() Opcode             { return OpPostEvent }

func (GetCalldata) appendFields(dst []byte) ([]byte, error) { return dst, nil }

func (r GetCode) appendFields(dst []byte) ([]byte, error) {
	return append(dst, r.Account[:]...), nil
}

func (r StorageRead) appendFields(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint64(dst, r.Gas)
	dst = append(dst, r.Account[:]...)
	dst = append(dst, r.Slot[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, r.Offset)
	return binary.LittleEndian.AppendUint32(dst, r.Length), nil
}

func (r StorageWrite) appendFields(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint64(dst, r.Gas)
	dst = append(dst, r.Account[:]...)
	dst = append(dst, r.Slot[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, r.Offset)
	return appendField(dst, r.Data)
}

func (r ConsumeResult) appendFields(dst []byte) ([]byte, error) {
	return appendResult(dst, r.Result)
}

func (r GetLeaderNondetResult) appendFields(dst []byte) ([]byte, error) {
	return binary.LittleEndian.AppendUint32(dst, r.CallNo), nil
}

func (r PostNondetResult) appendFields(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint32(dst, r.CallNo)
	return appendResult(dst, r.Result)
}

func (r PostMessage) appendFields(dst []byte) ([]byte, error) {
	dst = append(dst, r.Account[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, r.Gas)
	dst = appendValue(dst, &r.Value)
	dst, err := appendField(dst, r.Calldata)
	if err != nil {
		return nil, err
	}
	return appendField(dst, r.Code)
}

func (r ConsumeFuel) appendFields(dst []byte) ([]byte, error) {
	return binary.LittleEndian.AppendUint64(dst, r.Gas), nil
}

func (r DeployContract) appendFields(dst []byte) ([]byte, error) {
	dst = binary.LittleEndian.AppendUint64(dst, r.Gas)
	dst = appendValue(dst, &r.Value)
	dst, err := appendField(dst, r.Calldata)
	if err != nil {
		return nil, err
	}
	return appendField(dst, r.Code)
}

func (r EthCall) appendFields(dst []byte) ([]byte, error) {
	dst = append(dst, r.Account[:]...)
	return appendField(dst, r.Calldata)
}

func (r EthSend) appendFields(dst []byte) ([]byte, error) {
	dst = append(dst, r.Account[:]...)
	dst = appendValue(dst, &r.Value)
	return appendField(dst, r.Calldata)
}

func (r GetBalance) appendFields(dst []byte) ([]byte, error) {
	return append(dst, r.Account[:]...), nil
}

func (r ModuleCall) appendFields(dst []byte) ([]byte, error) {
	dst, err := appendField(dst, []byte(r.Module))
	if err != nil {
		return nil, err
	}
	return appendField(dst, r.Payload)
}

func (r SpawnSandbox) appendFields(dst []byte) ([]byte, error) {
	var flags byte
	if r.AllowWrite {
		flags |= sandboxAllowWrite
	}
	if r.Nondet {
		flags |= sandboxNondet
	}
	dst = append(dst, flags)
	return appendField(dst, r.Entry)
}

func (r PostEvent) appendFields(dst []byte) ([]byte, error) {
	if len(r.Topics) > MaxTopics {
		return nil, fmt.Errorf("event has %d topics, at most %d allowed", len(r.Topics), MaxTopics)
	}
	dst = append(dst, byte(len(r.Topics)))
	for _, topic := range r.Topics {
		dst = append(dst, topic[:]...)
	}
	return appendField(dst, r.Blob)
}

// encodeRequest builds the complete frame for req.
func encodeRequest(req Request) ([]byte, error) {
	return req.appendFields([]byte{byte(req.Opcode())})
}

func appendField(dst, data []byte) ([]byte, error) {
	if len(data) > MaxFieldSize {
		return nil, fmt.Errorf("field of %d bytes exceeds %d", len(data), MaxFieldSize)
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(data)))
	return append(dst, data...), nil
}

func appendResult(dst []byte, r result.Result) ([]byte, error) {
	code, payload, err := result.EncodePayload(r)
	if err != nil {
		return nil, err
	}
	dst = append(dst, byte(code))
	return appendField(dst, payload)
}

func appendOptionalResult(dst []byte, r result.Result, present bool) ([]byte, error) {
	if !present {
		return append(dst, byte(result.CodeAbsent)), nil
	}
	return appendResult(dst, r)
}

// appendValue writes v as 32 little-endian bytes.
func appendValue(dst []byte, v *uint256.Int) []byte {
	for _, limb := range v {
		dst = binary.LittleEndian.AppendUint64(dst, limb)
	}
	return dst
}

// frameReader reads fixed and variable fields, reporting the protocol state
// it enters to an optional hook.
type frameReader struct {
	r       io.Reader
	onState func(State)
	scratch [ValueSize]byte
}

func (f *frameReader) enter(s State) {
	if f.onState != nil {
		f.onState(s)
	}
}

func (f *frameReader) fixed(n int) ([]byte, error) {
	f.enter(StateReadingFixedFields)
	buf := f.scratch[:n]
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (f *frameReader) u8() (byte, error) {
	b, err := f.fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (f *frameReader) u32() (uint32, error) {
	b, err := f.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (f *frameReader) u64() (uint64, error) {
	b, err := f.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (f *frameReader) address() (calldata.Address, error) {
	var a calldata.Address
	b, err := f.fixed(calldata.AddressSize)
	if err != nil {
		return a, err
	}
	copy(a[:], b)
	return a, nil
}

func (f *frameReader) slot() (SlotID, error) {
	var s SlotID
	b, err := f.fixed(SlotSize)
	if err != nil {
		return s, err
	}
	copy(s[:], b)
	return s, nil
}

func (f *frameReader) value() (uint256.Int, error) {
	var v uint256.Int
	b, err := f.fixed(ValueSize)
	if err != nil {
		return v, err
	}
	for i := range v {
		v[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return v, nil
}

// exact reads n raw bytes as part of the variable section.
func (f *frameReader) exact(n uint32) ([]byte, error) {
	f.enter(StateReadingVariableFields)
	if n > MaxFieldSize {
		return nil, errFieldTooLarge{size: n}
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// field reads a u32 length followed by that many bytes.
func (f *frameReader) field() ([]byte, error) {
	n, err := f.u32()
	if err != nil {
		return nil, err
	}
	return f.exact(n)
}

func (f *frameReader) result() (result.Result, error) {
	code, err := f.u8()
	if err != nil {
		return nil, err
	}
	return f.resultWithCode(result.Code(code))
}

func (f *frameReader) resultWithCode(code result.Code) (result.Result, error) {
	if code == result.CodeAbsent || !code.Valid() {
		return nil, errBadResultCode{code: code}
	}
	payload, err := f.field()
	if err != nil {
		return nil, err
	}
	return result.DecodePayload(code, payload)
}

// optionalResult reads a result that may be Absent.
func (f *frameReader) optionalResult() (result.Result, bool, error) {
	code, err := f.u8()
	if err != nil {
		return nil, false, err
	}
	if result.Code(code) == result.CodeAbsent {
		return nil, false, nil
	}
	r, err := f.resultWithCode(result.Code(code))
	return r, err == nil, err
}

type errFieldTooLarge struct{ size uint32 }

func (e errFieldTooLarge) Error() string {
	return fmt.Sprintf("field of %d bytes exceeds %d", e.size, MaxFieldSize)
}

type errBadResultCode struct{ code result.Code }

func (e errBadResultCode) Error() string {
	return fmt.Sprintf("unexpected result code %s", e.code)
}
