package wire

import "fmt"

// Opcode identifies a request frame.
type Opcode uint8

const (
	OpGetCalldata Opcode = iota
	OpGetCode
	OpStorageRead
	OpStorageWrite
	OpConsumeResult
	OpGetLeaderNondetResult
	OpPostNondetResult
	OpPostMessage
	OpConsumeFuel
	OpDeployContract
	OpEthCall
	OpEthSend
	OpGetBalance
	OpModuleCall
	OpSpawnSandbox
	OpPostEvent
)

var opcodeNames = map[Opcode]string{
	OpGetCalldata:           "GET_CALLDATA",
	OpGetCode:               "GET_CODE",
	OpStorageRead:           "STORAGE_READ",
	OpStorageWrite:          "STORAGE_WRITE",
	OpConsumeResult:         "CONSUME_RESULT",
	OpGetLeaderNondetResult: "GET_LEADER_NONDET_RESULT",
	OpPostNondetResult:      "POST_NONDET_RESULT",
	OpPostMessage:           "POST_MESSAGE",
	OpConsumeFuel:           "CONSUME_FUEL",
	OpDeployContract:        "DEPLOY_CONTRACT",
	OpEthCall:               "ETH_CALL",
	OpEthSend:               "ETH_SEND",
	OpGetBalance:            "GET_BALANCE",
	OpModuleCall:            "MODULE_CALL",
	OpSpawnSandbox:          "SPAWN_SANDBOX",
	OpPostEvent:             "POST_EVENT",
}

// String returns the protocol name of the opcode.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE(0x%02x)", uint8(o))
}

// Known reports whether o is part of the opcode table.
func (o Opcode) Known() bool {
	_, ok := opcodeNames[o]
	return ok
}

// replyShape is the fixed reply layout of an opcode.
type replyShape int

const (
	shapeNone replyShape = iota
	shapeBytes
	shapeGasData
	shapeGas
	shapeAck
	shapeResult
	shapeOptionalResult
	shapeValue
)

var replyShapes = map[Opcode]replyShape{
	OpGetCalldata:           shapeBytes,
	OpGetCode:               shapeBytes,
	OpStorageRead:           shapeGasData,
	OpStorageWrite:          shapeGas,
	OpConsumeResult:         shapeAck,
	OpGetLeaderNondetResult: shapeOptionalResult,
	OpPostNondetResult:      shapeNone,
	OpPostMessage:           shapeNone,
	OpConsumeFuel:           shapeNone,
	OpDeployContract:        shapeNone,
	OpEthCall:               shapeBytes,
	OpEthSend:               shapeNone,
	OpGetBalance:            shapeValue,
	OpModuleCall:            shapeResult,
	OpSpawnSandbox:          shapeResult,
	OpPostEvent:             shapeNone,
}
