// Package wire implements the host/guest request/response protocol.
//
// A connection carries exactly one contract execution. The guest sends a
// frame made of one opcode byte and an opcode-specific sequence of fields;
// the host answers with the fixed reply shape of that opcode, or with nothing
// for fire-and-forget opcodes. Integers are little-endian. Variable fields are
// a u32 length followed by raw bytes. Gas amounts are u64.
//
// There is never more than one request in flight: Client serialises calls and
// Server processes one frame at a time. CONSUME_RESULT is terminal; after its
// acknowledgement both sides consider the connection closed.
//
// Request and reply layouts:
//
//	GET_CALLDATA              -                                  -> u32 len, bytes
//	GET_CODE                  account[20]                        -> u32 len, bytes
//	STORAGE_READ              gas, account, slot[32], off, len   -> gas, len bytes
//	STORAGE_WRITE             gas, account, slot, off, data      -> gas
//	CONSUME_RESULT            code, payload                      -> ack u8
//	GET_LEADER_NONDET_RESULT  call_no u32                        -> code [, payload]
//	POST_NONDET_RESULT        call_no, code, payload             -> (none)
//	POST_MESSAGE              account, gas, value[32], calldata, code -> (none)
//	CONSUME_FUEL              gas                                -> (none)
//	DEPLOY_CONTRACT           gas, value, calldata, code         -> (none)
//	ETH_CALL                  account, calldata                  -> u32 len, bytes
//	ETH_SEND                  account, value, calldata           -> (none)
//	GET_BALANCE               account                            -> value[32]
//	MODULE_CALL               module, payload                    -> code, payload
//	SPAWN_SANDBOX             flags u8, entry                    -> code, payload
//	POST_EVENT                count u8, topics[count][32], blob  -> (none)
//
// Values are 256-bit unsigned integers in little-endian order. The
// GET_LEADER_NONDET_RESULT reply omits the payload when the code is Absent.
// SPAWN_SANDBOX flags: bit 0 allows storage writes, bit 1 runs the child
// non-deterministically.
package wire
