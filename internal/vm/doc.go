// Package vm is the guest runtime of one contract execution.
//
// A Context is created per invocation by Runner and threaded explicitly
// through contract code, the nondeterministic engine and the equivalence
// principles. It owns the wire client of the invocation, the message data,
// the node role, the nondet call sequence, the permission set and the gas
// meter. Nothing in this package is global.
//
// Contract logic is expressed as registered programs. Work that may cross a
// process boundary (nondet blocks, sandboxes) is expressed as an Operation,
// a closed tagged set of serialisable requests:
//
//	exec_prompt     prompt an LLM through the llm.prompt host module
//	web_request     fetch a page through the web.render host module
//	sandboxed_eval  run a registered program with calldata arguments
//	equality_check  run a registered check against a leader result
package vm
