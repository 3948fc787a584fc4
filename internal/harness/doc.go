// Package harness runs consensus scenarios: one entry operation executed by
// a leader and a set of validators against a shared journal.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: strict_echo
//	description: "Validators agree on a deterministic leader result"
//	token: test-invocation
//	world_file: world.cue        # or an inline world: {...}
//	setup:
//	  - program: storage.write
//	    args: { slot: 1, data: { $bytes: "05" } }
//	entry:
//	  program: nondet.strict
//	  args: { program: echo, args: 42 }
//	validators: [v1, v2]
//	expect:
//	  leader:    { code: return, value: 42 }
//	  validator: { code: return, value: 42 }
//	  nodes:
//	    v2: { code: user_error, message: "validator_disagrees call 0" }
//	assertions:
//	  - type: trace_contains
//	    kind: vote
//	    node: v1
//	    expect: { code: return, value: true }
//	  - type: trace_order
//	    kinds: [leader_result, vote]
//	  - type: trace_count
//	    kind: leader_result
//	    count: 1
//	  - type: final_state
//	    slot: 1
//	    data: "05"
//
// Arguments and expected values use the calldata JSON view, so bytes are
// written {$bytes: "<hex>"} and addresses {$address: "0x<hex>"}.
//
// # Execution
//
// Every node owns its slot storage; all nodes share one in-memory SQLite
// journal. Setup steps run as leader on every node before the entry. The
// leader then executes the entry, and the validators execute it
// concurrently once the leader results are journaled.
//
// Invocation tokens come from a fixed generator and the trace carries no
// sequence numbers, so a scenario produces the same trace on every run.
// RunWithGolden compares it against testdata/golden/<name>.golden.
package harness
