// Package nondet runs nondeterministic blocks: a leader computes a result
// once, validators fetch it and vote on it.
//
// Each call walks the states
//
//	created -> leader_running -> leader_done -> validator_running -> voted -> reported
//
// A leader runs only the leader part and stops at reported after posting its
// outcome with POST_NONDET_RESULT. A validator fetches the leader outcome with
// GET_LEADER_NONDET_RESULT (the leader_done transition), runs the vote and
// posts it as Return(Bool). A leader never asks for its own result.
//
// Validator failures never escape: a vote that returns an error or panics is
// compared with the leader outcome by kind. Two UserErrors are compared with
// the user comparator (exact text by default), two VMErrors agree by default,
// two Rollbacks agree on equal messages, and any other mix is a disagreement.
package nondet
