package vm

import "sync/atomic"

// CallSequence numbers the nondet calls of one invocation.
//
// Leader and validators execute the same deterministic contract code, so
// the n-th nondet call gets the same number on every node. Numbers start at
// 0. Nested contexts derived from one invocation share its sequence.
type CallSequence struct {
	next atomic.Uint32
}

// Next returns the next call number.
func (s *CallSequence) Next() uint32 {
	return s.next.Add(1) - 1
}

// Issued returns how many numbers have been handed out.
func (s *CallSequence) Issued() uint32 {
	return s.next.Load()
}
