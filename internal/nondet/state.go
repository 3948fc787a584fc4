package nondet

import (
	"fmt"

	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
)

// State is the lifecycle state of one nondet call.
type State int

const (
	StateCreated State = iota
	StateLeaderRunning
	StateLeaderDone
	StateValidatorRunning
	StateVoted
	StateReported
)

var stateNames = map[State]string{
	StateCreated:          "created",
	StateLeaderRunning:    "leader_running",
	StateLeaderDone:       "leader_done",
	StateValidatorRunning: "validator_running",
	StateVoted:            "voted",
	StateReported:         "reported",
}

// String returns the state name.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Record is the trace of one nondet call as seen by this node.
type Record struct {
	CallNo uint32
	Role   vm.Role
	State  State

	// Leader is the leader outcome: computed locally by a leader, fetched
	// by a validator.
	Leader result.Result

	// Answer is the validator outcome of the vote before reduction.
	Answer result.Result

	// Agree is the reduced vote. Only meaningful for validators.
	Agree bool

	// Unsafe is set when the vote ran without the error guard.
	Unsafe bool
}

func (r *Record) advance(to State) {
	if to <= r.State {
		panic(fmt.Sprintf("nondet: call %d cannot move from %s to %s", r.CallNo, r.State, to))
	}
	r.State = to
}
