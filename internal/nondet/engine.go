package nondet

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/deferred"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/vm"
)

// LeaderFunc computes the leader outcome of a call.
type LeaderFunc func(c *vm.Context) (calldata.Value, error)

// Validator decides whether a leader outcome is acceptable.
type Validator interface {
	Vote(c *vm.Context, leader result.Result) (bool, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(c *vm.Context, leader result.Result) (bool, error)

// Vote implements Validator.
func (f ValidatorFunc) Vote(c *vm.Context, leader result.Result) (bool, error) {
	return f(c, leader)
}

// Call is one nondet block.
type Call struct {
	Leader    LeaderFunc
	Validator Validator

	// Unsafe skips the error guard around the vote: any vote error is a
	// disagreement instead of being compared with the leader outcome.
	Unsafe bool
}

// Engine executes nondet calls for leaders and validators.
//
// Thread-safety: Engine holds only configuration and is safe for concurrent
// use by independent invocations.
type Engine struct {
	logger          *slog.Logger
	timeout         time.Duration
	compareUser     result.Comparator
	compareVM       result.Comparator
	compareRollback result.Comparator
	observe         func(Record)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTimeout bounds each leader run and each vote. Expiry is a VMError.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithUserErrorComparator replaces exact-text comparison of UserErrors.
func WithUserErrorComparator(cmp result.Comparator) Option {
	return func(e *Engine) {
		e.compareUser = cmp
	}
}

// WithVMErrorsAgree toggles between AlwaysAgree (true) and ExactMessage.
func WithVMErrorsAgree(agree bool) Option {
	return func(e *Engine) {
		if agree {
			e.compareVM = result.AlwaysAgree
		} else {
			e.compareVM = result.ExactMessage
		}
	}
}

// WithObserver receives the final record of every call.
func WithObserver(fn func(Record)) Option {
	return func(e *Engine) {
		e.observe = fn
	}
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:          slog.Default(),
		compareUser:     result.ExactMessage,
		compareVM:       result.AlwaysAgree,
		compareRollback: result.ExactMessage,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes a nondet block with the vote guarded.
func (e *Engine) Run(c *vm.Context, leader LeaderFunc, validator Validator) (calldata.Value, error) {
	return e.Execute(c, Call{Leader: leader, Validator: validator})
}

// RunUnsafe executes a nondet block without the vote guard.
func (e *Engine) RunUnsafe(c *vm.Context, leader LeaderFunc, validator Validator) (calldata.Value, error) {
	return e.Execute(c, Call{Leader: leader, Validator: validator, Unsafe: true})
}

// RunLazy postpones Execute until the handle is forced. The call number is
// assigned when the handle is forced; closing an unforced handle performs
// no exchange.
func (e *Engine) RunLazy(c *vm.Context, call Call) *deferred.Handle[calldata.Value] {
	src := &lazySource{run: func() (calldata.Value, error) { return e.Execute(c, call) }}
	return deferred.New(src, func([]byte) (calldata.Value, error) {
		return src.val, src.err
	})
}

type lazySource struct {
	run func() (calldata.Value, error)
	val calldata.Value
	err error
}

func (s *lazySource) Read() ([]byte, error) {
	s.val, s.err = s.run()
	return nil, nil
}

func (s *lazySource) Close() error { return nil }

// Execute runs call in the role of c and returns the contract-visible
// outcome.
//
// Leader: the leader outcome itself. Validator: the leader outcome when the
// vote agrees, UserError("validator_disagrees call N") otherwise. Errors
// other than Rollback/UserError/VMError are fatal transport failures.
func (e *Engine) Execute(c *vm.Context, call Call) (calldata.Value, error) {
	if !c.Permissions().CanSpawnNondet {
		return nil, result.VMErrorf("nondet calls are forbidden in this context")
	}

	rec := Record{CallNo: c.NextCallNo(), Role: c.Role(), Unsafe: call.Unsafe}
	logger := c.Logger().With("call_no", rec.CallNo)

	var (
		out calldata.Value
		err error
	)
	switch c.Role() {
	case vm.RoleLeader:
		out, err = e.lead(c, call, &rec, logger)
	case vm.RoleValidator:
		out, err = e.validate(c, call, &rec, logger)
	default:
		return nil, result.VMErrorf("unknown role %s", c.Role())
	}

	if e.observe != nil && rec.State == StateReported {
		e.observe(rec)
	}
	return out, err
}

func (e *Engine) lead(c *vm.Context, call Call, rec *Record, logger *slog.Logger) (calldata.Value, error) {
	rec.advance(StateLeaderRunning)
	res, fatal := e.protect(c, call.Leader)
	if fatal != nil {
		return nil, fatal
	}
	rec.Leader = res
	rec.advance(StateLeaderDone)
	logger.Debug("leader done", "result", result.String(res))

	if err := c.Client().PostNondetResult(c.Std(), rec.CallNo, res); err != nil {
		return nil, err
	}
	rec.advance(StateReported)
	return result.Unpack(res)
}

func (e *Engine) validate(c *vm.Context, call Call, rec *Record, logger *slog.Logger) (calldata.Value, error) {
	leader, present, err := c.Client().GetLeaderNondetResult(c.Std(), rec.CallNo)
	if err != nil {
		return nil, err
	}
	if !present {
		logger.Warn("leader result absent")
		return nil, result.VMErrorf("leader result for call %d is absent", rec.CallNo)
	}
	rec.Leader = leader
	rec.advance(StateLeaderDone)

	rec.advance(StateValidatorRunning)
	answer, fatal := e.protect(c, func(nc *vm.Context) (calldata.Value, error) {
		agree, err := call.Validator.Vote(nc, leader)
		if err != nil {
			return nil, err
		}
		return calldata.Bool(agree), nil
	})
	if fatal != nil {
		return nil, fatal
	}
	rec.Answer = answer
	if call.Unsafe {
		rec.Agree = isTrue(answer)
	} else {
		rec.Agree = e.Reduce(leader, answer)
	}
	rec.advance(StateVoted)
	logger.Debug("validator voted", "leader", result.String(leader), "answer", result.String(answer), "agree", rec.Agree)

	if err := c.Client().PostNondetResult(c.Std(), rec.CallNo, result.Vote(rec.Agree)); err != nil {
		return nil, err
	}
	rec.advance(StateReported)

	if !rec.Agree {
		return nil, result.UserError{Message: fmt.Sprintf("validator_disagrees call %d", rec.CallNo)}
	}
	return result.Unpack(leader)
}

// protect runs fn in a nondet context bounded by the engine timeout.
func (e *Engine) protect(c *vm.Context, fn func(*vm.Context) (calldata.Value, error)) (result.Result, error) {
	nc, cancel := c.Nondet().WithTimeout(e.timeout)
	defer cancel()
	return vm.Protect(nc, fn)
}

// Reduce turns a guarded vote outcome into agreement with the leader.
func (e *Engine) Reduce(leader, answer result.Result) bool {
	if leader == nil || answer == nil || leader.Code() != answer.Code() {
		return false
	}
	switch answer.(type) {
	case result.Return:
		return isTrue(answer)
	case result.UserError:
		return e.compareUser(result.Message(leader), result.Message(answer))
	case result.VMError:
		return e.compareVM(result.Message(leader), result.Message(answer))
	case result.Rollback:
		return e.compareRollback(result.Message(leader), result.Message(answer))
	default:
		return false
	}
}

func isTrue(r result.Result) bool {
	ret, ok := r.(result.Return)
	if !ok {
		return false
	}
	b, ok := ret.Value.(calldata.Bool)
	return ok && bool(b)
}
