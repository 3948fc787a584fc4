package harness

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/programs"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/testutil"
	"github.com/roach88/ndvm/internal/vm"
)

// DefaultContract is the contract address of scenarios that set none.
var DefaultContract = testutil.Address(0xc0)

// DefaultSender is the sender of every scenario message.
var DefaultSender = testutil.Address(0x5e)

// Option configures a scenario run.
type Option func(*runConfig)

type runConfig struct {
	logger        *slog.Logger
	vmErrorsAgree bool
}

// WithLogger sets the logger of the hosts and guests. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithVMErrorsAgree sets the engine's VMError comparison.
func WithVMErrorsAgree(agree bool) Option {
	return func(c *runConfig) {
		c.vmErrorsAgree = agree
	}
}

// harness holds the per-run collaborators.
type harness struct {
	scenario *Scenario
	journal  *store.Store
	message  vm.MessageData
	nodes    map[string]*node
	logger   *slog.Logger
}

// node is one participant with its own storage.
type node struct {
	name    string
	storage *store.Memory
	host    *host.Host
}

// Run executes a scenario and returns the result.
//
// Each run uses a fresh in-memory journal, so runs are isolated. An error
// means the scenario could not be executed at all; failed expectations and
// assertions are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: testutil.DiscardLogger(), vmErrorsAgree: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st, cfg)
	if err != nil {
		return nil, err
	}

	if err := h.setup(ctx); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	res := NewResult()
	if err := h.execute(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to execute entry: %w", err)
	}

	if err := h.collectTrace(ctx, res); err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}

	for _, name := range scenario.Nodes() {
		if e := scenario.expectFor(name); e != nil {
			if err := matchExpect(*e, res.Outcomes[name]); err != nil {
				res.AddError(fmt.Sprintf("node %s: %v", name, err))
			}
		}
	}

	for _, msg := range EvaluateAssertions(res, scenario.Assertions, h.assertionContext(ctx)) {
		res.AddError(msg)
	}
	return res, nil
}

func newHarness(s *Scenario, st *store.Store, cfg runConfig) (*harness, error) {
	world := host.NewWorld()
	switch {
	case s.World != nil:
		w, err := s.World.Build()
		if err != nil {
			return nil, fmt.Errorf("build world: %w", err)
		}
		world = w
	case s.WorldFile != "":
		w, err := host.LoadWorld(s.worldPath())
		if err != nil {
			return nil, err
		}
		world = w
	}

	contract := DefaultContract
	if s.Contract != "" {
		a, err := calldata.ParseAddress(s.Contract)
		if err != nil {
			return nil, fmt.Errorf("contract: %w", err)
		}
		contract = a
	}

	engine := nondet.New(
		nondet.WithLogger(cfg.logger),
		nondet.WithVMErrorsAgree(cfg.vmErrorsAgree),
	)
	runner := vm.NewRunner(programs.NewRegistry(engine),
		vm.WithLogger(cfg.logger),
		vm.WithTokenGenerator(testutil.NewFixedTokenGenerator(s.Token)),
	)

	h := &harness{
		scenario: s,
		journal:  st,
		message: vm.MessageData{
			Contract: contract,
			Sender:   DefaultSender,
			Origin:   DefaultSender,
		},
		nodes:  make(map[string]*node),
		logger: cfg.logger,
	}
	for _, name := range s.Nodes() {
		mem := store.NewMemory()
		h.nodes[name] = &node{
			name:    name,
			storage: mem,
			host: host.New(mem, st,
				host.WithLogger(cfg.logger.With("node", name)),
				host.WithWorld(world),
				host.WithRunner(runner),
			),
		}
	}
	return h, nil
}

func (h *harness) assertionContext(ctx context.Context) *AssertionContext {
	storage := make(map[string]host.Storage, len(h.nodes))
	for name, n := range h.nodes {
		storage[name] = n.storage
	}
	return &AssertionContext{Ctx: ctx, Contract: h.message.Contract, Storage: storage}
}

// setup runs the setup steps on every node. Setup transactions are
// journaled under their own ids and stay out of the trace.
func (h *harness) setup(ctx context.Context) error {
	for i, step := range h.scenario.Setup {
		op, err := operation(step)
		if err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
		for _, name := range h.scenario.Nodes() {
			out, err := h.nodes[name].host.Invoke(ctx, host.Tx{
				ID:      fmt.Sprintf("%s/setup/%d", h.scenario.Name, i),
				Node:    name,
				Role:    vm.RoleLeader,
				Message: h.message,
				Entry:   op,
			})
			if err != nil {
				return fmt.Errorf("setup[%d] on %s: %w", i, name, err)
			}
			if _, ok := out.Result.(result.Return); !ok {
				return fmt.Errorf("setup[%d] on %s: %s", i, name, result.String(out.Result))
			}
		}
		h.logger.Debug("setup step completed", "step", i, "program", step.Program)
	}
	return nil
}

// execute runs the entry on the leader, then on all validators at once.
func (h *harness) execute(ctx context.Context, res *Result) error {
	op, err := operation(h.scenario.Entry)
	if err != nil {
		return fmt.Errorf("entry: %w", err)
	}

	nodes := h.scenario.Nodes()
	outcomes := make([]result.Result, len(nodes))
	invoke := func(i int, role vm.Role) error {
		name := nodes[i]
		out, err := h.nodes[name].host.Invoke(ctx, host.Tx{
			ID:      h.scenario.Name,
			Node:    name,
			Role:    role,
			Message: h.message,
			Entry:   op,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		outcomes[i] = out.Result
		return nil
	}

	if err := invoke(0, vm.RoleLeader); err != nil {
		return err
	}

	var g errgroup.Group
	for i := 1; i < len(nodes); i++ {
		g.Go(func() error {
			return invoke(i, vm.RoleValidator)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, name := range nodes {
		res.Outcomes[name] = outcomes[i]
	}
	return nil
}

// collectTrace groups the journal entries of the scenario transaction by
// node, in node order.
func (h *harness) collectTrace(ctx context.Context, res *Result) error {
	entries, err := h.journal.Entries(ctx, h.scenario.Name)
	if err != nil {
		return err
	}
	for _, name := range h.scenario.Nodes() {
		for _, e := range entries {
			if e.Node != name {
				continue
			}
			res.Trace = append(res.Trace, TraceEvent{
				Node:   e.Node,
				Kind:   e.Kind,
				CallNo: e.CallNo,
				Result: e.Result,
				Detail: e.Detail,
			})
		}
	}
	return nil
}

func operation(step Step) (vm.Operation, error) {
	args, err := viewValue(step.Args)
	if err != nil {
		return vm.Operation{}, fmt.Errorf("args: %w", err)
	}
	return vm.SandboxedEval(step.Program, args), nil
}

// viewValue converts a decoded YAML value in the JSON view; nil is Null.
func viewValue(raw any) (calldata.Value, error) {
	if raw == nil {
		return calldata.Null{}, nil
	}
	return calldata.FromView(raw)
}

// matchExpect reports how r differs from e.
func matchExpect(e Expect, r result.Result) error {
	if r == nil {
		return fmt.Errorf("expected %s, got no outcome", e.Code)
	}
	if got := r.Code().String(); got != e.Code {
		return fmt.Errorf("expected %s, got %s", e.Code, result.String(r))
	}
	if e.Message != nil && result.Message(r) != *e.Message {
		return fmt.Errorf("expected message %q, got %q", *e.Message, result.Message(r))
	}
	if e.Value != nil {
		want, err := viewValue(e.Value)
		if err != nil {
			return fmt.Errorf("expected value: %w", err)
		}
		got := r.(result.Return).Value
		if !calldata.Equal(want, got) {
			return fmt.Errorf("expected value %s, got %s", calldata.Format(want), calldata.Format(got))
		}
	}
	return nil
}
