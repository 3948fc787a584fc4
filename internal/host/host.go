package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/ndvm/internal/metrics"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/vm"
	"github.com/roach88/ndvm/internal/wire"
)

const (
	// DefaultInitialGas is the gas of a transaction that does not set one.
	DefaultInitialGas uint64 = 10_000_000

	// DefaultMaxSandboxDepth bounds nested SPAWN_SANDBOX requests.
	DefaultMaxSandboxDepth = 8
)

// Tx is one execution of an entry operation on one node.
type Tx struct {
	// ID groups the leader and validator executions of one transaction.
	ID string

	// Node names the executing node in the journal. Defaults to the role.
	Node string

	Role    vm.Role
	Message vm.MessageData
	Entry   vm.Operation

	// Gas is the initial gas. Zero means the host default.
	Gas uint64
}

func (tx Tx) node() string {
	if tx.Node != "" {
		return tx.Node
	}
	return tx.Role.String()
}

// Outcome is what the host observed for one connection.
type Outcome struct {
	Tx     string
	Node   string
	Result result.Result

	// Gas is the gas left when the connection closed.
	Gas uint64
}

// Host answers guest requests over storage, a journal and a world.
//
// Thread-safety: Host is safe for concurrent use; each connection gets its
// own Session.
type Host struct {
	storage    Storage
	journal    Journal
	world      *World
	modules    map[string]Module
	runner     *vm.Runner
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
	initialGas uint64
	gasPerByte uint64
	maxDepth   int
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		h.logger = logger
	}
}

// WithWorld sets the world fixture. Its canned module answers are
// installed for modules without an explicit WithModule.
func WithWorld(w *World) Option {
	return func(h *Host) {
		h.world = w
	}
}

// WithModule installs a module provider.
func WithModule(name string, m Module) Option {
	return func(h *Host) {
		h.modules[name] = m
	}
}

// WithRunner sets the guest runner used by Invoke and for sandboxes.
// Without a runner, SPAWN_SANDBOX answers a VMError.
func WithRunner(r *vm.Runner) Option {
	return func(h *Host) {
		h.runner = r
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Host) {
		h.metrics = m
	}
}

// WithFrameTimeout bounds reading one guest frame.
func WithFrameTimeout(d time.Duration) Option {
	return func(h *Host) {
		h.timeout = d
	}
}

// WithInitialGas sets the gas of transactions that do not set one.
func WithInitialGas(gas uint64) Option {
	return func(h *Host) {
		h.initialGas = gas
	}
}

// WithStorageGasPerByte sets the gas charged per byte read or written.
func WithStorageGasPerByte(gas uint64) Option {
	return func(h *Host) {
		h.gasPerByte = gas
	}
}

// WithMaxSandboxDepth bounds sandbox nesting.
func WithMaxSandboxDepth(depth int) Option {
	return func(h *Host) {
		h.maxDepth = depth
	}
}

// New creates a Host over storage and journal.
func New(storage Storage, journal Journal, opts ...Option) *Host {
	h := &Host{
		storage:    storage,
		journal:    journal,
		world:      NewWorld(),
		modules:    make(map[string]Module),
		logger:     slog.Default(),
		metrics:    metrics.NopMetrics(),
		initialGas: DefaultInitialGas,
		maxDepth:   DefaultMaxSandboxDepth,
	}
	for _, opt := range opts {
		opt(h)
	}
	for name, canned := range h.world.Modules {
		if _, ok := h.modules[name]; !ok {
			h.modules[name] = canned
		}
	}
	return h
}

// Journal returns the journal.
func (h *Host) Journal() Journal {
	return h.journal
}

// Serve answers one guest connection executing tx until the guest reports
// its outcome or the connection fails.
//
// A transport failure is returned as the error; the outcome then carries
// the VMError the host recorded for the execution.
func (h *Host) Serve(ctx context.Context, conn io.ReadWriter, tx Tx) (Outcome, error) {
	sess, err := h.newSession(tx)
	if err != nil {
		return Outcome{}, err
	}
	return h.serve(ctx, conn, sess)
}

// Invoke executes tx with the host runner over an in-memory connection.
func (h *Host) Invoke(ctx context.Context, tx Tx) (Outcome, error) {
	if h.runner == nil {
		return Outcome{}, errors.New("host has no runner")
	}
	sess, err := h.newSession(tx)
	if err != nil {
		return Outcome{}, err
	}
	return h.run(ctx, sess)
}

// run connects sess to a guest runner over net.Pipe. The call returns once
// both ends are done.
func (h *Host) run(ctx context.Context, sess *Session) (Outcome, error) {
	hostConn, guestConn := net.Pipe()

	inv := vm.Invocation{
		Conn:        guestConn,
		Message:     sess.tx.Message,
		Role:        sess.tx.Role,
		Permissions: sess.perms,
		Gas:         sess.gas,
	}

	var (
		g   errgroup.Group
		out Outcome
	)
	g.Go(func() error {
		defer guestConn.Close()
		// The guest reports its outcome over the connection; its local
		// view is not needed here.
		_, _ = h.runner.Run(ctx, inv)
		return nil
	})
	g.Go(func() error {
		defer hostConn.Close()
		var err error
		out, err = h.serve(ctx, hostConn, sess)
		return err
	})
	err := g.Wait()
	return out, err
}

func (h *Host) serve(ctx context.Context, conn io.ReadWriter, sess *Session) (Outcome, error) {
	srv := wire.NewServer(sess,
		wire.WithServerLogger(sess.logger),
		wire.WithFrameTimeout(h.timeout),
		wire.WithObserver(h.observe),
	)

	serveErr := srv.Serve(ctx, conn)
	if serveErr != nil {
		h.metrics.TransportErrors.Add(1)
		sess.logger.Warn("guest connection failed", "error", serveErr)
	}

	out, err := sess.finish(ctx, serveErr)
	if err != nil {
		return out, err
	}
	return out, serveErr
}

func (h *Host) observe(op wire.Opcode, elapsed time.Duration, _ error) {
	h.metrics.Requests.With("opcode", op.String()).Add(1)
	h.metrics.RequestDuration.With("opcode", op.String()).Observe(elapsed.Seconds())
}

func (h *Host) appendEntry(ctx context.Context, e store.Entry) error {
	_, err := h.journal.Append(ctx, e)
	return err
}
