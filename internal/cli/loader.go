package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/config"
	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/metrics"
	"github.com/roach88/ndvm/internal/nondet"
	"github.com/roach88/ndvm/internal/programs"
	"github.com/roach88/ndvm/internal/store"
	"github.com/roach88/ndvm/internal/vm"
)

// newRunner builds the guest runner of the builtin programs.
func newRunner(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *vm.Runner {
	engine := nondet.New(
		nondet.WithLogger(logger),
		nondet.WithTimeout(cfg.Nondet.Timeout),
		nondet.WithVMErrorsAgree(cfg.Nondet.VMErrorsAgree),
		nondet.WithObserver(func(r nondet.Record) {
			m.NondetCalls.With("role", r.Role.String()).Add(1)
		}),
	)
	return vm.NewRunner(programs.NewRegistry(engine), vm.WithLogger(logger))
}

// newMetrics returns Prometheus metrics when instrumentation is enabled.
func newMetrics(cfg *config.Config) (*metrics.Metrics, error) {
	return metrics.DefaultProvider(cfg.Instrumentation.Prometheus)(cfg.Instrumentation.Namespace)
}

// newHost builds a host over storage and journal configured by cfg. It
// loads the configured world and runs sandboxes with runner.
func newHost(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, storage host.Storage, journal host.Journal, runner *vm.Runner) (*host.Host, error) {
	opts := []host.Option{
		host.WithLogger(logger),
		host.WithMetrics(m),
		host.WithRunner(runner),
		host.WithFrameTimeout(cfg.Host.RequestTimeout),
		host.WithInitialGas(cfg.Host.InitialGas),
		host.WithStorageGasPerByte(cfg.Host.StorageGasPerByte),
		host.WithMaxSandboxDepth(cfg.Host.MaxSandboxDepth),
	}
	if cfg.Host.World != "" {
		w, err := host.LoadWorld(cfg.Host.World)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load world", err)
		}
		opts = append(opts, host.WithWorld(w))
	}
	return host.New(storage, journal, opts...), nil
}

// openStore opens the configured SQLite database. Unless create is set,
// the database file must exist.
func openStore(path string, create bool) (*store.Store, error) {
	if !create && path != ":memory:" {
		if _, err := os.Stat(path); err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path), err)
		}
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// entryFlags are the flags that describe the executed transaction.
type entryFlags struct {
	Args     string
	TxID     string
	Node     string
	Role     string
	Contract string
	Sender   string
	Gas      uint64
}

func (f *entryFlags) message() (vm.MessageData, error) {
	var m vm.MessageData
	if f.Contract != "" {
		a, err := calldata.ParseAddress(f.Contract)
		if err != nil {
			return m, fmt.Errorf("--contract: %w", err)
		}
		m.Contract = a
	}
	if f.Sender != "" {
		a, err := calldata.ParseAddress(f.Sender)
		if err != nil {
			return m, fmt.Errorf("--sender: %w", err)
		}
		m.Sender = a
		m.Origin = a
	}
	return m, nil
}

// tx builds the transaction executing program.
func (f *entryFlags) tx(program string) (host.Tx, error) {
	args, err := calldata.ParseJSON([]byte(f.Args))
	if err != nil {
		return host.Tx{}, fmt.Errorf("--args: %w", err)
	}
	role, err := vm.ParseRole(f.Role)
	if err != nil {
		return host.Tx{}, fmt.Errorf("--role: %w", err)
	}
	msg, err := f.message()
	if err != nil {
		return host.Tx{}, err
	}
	id := f.TxID
	if id == "" {
		id = vm.UUIDv7Generator{}.Generate()
	}
	return host.Tx{
		ID:      id,
		Node:    f.Node,
		Role:    role,
		Message: msg,
		Entry:   vm.SandboxedEval(program, args),
		Gas:     f.Gas,
	}, nil
}
