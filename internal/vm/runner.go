package vm

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// Invocation describes one execution to run over a host connection.
type Invocation struct {
	Conn        io.ReadWriter
	Message     MessageData
	Role        Role
	Permissions Permissions
	Gas         uint64
}

// Runner executes invocations: it fetches the entry operation with
// GET_CALLDATA, executes it and reports the outcome with CONSUME_RESULT.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
	tokens   TokenGenerator
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithTokenGenerator sets the invocation token generator.
// Default: UUIDv7Generator.
func WithTokenGenerator(gen TokenGenerator) RunnerOption {
	return func(r *Runner) {
		r.tokens = gen
	}
}

// NewRunner creates a Runner resolving programs through registry.
func NewRunner(registry *Registry, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry: registry,
		logger:   slog.Default(),
		tokens:   UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the program registry.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run executes inv and returns the reported outcome.
//
// A non-nil error means the connection failed; the returned Result is then
// the local view of the outcome (VMError) and was not delivered.
func (r *Runner) Run(ctx context.Context, inv Invocation) (result.Result, error) {
	token := r.tokens.Generate()
	logger := r.logger.With("invocation", token)
	client := wire.NewClient(inv.Conn, wire.WithClientLogger(logger))

	c := NewContext(ctx, Config{
		Client:      client,
		Message:     inv.Message,
		Role:        inv.Role,
		Permissions: inv.Permissions,
		Registry:    r.registry,
		Logger:      logger,
		Token:       token,
		Gas:         inv.Gas,
	})

	entry, err := client.GetCalldata(ctx)
	if err != nil {
		return result.FromError(err), err
	}

	res, fatal := Protect(c, func(c *Context) (calldata.Value, error) {
		op, err := DecodeOperation(entry)
		if err != nil {
			return nil, result.VMErrorf("invalid entry: %v", err)
		}
		c.logger.Debug("run entry", "operation", op.String(), "permissions", c.perms.String())
		return c.Execute(op)
	})
	if fatal != nil {
		logger.Error("invocation aborted", "error", fatal)
		return result.FromError(fatal), fatal
	}

	if err := client.ConsumeResult(context.WithoutCancel(ctx), res); err != nil {
		return res, err
	}
	logger.Debug("invocation finished", "result", result.String(res))
	return res, nil
}
