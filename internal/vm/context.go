package vm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/wire"
)

// Context is the explicit state of one contract invocation.
//
// Derived contexts (nondet blocks, timeouts) share the client, the call
// sequence and the gas meter of their parent, and differ only in
// permissions and the Go context.
type Context struct {
	ctx      context.Context
	client   *wire.Client
	msg      MessageData
	role     Role
	perms    Permissions
	calls    *CallSequence
	registry *Registry
	logger   *slog.Logger
	token    string
	gas      *gasMeter
	depth    int
}

// Config holds the inputs of NewContext.
type Config struct {
	Client      *wire.Client
	Message     MessageData
	Role        Role
	Permissions Permissions
	Registry    *Registry
	Logger      *slog.Logger
	Token       string
	Gas         uint64
}

// NewContext creates the root context of an invocation.
func NewContext(ctx context.Context, cfg Config) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Context{
		ctx:      ctx,
		client:   cfg.Client,
		msg:      cfg.Message,
		role:     cfg.Role,
		perms:    cfg.Permissions,
		calls:    &CallSequence{},
		registry: registry,
		logger:   logger.With("invocation", cfg.Token, "role", cfg.Role.String()),
		token:    cfg.Token,
		gas:      &gasMeter{left: cfg.Gas},
	}
}

// Std returns the Go context bounding host requests of this invocation.
func (c *Context) Std() context.Context { return c.ctx }

// Client returns the wire client.
func (c *Context) Client() *wire.Client { return c.client }

// Message returns the message data.
func (c *Context) Message() MessageData { return c.msg }

// Role returns the node role.
func (c *Context) Role() Role { return c.role }

// Permissions returns the active permission set.
func (c *Context) Permissions() Permissions { return c.perms }

// Registry returns the program registry.
func (c *Context) Registry() *Registry { return c.registry }

// Logger returns the invocation logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// Token returns the invocation token.
func (c *Context) Token() string { return c.token }

// Gas returns the remaining gas as last reported by the host.
func (c *Context) Gas() uint64 { return c.gas.get() }

// Depth is the nesting level of nondet blocks (0 at top level).
func (c *Context) Depth() int { return c.depth }

// NextCallNo returns the next nondet call number of this invocation.
func (c *Context) NextCallNo() uint32 { return c.calls.Next() }

// WithPermissions derives a context with a different permission set.
func (c *Context) WithPermissions(p Permissions) *Context {
	d := *c
	d.perms = p
	return &d
}

// Nondet derives the context a leader or validator function runs in.
func (c *Context) Nondet() *Context {
	d := c.WithPermissions(Nondet())
	d.depth = c.depth + 1
	return d
}

// WithTimeout derives a context whose host requests are bounded by d.
// A zero d returns c and a no-op cancel.
func (c *Context) WithTimeout(d time.Duration) (*Context, context.CancelFunc) {
	if d <= 0 {
		return c, func() {}
	}
	ctx, cancel := context.WithTimeout(c.ctx, d)
	derived := *c
	derived.ctx = ctx
	return &derived, cancel
}

// Err reports expiry of the Go context as a VMError timeout.
func (c *Context) Err() error {
	if err := c.ctx.Err(); err != nil {
		return result.FromError(err).(error)
	}
	return nil
}

// Protect runs fn and converts its outcome to a Result. Panics become
// VMError, and so does an expired context. Fatal transport failures are not
// results: they are returned as the error and must abort the invocation.
func Protect(c *Context, fn func(*Context) (calldata.Value, error)) (res result.Result, fatal error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("recovered panic", "panic", r)
			res, fatal = result.VMError{Message: panicMessage(r)}, nil
		}
	}()

	v, err := fn(c)
	if IsFatal(err) {
		return nil, err
	}
	if ctxErr := c.Err(); ctxErr != nil {
		return result.FromError(ctxErr), nil
	}
	return result.FromOutcome(v, err), nil
}

// IsFatal reports whether err means the connection to the host is gone.
func IsFatal(err error) bool {
	return err != nil && (wire.IsTransportError(err) || errors.Is(err, wire.ErrClosed))
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return "panic: " + err.Error()
	}
	return "panic: " + slog.AnyValue(r).String()
}

type gasMeter struct {
	mu   sync.Mutex
	left uint64
}

func (g *gasMeter) get() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.left
}

func (g *gasMeter) set(v uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.left = v
}

// charge deducts n locally and reports whether enough gas was left.
func (g *gasMeter) charge(n uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n > g.left {
		g.left = 0
		return false
	}
	g.left -= n
	return true
}
