package wire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/holiman/uint256"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

// Client is the guest side of a connection.
//
// Calls are serialised: at most one request is in flight. The first
// transport failure is sticky; every later call returns it. After
// ConsumeResult succeeds every call returns ErrClosed.
//
// A call whose context deadline expires returns a non-fatal timeout error
// without touching the connection. The exchange keeps running and its late
// reply is read and discarded before the next request is written. A
// cancelled context instead closes the client.
type Client struct {
	mu       sync.Mutex
	conn     io.ReadWriter
	fr       *frameReader
	logger   *slog.Logger
	err      error
	inflight *exchange
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient wraps conn.
func NewClient(conn io.ReadWriter, opts ...ClientOption) *Client {
	c := &Client{
		conn:   conn,
		fr:     &frameReader{r: conn},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Err returns the sticky error, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// reply holds the decoded fields of any reply shape.
type reply struct {
	data    []byte
	gas     uint64
	result  result.Result
	present bool
	value   uint256.Int
}

// do sends req and reads its fixed reply shape.
func (c *Client) do(ctx context.Context, req Request) (reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doLocked(ctx, req)
}

func (c *Client) doLocked(ctx context.Context, req Request) (reply, error) {
	if c.err != nil {
		return reply{}, c.err
	}
	op := req.Opcode()
	if err := ctx.Err(); err != nil {
		// Nothing was sent.
		return reply{}, fmt.Errorf("wire: %s: %w", op, err)
	}
	if err := c.settle(ctx); err != nil {
		return reply{}, err
	}
	if c.err != nil {
		return reply{}, c.err
	}

	frame, err := encodeRequest(req)
	if err != nil {
		// Nothing was sent; the connection stays usable.
		return reply{}, fmt.Errorf("encode %s: %w", op, err)
	}

	ex := &exchange{op: op, done: make(chan struct{})}
	go ex.run(c.conn, c.fr, req, frame)

	select {
	case <-ex.done:
	case <-ctx.Done():
		return reply{}, c.abandon(ex, ctx.Err())
	}
	return c.complete(ex)
}

// exchange is one request and its reply. Its fields are written by run
// and read only after done is closed.
type exchange struct {
	op     Opcode
	done   chan struct{}
	out    reply
	reason string
	err    error
}

func (ex *exchange) run(w io.Writer, fr *frameReader, req Request, frame []byte) {
	defer close(ex.done)

	if _, err := w.Write(frame); err != nil {
		ex.reason, ex.err = "write request", err
		return
	}

	var err error
	switch replyShapes[ex.op] {
	case shapeNone:
	case shapeBytes:
		ex.out.data, err = fr.field()
	case shapeGasData:
		if ex.out.gas, err = fr.u64(); err == nil {
			ex.out.data, err = fr.exact(req.(StorageRead).Length)
		}
	case shapeGas:
		ex.out.gas, err = fr.u64()
	case shapeAck:
		_, err = fr.u8()
	case shapeResult:
		ex.out.result, err = fr.result()
		ex.out.present = err == nil
	case shapeOptionalResult:
		ex.out.result, ex.out.present, err = fr.optionalResult()
	case shapeValue:
		ex.out.value, err = fr.value()
	}
	if err != nil {
		ex.out = reply{}
		ex.reason, ex.err = "read reply", err
	}
}

// complete turns a finished exchange into the call outcome.
func (c *Client) complete(ex *exchange) (reply, error) {
	if ex.err != nil {
		return reply{}, c.fail(ex.op, ex.reason, ex.err)
	}
	c.logger.Debug("host request", "opcode", ex.op.String())
	if ex.op == OpConsumeResult {
		c.err = ErrClosed
	}
	return ex.out, nil
}

// abandon stops waiting for ex. A deadline leaves ex in flight to be
// settled by the next call; any other cause closes the client.
func (c *Client) abandon(ex *exchange, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		c.inflight = ex
		c.logger.Debug("host request timed out", "opcode", ex.op.String())
		return fmt.Errorf("wire: %s: %w", ex.op, cause)
	}
	c.err = &TransportError{Op: ex.op, HasOp: true, State: StateClosed, Reason: "cancelled", Err: cause}
	return c.err
}

// settle waits for an abandoned exchange and discards its reply.
func (c *Client) settle(ctx context.Context) error {
	ex := c.inflight
	if ex == nil {
		return nil
	}
	select {
	case <-ex.done:
	case <-ctx.Done():
		return c.abandon(ex, ctx.Err())
	}
	c.inflight = nil
	if _, err := c.complete(ex); err != nil {
		return err
	}
	c.logger.Debug("discarded late reply", "opcode", ex.op.String())
	return nil
}

func (c *Client) fail(op Opcode, reason string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	c.err = &TransportError{Op: op, HasOp: true, State: StateClosed, Reason: reason, Err: err}
	return c.err
}

// GetCalldata returns the entry payload of this execution.
func (c *Client) GetCalldata(ctx context.Context) ([]byte, error) {
	r, err := c.do(ctx, GetCalldata{})
	return r.data, err
}

// GetCode returns the code of account.
func (c *Client) GetCode(ctx context.Context, account calldata.Address) ([]byte, error) {
	r, err := c.do(ctx, GetCode{Account: account})
	return r.data, err
}

// StorageRead reads exactly req.Length bytes.
func (c *Client) StorageRead(ctx context.Context, req StorageRead) (StorageReadReply, error) {
	r, err := c.do(ctx, req)
	return StorageReadReply{Gas: r.gas, Data: r.data}, err
}

// StorageWrite writes req.Data and returns the remaining gas.
func (c *Client) StorageWrite(ctx context.Context, req StorageWrite) (uint64, error) {
	r, err := c.do(ctx, req)
	return r.gas, err
}

// ConsumeResult reports the terminal outcome and closes the client.
func (c *Client) ConsumeResult(ctx context.Context, res result.Result) error {
	_, err := c.do(ctx, ConsumeResult{Result: res})
	return err
}

// GetLeaderNondetResult fetches the leader outcome of a nondet call. The
// boolean is false when the host answered Absent.
func (c *Client) GetLeaderNondetResult(ctx context.Context, callNo uint32) (result.Result, bool, error) {
	r, err := c.do(ctx, GetLeaderNondetResult{CallNo: callNo})
	return r.result, r.present, err
}

// PostNondetResult reports a leader outcome or a validator vote.
func (c *Client) PostNondetResult(ctx context.Context, callNo uint32, res result.Result) error {
	_, err := c.do(ctx, PostNondetResult{CallNo: callNo, Result: res})
	return err
}

// PostMessage emits a message.
func (c *Client) PostMessage(ctx context.Context, req PostMessage) error {
	_, err := c.do(ctx, req)
	return err
}

// ConsumeFuel charges gas.
func (c *Client) ConsumeFuel(ctx context.Context, gas uint64) error {
	_, err := c.do(ctx, ConsumeFuel{Gas: gas})
	return err
}

// DeployContract emits a deployment.
func (c *Client) DeployContract(ctx context.Context, req DeployContract) error {
	_, err := c.do(ctx, req)
	return err
}

// EthCall performs a read-only interop call.
func (c *Client) EthCall(ctx context.Context, req EthCall) ([]byte, error) {
	r, err := c.do(ctx, req)
	return r.data, err
}

// EthSend emits an interop transaction.
func (c *Client) EthSend(ctx context.Context, req EthSend) error {
	_, err := c.do(ctx, req)
	return err
}

// GetBalance returns the balance of account.
func (c *Client) GetBalance(ctx context.Context, account calldata.Address) (uint256.Int, error) {
	r, err := c.do(ctx, GetBalance{Account: account})
	return r.value, err
}

// ModuleCall submits a payload to a host module.
func (c *Client) ModuleCall(ctx context.Context, req ModuleCall) (result.Result, error) {
	r, err := c.do(ctx, req)
	return r.result, err
}

// SpawnSandbox runs a nested execution and returns its outcome.
func (c *Client) SpawnSandbox(ctx context.Context, req SpawnSandbox) (result.Result, error) {
	r, err := c.do(ctx, req)
	return r.result, err
}

// PostEvent emits an event.
func (c *Client) PostEvent(ctx context.Context, req PostEvent) error {
	_, err := c.do(ctx, req)
	return err
}
