package wire

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/ndvm/internal/deferred"
	"github.com/roach88/ndvm/internal/result"
)

// Pending is a request whose exchange is postponed until it is read.
// It implements deferred.Source; its bytes are the reply result in
// result.Marshal form, or a single CodeAbsent byte.
//
// Nothing is sent if Pending is closed before being read, so an abandoned
// handle never leaves a reply unread on the connection.
type Pending struct {
	mu     sync.Mutex
	ctx    context.Context
	client *Client
	req    Request
	done   bool
}

var _ deferred.Source = (*Pending)(nil)

// Defer prepares req for a later exchange. Only opcodes with a result-shaped
// reply can be deferred.
func (c *Client) Defer(ctx context.Context, req Request) (*Pending, error) {
	switch replyShapes[req.Opcode()] {
	case shapeResult, shapeOptionalResult:
	default:
		return nil, fmt.Errorf("%s has no result reply and cannot be deferred", req.Opcode())
	}
	return &Pending{ctx: ctx, client: c, req: req}, nil
}

// Read performs the exchange.
func (p *Pending) Read() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return nil, deferred.ErrReleased
	}
	p.done = true

	r, err := p.client.do(p.ctx, p.req)
	if err != nil {
		return nil, err
	}
	if !r.present {
		return []byte{byte(result.CodeAbsent)}, nil
	}
	return result.Marshal(r.result)
}

// Close releases the request. It is a no-op after Read.
func (p *Pending) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = true
	return nil
}

// DecodeResult is the deferred decode function for result replies.
// An Absent reply decodes to a nil Result without error.
func DecodeResult(b []byte) (result.Result, error) {
	if len(b) == 1 && result.Code(b[0]) == result.CodeAbsent {
		return nil, nil
	}
	return result.Unmarshal(b)
}
