// Package deferred provides a single-force handle around a value that needs
// one more blocking exchange with the host to materialise.
package deferred

import (
	"errors"
	"sync"
)

// ErrReleased is returned by Source.Read implementations when the resource
// was released before being read.
var ErrReleased = errors.New("deferred: resource released before read")

// Source is the transport resource owned by a Handle.
// Read performs the blocking exchange and is called at most once.
// Close releases the resource; it must be safe to call after Read.
type Source interface {
	Read() ([]byte, error)
	Close() error
}

// Handle memoises the decoded outcome of one Source read.
//
// The first Force reads the source, decodes the bytes and releases the
// source, whatever the outcome. Later calls replay the cached value or error
// without touching the source. A Handle that is never forced must still be
// Closed by its owner.
type Handle[T any] struct {
	mu       sync.Mutex
	src      Source
	decode   func([]byte) (T, error)
	forced   bool
	released bool
	val      T
	err      error
}

// New creates a Handle that owns src.
func New[T any](src Source, decode func([]byte) (T, error)) *Handle[T] {
	return &Handle[T]{src: src, decode: decode}
}

// Failed creates an already-forced Handle holding err.
func Failed[T any](err error) *Handle[T] {
	return &Handle[T]{forced: true, released: true, err: err}
}

// Force returns the value, performing the exchange on first use.
func (h *Handle[T]) Force() (T, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.forced {
		return h.val, h.err
	}
	h.forced = true

	if h.released {
		h.err = ErrReleased
		return h.val, h.err
	}

	raw, err := h.src.Read()
	closeErr := h.release()
	if err == nil {
		h.val, err = h.decode(raw)
	}
	if err == nil {
		err = closeErr
	}
	h.err = err
	return h.val, h.err
}

// Close releases the underlying resource without forcing.
// Closing an already forced or closed handle is a no-op.
func (h *Handle[T]) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.release()
}

// Forced reports whether Force has run.
func (h *Handle[T]) Forced() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.forced
}

func (h *Handle[T]) release() error {
	if h.released {
		return nil
	}
	h.released = true
	return h.src.Close()
}

// Map derives a Handle whose decode step is applied after h's. The derived
// handle owns h: forcing or closing it forces or closes h.
func Map[T, U any](h *Handle[T], fn func(T) (U, error)) *Handle[U] {
	m := &mapped[T]{inner: h}
	return New[U](m, func([]byte) (U, error) {
		if m.err != nil {
			var zero U
			return zero, m.err
		}
		return fn(m.val)
	})
}

type mapped[T any] struct {
	inner *Handle[T]
	val   T
	err   error
}

func (m *mapped[T]) Read() ([]byte, error) {
	m.val, m.err = m.inner.Force()
	return nil, nil
}

func (m *mapped[T]) Close() error { return m.inner.Close() }
