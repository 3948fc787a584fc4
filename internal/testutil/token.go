// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// FixedTokenGenerator generates the same invocation token every time.
//
// This enables golden snapshot comparison: the same scenario produces
// byte-identical logs and traces.
//
// Thread-safety: FixedTokenGenerator is stateless and safe for concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a fixed token generator.
// If token is empty, Generate() returns "test-invocation".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-invocation"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
//
// Implements vm.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

// SequentialTokenGenerator generates prefix-0001, prefix-0002, ...
//
// Unlike FixedTokenGenerator it tells invocations apart, and it can be
// reset so a scenario can run repeatedly with identical tokens.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialTokenGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequentialTokenGenerator creates a generator whose first token is
// prefix-0001.
func NewSequentialTokenGenerator(prefix string) *SequentialTokenGenerator {
	return &SequentialTokenGenerator{prefix: prefix}
}

// Generate returns the next token.
func (g *SequentialTokenGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%04d", g.prefix, g.seq)
}

// Reset restarts the sequence. The next token is prefix-0001.
func (g *SequentialTokenGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
