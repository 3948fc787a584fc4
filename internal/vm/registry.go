package vm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
)

// Program is a named unit of contract logic.
type Program func(c *Context, args calldata.Value) (calldata.Value, error)

// Check is a named validator-side comparison of a leader result.
type Check func(c *Context, leader result.Result, args calldata.Value) (bool, error)

// Registry resolves program and check names carried by operations.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	programs map[string]Program
	checks   map[string]Check
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		programs: make(map[string]Program),
		checks:   make(map[string]Check),
	}
}

// Register adds a program. Registering a name twice is an error.
func (r *Registry) Register(name string, p Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.programs[name]; exists {
		return fmt.Errorf("program %q already registered", name)
	}
	r.programs[name] = p
	return nil
}

// RegisterCheck adds a check. Registering a name twice is an error.
func (r *Registry) RegisterCheck(name string, c Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; exists {
		return fmt.Errorf("check %q already registered", name)
	}
	r.checks[name] = c
	return nil
}

// MustRegister is Register for init-time wiring. Panics on duplicates.
func (r *Registry) MustRegister(name string, p Program) {
	if err := r.Register(name, p); err != nil {
		panic(err)
	}
}

// MustRegisterCheck is RegisterCheck for init-time wiring.
func (r *Registry) MustRegisterCheck(name string, c Check) {
	if err := r.RegisterCheck(name, c); err != nil {
		panic(err)
	}
}

// Program looks up a program.
func (r *Registry) Program(name string) (Program, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.programs[name]
	return p, ok
}

// Check looks up a check.
func (r *Registry) Check(name string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checks[name]
	return c, ok
}

// Programs returns the sorted program names.
func (r *Registry) Programs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.programs))
	for name := range r.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
