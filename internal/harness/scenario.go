package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/ndvm/internal/host"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
)

// LeaderNode is the journal name of the leader.
const LeaderNode = "leader"

// DefaultValidator is the validator of scenarios that list none.
const DefaultValidator = "validator"

// Scenario defines one consensus scenario.
type Scenario struct {
	// Name identifies the scenario. It is also the transaction id and the
	// golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Token is the fixed invocation token. Defaults to "test-invocation".
	Token string `yaml:"token,omitempty"`

	// Contract is the executing contract address. Defaults to 0xc0c0...c0.
	Contract string `yaml:"contract,omitempty"`

	// World is an inline world fixture.
	World *host.WorldFile `yaml:"world,omitempty"`

	// WorldFile is a CUE world fixture, relative to the scenario file.
	WorldFile string `yaml:"world_file,omitempty"`

	// Setup runs on every node, as leader, before the entry. Each step
	// must return.
	Setup []Step `yaml:"setup,omitempty"`

	// Entry is the operation under test.
	Entry Step `yaml:"entry"`

	// Validators names the validator nodes. Defaults to one "validator".
	Validators []string `yaml:"validators,omitempty"`

	// Expect checks the outcome of each node.
	Expect Expectations `yaml:"expect,omitempty"`

	// Assertions validate the trace and the final storage.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// dir resolves WorldFile. Empty for scenarios built in code.
	dir string
}

// Step is a program invocation.
type Step struct {
	Program string `yaml:"program"`

	// Args are in the calldata JSON view. Missing args are null.
	Args any `yaml:"args,omitempty"`
}

// Expectations are the expected node outcomes. Nodes overrides Validator
// for the nodes it names, including the leader.
type Expectations struct {
	Leader    *Expect           `yaml:"leader,omitempty"`
	Validator *Expect           `yaml:"validator,omitempty"`
	Nodes     map[string]Expect `yaml:"nodes,omitempty"`
}

// Expect matches a result. Value and Message are checked only when set.
type Expect struct {
	Code    string  `yaml:"code"`
	Value   any     `yaml:"value,omitempty"`
	Message *string `yaml:"message,omitempty"`
}

// Assertion validates the trace or final storage.
type Assertion struct {
	// Type is one of trace_contains, trace_order, trace_count, final_state.
	Type string `yaml:"type"`

	// Kind is the journal entry kind (trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Node restricts matching to one node. For final_state it selects the
	// storage to inspect and defaults to the leader.
	Node string `yaml:"node,omitempty"`

	// CallNo restricts trace_contains to one nondet call.
	CallNo *uint32 `yaml:"call_no,omitempty"`

	// Expect matches the entry result (trace_contains).
	Expect *Expect `yaml:"expect,omitempty"`

	// Detail matches the entry detail in the JSON view (trace_contains).
	Detail any `yaml:"detail,omitempty"`

	// Kinds is the expected order (trace_order). Items are "kind" or
	// "node/kind".
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Account defaults to the scenario contract (final_state).
	Account string `yaml:"account,omitempty"`

	// Slot is an integer or a 32-byte hex id (final_state).
	Slot any `yaml:"slot,omitempty"`

	// Offset is the read offset (final_state).
	Offset uint32 `yaml:"offset,omitempty"`

	// Data is the expected hex content at Offset (final_state).
	Data string `yaml:"data,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	s.dir = filepath.Dir(path)

	if s.WorldFile != "" {
		if _, err := os.Stat(s.worldPath()); err != nil {
			return nil, fmt.Errorf("invalid scenario: world file: %w", err)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML. A relative world_file is resolved
// against the working directory.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func (s *Scenario) worldPath() string {
	if filepath.IsAbs(s.WorldFile) || s.dir == "" {
		return s.WorldFile
	}
	return filepath.Join(s.dir, s.WorldFile)
}

// Nodes returns the leader followed by the validators.
func (s *Scenario) Nodes() []string {
	validators := s.Validators
	if len(validators) == 0 {
		validators = []string{DefaultValidator}
	}
	return append([]string{LeaderNode}, validators...)
}

// expectFor returns the outcome expectation of node, if any.
func (s *Scenario) expectFor(node string) *Expect {
	if e, ok := s.Expect.Nodes[node]; ok {
		return &e
	}
	if node == LeaderNode {
		return s.Expect.Leader
	}
	return s.Expect.Validator
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Entry.Program == "" {
		return fmt.Errorf("entry.program is required")
	}
	if s.World != nil && s.WorldFile != "" {
		return fmt.Errorf("world and world_file are mutually exclusive")
	}

	for i, step := range s.Setup {
		if step.Program == "" {
			return fmt.Errorf("setup[%d]: program is required", i)
		}
	}

	seen := map[string]bool{LeaderNode: true}
	for i, v := range s.Validators {
		if v == "" {
			return fmt.Errorf("validators[%d]: name is required", i)
		}
		if seen[v] {
			return fmt.Errorf("validators[%d]: duplicate node %q", i, v)
		}
		seen[v] = true
	}
	for _, node := range s.Nodes() {
		seen[node] = true
	}

	if e := s.Expect.Leader; e != nil {
		if err := validateExpect(*e); err != nil {
			return fmt.Errorf("expect.leader: %w", err)
		}
	}
	if e := s.Expect.Validator; e != nil {
		if err := validateExpect(*e); err != nil {
			return fmt.Errorf("expect.validator: %w", err)
		}
	}
	for node, e := range s.Expect.Nodes {
		if !seen[node] {
			return fmt.Errorf("expect.nodes: unknown node %q", node)
		}
		if err := validateExpect(e); err != nil {
			return fmt.Errorf("expect.nodes.%s: %w", node, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, seen); err != nil {
			return err
		}
	}
	return nil
}

func validateExpect(e Expect) error {
	code, err := result.ParseCode(e.Code)
	if err != nil {
		return err
	}
	if code == result.CodeAbsent {
		return fmt.Errorf("absent is not an outcome")
	}
	if code == result.CodeReturn && e.Message != nil {
		return fmt.Errorf("message can't be checked on a return")
	}
	if code != result.CodeReturn && e.Value != nil {
		return fmt.Errorf("value can only be checked on a return")
	}
	return nil
}

var entryKinds = map[string]bool{
	string(store.KindLeaderResult): true,
	string(store.KindVote):         true,
	string(store.KindMessage):      true,
	string(store.KindDeploy):       true,
	string(store.KindEthSend):      true,
	string(store.KindEvent):        true,
	string(store.KindOutcome):      true,
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, nodes map[string]bool) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Node != "" && !nodes[a.Node] {
		return fmt.Errorf("assertions[%d]: unknown node %q", index, a.Node)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if !entryKinds[a.Kind] {
			return fmt.Errorf("assertions[%d]: unknown entry kind %q for %s", index, a.Kind, a.Type)
		}
		if a.Type == AssertTraceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
		if a.Expect != nil {
			if err := validateExpect(*a.Expect); err != nil {
				return fmt.Errorf("assertions[%d].expect: %w", index, err)
			}
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
		for _, item := range a.Kinds {
			node, kind := splitOrderItem(item)
			if !entryKinds[kind] || (node != "" && !nodes[node]) {
				return fmt.Errorf("assertions[%d]: invalid trace_order item %q", index, item)
			}
		}
	case AssertFinalState:
		if a.Slot == nil {
			return fmt.Errorf("assertions[%d]: slot is required for final_state", index)
		}
		if _, err := parseSlot(a.Slot); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if _, err := parseHex(a.Data); err != nil {
			return fmt.Errorf("assertions[%d]: data: %w", index, err)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
