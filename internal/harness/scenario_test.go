package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/strict_echo.yaml")
	require.NoError(t, err)

	assert.Equal(t, "strict_echo", s.Name)
	assert.Equal(t, "test-invocation", s.Token)
	assert.Equal(t, "nondet.strict", s.Entry.Program)
	assert.Equal(t, []string{LeaderNode, "v1", "v2"}, s.Nodes())
	require.NotNil(t, s.Expect.Leader)
	assert.Equal(t, "return", s.Expect.Leader.Code)
	assert.Len(t, s.Assertions, 3)
	require.NotNil(t, s.Assertions[0].CallNo)
	assert.Equal(t, uint32(0), *s.Assertions[0].CallNo)
}

func TestLoadScenario_WorldFileRelative(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/balance.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "scenarios", "world.cue"), s.worldPath())
}

func TestLoadScenario_MissingWorldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.yaml")
	content := `
name: s
description: d
world_file: nowhere.cue
entry: { program: echo }
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world file")
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("testdata/scenarios/does_not_exist.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestScenario_DefaultValidator(t *testing.T) {
	s, err := ParseScenario([]byte("name: s\ndescription: d\nentry: { program: echo }\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{LeaderNode, DefaultValidator}, s.Nodes())
}

func TestScenario_ExpectFor(t *testing.T) {
	msg := "validator_disagrees call 0"
	s := &Scenario{Expect: Expectations{
		Leader:    &Expect{Code: "return"},
		Validator: &Expect{Code: "return"},
		Nodes:     map[string]Expect{"v2": {Code: "user_error", Message: &msg}},
	}}

	assert.Equal(t, "return", s.expectFor(LeaderNode).Code)
	assert.Equal(t, "return", s.expectFor("v1").Code)
	assert.Equal(t, "user_error", s.expectFor("v2").Code)
}

func TestParseScenario_Invalid(t *testing.T) {
	base := "name: s\ndescription: d\n"
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing name", "description: d\nentry: { program: echo }\n", "name is required"},
		{"missing description", "name: s\nentry: { program: echo }\n", "description is required"},
		{"missing entry", base, "entry.program is required"},
		{"unknown field", base + "entry: { program: echo }\nasertions: []\n", "failed to parse YAML"},
		{"world and world_file", base + "entry: { program: echo }\nworld: {}\nworld_file: w.cue\n", "mutually exclusive"},
		{"setup without program", base + "entry: { program: echo }\nsetup: [{ args: 1 }]\n", "setup[0]: program is required"},
		{"duplicate validator", base + "entry: { program: echo }\nvalidators: [a, a]\n", "duplicate node"},
		{"leader as validator", base + "entry: { program: echo }\nvalidators: [leader]\n", "duplicate node"},
		{"unknown code", base + "entry: { program: echo }\nexpect: { leader: { code: ok } }\n", "unknown result code"},
		{"absent code", base + "entry: { program: echo }\nexpect: { leader: { code: absent } }\n", "absent is not an outcome"},
		{"value on error", base + "entry: { program: echo }\nexpect: { leader: { code: user_error, value: 1 } }\n", "value can only be checked"},
		{"message on return", base + "entry: { program: echo }\nexpect: { validator: { code: return, message: m } }\n", "message can't be checked"},
		{"unknown expect node", base + "entry: { program: echo }\nexpect: { nodes: { v9: { code: return } } }\n", "unknown node"},
		{"missing type", base + "entry: { program: echo }\nassertions: [{ kind: vote }]\n", "type is required"},
		{"unknown type", base + "entry: { program: echo }\nassertions: [{ type: trace_exists }]\n", "unknown assertion type"},
		{"unknown kind", base + "entry: { program: echo }\nassertions: [{ type: trace_count, kind: invocation }]\n", "unknown entry kind"},
		{"negative count", base + "entry: { program: echo }\nassertions: [{ type: trace_count, kind: vote, count: -1 }]\n", "non-negative"},
		{"empty order", base + "entry: { program: echo }\nassertions: [{ type: trace_order }]\n", "kinds list is required"},
		{"bad order node", base + "entry: { program: echo }\nassertions: [{ type: trace_order, kinds: [v9/vote] }]\n", "invalid trace_order item"},
		{"unknown assertion node", base + "entry: { program: echo }\nassertions: [{ type: trace_count, kind: vote, node: v9 }]\n", "unknown node"},
		{"final_state without slot", base + "entry: { program: echo }\nassertions: [{ type: final_state, data: \"00\" }]\n", "slot is required"},
		{"final_state short slot", base + "entry: { program: echo }\nassertions: [{ type: final_state, slot: \"0x01\" }]\n", "must be 32 bytes"},
		{"final_state bad data", base + "entry: { program: echo }\nassertions: [{ type: final_state, slot: 1, data: zz }]\n", "data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
