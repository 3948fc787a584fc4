package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
)

func loadAndRun(t *testing.T, path string) *Result {
	t.Helper()
	s, err := LoadScenario(path)
	require.NoError(t, err)
	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	return res
}

func TestRun_Scenarios(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"strict echo", "testdata/scenarios/strict_echo.yaml"},
		{"web disagreement", "testdata/scenarios/web_disagree.yaml"},
		{"counter with setup", "testdata/scenarios/counter.yaml"},
		{"balance from CUE world", "testdata/scenarios/balance.yaml"},
		{"events", "testdata/scenarios/emit_event.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := loadAndRun(t, tt.path)
			assert.True(t, res.Pass, "errors: %v", res.Errors)
			assert.Empty(t, res.Errors)
			assert.NotEmpty(t, res.Trace)
		})
	}
}

func TestRun_WebDisagreementOutcomes(t *testing.T) {
	res := loadAndRun(t, "testdata/scenarios/web_disagree.yaml")

	assert.Equal(t, result.Return{Value: calldata.Str("markets up")}, res.Outcomes[LeaderNode])
	assert.Equal(t, result.Return{Value: calldata.Str("markets up")}, res.Outcomes["v1"])
	assert.Equal(t, result.UserError{Message: "validator_disagrees call 0"}, res.Outcomes["v2"])
}

func TestRun_TraceGroupedByNode(t *testing.T) {
	res := loadAndRun(t, "testdata/scenarios/strict_echo.yaml")

	var got []string
	for _, e := range res.Trace {
		got = append(got, e.Node+"/"+string(e.Kind))
	}
	assert.Equal(t, []string{
		"leader/leader_result", "leader/outcome",
		"v1/vote", "v1/outcome",
		"v2/vote", "v2/outcome",
	}, got)
}

func TestRun_SetupStaysOutOfTrace(t *testing.T) {
	res := loadAndRun(t, "testdata/scenarios/counter.yaml")

	require.Len(t, res.Trace, 2)
	for _, e := range res.Trace {
		assert.Equal(t, store.KindOutcome, e.Kind)
	}
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: failing
description: "Every check here is wrong"
entry:
  program: add
  args: { a: 1, b: 2 }
expect:
  leader: { code: return, value: 4 }
  validator: { code: rollback }
assertions:
  - type: trace_count
    kind: outcome
    count: 1
  - type: final_state
    slot: 0
    data: "01"
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, res.Pass)
	require.Len(t, res.Errors, 4)
	assert.Contains(t, res.Errors[0], "node leader: expected value 4, got 3")
	assert.Contains(t, res.Errors[1], "node validator: expected rollback")
	assert.Contains(t, res.Errors[2], "trace_count")
	assert.Contains(t, res.Errors[3], "final_state")
}

func TestRun_UnknownProgramIsAnOutcome(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: unknown
description: "Unknown programs fail the execution, not the run"
entry: { program: nope }
expect:
  leader: { code: vm_error, message: 'unknown program "nope"' }
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Pass, "errors: %v", res.Errors)
}

func TestRun_SetupFailureAborts(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: bad_setup
description: "Setup steps must return"
setup:
  - program: fail
    args: { message: nope }
entry: { program: echo }
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "setup[0]")
}

func TestRun_InvalidContract(t *testing.T) {
	s, err := ParseScenario([]byte("name: c\ndescription: d\ncontract: nope\nentry: { program: echo }\n"))
	require.NoError(t, err)

	_, err = Run(context.Background(), s)
	assert.ErrorContains(t, err, "contract")
}

func TestRun_VMErrorComparison(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: vm_errors
description: "Leader and validator both time out differently"
world:
  modules:
    web.render:
      - node: leader
        vm_error: "dns failure"
      - vm_error: "connection reset"
entry:
  program: nondet.web
  args: { url: "https://down.example" }
`))
	require.NoError(t, err)

	res, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, result.UserError{Message: "vm error: dns failure"}, res.Outcomes[DefaultValidator])

	res, err = Run(context.Background(), s, WithVMErrorsAgree(false))
	require.NoError(t, err)
	assert.Equal(t, result.UserError{Message: "validator_disagrees call 0"}, res.Outcomes[DefaultValidator])
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/web_disagree.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), s)
	require.NoError(t, err)
	second, err := Run(context.Background(), s)
	require.NoError(t, err)

	a, err := Snapshot(s.Name, s.Token, first)
	require.NoError(t, err)
	b, err := Snapshot(s.Name, s.Token, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestResult_ToValue(t *testing.T) {
	res := NewResult()
	res.Outcomes[LeaderNode] = result.Rollback{Message: "r"}
	res.AddError("boom")

	v := res.ToValue()
	assert.Equal(t, calldata.Bool(false), v["pass"])
	assert.Equal(t, calldata.Array{calldata.Str("boom")}, v["errors"])
	assert.Equal(t, calldata.Map{LeaderNode: calldata.Map{
		"code":    calldata.Str("rollback"),
		"message": calldata.Str("r"),
	}}, v["outcomes"])
}
