package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/ndvm/internal/calldata"
)

// Snapshot renders the trace of a run as indented canonical JSON: object
// keys sorted, two-space indentation, trailing newline.
func Snapshot(scenarioName, token string, result *Result) ([]byte, error) {
	trace := make(calldata.Array, len(result.Trace))
	for i, e := range result.Trace {
		trace[i] = e.ToValue()
	}
	snap := calldata.Map{
		"scenario": calldata.Str(scenarioName),
		"trace":    trace,
	}
	if token != "" {
		snap["token"] = calldata.Str(token)
	}

	raw, err := calldata.MarshalJSON(snap)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/<scenario.Name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check expectations too.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := assertGolden(t, scenario.Name, scenario.Token, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()
	return assertGolden(t, scenarioName, "", result)
}

func assertGolden(t *testing.T, name, token string, result *Result) error {
	t.Helper()

	snap, err := Snapshot(name, token, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snap)
	return nil
}
