package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ndvm/internal/calldata"
	"github.com/roach88/ndvm/internal/result"
	"github.com/roach88/ndvm/internal/store"
)

func TestRunWithGolden_StrictEcho(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/strict_echo.yaml")
	require.NoError(t, err)

	// Regenerate with: go test ./internal/harness -run TestRunWithGolden -update
	res, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, res.Pass, "errors: %v", res.Errors)
}

func TestSnapshot_Format(t *testing.T) {
	res := NewResult()
	res.Trace = append(res.Trace,
		TraceEvent{Node: "n", Kind: store.KindVote, CallNo: 3, Result: result.Vote(false)},
		TraceEvent{Node: "n", Kind: store.KindEvent, Detail: calldata.Map{"blob": calldata.Bytes{0x01}}},
	)

	snap, err := Snapshot("fmt", "", res)
	require.NoError(t, err)

	want := `{
  "scenario": "fmt",
  "trace": [
    {
      "call_no": 3,
      "kind": "vote",
      "node": "n",
      "result": {
        "code": "return",
        "value": false
      }
    },
    {
      "call_no": 0,
      "detail": {
        "blob": {
          "$bytes": "01"
        }
      },
      "kind": "event",
      "node": "n"
    }
  ]
}
`
	assert.Equal(t, want, string(snap))
}

func TestSnapshot_EmptyTrace(t *testing.T) {
	snap, err := Snapshot("empty", "tok", NewResult())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"scenario\": \"empty\",\n  \"token\": \"tok\",\n  \"trace\": []\n}\n", string(snap))
}
