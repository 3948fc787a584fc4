package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const splitWorld = `modules: "web.render": [
	{node: "replay", return: "markets down"},
	{return: "markets up"},
]
`

type replayView struct {
	Tx      string         `json:"tx"`
	Votes   int            `json:"votes"`
	Agreed  bool           `json:"agreed"`
	Outcome map[string]any `json:"outcome"`
}

func runReplayJSON(t *testing.T, args ...string) (replayView, error) {
	t.Helper()
	out, err := execute(t, NewReplayCommand(&RootOptions{Format: "json"}), args...)
	var resp struct {
		Data replayView `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp.Data, err
}

func TestReplayCommand_Agrees(t *testing.T) {
	db := tempDB(t)
	_, err := invoke(t, db, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1")
	require.NoError(t, err)

	view, err := runReplayJSON(t, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1", "--host.db", db)
	require.NoError(t, err)
	assert.Equal(t, "t1", view.Tx)
	assert.Equal(t, 1, view.Votes)
	assert.True(t, view.Agreed)
	assert.Equal(t, "return", view.Outcome["code"])
	assert.EqualValues(t, 42, view.Outcome["value"])
}

func TestReplayCommand_DoesNotWriteJournal(t *testing.T) {
	db := tempDB(t)
	_, err := invoke(t, db, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1")
	require.NoError(t, err)

	_, err = runReplayJSON(t, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1", "--host.db", db)
	require.NoError(t, err)

	out, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "--host.db", db, "--tx", "t1", "--node", "replay")
	require.Error(t, err)
	assert.Contains(t, out, "no entries")
}

func TestReplayCommand_Disagrees(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "ndvm.db")
	world := filepath.Join(dir, "world.cue")
	require.NoError(t, os.WriteFile(world, []byte(splitWorld), 0o644))

	webArgs := `{"url": "https://news.example/today"}`
	leader, err := invoke(t, db, "nondet.web", "--args", webArgs, "--tx", "w1", "--host.world", world)
	require.NoError(t, err)
	assert.Equal(t, "markets up", leader["value"])

	view, err := runReplayJSON(t, "nondet.web", "--args", webArgs, "--tx", "w1", "--host.db", db, "--host.world", world)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.False(t, view.Agreed)
	assert.Equal(t, 1, view.Votes)
	assert.Equal(t, "user_error", view.Outcome["code"])
	assert.Equal(t, "validator_disagrees call 0", view.Outcome["message"])
}

func TestReplayCommand_Errors(t *testing.T) {
	t.Run("tx required", func(t *testing.T) {
		_, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}), "echo", "--host.db", tempDB(t))
		require.Error(t, err)
	})

	t.Run("missing database", func(t *testing.T) {
		_, err := execute(t, NewReplayCommand(&RootOptions{Format: "text"}),
			"echo", "--tx", "t1", "--host.db", filepath.Join(t.TempDir(), "absent.db"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}
