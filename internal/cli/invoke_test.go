package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strictEchoArgs = `{"program": "echo", "args": 42}`

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ndvm.db")
}

func invoke(t *testing.T, db string, args ...string) (map[string]any, error) {
	t.Helper()
	out, err := execute(t, NewInvokeCommand(&RootOptions{Format: "json"}), append(args, "--host.db", db)...)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok, "output: %s", out)
	return data, err
}

func TestInvokeCommand_Return(t *testing.T) {
	data, err := invoke(t, tempDB(t), "echo", "--args", "42", "--tx", "t1")
	require.NoError(t, err)

	assert.Equal(t, "return", data["code"])
	assert.EqualValues(t, 42, data["value"])
	assert.Equal(t, "t1", data["tx"])
	assert.Equal(t, "leader", data["node"])
	assert.NotZero(t, data["gas"])
}

func TestInvokeCommand_TextOutput(t *testing.T) {
	out, err := execute(t, NewInvokeCommand(&RootOptions{Format: "text"}),
		"add", "--args", `{"a": 1, "b": 2}`, "--tx", "t1", "--node", "n1", "--host.db", tempDB(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"code":"return"`)
	assert.Contains(t, out, `"node":"n1"`)
	assert.Contains(t, out, `"value":3`)
}

func TestInvokeCommand_NonReturnExitsWithFailure(t *testing.T) {
	tests := []struct {
		program string
		args    string
		code    string
	}{
		{"rollback", `{"message": "nope"}`, "rollback"},
		{"fail", `{"message": "bad input"}`, "user_error"},
		{"panic", "null", "vm_error"},
	}

	for _, tt := range tests {
		t.Run(tt.program, func(t *testing.T) {
			data, err := invoke(t, tempDB(t), tt.program, "--args", tt.args)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Equal(t, tt.code, data["code"])
		})
	}
}

func TestInvokeCommand_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad args", []string{"echo", "--args", "{"}},
		{"bad role", []string{"echo", "--role", "observer"}},
		{"bad contract", []string{"echo", "--contract", "0x12"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, NewInvokeCommand(&RootOptions{Format: "text"}), append(tt.args, "--host.db", tempDB(t))...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestInvokeCommand_ValidatorAgainstJournaledLeader(t *testing.T) {
	db := tempDB(t)

	leader, err := invoke(t, db, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1")
	require.NoError(t, err)
	assert.EqualValues(t, 42, leader["value"])

	validator, err := invoke(t, db, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1", "--role", "validator")
	require.NoError(t, err)
	assert.Equal(t, "validator", validator["node"])
	assert.EqualValues(t, 42, validator["value"])
}

func TestInvokeCommand_ValidatorWithoutLeader(t *testing.T) {
	data, err := invoke(t, tempDB(t), "nondet.strict", "--args", strictEchoArgs, "--tx", "missing", "--role", "validator")
	require.Error(t, err)
	assert.Equal(t, "vm_error", data["code"])
}

func TestJournalCommand(t *testing.T) {
	db := tempDB(t)
	_, err := invoke(t, db, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1")
	require.NoError(t, err)
	_, err = invoke(t, db, "nondet.strict", "--args", strictEchoArgs, "--tx", "t1", "--role", "validator")
	require.NoError(t, err)
	_, err = invoke(t, db, "echo", "--args", "1", "--tx", "t2")
	require.NoError(t, err)

	t.Run("transactions", func(t *testing.T) {
		out, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "--host.db", db)
		require.NoError(t, err)
		assert.Equal(t, "t1\nt2\n", out)
	})

	t.Run("entries", func(t *testing.T) {
		out, err := execute(t, NewJournalCommand(&RootOptions{Format: "json"}), "--host.db", db, "--tx", "t1")
		require.NoError(t, err)

		var resp struct {
			Data []struct {
				Node   string         `json:"node"`
				Kind   string         `json:"kind"`
				Result map[string]any `json:"result"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &resp))

		var kinds []string
		for _, e := range resp.Data {
			kinds = append(kinds, e.Node+"/"+e.Kind)
		}
		assert.Equal(t, []string{"leader/leader_result", "leader/outcome", "validator/vote", "validator/outcome"}, kinds)
		assert.Equal(t, true, resp.Data[2].Result["value"])
	})

	t.Run("node filter", func(t *testing.T) {
		out, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "--host.db", db, "--tx", "t1", "--node", "validator")
		require.NoError(t, err)
		assert.Contains(t, out, "vote")
		assert.NotContains(t, out, "leader_result")
	})

	t.Run("unknown tx", func(t *testing.T) {
		_, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "--host.db", db, "--tx", "nope")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}

func TestJournalCommand_MissingDatabase(t *testing.T) {
	_, err := execute(t, NewJournalCommand(&RootOptions{Format: "text"}), "--host.db", filepath.Join(t.TempDir(), "absent.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
