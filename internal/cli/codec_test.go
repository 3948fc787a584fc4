package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"int", "42", "d102"},
		{"true", "true", "10"},
		{"null", "null", "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, NewEncodeCommand(&RootOptions{Format: "text"}), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want+"\n", out)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := `{"b":[true,null],"blob":{"$bytes":"00ff"},"who":{"$address":"0x0102030405060708090a0b0c0d0e0f1011121314"}}`

	encoded, err := execute(t, NewEncodeCommand(&RootOptions{Format: "text"}), in)
	require.NoError(t, err)

	decoded, err := execute(t, NewDecodeCommand(&RootOptions{Format: "text"}), "0x"+strings.TrimSpace(encoded))
	require.NoError(t, err)
	assert.Equal(t, in+"\n", decoded)
}

func TestEncodeCommand_Stdin(t *testing.T) {
	cmd := NewEncodeCommand(&RootOptions{Format: "text"})
	cmd.SetIn(strings.NewReader("42\n"))
	out, err := execute(t, cmd, "-")
	require.NoError(t, err)
	assert.Equal(t, "d102\n", out)
}

func TestDecodeCommand_JSON(t *testing.T) {
	out, err := execute(t, NewDecodeCommand(&RootOptions{Format: "json"}), "d102")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok","data":42}`, out)
}

func TestCodecCommand_Errors(t *testing.T) {
	tests := []struct {
		name   string
		decode bool
		arg    string
	}{
		{"encode float", false, "1.5"},
		{"encode garbage", false, "{"},
		{"decode bad hex", true, "zz"},
		{"decode truncated", true, "d1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewEncodeCommand(&RootOptions{Format: "text"})
			if tt.decode {
				cmd = NewDecodeCommand(&RootOptions{Format: "text"})
			}
			out, err := execute(t, cmd, tt.arg)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error [E002]")
		})
	}
}
