package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios")
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{"balance.yaml", "counter.yaml", "emit_event.yaml", "strict_echo.yaml", "web_disagree.yaml"}, names)

	single, err := FindScenarios("testdata/scenarios/counter.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"testdata/scenarios/counter.yaml"}, single)

	_, err = FindScenarios("testdata/missing")
	assert.Error(t, err)
}

func TestRunSuite(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}
	paths := []string{
		"testdata/scenarios/strict_echo.yaml",
		write("broken.yaml", "name: [\n"),
		write("wrong.yaml", "name: wrong\ndescription: d\nentry: { program: echo, args: 1 }\nexpect: { leader: { code: return, value: 2 } }\n"),
	}

	sr, err := RunSuite(context.Background(), paths)
	require.NoError(t, err)

	assert.Equal(t, 3, sr.Total)
	assert.Equal(t, 1, sr.Passed)
	assert.Equal(t, 2, sr.Failed)
	assert.False(t, sr.OK())
	assert.Equal(t, "3 scenarios: 1 passed, 2 failed", sr.String())

	require.Len(t, sr.Failures, 2)
	assert.Equal(t, paths[1], sr.Failures[0].Path)
	assert.Empty(t, sr.Failures[0].Scenario)
	assert.Equal(t, "wrong", sr.Failures[1].Scenario)
	assert.Contains(t, sr.Failures[1].Errors[0], "expected value 2, got 1")
}

func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sr, err := RunSuite(ctx, []string{"testdata/scenarios/strict_echo.yaml"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, sr.Total)
}
