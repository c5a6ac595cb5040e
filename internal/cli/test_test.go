package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scenarioDir writes scenarios against the calc example into a temp dir.
func scenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	spec, err := filepath.Abs(calcSpec)
	require.NoError(t, err)
	dir := t.TempDir()
	for name, body := range scenarios {
		writeFile(t, dir, name, fmt.Sprintf("name: %s\ndescription: generated\nspecs: [%q]\n%s", name[:len(name)-len(filepath.Ext(name))], spec, body))
	}
	return dir
}

const passingSteps = `steps:
  - call: {path: /com/example/calc, method: Add, args: [1, 2]}
    expect:
      reply: [3]
`

const failingSteps = `steps:
  - call: {path: /com/example/calc, method: Add, args: [1, 2]}
    expect:
      reply: [4]
`

func TestTest_Example(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, filepath.Join(calcSpec, "scenarios"))
	require.NoError(t, err)
	assert.Contains(t, out, markPass+" calc_example\n")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTest_FailureExitsOne(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"good.yaml": passingSteps,
		"bad.yaml":  failingSteps,
	})

	cmd := NewTestCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "bad", resp.Data.Scenarios[0].Name)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestTest_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"good.yaml": passingSteps,
		"bad.yaml":  failingSteps,
	})

	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, dir, "--filter", "go*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")

	cmd = NewTestCommand(&RootOptions{Format: "text"})
	out, err = execute(t, cmd, dir, "--filter", "none*")
	require.NoError(t, err)
	assert.Equal(t, "No scenarios found.\n", out)
}

func TestTest_Golden(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"good.yaml": passingSteps})
	golden := filepath.Join(dir, "golden", "good.golden")

	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"good"`)

	cmd = NewTestCommand(&RootOptions{Format: "json"})
	out, err = execute(t, cmd, dir)
	require.NoError(t, err)
	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "match", resp.Data.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"good","trace":[]}`), 0o644))
	cmd = NewTestCommand(&RootOptions{Format: "text"})
	out, err = execute(t, cmd, dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match")
}

func TestTest_MissingPath(t *testing.T) {
	cmd := NewTestCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "/does/not/exist")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTest_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nunknown_field: 1\n")

	cmd := NewTestCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, markFail+" broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "c.golden"), goldenFilePath(filepath.Join("a", "b", "c.yaml")))
}
