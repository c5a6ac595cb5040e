package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crossroads/internal/ir"
)

func TestCall_Add(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--spec", calcSpec, "/com/example/calc", "Add", "[40, 2]")
	require.NoError(t, err)
	assert.Equal(t, "reply [42]\n", out)
}

func TestCall_JSON(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "--spec", calcSpec, "/com/example/calc", "Echo", `["hi"]`)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   CallResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, ir.OutcomeOK, resp.Data.Outcome)
	require.Len(t, resp.Data.Messages, 1)
	assert.Equal(t, ir.KindReply, resp.Data.Messages[0].Kind)
	assert.Equal(t, ir.IRArray{ir.IRString("hi")}, resp.Data.Messages[0].Body)
}

func TestCall_ErrorReplyExitsOne(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--spec", calcSpec, "/com/example/calc", "Divide", "[1, 0]")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "com.example.Calc.Error.NotSupported")
	assert.Equal(t, "error com.example.Calc.Error.NotSupported [\"division is not supported\"]\n", out)
}

func TestCall_UnknownObject(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--spec", calcSpec, "/com/example/nothing", "Add", "[1, 2]")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "org.freedesktop.DBus.Error.UnknownObject")
}

func TestCall_Signal(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--spec", calcSpec, "/com/example/calc", "Notify", `["done"]`)
	require.NoError(t, err)
	assert.Contains(t, out, "reply []\n")
	assert.Contains(t, out, "signal com.example.Calc.Notified [\"done\"]\n")
}

func TestCall_PropertiesWithSignatureOverride(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--spec", calcSpec,
		"--interface", "org.freedesktop.DBus.Properties",
		"--signature", "ss",
		"/com/example/calc", "Get", `["com.example.Calc", "Model"]`)
	require.NoError(t, err)
	assert.Equal(t, "reply [{\"sig\":\"s\",\"value\":\"basic\"}]\n", out)
}

func TestCall_NoReply(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--spec", calcSpec, "--no-reply", "/com/example/calc", "Add", "[1, 2]")
	require.NoError(t, err)
	assert.Equal(t, "(no messages, outcome ok)\n", out)
}

func TestCall_NoReplyFailureExitsOne(t *testing.T) {
	cmd := NewCallCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "--spec", calcSpec, "--no-reply", "/com/example/calc", "Divide", "[1, 0]")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "com.example.Calc.Error.NotSupported")
	assert.Equal(t, "(no messages, outcome silent_error)\n", out)
}

func TestCall_BadArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "not json", args: []string{"/com/example/calc", "Add", "[1,"}},
		{name: "not an array", args: []string{"/com/example/calc", "Add", `{"a": 1}`}},
		{name: "wrong type", args: []string{"/com/example/calc", "Add", `["x", 2]`}},
		{name: "bad path", args: []string{"calc", "Add", "[1, 2]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCallCommand(&RootOptions{Format: "text"})
			_, err := execute(t, cmd, append([]string{"--spec", calcSpec}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestCall_Journal(t *testing.T) {
	db := filepath.Join(t.TempDir(), "calc.db")

	cmd := NewCallCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "--spec", calcSpec, "--db", db, "/com/example/calc", "Add", "[1, 2]")
	require.NoError(t, err)

	var resp struct {
		Data CallResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(1), resp.Data.Seq)

	cmd = NewCallCommand(&RootOptions{Format: "json"})
	out, err = execute(t, cmd, "--spec", calcSpec, "--db", db, "/com/example/calc", "Add", "[3, 4]")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, int64(2), resp.Data.Seq, "seq resumes from the journal")
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs(nil)
	require.NoError(t, err)
	assert.Nil(t, args)

	args, err = parseArgs([]string{`[9007199254740993, "x"]`})
	require.NoError(t, err)
	assert.Equal(t, []any{json.Number("9007199254740993"), "x"}, args)

	_, err = parseArgs([]string{`[1] [2]`})
	assert.Error(t, err)
}
