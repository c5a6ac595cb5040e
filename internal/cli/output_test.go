package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "plain error", err: errors.New("boom"), want: ExitFailure},
		{name: "exit error", err: NewExitError(ExitCommandError, "bad"), want: ExitCommandError},
		{name: "wrapped exit error", err: fmt.Errorf("outer: %w", NewExitError(ExitFailure, "inner")), want: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	cause := errors.New("disk full")
	err := WrapExitError(ExitCommandError, "open journal", cause)
	assert.Equal(t, "open journal: disk full", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "bad", NewExitError(ExitFailure, "bad").Error())
}

func TestOutputFormatter_JSON(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Success(map[string]int{"n": 1}))
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)

	buf.Reset()
	require.NoError(t, f.Error("E_X", "broken", nil))
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_X", resp.Error.Code)
}

func TestOutputFormatter_Text(t *testing.T) {
	var buf, errBuf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf, ErrWriter: &errBuf, Verbose: true}

	require.NoError(t, f.Error("E_X", "broken", "more"))
	assert.Equal(t, "Error [E_X]: broken\nDetails: more\n", buf.String())

	buf.Reset()
	f.Textf("%s done", markPass)
	assert.Equal(t, markPass+" done\n", buf.String())

	f.VerboseLog("loaded %d", 3)
	assert.Equal(t, "loaded 3\n", errBuf.String())

	require.NoError(t, f.Failure("E_X", "ignored in text", nil))
	assert.Equal(t, markPass+" done\n", buf.String())
}
