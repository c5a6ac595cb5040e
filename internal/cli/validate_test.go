package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, calcSpec)
	require.NoError(t, err)
	assert.Equal(t, markPass+" Manifest valid: 2 interface(s), 2 object(s)\n", out)
}

func TestValidate_ValidJSON(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, calcSpec)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Files)
	assert.Equal(t, 2, resp.Data.Interfaces)
	assert.Equal(t, 2, resp.Data.Objects)
}

func TestValidate_MissingPath(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "/does/not/exist")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "E005")
}

func TestValidate_InvalidManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", `package bad

interfaces: "nodots": methods: Ping: impl: "echo"
objects: "/x": interfaces: ["nodots"]
`)

	cmd := NewValidateCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, "E101", resp.Data.Errors[0].Code)
	assert.Positive(t, resp.Data.Errors[0].Line)
}

func TestValidate_InvalidManifestText(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", `package bad

interfaces: "com.example.Bad": methods: Ping: impl: "nope"
objects: "/x": interfaces: ["com.example.Bad"]
`)

	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, markFail+" Manifest invalid")
	assert.Contains(t, out, "E104")
}
