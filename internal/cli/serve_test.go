package cli

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/crossroads/internal/loop"
)

func TestLoadServeConfig(t *testing.T) {
	cfg, err := LoadServeConfig("../../examples/calc/serve.toml")
	require.NoError(t, err)
	assert.Equal(t, ServeConfig{
		Bus:                "session",
		Name:               "com.example.Calc",
		DB:                 "calc.db",
		StandardInterfaces: true,
		MetricsAddr:        "127.0.0.1:9464",
	}, cfg)
}

func TestLoadServeConfig_Defaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "serve.toml", `name = "com.example.Only"`)
	cfg, err := LoadServeConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "session", cfg.Bus)
	assert.True(t, cfg.StandardInterfaces)
	assert.Equal(t, "com.example.Only", cfg.Name)
}

func TestLoadServeConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown key", content: "bogus = 1\n", wantErr: "serve.toml"},
		{name: "bad bus", content: "bus = \"starter\"\n", wantErr: `"starter"`},
		{name: "bad syntax", content: "bus = \n", wantErr: "serve.toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "serve.toml", tt.content)
			_, err := LoadServeConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := LoadServeConfig("/does/not/exist.toml")
	assert.Error(t, err)
}

func TestResolveServeConfig_FlagsOverrideFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "serve.toml", `
bus = "system"
name = "com.example.File"
db = "file.db"
standard_interfaces = true
`)
	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text"}, Config: DefaultServeConfig()}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", path,
		"--name", "com.example.Flag",
		"--standard-interfaces=false",
	}))

	cfg, err := resolveServeConfig(opts, cmd)
	require.NoError(t, err)
	assert.Equal(t, ServeConfig{
		Bus:                "system",
		Name:               "com.example.Flag",
		DB:                 "file.db",
		StandardInterfaces: false,
	}, cfg)
}

func TestResolveServeConfig_FlagsOnly(t *testing.T) {
	opts := &ServeOptions{RootOptions: &RootOptions{Format: "text"}, Config: DefaultServeConfig()}
	cmd := newServeCommand(opts)
	require.NoError(t, cmd.ParseFlags([]string{"--bus", "nowhere"}))

	_, err := resolveServeConfig(opts, cmd)
	assert.Error(t, err)
}

func TestServe_InvalidConfigExitsTwo(t *testing.T) {
	path := writeFile(t, t.TempDir(), "serve.toml", "bus = \"nowhere\"\n")
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "--config", path, calcSpec)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestServe_InvalidManifestExitsBeforeConnecting(t *testing.T) {
	cmd := NewServeCommand(&RootOptions{Format: "text"})
	_, err := execute(t, cmd, "/does/not/exist")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMetricsServer_ExposesLoopMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	loop.NewMetrics(reg)
	srv := newMetricsServer("127.0.0.1:0", reg)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "crossroads_queue_depth")
}
