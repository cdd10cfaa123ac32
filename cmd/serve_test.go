package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_Dispatch(t *testing.T) {
	assert.NoError(t, Execute(context.Background(), nil))
	assert.NoError(t, Execute(context.Background(), []string{"help"}))
	assert.NoError(t, Execute(context.Background(), []string{"version"}))

	err := Execute(context.Background(), []string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "bogus"`)
}

func TestParseServeFlags(t *testing.T) {
	opts, err := parseServeFlags([]string{"--config", "gateway.yaml", "--host", "0.0.0.0", "--port", "8080"})
	require.NoError(t, err)
	assert.Equal(t, "gateway.yaml", opts.configPath)
	assert.Equal(t, "0.0.0.0", opts.host)
	assert.Equal(t, 8080, opts.overridePort)
	assert.Equal(t, defaultEnvFile, opts.envFile)
	assert.False(t, opts.envFileSet)

	opts, err = parseServeFlags([]string{"--env-file", "custom.env"})
	require.NoError(t, err)
	assert.Equal(t, "custom.env", opts.envFile)
	assert.True(t, opts.envFileSet)

	_, err = parseServeFlags([]string{"--port", "70000"})
	assert.Error(t, err)
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, loadEnvFile(filepath.Join(dir, "missing.env"), false))
	assert.Error(t, loadEnvFile(filepath.Join(dir, "missing.env"), true))

	path := filepath.Join(dir, "gateway.env")
	require.NoError(t, os.WriteFile(path, []byte("CLAWCREDIT_GATEWAY_TEST_VALUE=from-file\n"), 0o600))
	t.Setenv("CLAWCREDIT_GATEWAY_TEST_VALUE", "")
	require.NoError(t, os.Unsetenv("CLAWCREDIT_GATEWAY_TEST_VALUE"))

	require.NoError(t, loadEnvFile(path, true))
	assert.Equal(t, "from-file", os.Getenv("CLAWCREDIT_GATEWAY_TEST_VALUE"))
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	t.Setenv("CLAWCREDIT_API_TOKEN", "claw_test_token")
	t.Setenv("PORT", "4000")

	cfg, err := loadConfig(serveOptions{host: "0.0.0.0", overridePort: 5000})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "claw_test_token", cfg.Payment.APIToken)
}

func TestServe_MissingToken(t *testing.T) {
	t.Setenv("CLAWCREDIT_API_TOKEN", "")

	err := serve(context.Background(), []string{"--env-file", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_token")
}
