package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"server": { "host": "10.0.0.1", "port": 6000, "transport": "websocket", "path": "/fleet" }
	}`)

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	cfg, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", cfg.Host)
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, TransportWebSocket, cfg.Transport)
	assert.Equal(t, "/fleet", cfg.Path)
	assert.Equal(t, "10.0.0.1:6000", cfg.Address())
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))

	cfg, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5555, cfg.Port)
	assert.Equal(t, TransportTCP, cfg.Transport)
	assert.Equal(t, 2*time.Second, cfg.RetryInterval)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(t.TempDir()))

	cfg, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "localhost:5555", cfg.Address())
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load(writeConfig(t, `{"server": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("FLEETSYNC_SERVER_HOST", "sim.example.net")
	t.Setenv("FLEETSYNC_INFLUX_ENABLED", "true")

	require.NoError(t, Load(writeConfig(t, `{"server": {"host": "file-host"}}`)))

	cfg, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "sim.example.net", cfg.Host)
	assert.True(t, GetInfluxConfig().Enabled)
}

func TestBindFlags(t *testing.T) {
	t.Cleanup(viper.Reset)

	fs := pflag.NewFlagSet("fleetsync", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "7000", "--log-level", "warn"}))
	require.NoError(t, BindFlags(fs))
	require.NoError(t, Load(writeConfig(t, `{"server": {"host": "file-host", "port": 6000}}`)))

	cfg, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port, "flag set on the command line wins")
	assert.Equal(t, "file-host", cfg.Host, "unset flag does not override the file")
	assert.Equal(t, "warn", GetString("logLevel"))
}

func TestBindFlags_Unregistered(t *testing.T) {
	t.Cleanup(viper.Reset)

	fs := pflag.NewFlagSet("fleetsync", pflag.ContinueOnError)
	assert.Error(t, BindFlags(fs))
}

func TestGetClientConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"transport", "server.transport", "udp"},
		{"port zero", "server.port", 0},
		{"port too large", "server.port", 70000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			require.NoError(t, Load(t.TempDir()))
			viper.Set(tt.key, tt.val)

			_, err := GetClientConfig()
			assert.Error(t, err)
		})
	}
}

func TestGetOTelConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	cfg := GetOTelConfig()
	assert.Equal(t, false, cfg.Enabled)
	assert.Equal(t, "fleetsync", cfg.ServiceName)
	assert.Equal(t, 5*time.Second, cfg.BatchTimeout)
	assert.Equal(t, "", cfg.Endpoint)
	assert.Equal(t, true, cfg.Insecure)
}

func TestGetOTelConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"otel": {
			"enabled": true,
			"serviceName": "fleetsync-blue",
			"batchTimeout": "30s",
			"endpoint": "localhost:4318",
			"insecure": false
		}
	}`)
	require.NoError(t, Load(dir))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "fleetsync-blue", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "localhost:4318", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestGetInfluxConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(t.TempDir()))

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "http://localhost:8086", ic.URL)
	assert.Equal(t, "fleetsync", ic.Org)
	assert.Equal(t, "fleetsync_performance", ic.Bucket)
}
