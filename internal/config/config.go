package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file searched for in the config directory.
const FileName = "fleetsync.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. FLEETSYNC_SERVER_HOST.
const EnvPrefix = "FLEETSYNC"

// Transport names accepted for server.transport.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// ClientConfig holds the server connection settings.
type ClientConfig struct {
	Host          string        `json:"host" mapstructure:"host"`
	Port          int           `json:"port" mapstructure:"port"`
	Transport     string        `json:"transport" mapstructure:"transport"`
	Path          string        `json:"path" mapstructure:"path"`
	RetryInterval time.Duration `json:"retryInterval" mapstructure:"retryInterval"`
	WriteTimeout  time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
}

// Address returns host:port.
func (c ClientConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// OTelConfig holds OpenTelemetry log export settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds the performance time series settings.
type InfluxConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Token   string `json:"token" mapstructure:"token"`
	Org     string `json:"org" mapstructure:"org"`
	Bucket  string `json:"bucket" mapstructure:"bucket"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 5555)
	viper.SetDefault("server.transport", TransportTCP)
	viper.SetDefault("server.path", "/")
	viper.SetDefault("server.retryInterval", "2s")
	viper.SetDefault("server.writeTimeout", "10s")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "fleetsync")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "fleetsync")
	viper.SetDefault("influx.bucket", "fleetsync_performance")
}

// Load sets default values, then reads the JSON config file from
// configDir if there is one. Environment variables override both.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	if configDir != "" {
		viper.AddConfigPath(configDir)
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// RegisterFlags adds the command line flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("host", "localhost", "simulation server host")
	fs.Int("port", 5555, "simulation server port")
	fs.String("transport", TransportTCP, "transport to the server (tcp|websocket)")
	fs.String("log-level", "info", "log level (debug|info|warn|error)")
	fs.String("config-dir", ".", "directory containing "+FileName)
}

// BindFlags binds flags registered by RegisterFlags into viper. A flag
// only overrides the config file when it was set on the command line.
func BindFlags(fs *pflag.FlagSet) error {
	bindings := map[string]string{
		"server.host":      "host",
		"server.port":      "port",
		"server.transport": "transport",
		"logLevel":         "log-level",
	}
	for key, name := range bindings {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("flag --%s is not registered", name)
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}

// GetClientConfig returns the server connection settings.
func GetClientConfig() (ClientConfig, error) {
	cfg := ClientConfig{
		Host:          viper.GetString("server.host"),
		Port:          viper.GetInt("server.port"),
		Transport:     strings.ToLower(viper.GetString("server.transport")),
		Path:          viper.GetString("server.path"),
		RetryInterval: viper.GetDuration("server.retryInterval"),
		WriteTimeout:  viper.GetDuration("server.writeTimeout"),
	}

	switch cfg.Transport {
	case TransportTCP, TransportWebSocket:
	default:
		return cfg, fmt.Errorf("unsupported transport %q", cfg.Transport)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}

	return cfg, nil
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL:     viper.GetString("influx.url"),
		Token:   viper.GetString("influx.token"),
		Org:     viper.GetString("influx.org"),
		Bucket:  viper.GetString("influx.bucket"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
