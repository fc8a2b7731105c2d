package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/compose-network/ingress/x/codec"
	"github.com/compose-network/ingress/x/parser"
)

// Config holds the complete application configuration
type Config struct {
	Server  ServerConfig    `mapstructure:"server"  yaml:"server"`
	API     APIServerConfig `mapstructure:"api"     yaml:"api"`
	Parsers ParsersConfig   `mapstructure:"parsers" yaml:"parsers"`
	Metrics MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig       `mapstructure:"log"     yaml:"log"`
}

// ServerConfig holds the TCP listener configuration
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"      yaml:"listen_addr"      env:"SERVER_LISTEN_ADDR"`
	Framing        string        `mapstructure:"framing"          yaml:"framing"          env:"SERVER_FRAMING"`
	MaxFrameSize   int           `mapstructure:"max_frame_size"   yaml:"max_frame_size"   env:"SERVER_MAX_FRAME_SIZE"`
	MaxConnections int           `mapstructure:"max_connections"  yaml:"max_connections"  env:"SERVER_MAX_CONNECTIONS"`
	ReadBufferSize int           `mapstructure:"read_buffer_size" yaml:"read_buffer_size" env:"SERVER_READ_BUFFER_SIZE"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"    yaml:"write_timeout"    env:"SERVER_WRITE_TIMEOUT"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	Enabled           bool          `mapstructure:"enabled"             yaml:"enabled"`
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
	CORS              bool          `mapstructure:"cors"                yaml:"cors"`
}

// ParsersConfig lists the protocol parsers in registry order
type ParsersConfig struct {
	Enabled []string `mapstructure:"enabled" yaml:"enabled"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled        bool          `mapstructure:"enabled"         yaml:"enabled"         env:"METRICS_ENABLED"`
	Path           string        `mapstructure:"path"            yaml:"path"            env:"METRICS_PATH"`
	ReportInterval time.Duration `mapstructure:"report_interval" yaml:"report_interval" env:"METRICS_REPORT_INTERVAL"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// Load loads configuration from an optional YAML file and the environment.
// An empty configPath runs on defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.listen_addr", d.Server.ListenAddr)
	v.SetDefault("server.framing", d.Server.Framing)
	v.SetDefault("server.max_frame_size", d.Server.MaxFrameSize)
	v.SetDefault("server.max_connections", d.Server.MaxConnections)
	v.SetDefault("server.read_buffer_size", d.Server.ReadBufferSize)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen_addr", d.API.ListenAddr)
	v.SetDefault("api.read_header_timeout", d.API.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)
	v.SetDefault("api.idle_timeout", d.API.IdleTimeout)
	v.SetDefault("api.max_header_bytes", d.API.MaxHeaderBytes)
	v.SetDefault("api.cors", d.API.CORS)

	v.SetDefault("parsers.enabled", d.Parsers.Enabled)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.report_interval", d.Metrics.ReportInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateParsers(); err != nil {
		return err
	}
	if err := c.validateMetrics(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if names := codec.NewRegistry().Names(); !slices.Contains(names, c.Server.Framing) {
		return fmt.Errorf("server.framing %q is not one of %v", c.Server.Framing, names)
	}
	if c.Server.MaxFrameSize <= 0 {
		return fmt.Errorf("server.max_frame_size must be positive, got %d", c.Server.MaxFrameSize)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative, got %d", c.Server.MaxConnections)
	}
	if c.Server.ReadBufferSize <= 0 {
		return fmt.Errorf("server.read_buffer_size must be positive, got %d", c.Server.ReadBufferSize)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Enabled && strings.TrimSpace(c.API.ListenAddr) == "" {
		return fmt.Errorf("api.listen_addr is required when api is enabled")
	}
	return nil
}

func (c *Config) validateParsers() error {
	known := parser.Names()
	seen := make(map[string]bool, len(c.Parsers.Enabled))
	for _, name := range c.Parsers.Enabled {
		if !slices.Contains(known, name) {
			return fmt.Errorf("parsers.enabled: unknown parser %q, known: %v", name, known)
		}
		if seen[name] {
			return fmt.Errorf("parsers.enabled: parser %q listed twice", name)
		}
		seen[name] = true
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path)
	}
	if c.Metrics.ReportInterval < 0 {
		return fmt.Errorf("metrics.report_interval must not be negative")
	}
	return nil
}

// Dump renders the effective configuration as YAML.
func (c *Config) Dump() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(out), nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:     "127.0.0.1:12345",
			Framing:        codec.NameRaw,
			MaxFrameSize:   codec.DefaultMaxFrameSize,
			MaxConnections: 1000,
			ReadBufferSize: 16 * 1024,
			WriteTimeout:   20 * time.Second,
		},
		API: APIServerConfig{
			Enabled:           true,
			ListenAddr:        "127.0.0.1:12346",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Parsers: ParsersConfig{
			Enabled: []string{parser.NameKafka, parser.NameJSON},
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			Path:           "/metrics",
			ReportInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
