// Package config loads the application configuration from an optional YAML
// file, MAKO_* environment overrides, and built-in defaults, in that order
// of increasing precedence for env vars over file values.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the whole application configuration, read once at startup.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Executor ExecutorConfig `mapstructure:"executor"`
	Datasets DatasetsConfig `mapstructure:"datasets"`
	Storage  StorageConfig  `mapstructure:"storage"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ExecutorConfig bounds script executions.
type ExecutorConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	MaxOutputBytes int           `mapstructure:"max_output_bytes"`
	MaxSteps       int64         `mapstructure:"max_steps"`
	MaxRecursion   int           `mapstructure:"max_recursion"`
	MaxSourceBytes int           `mapstructure:"max_source_bytes"`
}

// DatasetsConfig holds the dataset store location.
type DatasetsConfig struct {
	Dir string `mapstructure:"dir"`
}

// StorageConfig holds the SQLite database location.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// CORSConfig lists the browser origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration. configPath may be empty, in which case a
// config.yaml is looked up in the working directory and ./config; a missing
// file is fine, defaults and MAKO_* env vars apply either way.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("MAKO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.environment", "development")

	v.SetDefault("executor.timeout", "5s")
	v.SetDefault("executor.max_concurrent", 4)
	v.SetDefault("executor.max_output_bytes", 1<<20)
	v.SetDefault("executor.max_steps", 10_000_000)
	v.SetDefault("executor.max_recursion", 200)
	v.SetDefault("executor.max_source_bytes", 256<<10)

	v.SetDefault("datasets.dir", "./data/datasets")
	v.SetDefault("storage.path", "./data/mako.db")

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:5173"})

	v.SetDefault("log.level", "info")
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("server.environment must be 'development' or 'production', got %q", c.Server.Environment)
	}
	if c.Executor.Timeout <= 0 {
		return fmt.Errorf("executor.timeout must be positive, got %s", c.Executor.Timeout)
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("executor.max_concurrent must be positive, got %d", c.Executor.MaxConcurrent)
	}
	if c.Executor.MaxOutputBytes <= 0 {
		return fmt.Errorf("executor.max_output_bytes must be positive, got %d", c.Executor.MaxOutputBytes)
	}
	if c.Executor.MaxSteps <= 0 {
		return fmt.Errorf("executor.max_steps must be positive, got %d", c.Executor.MaxSteps)
	}
	if c.Executor.MaxRecursion <= 0 {
		return fmt.Errorf("executor.max_recursion must be positive, got %d", c.Executor.MaxRecursion)
	}
	if c.Executor.MaxSourceBytes <= 0 {
		return fmt.Errorf("executor.max_source_bytes must be positive, got %d", c.Executor.MaxSourceBytes)
	}
	if c.Datasets.Dir == "" {
		return fmt.Errorf("datasets.dir is required")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	return nil
}

// LogLevel maps the configured level name onto a slog level.
func (c *Config) LogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
