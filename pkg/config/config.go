// Package config provides configuration management for the trace engine.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"

	apperrors "github.com/exec-trace/pkg/errors"
)

// Config holds all configuration for the engine and CLI.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Storage StorageConfig `mapstructure:"storage"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// EngineConfig controls block paging and query caches.
type EngineConfig struct {
	EventsPerBlock    int   `mapstructure:"events_per_block"`
	MaxResidentBlocks int   `mapstructure:"max_resident_blocks"` // 0 derives the cap from memory_budget_mb
	MemoryBudgetMB    int64 `mapstructure:"memory_budget_mb"`
	AnalysisCacheSize int   `mapstructure:"analysis_cache_size"`
	PersistAfterLoad  bool  `mapstructure:"persist_after_load"`
	Workers           int   `mapstructure:"workers"`
}

// StorageConfig controls how blocks are written to disk.
type StorageConfig struct {
	Compression      string `mapstructure:"compression"` // zstd, gzip or none
	CompressionLevel int    `mapstructure:"compression_level"`
}

// CatalogConfig holds the saved-trace registry connection.
type CatalogConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, mysql or postgres
	Path     string `mapstructure:"path"` // sqlite file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// TelemetryConfig is the file-level tracing setup. OTEL_* environment
// variables take precedence over it.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Protocol    string `mapstructure:"protocol"` // grpc or http/protobuf
	Insecure    bool   `mapstructure:"insecure"`
	Sampler     string `mapstructure:"sampler"`
	SamplerArg  string `mapstructure:"sampler_arg"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// Load reads configuration from the specified file path.
// A missing file is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("tracecli")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/exec-trace")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config file", err)
		}
	}

	v.SetEnvPrefix("EXECTRACE")
	v.AutomaticEnv()

	return decode(v)
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "config validation failed", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.events_per_block", 4096)
	v.SetDefault("engine.max_resident_blocks", 0)
	v.SetDefault("engine.memory_budget_mb", 512)
	v.SetDefault("engine.analysis_cache_size", 256)
	v.SetDefault("engine.persist_after_load", true)
	v.SetDefault("engine.workers", 4)

	v.SetDefault("storage.compression", "zstd")
	v.SetDefault("storage.compression_level", 3)

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.type", "sqlite")
	v.SetDefault("catalog.path", "./traces.db")
	v.SetDefault("catalog.max_conns", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.protocol", "grpc")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.EventsPerBlock < 1 {
		return fmt.Errorf("events_per_block must be positive, got %d", c.Engine.EventsPerBlock)
	}
	if c.Engine.MaxResidentBlocks < 0 {
		return fmt.Errorf("max_resident_blocks must not be negative")
	}
	if c.Engine.MaxResidentBlocks == 0 && c.Engine.MemoryBudgetMB < 1 {
		return fmt.Errorf("memory_budget_mb is required when max_resident_blocks is 0")
	}
	switch c.Storage.Compression {
	case "zstd", "gzip", "none":
	default:
		return fmt.Errorf("unsupported compression: %s", c.Storage.Compression)
	}
	if c.Catalog.Enabled {
		switch c.Catalog.Type {
		case "sqlite":
			if c.Catalog.Path == "" {
				return fmt.Errorf("catalog path is required for sqlite")
			}
		case "mysql", "postgres":
			if c.Catalog.Host == "" {
				return fmt.Errorf("catalog host is required for %s", c.Catalog.Type)
			}
		default:
			return fmt.Errorf("unsupported catalog type: %s", c.Catalog.Type)
		}
	}
	switch c.Telemetry.Protocol {
	case "", "grpc", "http", "http/protobuf":
	default:
		return fmt.Errorf("unsupported telemetry protocol: %s", c.Telemetry.Protocol)
	}
	return nil
}

// MemoryBudgetBytes returns the engine budget in bytes.
func (c *EngineConfig) MemoryBudgetBytes() int64 {
	return c.MemoryBudgetMB << 20
}
