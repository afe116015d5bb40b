// Package config provides configuration management for splicevodd using
// Viper. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort          = 8080
	defaultServerTimeout       = 30 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultSessionTimeoutSec   = 10
	defaultChunkDurationSec    = 5
	defaultFragmentDurationMs  = 1000
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 10
	defaultConnMaxIdleTime     = 30 * time.Minute
	defaultAuditRetentionHours = 30 * 24
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Session   SessionConfig   `mapstructure:"session"`
	Assembler AssemblerConfig `mapstructure:"assembler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// StoreConfig holds the S3-compatible object store connection.
type StoreConfig struct {
	Driver          string   `mapstructure:"driver"` // s3, memory
	Endpoint        string   `mapstructure:"endpoint"`
	Region          string   `mapstructure:"region"`
	AccessKeyID     string   `mapstructure:"access_key_id"`
	SecretAccessKey string   `mapstructure:"secret_access_key"`
	Buckets         []string `mapstructure:"buckets"`
	MetadataGroups  []string `mapstructure:"metadata_groups"`
}

// SessionConfig holds defaults applied to manifest requests and
// governs how long planned sessions live in the registry.
type SessionConfig struct {
	DefaultTimeoutSec       int    `mapstructure:"default_timeout_sec"`
	DefaultChunkDurationSec int    `mapstructure:"default_chunk_duration_sec"`
	BaseURL                 string `mapstructure:"base_url"`
}

// AssemblerConfig holds segment-assembly tuning.
type AssemblerConfig struct {
	TmpDir             string `mapstructure:"tmp_dir"`
	FragmentDurationMs int64  `mapstructure:"fragment_duration_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// DatabaseConfig holds the audit database connection.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// AuditConfig holds request audit log retention.
type AuditConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with SPLICEVOD_ and use
// underscores for nesting. Example: SPLICEVOD_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/splicevod")
		v.AddConfigPath("$HOME/.splicevod")
	}

	v.SetEnvPrefix("SPLICEVOD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure
// defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("store.driver", "s3")
	v.SetDefault("store.region", "us-east-1")
	v.SetDefault("store.buckets", []string{})
	v.SetDefault("store.metadata_groups", []string{})

	v.SetDefault("session.default_timeout_sec", defaultSessionTimeoutSec)
	v.SetDefault("session.default_chunk_duration_sec", defaultChunkDurationSec)
	v.SetDefault("session.base_url", "")

	v.SetDefault("assembler.tmp_dir", "./tmp")
	v.SetDefault("assembler.fragment_duration_ms", defaultFragmentDurationMs)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "splicevod.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("audit.retention", defaultAuditRetentionHours*time.Hour)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validStoreDrivers := map[string]bool{"s3": true, "memory": true}
	if !validStoreDrivers[c.Store.Driver] {
		return fmt.Errorf("store.driver must be one of: s3, memory")
	}

	if c.Session.DefaultTimeoutSec < 1 {
		return fmt.Errorf("session.default_timeout_sec must be at least 1")
	}
	if c.Session.DefaultChunkDurationSec < 1 {
		return fmt.Errorf("session.default_chunk_duration_sec must be at least 1")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	validDBDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDBDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
