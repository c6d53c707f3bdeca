/*
Package config loads server configuration.

PRECEDENCE (lowest to highest):
  1. Defaults()
  2. TOML file (optional, path from --config)
  3. Environment, after loading .env if present
  4. Command-line flags (applied by cmd/server)

ENVIRONMENT:
  FUELEU_PORT              HTTP port
  FUELEU_DB_PATH           SQLite path (":memory:" for in-memory)
  FUELEU_LOG_LEVEL         logrus level (debug, info, warn, error)
  FUELEU_LOG_FORMAT        text | json
  FUELEU_POOL_MIN_MEMBERS  minimum members to create a pool

EXAMPLE FILE:
  [server]
  port = 8080
  allowed_origins = ["http://localhost:5173"]

  [database]
  path = "./data/compliance.db"

  [log]
  level = "info"
  format = "json"

  [pooling]
  min_members = 2
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Pooling  PoolingConfig  `toml:"pooling"`
}

type ServerConfig struct {
	Port           int      `toml:"port"`
	ReadTimeout    Duration `toml:"read_timeout"`
	WriteTimeout   Duration `toml:"write_timeout"`
	IdleTimeout    Duration `toml:"idle_timeout"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type PoolingConfig struct {
	MinMembers int `toml:"min_members"`
}

// Duration decodes TOML strings such as "15s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the production defaults.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			ReadTimeout:    Duration{15 * time.Second},
			WriteTimeout:   Duration{15 * time.Second},
			IdleTimeout:    Duration{60 * time.Second},
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		},
		Database: DatabaseConfig{Path: "compliance.db"},
		Log:      LogConfig{Level: "info", Format: "text"},
		Pooling:  PoolingConfig{MinMembers: 1},
	}
}

// envOverrides is decoded by envdecode. Empty strings mean "not set".
type envOverrides struct {
	Port       string `env:"FUELEU_PORT"`
	DBPath     string `env:"FUELEU_DB_PATH"`
	LogLevel   string `env:"FUELEU_LOG_LEVEL"`
	LogFormat  string `env:"FUELEU_LOG_FORMAT"`
	MinMembers string `env:"FUELEU_POOL_MIN_MEMBERS"`
}

// Load builds the configuration from defaults, the optional TOML file at
// path and the environment. A missing .env file is not an error; a missing
// TOML file is, when a path was given.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}

	if env.Port != "" {
		port, err := strconv.Atoi(env.Port)
		if err != nil {
			return fmt.Errorf("FUELEU_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if env.DBPath != "" {
		c.Database.Path = env.DBPath
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		c.Log.Format = env.LogFormat
	}
	if env.MinMembers != "" {
		n, err := strconv.Atoi(env.MinMembers)
		if err != nil {
			return fmt.Errorf("FUELEU_POOL_MIN_MEMBERS: %w", err)
		}
		c.Pooling.MinMembers = n
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format %q must be text or json", c.Log.Format)
	}
	if c.Pooling.MinMembers < 1 {
		return fmt.Errorf("pooling min_members %d must be at least 1", c.Pooling.MinMembers)
	}
	return nil
}

// NewLogger builds the root logger described by the log section.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
