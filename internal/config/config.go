package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aridsondez/queue-engine/internal/logging"
	"github.com/aridsondez/queue-engine/internal/queue"
	"github.com/aridsondez/queue-engine/internal/queue/store/file"
)

// Backends selectable through QUEUE_BACKEND.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config holds all environment configuration
type Config struct {
	Port                int
	Backend             string
	QueueDir            string
	FieldDelimiter      string
	VisibilityTimeout   time.Duration
	DeletePolicy        file.DeletePolicy
	DatabaseURL         string
	DBConnectionTimeout time.Duration
	LogLevel            logging.Level
}

// fileConfig is the optional YAML layer, read before the environment.
type fileConfig struct {
	Port                   int    `yaml:"port"`
	Backend                string `yaml:"backend"`
	QueueDir               string `yaml:"queue_dir"`
	FieldDelimiter         string `yaml:"field_delimiter"`
	VisibilityTimeoutSec   int    `yaml:"visibility_timeout_sec"`
	DeletePolicy           string `yaml:"delete_policy"`
	DatabaseURL            string `yaml:"database_url"`
	DBConnectionTimeoutSec int    `yaml:"db_connection_timeout_sec"`
	LogLevel               string `yaml:"log_level"`
}

func defaults() fileConfig {
	return fileConfig{
		Port:                   8080,
		Backend:                BackendFile,
		QueueDir:               "queue-service",
		FieldDelimiter:         queue.DefaultDelimiter,
		VisibilityTimeoutSec:   30,
		DeletePolicy:           "any-time",
		DBConnectionTimeoutSec: 5,
		LogLevel:               "info",
	}
}

// helper: read env var as int seconds → convert to duration
func getEnvAsDuration(name string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(name)
	if !exists {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: want whole seconds", name, value)
	}
	return time.Duration(i) * time.Second, nil
}

func getEnvAsInt(name string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(name)
	if !exists {
		return defaultVal, nil
	}
	intValue, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: not an integer", name, value)
	}
	return intValue, nil
}

func getEnv(name, defaultVal string) string {
	if value, exists := os.LookupEnv(name); exists {
		return value
	}
	return defaultVal
}

// readFile overlays the YAML file at path onto base.
func readFile(path string, base fileConfig) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &base); err != nil {
		return base, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return base, nil
}

// LoadConfig builds the config from defaults, then the YAML file named by
// QUEUE_CONFIG_FILE (if set), then individual environment variables.
func LoadConfig() (*Config, error) {
	fc := defaults()
	if path := getEnv("QUEUE_CONFIG_FILE", ""); path != "" {
		var err error
		if fc, err = readFile(path, fc); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Backend:        strings.ToLower(getEnv("QUEUE_BACKEND", fc.Backend)),
		QueueDir:       getEnv("QUEUE_DIR", fc.QueueDir),
		FieldDelimiter: getEnv("QUEUE_FIELD_DELIMITER", fc.FieldDelimiter),
		DatabaseURL:    getEnv("DATABASE_URL", fc.DatabaseURL),
	}

	var err error
	if cfg.Port, err = getEnvAsInt("PORT", fc.Port); err != nil {
		return nil, err
	}
	if cfg.VisibilityTimeout, err = getEnvAsDuration("VISIBILITY_TIMEOUT", time.Duration(fc.VisibilityTimeoutSec)*time.Second); err != nil {
		return nil, err
	}
	if cfg.DBConnectionTimeout, err = getEnvAsDuration("DB_CONNECTION_TIMEOUT", time.Duration(fc.DBConnectionTimeoutSec)*time.Second); err != nil {
		return nil, err
	}
	if cfg.DeletePolicy, err = file.ParseDeletePolicy(getEnv("QUEUE_DELETE_POLICY", fc.DeletePolicy)); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = logging.ParseLevel(getEnv("LOG_LEVEL", fc.LogLevel)); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}
	if c.VisibilityTimeout <= 0 {
		return fmt.Errorf("invalid VISIBILITY_TIMEOUT: %s", c.VisibilityTimeout)
	}

	switch c.Backend {
	case BackendFile:
		if strings.TrimSpace(c.QueueDir) == "" {
			return errors.New("QUEUE_DIR is required for the file backend")
		}
		if err := queue.ValidateDelimiter(c.FieldDelimiter); err != nil {
			return fmt.Errorf("invalid QUEUE_FIELD_DELIMITER: %w", err)
		}
	case BackendMemory:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
		if c.DBConnectionTimeout <= 0 {
			return fmt.Errorf("invalid DB_CONNECTION_TIMEOUT: %s", c.DBConnectionTimeout)
		}
	default:
		return fmt.Errorf("unknown QUEUE_BACKEND: %q", c.Backend)
	}
	return nil
}
