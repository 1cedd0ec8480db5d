// Package bunnyconfig loads and validates bunny's environment-variable
// configuration surface: database connection, task API, polling
// cadence, disclosure-control thresholds, logging, and the distribution
// cache.
//
// Loading goes through github.com/spf13/viper with AutomaticEnv; all
// keys are plain environment variables with defaults applied here.
package bunnyconfig

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported datasource drivers.
const (
	DriverPostgres = "postgresql"
	DriverMSSQL    = "mssql"
	DriverDuckDB   = "duckdb"
)

// Database holds datasource connection settings.
type Database struct {
	DriverName string
	Username   string
	Password   string
	Host       string
	Port       int
	Database   string
	Schema     string
	Catalog    string

	// DuckDB-specific
	DuckDBPath          string
	DuckDBMemoryLimit   string
	DuckDBTempDirectory string

	UseAzureManagedIdentity      bool
	AzureManagedIdentityClientID string
	UseTrino                     bool
}

// TaskAPI holds coordinator connection settings.
type TaskAPI struct {
	BaseURL      string
	Username     string
	Password     string
	Type         string // "a", "b", or ""
	CollectionID string
	EnforceHTTPS bool
}

// Polling holds daemon loop timing.
type Polling struct {
	Interval       time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Obfuscation holds disclosure-control thresholds.
type Obfuscation struct {
	LowNumberSuppressionThreshold int
	RoundingTarget                int
}

// Logging holds logger settings.
type Logging struct {
	Level string // DEBUG, INFO, WARNING, ERROR, CRITICAL
	File  string // optional rotating log file path; empty logs to stderr
}

// Cache holds distribution-cache settings.
type Cache struct {
	Dir      string
	Enabled  bool
	TTLHours int
}

// Settings is the full validated configuration for one bunny process.
type Settings struct {
	Database    Database
	TaskAPI     TaskAPI
	Polling     Polling
	Obfuscation Obfuscation
	Logging     Logging
	Cache       Cache
}

// Load reads settings from the environment and validates them. CLI-only
// runs pass requireTaskAPI=false since the one-shot mode never contacts
// the coordinator.
func Load(requireTaskAPI bool) (Settings, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DATASOURCE_DB_DRIVERNAME", DriverPostgres)
	v.SetDefault("DATASOURCE_DB_USERNAME", "trino-user")
	v.SetDefault("DATASOURCE_DB_CATALOG", "hutch")
	v.SetDefault("DATASOURCE_DUCKDB_PATH_TO_DB", "/data/file.db")
	v.SetDefault("DATASOURCE_DUCKDB_MEMORY_LIMIT", "1000mb")
	v.SetDefault("DATASOURCE_DUCKDB_TEMP_DIRECTORY", "/tmp")
	v.SetDefault("TASK_API_ENFORCE_HTTPS", true)
	v.SetDefault("POLLING_INTERVAL", 5)
	v.SetDefault("INITIAL_BACKOFF", 5)
	v.SetDefault("MAX_BACKOFF", 60)
	v.SetDefault("LOW_NUMBER_SUPPRESSION_THRESHOLD", 10)
	v.SetDefault("ROUNDING_TARGET", 10)
	v.SetDefault("BUNNY_LOGGER_LEVEL", "INFO")
	v.SetDefault("CACHE_DIR", ".bunny-cache")
	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL_HOURS", 0)

	s := Settings{
		Database: Database{
			DriverName:                   v.GetString("DATASOURCE_DB_DRIVERNAME"),
			Username:                     v.GetString("DATASOURCE_DB_USERNAME"),
			Password:                     v.GetString("DATASOURCE_DB_PASSWORD"),
			Host:                         v.GetString("DATASOURCE_DB_HOST"),
			Port:                         v.GetInt("DATASOURCE_DB_PORT"),
			Database:                     v.GetString("DATASOURCE_DB_DATABASE"),
			Schema:                       v.GetString("DATASOURCE_DB_SCHEMA"),
			Catalog:                      v.GetString("DATASOURCE_DB_CATALOG"),
			DuckDBPath:                   v.GetString("DATASOURCE_DUCKDB_PATH_TO_DB"),
			DuckDBMemoryLimit:            v.GetString("DATASOURCE_DUCKDB_MEMORY_LIMIT"),
			DuckDBTempDirectory:          v.GetString("DATASOURCE_DUCKDB_TEMP_DIRECTORY"),
			UseAzureManagedIdentity:      v.GetBool("DATASOURCE_USE_AZURE_MANAGED_IDENTITY"),
			AzureManagedIdentityClientID: v.GetString("DATASOURCE_AZURE_MANAGED_IDENTITY_CLIENT_ID"),
			UseTrino:                     v.GetBool("DATASOURCE_USE_TRINO"),
		},
		TaskAPI: TaskAPI{
			BaseURL:      v.GetString("TASK_API_BASE_URL"),
			Username:     v.GetString("TASK_API_USERNAME"),
			Password:     v.GetString("TASK_API_PASSWORD"),
			Type:         v.GetString("TASK_API_TYPE"),
			CollectionID: v.GetString("COLLECTION_ID"),
			EnforceHTTPS: v.GetBool("TASK_API_ENFORCE_HTTPS"),
		},
		Polling: Polling{
			Interval:       time.Duration(v.GetInt("POLLING_INTERVAL")) * time.Second,
			InitialBackoff: time.Duration(v.GetInt("INITIAL_BACKOFF")) * time.Second,
			MaxBackoff:     time.Duration(v.GetInt("MAX_BACKOFF")) * time.Second,
		},
		Obfuscation: Obfuscation{
			LowNumberSuppressionThreshold: v.GetInt("LOW_NUMBER_SUPPRESSION_THRESHOLD"),
			RoundingTarget:                v.GetInt("ROUNDING_TARGET"),
		},
		Logging: Logging{
			Level: strings.ToUpper(v.GetString("BUNNY_LOGGER_LEVEL")),
			File:  v.GetString("BUNNY_LOG_FILE"),
		},
		Cache: Cache{
			Dir:      v.GetString("CACHE_DIR"),
			Enabled:  v.GetBool("CACHE_ENABLED"),
			TTLHours: v.GetInt("CACHE_TTL_HOURS"),
		},
	}

	if err := s.validate(requireTaskAPI); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) validate(requireTaskAPI bool) error {
	switch s.Database.DriverName {
	case DriverPostgres, DriverMSSQL, DriverDuckDB:
	default:
		return fmt.Errorf("DATASOURCE_DB_DRIVERNAME must be one of postgresql, mssql, duckdb; got %q", s.Database.DriverName)
	}

	if s.Database.Schema == "" {
		return fmt.Errorf("DATASOURCE_DB_SCHEMA is required")
	}

	// Host/port/database are required unless using duckdb, which reads a
	// local file instead.
	if s.Database.DriverName != DriverDuckDB {
		if s.Database.Host == "" {
			return fmt.Errorf("DATASOURCE_DB_HOST is required unless using duckdb")
		}
		if s.Database.Port == 0 {
			return fmt.Errorf("DATASOURCE_DB_PORT is required unless using duckdb")
		}
		if s.Database.Database == "" {
			return fmt.Errorf("DATASOURCE_DB_DATABASE is required unless using duckdb")
		}
	}

	switch s.Logging.Level {
	case "DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL":
	default:
		return fmt.Errorf("BUNNY_LOGGER_LEVEL must be one of DEBUG, INFO, WARNING, ERROR, CRITICAL; got %q", s.Logging.Level)
	}

	if requireTaskAPI {
		if err := s.validateTaskAPI(); err != nil {
			return err
		}
	}
	return nil
}

func (s Settings) validateTaskAPI() error {
	t := s.TaskAPI
	if t.BaseURL == "" {
		return fmt.Errorf("TASK_API_BASE_URL is required")
	}
	if t.EnforceHTTPS && !strings.HasPrefix(t.BaseURL, "https://") {
		return fmt.Errorf("HTTPS is required for the task API but not used; set TASK_API_ENFORCE_HTTPS to false if you are using a non-HTTPS connection")
	}
	if t.Username == "" || t.Password == "" {
		return fmt.Errorf("TASK_API_USERNAME and TASK_API_PASSWORD are required")
	}
	if t.CollectionID == "" {
		return fmt.Errorf("COLLECTION_ID is required")
	}
	switch t.Type {
	case "", "a", "b":
	default:
		return fmt.Errorf("TASK_API_TYPE must be \"a\", \"b\", or unset; got %q", t.Type)
	}
	return nil
}

// SlogLevel maps the configured level name to its slog equivalent.
// CRITICAL maps to ERROR, the closest slog has.
func (l Logging) SlogLevel() slog.Level {
	switch l.Level {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// CacheTTL returns the cache TTL as a duration; zero means entries
// never expire.
func (c Cache) CacheTTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}
