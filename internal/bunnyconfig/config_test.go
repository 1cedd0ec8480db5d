package bunnyconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setMinimalDaemonEnv sets the smallest environment a daemon load
// accepts, which individual tests then override.
func setMinimalDaemonEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATASOURCE_DB_SCHEMA", "omop")
	t.Setenv("DATASOURCE_DB_HOST", "db.example.com")
	t.Setenv("DATASOURCE_DB_PORT", "5432")
	t.Setenv("DATASOURCE_DB_DATABASE", "cdm")
	t.Setenv("TASK_API_BASE_URL", "https://relay.example.com")
	t.Setenv("TASK_API_USERNAME", "user")
	t.Setenv("TASK_API_PASSWORD", "pass")
	t.Setenv("COLLECTION_ID", "RQ-CC-1")
}

func TestLoadDefaults(t *testing.T) {
	setMinimalDaemonEnv(t)

	s, err := Load(true)
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, s.Database.DriverName)
	assert.Equal(t, "hutch", s.Database.Catalog)
	assert.Equal(t, 10, s.Obfuscation.LowNumberSuppressionThreshold)
	assert.Equal(t, 10, s.Obfuscation.RoundingTarget)
	assert.Equal(t, "INFO", s.Logging.Level)
	assert.True(t, s.TaskAPI.EnforceHTTPS)
}

func TestLoadEnforcesHTTPS(t *testing.T) {
	setMinimalDaemonEnv(t)
	t.Setenv("TASK_API_BASE_URL", "http://relay.example.com")

	_, err := Load(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TASK_API_ENFORCE_HTTPS")
}

func TestLoadAllowsHTTPWhenNotEnforced(t *testing.T) {
	setMinimalDaemonEnv(t)
	t.Setenv("TASK_API_BASE_URL", "http://relay.example.com")
	t.Setenv("TASK_API_ENFORCE_HTTPS", "false")

	_, err := Load(true)
	require.NoError(t, err)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	setMinimalDaemonEnv(t)
	t.Setenv("DATASOURCE_DB_DRIVERNAME", "oracle")

	_, err := Load(true)
	require.Error(t, err)
}

func TestLoadDuckDBSkipsHostRequirement(t *testing.T) {
	t.Setenv("DATASOURCE_DB_DRIVERNAME", "duckdb")
	t.Setenv("DATASOURCE_DB_SCHEMA", "omop")

	s, err := Load(false)
	require.NoError(t, err)
	assert.Equal(t, "/data/file.db", s.Database.DuckDBPath)
}

func TestLoadRequiresSchema(t *testing.T) {
	t.Setenv("DATASOURCE_DB_DRIVERNAME", "duckdb")

	_, err := Load(false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATASOURCE_DB_SCHEMA")
}

func TestLoadRejectsBadTaskAPIType(t *testing.T) {
	setMinimalDaemonEnv(t)
	t.Setenv("TASK_API_TYPE", "c")

	_, err := Load(true)
	require.Error(t, err)
}

func TestCLIModeSkipsTaskAPIValidation(t *testing.T) {
	t.Setenv("DATASOURCE_DB_SCHEMA", "omop")
	t.Setenv("DATASOURCE_DB_HOST", "db.example.com")
	t.Setenv("DATASOURCE_DB_PORT", "5432")
	t.Setenv("DATASOURCE_DB_DATABASE", "cdm")

	_, err := Load(false)
	require.NoError(t, err)
}
