package bunnydb

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Health-Informatics-UoN/bunny/internal/bunnyconfig"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
)

func TestConnStringPostgres(t *testing.T) {
	driver, dsn, d, err := connString(bunnyconfig.Database{
		DriverName: bunnyconfig.DriverPostgres,
		Username:   "u",
		Password:   "p",
		Host:       "db.example.com",
		Port:       5432,
		Database:   "cdm",
	})
	require.NoError(t, err)
	assert.Equal(t, "pgx", driver)
	assert.Equal(t, "postgres://u:p@db.example.com:5432/cdm", dsn)
	assert.Equal(t, dialect.Postgres, d)
}

func TestConnStringMSSQL(t *testing.T) {
	driver, dsn, d, err := connString(bunnyconfig.Database{
		DriverName: bunnyconfig.DriverMSSQL,
		Username:   "u",
		Password:   "p",
		Host:       "db.example.com",
		Port:       1433,
		Database:   "cdm",
	})
	require.NoError(t, err)
	assert.Equal(t, "sqlserver", driver)
	assert.Contains(t, dsn, "sqlserver://u:p@db.example.com:1433")
	assert.Contains(t, dsn, "database=cdm")
	assert.Equal(t, dialect.MSSQL, d)
}

func TestConnStringDuckDB(t *testing.T) {
	driver, dsn, d, err := connString(bunnyconfig.Database{
		DriverName: bunnyconfig.DriverDuckDB,
		DuckDBPath: "/data/file.db",
	})
	require.NoError(t, err)
	assert.Equal(t, "duckdb", driver)
	assert.Equal(t, "/data/file.db", dsn)
	assert.Equal(t, dialect.DuckDB, d)
}

func TestConnStringUnknownDriver(t *testing.T) {
	_, _, _, err := connString(bunnyconfig.Database{DriverName: "oracle"})
	require.Error(t, err)
}

func TestRebindPostgresNumbersPlaceholders(t *testing.T) {
	got := rebind(dialect.Postgres, "SELECT 1 WHERE a = ? AND b IN (?, ?)")
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b IN ($2, $3)", got)
}

func TestRebindOtherDialectsUnchanged(t *testing.T) {
	q := "SELECT 1 WHERE a = ?"
	assert.Equal(t, q, rebind(dialect.MSSQL, q))
	assert.Equal(t, q, rebind(dialect.DuckDB, q))
}

func TestCheckTablesExistPassesWithFullSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"table_name"})
	for _, tbl := range requiredTables {
		rows.AddRow(tbl)
	}
	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").WillReturnRows(rows)

	handle := OpenExisting(db, dialect.MSSQL, "omop", slog.New(slog.DiscardHandler))
	assert.NoError(t, handle.checkTablesExist(context.Background()))
}

func TestCheckTablesExistFailsOnMissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("concept").
			AddRow("person"))

	handle := OpenExisting(db, dialect.MSSQL, "omop", slog.New(slog.DiscardHandler))
	err = handle.checkTablesExist(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "drug_exposure")
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(errors.New("driver: bad connection")))
	assert.True(t, isRetryableError(errors.New("read tcp: connection reset by peer")))
	assert.False(t, isRetryableError(errors.New("syntax error at or near SELECT")))
	assert.False(t, isRetryableError(nil))
}
