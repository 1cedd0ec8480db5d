// Package bunnydb constructs the database/sql handle bunny solves
// queries against, wraps it with transient-error retry, instruments it
// with OpenTelemetry, and gates startup on the required OMOP schema
// being present.
package bunnydb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Health-Informatics-UoN/bunny/internal/bunnyconfig"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// requiredTables are the OMOP tables or views bunny reads; construction
// fails when any is missing.
var requiredTables = []string{
	"concept",
	"person",
	"measurement",
	"condition_occurrence",
	"observation",
	"drug_exposure",
}

// requiredIndexes are the indexes queries lean on most; absence is a
// warning, not a failure.
var requiredIndexes = map[string][]string{
	"person":               {"idx_person_id"},
	"concept":              {"idx_concept_concept_id"},
	"condition_occurrence": {"idx_condition_concept_id_1"},
	"observation":          {"idx_observation_concept_id_1"},
	"measurement":          {"idx_measurement_concept_id_1"},
}

const retryMaxElapsed = 30 * time.Second

var dbMetrics struct {
	queryCount    metric.Int64Counter
	retryCount    metric.Int64Counter
	queryDuration metric.Float64Histogram
}

func init() {
	m := otel.Meter("github.com/Health-Informatics-UoN/bunny/bunnydb")
	dbMetrics.queryCount, _ = m.Int64Counter("bunny.db.query_count",
		metric.WithDescription("SQL queries executed against the datasource"),
		metric.WithUnit("{query}"),
	)
	dbMetrics.retryCount, _ = m.Int64Counter("bunny.db.retry_count",
		metric.WithDescription("SQL operations retried due to transient errors"),
		metric.WithUnit("{retry}"),
	)
	dbMetrics.queryDuration, _ = m.Float64Histogram("bunny.db.query_duration_ms",
		metric.WithDescription("SQL query wall time"),
		metric.WithUnit("ms"),
	)
}

// DB is bunny's handle on the clinical datasource. It satisfies the
// solver's Database interface, adding retry and telemetry around the
// underlying pool.
type DB struct {
	db      *sql.DB
	dialect dialect.Name
	schema  string
	logger  *slog.Logger
}

// Open connects to the configured datasource, verifies connectivity,
// and gates on the required OMOP tables. The returned DB's dialect
// drives year-difference SQL generation; unsupported dialect operations
// fail at query-build time rather than here.
func Open(ctx context.Context, cfg bunnyconfig.Database, logger *slog.Logger) (*DB, error) {
	driverName, dsn, d, err := connString(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open datasource: %w", err)
	}

	handle := &DB{db: db, dialect: d, schema: cfg.Schema, logger: logger}
	if err := handle.withRetry(ctx, func() error { return db.PingContext(ctx) }); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to datasource: %w", err)
	}

	if err := handle.checkTablesExist(ctx); err != nil {
		db.Close()
		return nil, err
	}
	handle.checkIndexesExist(ctx)

	return handle, nil
}

// OpenExisting wraps an already-open pool, used by tests running
// against an embedded engine.
func OpenExisting(db *sql.DB, d dialect.Name, schema string, logger *slog.Logger) *DB {
	return &DB{db: db, dialect: d, schema: schema, logger: logger}
}

// connString maps bunny's driver names onto database/sql driver name,
// DSN, and SQL dialect. Driver registration itself happens in the
// binary (blank imports in cmd/bunny), so this package stays
// engine-agnostic.
func connString(cfg bunnyconfig.Database) (driverName, dsn string, d dialect.Name, err error) {
	switch cfg.DriverName {
	case bunnyconfig.DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.Username, cfg.Password),
			Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Path:   "/" + cfg.Database,
		}
		return "pgx", u.String(), dialect.Postgres, nil
	case bunnyconfig.DriverMSSQL:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(cfg.Username, cfg.Password),
			Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			RawQuery: url.Values{"database": {cfg.Database}}.Encode(),
		}
		return "sqlserver", u.String(), dialect.MSSQL, nil
	case bunnyconfig.DriverDuckDB:
		return "duckdb", cfg.DuckDBPath, dialect.DuckDB, nil
	default:
		return "", "", "", fmt.Errorf("unsupported datasource driver %q", cfg.DriverName)
	}
}

// Dialect returns the SQL dialect of the connected engine.
func (d *DB) Dialect() dialect.Name { return d.dialect }

// Close releases the pool.
func (d *DB) Close() error { return d.db.Close() }

// Stats exposes pool statistics, used by tests asserting the
// checked-out connection count is unchanged across a solve.
func (d *DB) Stats() sql.DBStats { return d.db.Stats() }

// QueryContext runs a row query with transient-error retry and
// telemetry.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	query = rebind(d.dialect, query)
	var rows *sql.Rows
	err := d.withRetry(ctx, func() error {
		start := time.Now()
		var qerr error
		rows, qerr = d.db.QueryContext(ctx, query, args...)
		d.record(ctx, start)
		return qerr
	})
	return rows, err
}

// QueryRowContext runs a single-row query. database/sql defers errors
// to Scan, so retry for this path lives in the solver's own retry
// envelope rather than here.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	query = rebind(d.dialect, query)
	start := time.Now()
	row := d.db.QueryRowContext(ctx, query, args...)
	d.record(ctx, start)
	return row
}

// rebind rewrites ANSI "?" placeholders into the dialect's native form.
// The query builders emit "?" uniformly; postgres requires numbered
// placeholders. Generated SQL never embeds "?" in a literal, so a
// straight scan is safe.
func rebind(d dialect.Name, query string) string {
	if d != dialect.Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteString(dialect.Placeholder(d, n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d *DB) record(ctx context.Context, start time.Time) {
	dbMetrics.queryCount.Add(ctx, 1)
	dbMetrics.queryDuration.Record(ctx, float64(time.Since(start).Milliseconds()))
}

// withRetry executes op with exponential backoff for transient
// connection errors; anything non-transient is permanent.
func (d *DB) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryableError(err) {
			dbMetrics.retryCount.Add(ctx, 1)
			d.logger.Warn("retrying transient database error", "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

// isRetryableError reports whether err is a transient connection error
// worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// checkTablesExist verifies every required OMOP table or view is
// visible in the configured schema, failing construction when any is
// missing.
func (d *DB) checkTablesExist(ctx context.Context) error {
	existing, err := d.listTables(ctx)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	var missing []string
	for _, want := range requiredTables {
		if _, ok := existing[want]; !ok {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tables or views in the database: %s", strings.Join(missing, ", "))
	}
	return nil
}

// listTables returns the set of table and view names in the configured
// schema, via information_schema (available on all supported engines).
func (d *DB) listTables(ctx context.Context) (map[string]struct{}, error) {
	rows, err := d.QueryContext(ctx,
		"SELECT table_name FROM information_schema.tables WHERE table_schema = ?", d.schema)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tables := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables[strings.ToLower(name)] = struct{}{}
	}
	return tables, rows.Err()
}

// checkIndexesExist warns about missing common indexes; queries still
// run without them, just slowly.
func (d *DB) checkIndexesExist(ctx context.Context) {
	rows, err := d.QueryContext(ctx,
		"SELECT table_name, index_name FROM information_schema.statistics WHERE table_schema = ?", d.schema)
	if err != nil {
		// information_schema.statistics is MySQL-family; other engines
		// expose indexes differently, so absence of the view is not a
		// problem worth surfacing beyond debug.
		d.logger.Debug("index inspection unavailable", "error", err)
		return
	}
	defer rows.Close()

	existing := make(map[string]map[string]struct{})
	for rows.Next() {
		var table, index string
		if err := rows.Scan(&table, &index); err != nil {
			return
		}
		table = strings.ToLower(table)
		if existing[table] == nil {
			existing[table] = make(map[string]struct{})
		}
		existing[table][strings.ToLower(index)] = struct{}{}
	}

	for table, want := range requiredIndexes {
		for _, idx := range want {
			if _, ok := existing[table][idx]; !ok {
				d.logger.Warn("missing recommended index", "table", table, "index", idx)
			}
		}
	}
}
