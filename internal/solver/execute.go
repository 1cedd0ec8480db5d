// Package solver is the single entry point for turning a raw task
// payload into a solved Result. It dispatches on the presence of the
// "analysis" key: distribution queries carry one, availability queries
// do not.
package solver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Health-Informatics-UoN/bunny/internal/cache"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/distribution"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
	"github.com/Health-Informatics-UoN/bunny/internal/sqlbuilder"
)

// ErrInvalidQuery is returned when a payload matches neither the
// availability nor the distribution schema.
var ErrInvalidQuery = errors.New("invalid query type")

// Database is the full database capability the solvers need: row
// queries for concept resolution and distributions, single-row queries
// for cohort counts.
type Database interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor solves raw query payloads against one database.
type Executor struct {
	dialect dialect.Name
	db      Database
	cache   *cache.Service
	logger  *slog.Logger

	// configured defaults, used when a modifier is absent from the list
	suppressionThreshold int
	roundingTarget       int
}

// NewExecutor builds an Executor. cacheSvc may be a disabled cache
// service but must not be nil.
func NewExecutor(d dialect.Name, db Database, cacheSvc *cache.Service, logger *slog.Logger, suppressionThreshold, roundingTarget int) *Executor {
	return &Executor{
		dialect:              d,
		db:                   db,
		cache:                cacheSvc,
		logger:               logger,
		suppressionThreshold: suppressionThreshold,
		roundingTarget:       roundingTarget,
	}
}

// Execute solves the raw JSON payload and returns a Result. Schema
// errors are returned to the caller; solve errors are folded into an
// error-status Result by the underlying solvers.
func (e *Executor) Execute(ctx context.Context, raw []byte, mods protocol.Modifiers) (protocol.Result, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return protocol.Result{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	threshold := mods.SuppressionThreshold(e.suppressionThreshold)
	rounding := mods.RoundingTarget(e.roundingTarget)

	if _, ok := probe["analysis"]; ok {
		e.logger.Debug("processing distribution query")
		return e.executeDistribution(ctx, raw, threshold, rounding)
	}

	e.logger.Debug("processing availability query")
	return e.executeAvailability(ctx, raw, threshold, rounding)
}

func (e *Executor) executeAvailability(ctx context.Context, raw []byte, threshold, rounding int) (protocol.Result, error) {
	var q protocol.AvailabilityQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		return protocol.Result{}, fmt.Errorf("%w: availability: %v", ErrInvalidQuery, err)
	}
	if _, err := protocol.NewAvailabilityQuery(q.Cohort, q.UUID, q.Owner, q.Collection, q.ProtocolVersion); err != nil {
		return protocol.Result{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if err := q.Cohort.Validate(); err != nil {
		return protocol.Result{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return sqlbuilder.SolveAvailability(ctx, e.dialect, e.db, q, threshold, rounding), nil
}

// executeDistribution solves a distribution query through the cache:
// identical (query, modifiers) pairs within the TTL reuse the cached
// Result rather than re-running the solver.
func (e *Executor) executeDistribution(ctx context.Context, raw []byte, threshold, rounding int) (protocol.Result, error) {
	var q protocol.DistributionQuery
	if err := json.Unmarshal(raw, &q); err != nil {
		return protocol.Result{}, fmt.Errorf("%w: distribution: %v", ErrInvalidQuery, err)
	}
	if _, err := protocol.NewDistributionQuery(q.Owner, q.Code, q.Analysis, q.UUID, q.Collection); err != nil {
		return protocol.Result{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	// ICD-MAIN is rejected before the solver runs so no result is ever
	// shaped for it.
	if q.Code == protocol.DistributionICDMain {
		return protocol.Result{}, fmt.Errorf("%w: queries with code %q are not yet supported", distribution.ErrNotImplemented, q.Code)
	}

	key, err := cache.Key(map[string]string{
		"code":       string(q.Code),
		"analysis":   q.Analysis,
		"collection": q.Collection,
	}, threshold, rounding)
	if err == nil {
		if cached, ok := e.cache.Get(key); ok {
			var result protocol.Result
			if jerr := json.Unmarshal([]byte(cached), &result); jerr == nil {
				e.logger.Debug("distribution cache hit", "key", key)
				// the cached result was produced for a possibly different
				// task; re-stamp the identifiers of the current one
				result.UUID = q.UUID
				result.CollectionID = q.Collection
				return result, nil
			}
			e.logger.Warn("discarding unparseable cache entry", "key", key)
		}
	}

	result := distribution.Solve(ctx, e.db, q, threshold, rounding)

	if err == nil && result.Status == protocol.StatusOK {
		if b, jerr := json.Marshal(result); jerr == nil {
			if serr := e.cache.Set(key, string(b)); serr != nil {
				e.logger.Warn("cache write failed", "key", key, "error", serr)
			}
		}
	}
	return result, nil
}
