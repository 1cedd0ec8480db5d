package sqlbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Health-Informatics-UoN/bunny/internal/concept"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/disclosure"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// Executor is the minimal database capability the availability solver needs.
type Executor interface {
	concept.Querier
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQL execution is retried up to three times with a fixed one-minute
// wait; query construction errors are permanent and never retried.
const (
	solveRetryAttempts = 3
	solveRetryWait     = 60 * time.Second
)

// SolveAvailability resolves an AvailabilityQuery to a protocol.Result.
// On any error (including retry exhaustion) it returns a {status: error,
// count: 0} envelope rather than propagating the error.
func SolveAvailability(
	ctx context.Context,
	d dialect.Name,
	db Executor,
	query protocol.AvailabilityQuery,
	suppressionThreshold, roundingTarget int,
) protocol.Result {
	count, err := solveAvailabilityWithRetry(ctx, d, db, query)
	if err != nil {
		return protocol.NewErrorResult(query.UUID, query.Collection, query.ProtocolVersion, err.Error())
	}

	// Suppression tests the raw count; rounding transforms what survives.
	final := disclosure.ApplyFilters(count,
		disclosure.Suppress(suppressionThreshold),
		disclosure.Round(roundingTarget),
	)

	return protocol.Result{
		UUID:            query.UUID,
		Status:          protocol.StatusOK,
		CollectionID:    query.Collection,
		Count:           final,
		ProtocolVersion: query.ProtocolVersion,
	}
}

func solveAvailabilityWithRetry(ctx context.Context, d dialect.Name, db Executor, query protocol.AvailabilityQuery) (int, error) {
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(solveRetryWait), solveRetryAttempts-1)
	var count int
	err := backoff.Retry(func() error {
		c, err := solveAvailabilityOnce(ctx, d, db, query)
		if err != nil {
			return err
		}
		count = c
		return nil
	}, backoff.WithContext(bo, ctx))
	return count, err
}

func solveAvailabilityOnce(ctx context.Context, d dialect.Name, db Executor, query protocol.AvailabilityQuery) (int, error) {
	domains, err := concept.NewResolver(db).ResolveCohort(ctx, query.Cohort)
	if err != nil {
		return 0, fmt.Errorf("resolve concepts: %w", err)
	}

	cq, err := BuildCohortQuery(d, query.Cohort, domains, time.Now())
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("build cohort query: %w", err))
	}

	var count int
	row := db.QueryRowContext(ctx, cq.SQL, cq.Args...)
	if err := row.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("execute cohort query: %w", err)
	}
	return count, nil
}
