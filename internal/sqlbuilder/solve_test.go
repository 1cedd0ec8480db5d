package sqlbuilder

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

func genderOrQuery(t *testing.T) protocol.AvailabilityQuery {
	t.Helper()
	male, err := protocol.NewRule("r1", protocol.RuleTypeText, "OMOP", protocol.VarCategoryPerson, "8507", protocol.OpEqual, nil)
	require.NoError(t, err)
	female, err := protocol.NewRule("r2", protocol.RuleTypeText, "OMOP", protocol.VarCategoryPerson, "8532", protocol.OpEqual, nil)
	require.NoError(t, err)
	g, err := protocol.NewGroup("g1", []protocol.Rule{male, female}, protocol.OperatorOr)
	require.NoError(t, err)
	cohort, err := protocol.NewCohort([]protocol.Group{g}, protocol.OperatorOr)
	require.NoError(t, err)
	q, err := protocol.NewAvailabilityQuery(cohort, "job-1", "user1", "collection-1", "v2")
	require.NoError(t, err)
	return q
}

// expectGenderSolve arranges the two queries a gender cohort solve
// issues: the concept-domain lookup and the final count.
func expectGenderSolve(mock sqlmock.Sqlmock, count int) {
	mock.ExpectQuery("SELECT DISTINCT concept_id, domain_id FROM concept").
		WillReturnRows(sqlmock.NewRows([]string{"concept_id", "domain_id"}).
			AddRow(8507, "Gender").
			AddRow(8532, "Gender"))
	mock.ExpectQuery("SELECT count").
		WillReturnRows(sqlmock.NewRows([]string{"cnt"}).AddRow(count))
}

func TestSolveAvailabilityRoundsToNearestTen(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectGenderSolve(mock, 99)

	result := SolveAvailability(context.Background(), dialect.MSSQL, db, genderOrQuery(t), 10, 10)
	assert.Equal(t, protocol.StatusOK, result.Status)
	assert.Equal(t, 100, result.Count)
	assert.Equal(t, "collection-1", result.CollectionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSolveAvailabilityNoRoundingKeepsExactCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectGenderSolve(mock, 99)

	result := SolveAvailability(context.Background(), dialect.MSSQL, db, genderOrQuery(t), 10, 0)
	assert.Equal(t, 99, result.Count)
}

func TestSolveAvailabilityAggressiveRoundingZeroes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectGenderSolve(mock, 44)

	result := SolveAvailability(context.Background(), dialect.MSSQL, db, genderOrQuery(t), 10, 100)
	assert.Equal(t, protocol.StatusOK, result.Status)
	assert.Equal(t, 0, result.Count)
}

func TestSolveAvailabilitySuppressesLowCounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectGenderSolve(mock, 7)

	result := SolveAvailability(context.Background(), dialect.MSSQL, db, genderOrQuery(t), 10, 10)
	assert.Equal(t, 0, result.Count)
}

func TestSolveAvailabilityBuildFailureIsErrorEnvelope(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	// Age-constrained rule on a dialect with no year-difference support:
	// the build fails permanently, without burning SQL retries.
	rule, err := protocol.NewRule("r1", protocol.RuleTypeText, "OMOP", protocol.VarCategoryCondition, "1234", protocol.OpEqual, nil)
	require.NoError(t, err)
	rule, err = rule.WithTime("18|:AGE:Y")
	require.NoError(t, err)
	g, err := protocol.NewGroup("g1", []protocol.Rule{rule}, protocol.OperatorAnd)
	require.NoError(t, err)
	cohort, err := protocol.NewCohort([]protocol.Group{g}, protocol.OperatorAnd)
	require.NoError(t, err)
	q, err := protocol.NewAvailabilityQuery(cohort, "job-2", "user1", "collection-1", "v2")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT DISTINCT concept_id, domain_id FROM concept").
		WillReturnRows(sqlmock.NewRows([]string{"concept_id", "domain_id"}).AddRow(1234, "Condition"))

	result := SolveAvailability(context.Background(), dialect.DuckDB, db, q, 10, 10)
	assert.Equal(t, protocol.StatusError, result.Status)
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, "job-2", result.UUID)
	assert.NotEmpty(t, result.Message)
}

func TestSolveAvailabilityPoolReturnsConnections(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectGenderSolve(mock, 50)

	before := db.Stats().InUse
	_ = SolveAvailability(context.Background(), dialect.MSSQL, db, genderOrQuery(t), 10, 10)
	assert.Equal(t, before, db.Stats().InUse)
}
