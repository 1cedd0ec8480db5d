package sqlbuilder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

func textRule(t *testing.T, value string) protocol.Rule {
	t.Helper()
	r, err := protocol.NewRule("r1", protocol.RuleTypeText, "OMOP", protocol.VarCategoryCondition, value, protocol.OpEqual, nil)
	require.NoError(t, err)
	return r
}

func timedRule(t *testing.T, value, timeEnc string) protocol.Rule {
	t.Helper()
	r := textRule(t, value)
	r, err := r.WithTime(timeEnc)
	require.NoError(t, err)
	return r
}

func TestBuildRuleQueryUnionsFourTables(t *testing.T) {
	rule := textRule(t, "1234")
	rq, err := BuildRuleQuery(dialect.Postgres, rule, time.Now())
	require.NoError(t, err)
	assert.Contains(t, rq.SQL, "condition_occurrence")
	assert.Contains(t, rq.SQL, "drug_exposure")
	assert.Contains(t, rq.SQL, "measurement")
	assert.Contains(t, rq.SQL, "observation")
	assert.Len(t, rq.Args, 4)
}

func TestBuildRuleQueryAgeBothBoundsRejected(t *testing.T) {
	rule := timedRule(t, "1234", "10|20:AGE:Y")
	_, err := BuildRuleQuery(dialect.Postgres, rule, time.Now())
	require.Error(t, err)
}

func TestBuildRuleQueryAgeLowerBoundJoinsPerson(t *testing.T) {
	rule := timedRule(t, "1234", "18|:AGE:Y")
	rq, err := BuildRuleQuery(dialect.Postgres, rule, time.Now())
	require.NoError(t, err)
	assert.Contains(t, rq.SQL, "JOIN person")
	assert.Contains(t, rq.SQL, "> ?")
}

func TestBuildRuleQueryAgeUpperBoundUsesLessThan(t *testing.T) {
	rule := timedRule(t, "1234", "|18:AGE:Y")
	rq, err := BuildRuleQuery(dialect.Postgres, rule, time.Now())
	require.NoError(t, err)
	assert.Contains(t, rq.SQL, "< ?")
}

func TestBuildRuleQueryTemporalWithinWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	rule := timedRule(t, "1234", "|6:TIME:M")
	rq, err := BuildRuleQuery(dialect.Postgres, rule, now)
	require.NoError(t, err)
	// empty left: events within the last 6 months, i.e. on or after now-6m
	assert.Contains(t, rq.SQL, "condition_start_date >= ?")
	assert.Contains(t, rq.Args, time.Date(2023, 12, 15, 0, 0, 0, 0, time.UTC))
}

func TestBuildRuleQueryTemporalOlderThanWindow(t *testing.T) {
	now := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	rule := timedRule(t, "1234", "6|:TIME:M")
	rq, err := BuildRuleQuery(dialect.Postgres, rule, now)
	require.NoError(t, err)
	assert.Contains(t, rq.SQL, "condition_start_date <= ?")
}

func TestBuildRuleQueryNumericRangeMeasurementAndObservationOnly(t *testing.T) {
	rule, err := protocol.NewRule("r1", protocol.RuleTypeNumeric, "OMOP=1234", protocol.VarCategoryMeasurement, "10..20", protocol.OpEqual, nil)
	require.NoError(t, err)
	rq, err := BuildRuleQuery(dialect.Postgres, rule, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(rq.SQL, "value_as_number BETWEEN"))
}

func TestBuildRuleQueryNumericRangeMinGreaterThanMaxRejected(t *testing.T) {
	rule, err := protocol.NewRule("r1", protocol.RuleTypeNumeric, "OMOP=1234", protocol.VarCategoryMeasurement, "20..10", protocol.OpEqual, nil)
	require.NoError(t, err)
	_, err = BuildRuleQuery(dialect.Postgres, rule, time.Now())
	require.Error(t, err)
}

func TestBuildRuleQuerySecondaryModifierConditionOnly(t *testing.T) {
	rule, err := protocol.NewRule("r1", protocol.RuleTypeText, "OMOP", protocol.VarCategoryCondition, "1234", protocol.OpEqual, []int64{32020, 32021})
	require.NoError(t, err)
	rq, err := BuildRuleQuery(dialect.Postgres, rule, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(rq.SQL, "condition_type_concept_id IN"))
}

func TestBuildRuleQueryDuckDBAgeUnsupported(t *testing.T) {
	rule := timedRule(t, "1234", "18|:AGE:Y")
	_, err := BuildRuleQuery(dialect.DuckDB, rule, time.Now())
	require.Error(t, err)
}
