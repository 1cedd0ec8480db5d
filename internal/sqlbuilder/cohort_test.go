package sqlbuilder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Health-Informatics-UoN/bunny/internal/concept"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

func TestBuildCohortQueryNoGroupsFallsBackToZero(t *testing.T) {
	cohort, err := protocol.NewCohort(nil, protocol.OperatorAnd)
	require.NoError(t, err)

	cq, err := BuildCohortQuery(dialect.Postgres, cohort, concept.DomainMap{}, time.Now())
	require.NoError(t, err)
	assert.False(t, cq.HasGroups)
	assert.Contains(t, cq.SQL, "SELECT 0")
}

func TestBuildCohortQueryCombinesGroupsByOperator(t *testing.T) {
	r, err := protocol.NewRule("r1", protocol.RuleTypeNumeric, "OMOP=111", protocol.VarCategoryCondition, "null..null", protocol.OpEqual, nil)
	require.NoError(t, err)
	g1, err := protocol.NewGroup("g1", []protocol.Rule{r}, protocol.OperatorAnd)
	require.NoError(t, err)
	g2, err := protocol.NewGroup("g2", []protocol.Rule{r}, protocol.OperatorAnd)
	require.NoError(t, err)
	cohort, err := protocol.NewCohort([]protocol.Group{g1, g2}, protocol.OperatorAnd)
	require.NoError(t, err)

	cq, err := BuildCohortQuery(dialect.Postgres, cohort, concept.DomainMap{}, time.Now())
	require.NoError(t, err)
	assert.True(t, cq.HasGroups)
	assert.Contains(t, cq.SQL, "WITH final_group_0")
	assert.Contains(t, cq.SQL, "INTERSECT")
}
