package sqlbuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/Health-Informatics-UoN/bunny/internal/concept"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// CohortCountQuery is the final, pre-disclosure-control count query for
// a cohort. It returns the raw count; suppression and rounding are
// applied afterwards by the Go-side disclosure package (see
// SolveAvailability).
type CohortCountQuery struct {
	RuleQuery
	// HasGroups is false when the cohort has no groups, in which case
	// the query is a hard-coded zero count.
	HasGroups bool
}

// BuildCohortQuery wraps each group's query in a CTE and combines the
// CTEs via INTERSECT/UNION per cohort.GroupsOperator, producing a final
// `SELECT count(*)` query. The query returns the raw count; disclosure
// control is applied uniformly after fetch (see solve.go) rather than
// folded into the SQL.
func BuildCohortQuery(d dialect.Name, cohort protocol.Cohort, domains concept.DomainMap, now time.Time) (CohortCountQuery, error) {
	if len(cohort.Groups) == 0 {
		return CohortCountQuery{
			RuleQuery: RuleQuery{SQL: "SELECT 0 AS cnt"},
			HasGroups: false,
		}, nil
	}

	var ctes []string
	var ctesArgs []any
	var cteNames []string
	for i, g := range cohort.Groups {
		gq, err := BuildGroupQuery(d, g, domains, now)
		if err != nil {
			return CohortCountQuery{}, fmt.Errorf("cohort: %w", err)
		}
		name := fmt.Sprintf("final_group_%d", i)
		ctes = append(ctes, fmt.Sprintf("%s AS (%s)", name, gq.SQL))
		ctesArgs = append(ctesArgs, gq.Args...)
		cteNames = append(cteNames, name)
	}

	op := "UNION"
	if cohort.GroupsOperator == protocol.OperatorAnd {
		op = "INTERSECT"
	}

	var combined []string
	for _, n := range cteNames {
		combined = append(combined, fmt.Sprintf("SELECT person_id FROM %s", n))
	}

	sql := fmt.Sprintf(
		"WITH %s\nSELECT count(*) AS cnt FROM (%s) AS combined_groups",
		strings.Join(ctes, ",\n"),
		strings.Join(combined, "\n"+op+"\n"),
	)

	return CohortCountQuery{
		RuleQuery: RuleQuery{SQL: sql, Args: ctesArgs},
		HasGroups: true,
	}, nil
}
