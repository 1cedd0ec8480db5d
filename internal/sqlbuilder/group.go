package sqlbuilder

import (
	"fmt"
	"strings"
	"time"

	"github.com/Health-Informatics-UoN/bunny/internal/concept"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// BuildGroupQuery assembles a single group's person_id query: inclusion
// rules combine via INTERSECT (AND) or UNION (OR) per group.RulesOperator;
// exclusion rules (operator "!=") are unioned together and subtracted via
// a NOT IN subquery, independent of the group's own operator.
//
// All Person-category rules in the group are AND-combined into a single
// person_id subquery that itself participates in the inclusion
// combination, since each constrains a different person column.
func BuildGroupQuery(d dialect.Name, g protocol.Group, domains concept.DomainMap, now time.Time) (RuleQuery, error) {
	var personConds []string
	var personArgs []any
	var inclusion []RuleQuery
	var exclusion []RuleQuery

	for _, rule := range g.Rules {
		if rule.VarCat == protocol.VarCategoryPerson {
			c, err := BuildPersonConstraint(d, rule, domains)
			if err != nil {
				return RuleQuery{}, fmt.Errorf("group %s: %w", g.ID, err)
			}
			if c.SQL == "" {
				continue
			}
			personConds = append(personConds, c.SQL)
			personArgs = append(personArgs, c.Args...)
			continue
		}

		rq, err := BuildRuleQuery(d, rule, now)
		if err != nil {
			return RuleQuery{}, fmt.Errorf("group %s: %w", g.ID, err)
		}
		if rule.Operator == protocol.OpEqual {
			inclusion = append(inclusion, rq)
		} else {
			exclusion = append(exclusion, rq)
		}
	}

	if len(personConds) > 0 {
		inclusion = append([]RuleQuery{{
			SQL:  fmt.Sprintf("SELECT person_id FROM person WHERE %s", strings.Join(personConds, " AND ")),
			Args: personArgs,
		}}, inclusion...)
	}

	var result RuleQuery
	switch {
	case len(inclusion) == 0:
		result = RuleQuery{SQL: "SELECT person_id FROM person"}
	case g.RulesOperator == protocol.OperatorAnd:
		result = combine(inclusion, "INTERSECT")
	default:
		result = combine(inclusion, "UNION")
	}

	if len(exclusion) > 0 {
		excludedUnion := combine(exclusion, "UNION")
		notIn := RuleQuery{
			SQL:  fmt.Sprintf("SELECT person_id FROM person WHERE person_id NOT IN (%s)", excludedUnion.SQL),
			Args: excludedUnion.Args,
		}
		result = combine([]RuleQuery{result, notIn}, "INTERSECT")
	}

	return result, nil
}

// combine joins queries' SQL text with the given set operator (UNION or
// INTERSECT) and concatenates their args in order.
func combine(queries []RuleQuery, op string) RuleQuery {
	if len(queries) == 1 {
		return queries[0]
	}
	var sqlParts []string
	var args []any
	for _, q := range queries {
		sqlParts = append(sqlParts, "("+q.SQL+")")
		args = append(args, q.Args...)
	}
	return RuleQuery{SQL: strings.Join(sqlParts, "\n"+op+"\n"), Args: args}
}
