package sqlbuilder

import (
	"fmt"

	"github.com/Health-Informatics-UoN/bunny/internal/concept"
	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// personDomainColumns maps a resolved concept domain to the person table
// column it constrains.
var personDomainColumns = map[string]string{
	"Gender":    "gender_concept_id",
	"Race":      "race_concept_id",
	"Ethnicity": "ethnicity_concept_id",
}

// PersonConstraint is a single boolean condition against the person
// table, to be AND-combined with the group's other person constraints.
type PersonConstraint struct {
	SQL  string
	Args []any
}

// BuildPersonConstraint translates a VarCategoryPerson rule into a
// condition fragment against the person table. AGE is special-cased
// ahead of concept-domain dispatch regardless of the rule's resolved
// domain.
func BuildPersonConstraint(d dialect.Name, rule protocol.Rule, domains concept.DomainMap) (PersonConstraint, error) {
	if rule.VarName == "AGE" {
		return buildAgeConstraint(d, rule)
	}

	domain, ok := domains[rule.Value]
	if !ok {
		// Unresolvable concept: contribute no constraint rather than
		// failing the whole group.
		return PersonConstraint{}, nil
	}
	col, ok := personDomainColumns[domain]
	if !ok {
		return PersonConstraint{}, nil
	}

	conceptID, err := rule.ConceptID()
	if err != nil {
		return PersonConstraint{}, err
	}

	cmp := "="
	if rule.Operator == protocol.OpNotEqual {
		cmp = "!="
	}
	return PersonConstraint{
		SQL:  fmt.Sprintf("%s %s ?", col, cmp),
		Args: []any{conceptID},
	}, nil
}

// buildAgeConstraint implements the AGE special case, which requires
// both min and max (unlike the event-table age constraint, which is
// one-sided only).
func buildAgeConstraint(d dialect.Name, rule protocol.Rule) (PersonConstraint, error) {
	if rule.Min == nil || rule.Max == nil {
		// An AGE rule missing a bound contributes no constraint.
		return PersonConstraint{}, nil
	}
	yearDiff, err := dialect.YearDifference(d, "CURRENT_TIMESTAMP", "year_of_birth")
	if err != nil {
		return PersonConstraint{}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}
	return PersonConstraint{
		SQL:  fmt.Sprintf("(%s) >= ? AND (%s) <= ?", yearDiff, yearDiff),
		Args: []any{*rule.Min, *rule.Max},
	}, nil
}
