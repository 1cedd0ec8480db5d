// Package sqlbuilder assembles OMOP SQL from cohort rules, groups and
// cohorts as raw parameterized database/sql query strings.
//
// A rule expands to a UNION of person_id selections over the four
// clinical event tables; a group combines rule sets with
// INTERSECT/UNION and NOT IN exclusion; a cohort combines group CTEs
// into a single count query.
package sqlbuilder

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Health-Informatics-UoN/bunny/internal/dialect"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// eventTable names one of the four OMOP clinical event tables a rule can
// be evaluated against.
type eventTable struct {
	table          string
	conceptCol     string
	dateCol        string
	valueCol       string // "" if the table has no numeric value column
	typeConceptCol string // "" if the table has no secondary-modifier column
}

var eventTables = []eventTable{
	{table: "condition_occurrence", conceptCol: "condition_concept_id", dateCol: "condition_start_date", typeConceptCol: "condition_type_concept_id"},
	{table: "drug_exposure", conceptCol: "drug_concept_id", dateCol: "drug_exposure_start_date"},
	{table: "measurement", conceptCol: "measurement_concept_id", dateCol: "measurement_date", valueCol: "value_as_number"},
	{table: "observation", conceptCol: "observation_concept_id", dateCol: "observation_date", valueCol: "value_as_number"},
}

// RuleQuery is a built, ready-to-run SQL query and its bound arguments.
type RuleQuery struct {
	SQL  string
	Args []any
}

// ageBound is a resolved one-sided age-at-event constraint. "1|:AGE:Y"
// means older than 1 at the event (cmp ">"); "|1:AGE:Y" means younger
// (cmp "<"). A window with both sides set is rejected.
type ageBound struct {
	cmp   string
	value int
}

func resolveAgeBound(rule protocol.Rule) (*ageBound, error) {
	left, right := rule.LeftValueTime, rule.RightValueTime
	if left == "" && right == "" {
		return nil, nil
	}
	if left != "" && right != "" {
		return nil, fmt.Errorf("rule %s: age constraint with both boundaries is not supported", rule.ID)
	}
	raw, cmp := left, ">"
	if left == "" {
		raw, cmp = right, "<"
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid age bound %q: %w", rule.ID, raw, err)
	}
	return &ageBound{cmp: cmp, value: v}, nil
}

// temporalBound is a resolved relative-date constraint. "|1:TIME:M"
// means within the last month (event_date >= now - 1 month); "1|:TIME:M"
// means more than a month ago (event_date <= now - 1 month).
type temporalBound struct {
	cmp  string
	date time.Time
}

func resolveTemporalBound(rule protocol.Rule, now time.Time) (*temporalBound, error) {
	left, right := rule.LeftValueTime, rule.RightValueTime
	if left == "" && right == "" {
		return nil, nil
	}
	if left != "" && right != "" {
		return nil, fmt.Errorf("rule %s: temporal constraint requires exactly one time value, got left=%q right=%q", rule.ID, left, right)
	}
	raw, cmp := left, "<="
	if left == "" {
		raw, cmp = right, ">="
	}
	months, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid time bound %q: %w", rule.ID, raw, err)
	}
	return &temporalBound{cmp: cmp, date: now.AddDate(0, -months, 0)}, nil
}

// BuildRuleQuery translates a single non-Person Rule into a UNION of
// per-table person_id queries.
func BuildRuleQuery(d dialect.Name, rule protocol.Rule, now time.Time) (RuleQuery, error) {
	var conceptID *int64
	if rule.Value != "" {
		id, err := rule.ConceptID()
		if err != nil {
			return RuleQuery{}, err
		}
		conceptID = &id
	}

	var age *ageBound
	var temporal *temporalBound
	var err error
	switch rule.TimeCategory {
	case protocol.TimeCategoryAge:
		if age, err = resolveAgeBound(rule); err != nil {
			return RuleQuery{}, err
		}
	case protocol.TimeCategoryTime:
		if temporal, err = resolveTemporalBound(rule, now); err != nil {
			return RuleQuery{}, err
		}
	}

	var numericMin, numericMax *float64
	if rule.Type == protocol.RuleTypeNumeric && rule.Min != nil && rule.Max != nil {
		if *rule.Min > *rule.Max {
			return RuleQuery{}, fmt.Errorf("rule %s: min %v must be <= max %v", rule.ID, *rule.Min, *rule.Max)
		}
		numericMin, numericMax = rule.Min, rule.Max
	}

	var parts []string
	var args []any

	for _, t := range eventTables {
		var where []string

		if conceptID != nil {
			where = append(where, fmt.Sprintf("e.%s = ?", t.conceptCol))
			args = append(args, *conceptID)
		}

		if age != nil {
			yearDiff, err := dialect.YearDifference(d, "e."+t.dateCol, "p.year_of_birth")
			if err != nil {
				return RuleQuery{}, fmt.Errorf("rule %s: %w", rule.ID, err)
			}
			where = append(where, fmt.Sprintf("(%s) %s ?", yearDiff, age.cmp))
			args = append(args, age.value)
		}

		if temporal != nil {
			where = append(where, fmt.Sprintf("e.%s %s ?", t.dateCol, temporal.cmp))
			args = append(args, temporal.date)
		}

		if numericMin != nil && t.valueCol != "" {
			where = append(where, fmt.Sprintf("e.%s BETWEEN ? AND ?", t.valueCol))
			args = append(args, *numericMin, *numericMax)
		}

		if len(rule.SecondaryModifier) > 0 && t.typeConceptCol != "" {
			placeholders := make([]string, len(rule.SecondaryModifier))
			for i, m := range rule.SecondaryModifier {
				placeholders[i] = "?"
				args = append(args, m)
			}
			where = append(where, fmt.Sprintf("e.%s IN (%s)", t.typeConceptCol, strings.Join(placeholders, ", ")))
		}

		join := ""
		if age != nil {
			join = " JOIN person p ON p.person_id = e.person_id"
		}
		clause := ""
		if len(where) > 0 {
			clause = " WHERE " + strings.Join(where, " AND ")
		}
		parts = append(parts, fmt.Sprintf("SELECT e.person_id FROM %s e%s%s", t.table, join, clause))
	}

	return RuleQuery{SQL: strings.Join(parts, "\nUNION\n"), Args: args}, nil
}
