package protocol

import "fmt"

// BoolOperator combines rules within a group, or groups within a cohort.
type BoolOperator string

const (
	OperatorAnd BoolOperator = "AND"
	OperatorOr  BoolOperator = "OR"
)

// Group is a set of rules combined by a single boolean operator.
// Rules with Operator == OpNotEqual are treated as exclusion rules and
// are subtracted from the inclusion set rather than combined into it;
// see internal/sqlbuilder/group.go.
type Group struct {
	ID            string       `json:"id"`
	Rules         []Rule       `json:"rules"`
	RulesOperator BoolOperator `json:"rules_operator"`
}

// NewGroup validates and constructs a Group.
func NewGroup(id string, rules []Rule, op BoolOperator) (Group, error) {
	if len(rules) == 0 {
		return Group{}, fmt.Errorf("group %s: must have at least one rule", id)
	}
	if op != OperatorAnd && op != OperatorOr {
		return Group{}, fmt.Errorf("group %s: unsupported rules_operator %q", id, op)
	}
	return Group{ID: id, Rules: rules, RulesOperator: op}, nil
}

// InclusionRules returns the group's non-exclusion rules.
func (g Group) InclusionRules() []Rule {
	var out []Rule
	for _, r := range g.Rules {
		if r.Operator != OpNotEqual {
			out = append(out, r)
		}
	}
	return out
}

// ExclusionRules returns the group's exclusion (!=) rules.
func (g Group) ExclusionRules() []Rule {
	var out []Rule
	for _, r := range g.Rules {
		if r.Operator == OpNotEqual {
			out = append(out, r)
		}
	}
	return out
}
