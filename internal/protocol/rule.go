// Package protocol defines the wire DTOs exchanged with the coordinator:
// cohort rules and groups, availability and distribution queries, and
// the result/file envelopes returned after a solve.
package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// RuleType is the value domain of a Rule: numeric range/threshold or text equality.
type RuleType string

const (
	RuleTypeNumeric RuleType = "NUM"
	RuleTypeText    RuleType = "TEXT"
)

// VarCategory names the OMOP entity a rule constrains.
type VarCategory string

const (
	VarCategoryPerson      VarCategory = "Person"
	VarCategoryCondition   VarCategory = "Condition"
	VarCategoryObservation VarCategory = "Observation"
	VarCategoryDrug        VarCategory = "Drug"
	VarCategoryMeasurement VarCategory = "Measurement"
)

// Operator is the comparison applied between a rule's value and the column.
type Operator string

const (
	OpEqual    Operator = "="
	OpNotEqual Operator = "!="
)

// Time-window categories carried in a rule's encoded time field.
const (
	TimeCategoryAge  = "AGE"
	TimeCategoryTime = "TIME"
)

// Rule is a single cohort-discovery constraint.
//
// On the wire, VarName carries "OMOP=<concept id>" and Value carries
// either a concept id (TEXT rules) or a numeric range (NUM rules).
// Time, when present, is encoded "L|R:CATEGORY:UNIT" — e.g. "|1:TIME:M"
// ("within the last month") or "18|:AGE:Y" ("older than 18 at event").
// Exactly one of L and R is populated.
//
// Normalization on construction: for NUM rules, Value is rewritten to
// the concept id parsed out of VarName, RawRange keeps the incoming
// range text, and Min/Max are parsed from it. The time field is
// decomposed into TimeCategory and the left/right bound strings.
type Rule struct {
	ID                string      `json:"id"`
	Type              RuleType    `json:"type"`
	VarName           string      `json:"varname"`
	VarCat            VarCategory `json:"varcat"`
	Value             string      `json:"value"`
	RawRange          string      `json:"-"`
	Operator          Operator    `json:"oper"`
	Min               *float64    `json:"min,omitempty"`
	Max               *float64    `json:"max,omitempty"`
	Time              string      `json:"time,omitempty"`
	SecondaryModifier []int64     `json:"secondary_modifier,omitempty"`

	// Derived from Time; not serialized.
	TimeCategory   string `json:"-"`
	LeftValueTime  string `json:"-"`
	RightValueTime string `json:"-"`
}

// ruleWire mirrors Rule's wire fields without methods, so UnmarshalJSON
// can decode into it and then normalize.
type ruleWire struct {
	ID                string      `json:"id"`
	Type              RuleType    `json:"type"`
	VarName           string      `json:"varname"`
	VarCat            VarCategory `json:"varcat"`
	Value             string      `json:"value"`
	Operator          Operator    `json:"oper"`
	Time              string      `json:"time"`
	SecondaryModifier []int64     `json:"secondary_modifier"`
}

// UnmarshalJSON decodes a rule from its wire form and applies the same
// normalization NewRule performs, so rules arriving inside a cohort
// payload carry parsed ranges and time windows.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var w ruleWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type == "" {
		w.Type = RuleTypeText
	}
	if w.Operator == "" {
		w.Operator = OpEqual
	}
	rule, err := NewRule(w.ID, w.Type, w.VarName, w.VarCat, w.Value, w.Operator, w.SecondaryModifier)
	if err != nil {
		return err
	}
	if w.Time != "" {
		rule, err = rule.WithTime(w.Time)
		if err != nil {
			return err
		}
	}
	*r = rule
	return nil
}

// WithTime returns a copy of the rule with its encoded time window
// ("L|R:CATEGORY:UNIT") set and decomposed.
func (r Rule) WithTime(t string) (Rule, error) {
	parts := strings.Split(t, ":")
	if len(parts) != 3 {
		return Rule{}, fmt.Errorf("rule %s: malformed time %q", r.ID, t)
	}
	bounds := strings.Split(parts[0], "|")
	if len(bounds) != 2 {
		return Rule{}, fmt.Errorf("rule %s: malformed time bounds %q", r.ID, parts[0])
	}
	r.Time = t
	r.LeftValueTime = bounds[0]
	r.RightValueTime = bounds[1]
	r.TimeCategory = parts[1]
	return r, nil
}

// ConceptID parses Value (a concept id after normalization) as an integer.
func (r Rule) ConceptID() (int64, error) {
	n, err := strconv.ParseInt(r.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("rule %s: value %q is not a concept id: %w", r.ID, r.Value, err)
	}
	return n, nil
}

// numericRangePattern matches "<min>..<max>" where either side may be
// "null" or a signed decimal.
var numericRangePattern = regexp.MustCompile(`(-?\d*\.?\d+|null)\.\.(-?\d*\.?\d+|null)`)

// NewRule validates and constructs a Rule from its wire-level fields.
func NewRule(id string, typ RuleType, varName string, varCat VarCategory, value string, op Operator, secondaryModifier []int64) (Rule, error) {
	if varCat == "" {
		return Rule{}, fmt.Errorf("rule %s: varcat is required", id)
	}
	switch op {
	case OpEqual, OpNotEqual:
	default:
		return Rule{}, fmt.Errorf("rule %s: unsupported operator %q", id, op)
	}

	r := Rule{
		ID:                id,
		Type:              typ,
		VarName:           varName,
		VarCat:            varCat,
		Value:             value,
		Operator:          op,
		SecondaryModifier: secondaryModifier,
	}

	if typ == RuleTypeNumeric {
		r.RawRange = value
		r.Min, r.Max = parseNumericRange(value)
		_, id, ok := strings.Cut(varName, "=")
		if ok {
			r.Value = id
		} else {
			r.Value = ""
		}
	}

	return r, nil
}

// parseNumericRange extracts min/max bounds from a range string. Both
// encodings seen on the wire are accepted: "<min>..<max>" with "null"
// for an open bound, and "<min>|<max>" with an empty side for an open
// bound.
func parseNumericRange(value string) (min, max *float64) {
	if m := numericRangePattern.FindStringSubmatch(value); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			min = &v
		}
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			max = &v
		}
		return min, max
	}
	if lo, hi, ok := strings.Cut(value, "|"); ok {
		if v, err := strconv.ParseFloat(lo, 64); err == nil {
			min = &v
		}
		if v, err := strconv.ParseFloat(hi, 64); err == nil {
			max = &v
		}
	}
	return min, max
}
