package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalTextRule(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"id": "r1",
		"type": "TEXT",
		"varname": "OMOP",
		"varcat": "Condition",
		"value": "8507",
		"oper": "="
	}`), &r)
	require.NoError(t, err)
	assert.Equal(t, "8507", r.Value)
	assert.Nil(t, r.Min)
	assert.Nil(t, r.Max)

	id, err := r.ConceptID()
	require.NoError(t, err)
	assert.Equal(t, int64(8507), id)
}

func TestUnmarshalNumericRuleRewritesValue(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"id": "r1",
		"type": "NUM",
		"varname": "OMOP=3037532",
		"varcat": "Measurement",
		"value": "10..20",
		"oper": "="
	}`), &r)
	require.NoError(t, err)
	assert.Equal(t, "3037532", r.Value)
	assert.Equal(t, "10..20", r.RawRange)
	require.NotNil(t, r.Min)
	require.NotNil(t, r.Max)
	assert.Equal(t, 10.0, *r.Min)
	assert.Equal(t, 20.0, *r.Max)
}

func TestUnmarshalNumericRuleOpenBound(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"id": "r1",
		"type": "NUM",
		"varname": "OMOP=3037532",
		"varcat": "Measurement",
		"value": "10..null",
		"oper": "="
	}`), &r)
	require.NoError(t, err)
	require.NotNil(t, r.Min)
	assert.Nil(t, r.Max)
}

func TestUnmarshalNumericRulePipeRange(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"id": "r1",
		"type": "NUM",
		"varname": "OMOP=3037532",
		"varcat": "Measurement",
		"value": "0.0|200.0",
		"oper": "="
	}`), &r)
	require.NoError(t, err)
	require.NotNil(t, r.Min)
	require.NotNil(t, r.Max)
	assert.Equal(t, 0.0, *r.Min)
	assert.Equal(t, 200.0, *r.Max)
}

func TestUnmarshalNumericRuleUnparseableVarnameBecomesConceptless(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"id": "r1",
		"type": "NUM",
		"varname": "AGE",
		"varcat": "Person",
		"value": "18..65",
		"oper": "="
	}`), &r)
	require.NoError(t, err)
	assert.Empty(t, r.Value)
	require.NotNil(t, r.Min)
	require.NotNil(t, r.Max)
}

func TestUnmarshalRuleDecomposesTimeWindow(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"id": "r1",
		"type": "TEXT",
		"varname": "OMOP",
		"varcat": "Condition",
		"value": "8507",
		"oper": "=",
		"time": "|6:TIME:M"
	}`), &r)
	require.NoError(t, err)
	assert.Equal(t, TimeCategoryTime, r.TimeCategory)
	assert.Empty(t, r.LeftValueTime)
	assert.Equal(t, "6", r.RightValueTime)
}

func TestUnmarshalRuleMalformedTimeRejected(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{
		"id": "r1",
		"varcat": "Condition",
		"value": "8507",
		"time": "6M"
	}`), &r)
	require.Error(t, err)
}

func TestUnmarshalRuleDefaultsTypeAndOperator(t *testing.T) {
	var r Rule
	err := json.Unmarshal([]byte(`{"id": "r1", "varcat": "Person", "value": "8507"}`), &r)
	require.NoError(t, err)
	assert.Equal(t, RuleTypeText, r.Type)
	assert.Equal(t, OpEqual, r.Operator)
}

func TestNewRuleRejectsUnknownOperator(t *testing.T) {
	_, err := NewRule("r1", RuleTypeText, "OMOP", VarCategoryCondition, "1", Operator(">"), nil)
	require.Error(t, err)
}
