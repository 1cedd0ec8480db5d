package distribution

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertRowsToTSVHeaderAndRows(t *testing.T) {
	rows := []Row{
		{Biobank: "UKB", Code: "OMOP:123", Count: 42, OMOP: "123", OMOPDescr: "Asthma", Category: "Condition"},
	}
	tsv := ConvertRowsToTSV(OutputCols, rows)
	lines := strings.Split(tsv, "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, strings.Join(OutputCols, "\t"), lines[0])
	assert.Contains(t, lines[1], "UKB")
	assert.Contains(t, lines[1], "OMOP:123")
	assert.Contains(t, lines[1], "42")
}

func TestConvertRowsToTSVEmptyRows(t *testing.T) {
	tsv := ConvertRowsToTSV(OutputCols, nil)
	assert.Equal(t, strings.Join(OutputCols, "\t"), tsv)
}

func TestRowValueUnknownColumnReturnsEmpty(t *testing.T) {
	r := Row{Biobank: "UKB"}
	assert.Equal(t, "", r.value("NOT_A_COLUMN"))
	assert.Equal(t, "UKB", r.value("BIOBANK"))
}
