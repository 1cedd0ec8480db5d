// Package distribution implements the GENERIC code-distribution and
// DEMOGRAPHICS solvers, producing TSV artifacts in the coordinator's
// biobank file format.
package distribution

import (
	"strconv"
	"strings"
)

// OutputCols is the shared TSV column order for both distribution solvers.
var OutputCols = []string{
	"BIOBANK", "CODE", "COUNT", "DESCRIPTION", "MIN", "Q1", "MEDIAN",
	"MEAN", "Q3", "MAX", "ALTERNATIVES", "DATASET", "OMOP", "OMOP_DESCR",
	"CATEGORY",
}

// Row is a single line of distribution output, keyed by OutputCols.
type Row struct {
	Biobank      string
	Code         string
	Count        int
	Description  string
	Min          string
	Q1           string
	Median       string
	Mean         string
	Q3           string
	Max          string
	Alternatives string
	Dataset      string
	OMOP         string
	OMOPDescr    string
	Category     string
}

func (r Row) value(col string) string {
	switch col {
	case "BIOBANK":
		return r.Biobank
	case "CODE":
		return r.Code
	case "COUNT":
		return strconv.Itoa(r.Count)
	case "DESCRIPTION":
		return r.Description
	case "MIN":
		return r.Min
	case "Q1":
		return r.Q1
	case "MEDIAN":
		return r.Median
	case "MEAN":
		return r.Mean
	case "Q3":
		return r.Q3
	case "MAX":
		return r.Max
	case "ALTERNATIVES":
		return r.Alternatives
	case "DATASET":
		return r.Dataset
	case "OMOP":
		return r.OMOP
	case "OMOP_DESCR":
		return r.OMOPDescr
	case "CATEGORY":
		return r.Category
	default:
		return ""
	}
}

// ConvertRowsToTSV renders rows as a TSV string with a header line.
func ConvertRowsToTSV(cols []string, rows []Row) string {
	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, strings.Join(cols, "\t"))
	for _, r := range rows {
		values := make([]string, len(cols))
		for i, c := range cols {
			values[i] = r.value(c)
		}
		lines = append(lines, strings.Join(values, "\t"))
	}
	return strings.Join(lines, "\n")
}
