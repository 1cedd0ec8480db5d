package distribution

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Health-Informatics-UoN/bunny/internal/disclosure"
)

// domainTable names a table's person-id/concept-id columns for the
// GENERIC code distribution sweep across the eight OMOP domains.
type domainTable struct {
	domain     string
	table      string
	personCol  string
	conceptCol string
}

var codeDistributionDomains = []domainTable{
	{domain: "Condition", table: "condition_occurrence", personCol: "person_id", conceptCol: "condition_concept_id"},
	{domain: "Ethnicity", table: "person", personCol: "person_id", conceptCol: "ethnicity_concept_id"},
	{domain: "Drug", table: "drug_exposure", personCol: "person_id", conceptCol: "drug_concept_id"},
	{domain: "Gender", table: "person", personCol: "person_id", conceptCol: "gender_concept_id"},
	{domain: "Race", table: "person", personCol: "person_id", conceptCol: "race_concept_id"},
	{domain: "Measurement", table: "measurement", personCol: "person_id", conceptCol: "measurement_concept_id"},
	{domain: "Observation", table: "observation", personCol: "person_id", conceptCol: "observation_concept_id"},
	{domain: "Procedure", table: "procedure_occurrence", personCol: "person_id", conceptCol: "procedure_concept_id"},
}

// Querier is the minimal database capability the distribution solvers need.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SolveCodeDistribution computes per-concept counts across all 8 OMOP
// domains for a GENERIC distribution query, applying a SQL-level
// `count_agg > low_number` filter and a second defense-in-depth
// application of disclosure.ApplyFilters after fetch.
func SolveCodeDistribution(ctx context.Context, db Querier, collection string, suppressionThreshold, roundingTarget int) (string, int, error) {
	var rows []Row

	for _, d := range codeDistributionDomains {
		query := fmt.Sprintf(`
			SELECT rounded.count_agg, c.concept_id, c.concept_name
			FROM (
				SELECT %[1]s AS concept_id, COUNT(DISTINCT %[2]s) AS count_agg
				FROM %[3]s
				GROUP BY %[1]s
				HAVING COUNT(DISTINCT %[2]s) > ?
			) AS rounded
			JOIN concept c ON c.concept_id = rounded.concept_id
		`, d.conceptCol, d.personCol, d.table)

		drows, err := db.QueryContext(ctx, query, suppressionThreshold)
		if err != nil {
			return "", 0, fmt.Errorf("code distribution domain %s: %w", d.domain, err)
		}
		err = func() error {
			defer drows.Close()
			for drows.Next() {
				var countAgg int
				var conceptID int64
				var conceptName string
				if err := drows.Scan(&countAgg, &conceptID, &conceptName); err != nil {
					return fmt.Errorf("scan: %w", err)
				}
				// Suppression already ran in the HAVING clause; re-applying it
				// ahead of rounding keeps the in-process pipeline's order
				// identical to the availability path.
				count := disclosure.ApplyFilters(countAgg,
					disclosure.Suppress(suppressionThreshold),
					disclosure.Round(roundingTarget),
				)
				rows = append(rows, Row{
					Biobank:   collection,
					Code:      fmt.Sprintf("OMOP:%d", conceptID),
					Count:     count,
					OMOP:      fmt.Sprintf("%d", conceptID),
					OMOPDescr: conceptName,
					Category:  d.domain,
				})
			}
			return drows.Err()
		}()
		if err != nil {
			return "", 0, fmt.Errorf("code distribution domain %s: %w", d.domain, err)
		}
	}

	return ConvertRowsToTSV(OutputCols, rows), len(rows), nil
}
