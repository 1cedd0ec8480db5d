package distribution

import (
	"context"
	"fmt"

	"github.com/Health-Informatics-UoN/bunny/internal/disclosure"
)

// genderConceptIDs are the MALE/FEMALE OMOP concept ids.
var genderConceptIDs = []int64{8507, 8532}

// SolveDemographicsDistribution produces the SEX and GENOMICS rows for a
// DEMOGRAPHICS distribution query.
func SolveDemographicsDistribution(ctx context.Context, db Querier, collection string, suppressionThreshold, roundingTarget int) (string, int, error) {
	countsByGender, err := genderCounts(ctx, db, suppressionThreshold, roundingTarget)
	if err != nil {
		return "", 0, fmt.Errorf("demographics distribution: %w", err)
	}

	conceptNames, err := genderConceptNames(ctx, db)
	if err != nil {
		return "", 0, fmt.Errorf("demographics distribution: %w", err)
	}

	total := 0
	for _, c := range countsByGender {
		total += c
	}
	total = disclosure.ApplyFilters(total, disclosure.Suppress(suppressionThreshold))

	alternatives := "^"
	for _, id := range genderConceptIDs {
		count, ok := countsByGender[id]
		if !ok {
			continue
		}
		count = disclosure.ApplyFilters(count, disclosure.Suppress(suppressionThreshold))
		name := conceptNames[id]
		if name == "" {
			name = "Unknown"
		}
		alternatives += fmt.Sprintf("%s|%d^", name, count)
	}

	rows := []Row{
		{Code: "SEX", Description: "Sex", Count: total, Alternatives: alternatives, Biobank: collection, Dataset: "person", Category: "DEMOGRAPHICS"},
		{Code: "GENOMICS", Description: "Genomics", Count: total, Alternatives: fmt.Sprintf("^No|%d^", total), Biobank: collection, Dataset: "person", Category: "DEMOGRAPHICS"},
	}

	return ConvertRowsToTSV(OutputCols, rows), len(rows), nil
}

func genderCounts(ctx context.Context, db Querier, suppressionThreshold, roundingTarget int) (map[int64]int, error) {
	query := `
		SELECT COUNT(DISTINCT person_id) AS cnt, gender_concept_id
		FROM person
		GROUP BY gender_concept_id
		HAVING COUNT(DISTINCT person_id) > ?
	`
	rows, err := db.QueryContext(ctx, query, suppressionThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]int{}
	for rows.Next() {
		var count int
		var genderConceptID int64
		if err := rows.Scan(&count, &genderConceptID); err != nil {
			return nil, err
		}
		out[genderConceptID] = disclosure.Rounding(count, roundingTarget)
	}
	return out, rows.Err()
}

func genderConceptNames(ctx context.Context, db Querier) (map[int64]string, error) {
	query := "SELECT concept_id, concept_name FROM concept WHERE concept_id IN (?, ?)"
	rows, err := db.QueryContext(ctx, query, genderConceptIDs[0], genderConceptIDs[1])
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]string{}
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}
