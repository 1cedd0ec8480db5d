// Package concept resolves OMOP concept ids to their domain (Gender,
// Race, Ethnicity, or an event domain) by querying the concept table
// directly, rather than trusting the domain implied by a rule's varcat.
// Concepts can move across domains between vocabulary versions.
package concept

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
)

// DomainMap maps a concept id (as its string form) to its OMOP domain_id.
type DomainMap map[string]string

// Querier is the minimal database capability this package needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Resolver maps concept ids appearing in cohort rules to their domains.
type Resolver struct {
	db Querier
}

// NewResolver constructs a Resolver backed by db.
func NewResolver(db Querier) *Resolver {
	return &Resolver{db: db}
}

// ResolveCohort collects every non-empty rule.Value concept id across a
// cohort's groups and returns their domain mapping.
func (r *Resolver) ResolveCohort(ctx context.Context, cohort protocol.Cohort) (DomainMap, error) {
	ids := map[int64]struct{}{}
	for _, g := range cohort.Groups {
		for _, rule := range g.Rules {
			if rule.Value == "" {
				continue
			}
			id, err := strconv.ParseInt(rule.Value, 10, 64)
			if err != nil {
				continue
			}
			ids[id] = struct{}{}
		}
	}
	if len(ids) == 0 {
		return DomainMap{}, nil
	}

	placeholders := make([]any, 0, len(ids))
	query := "SELECT DISTINCT concept_id, domain_id FROM concept WHERE concept_id IN ("
	for i := range ids {
		if len(placeholders) > 0 {
			query += ", "
		}
		query += "?"
		placeholders = append(placeholders, i)
	}
	query += ")"

	rows, err := r.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("resolve concept domains: %w", err)
	}
	defer rows.Close()

	out := make(DomainMap, len(ids))
	for rows.Next() {
		var conceptID int64
		var domainID string
		if err := rows.Scan(&conceptID, &domainID); err != nil {
			return nil, fmt.Errorf("resolve concept domains: scan: %w", err)
		}
		out[strconv.FormatInt(conceptID, 10)] = domainID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("resolve concept domains: %w", err)
	}
	return out, nil
}
