// Package dialect dispatches SQL fragments that differ across the
// supported database engines.
package dialect

import "fmt"

// Name identifies a supported SQL dialect.
type Name string

const (
	Postgres Name = "postgresql"
	MSSQL    Name = "mssql"
	DuckDB   Name = "duckdb"
)

// ErrUnsupportedYearDifference is returned by YearDifference for
// dialects with no year-difference expression (duckdb). Age-constrained
// rules fail fast on such engines rather than producing wrong SQL.
type ErrUnsupportedYearDifference struct {
	Dialect Name
}

func (e ErrUnsupportedYearDifference) Error() string {
	return fmt.Sprintf("dialect %q: year-difference expression is not implemented", e.Dialect)
}

// YearDifference returns a SQL expression computing the year of
// dateExpr minus yearOfBirth, the age-in-years approximation used for
// age-at-event and current-age constraints.
func YearDifference(dialect Name, dateExpr, yearOfBirth string) (string, error) {
	switch dialect {
	case Postgres:
		return fmt.Sprintf("date_part('year', %s) - %s", dateExpr, yearOfBirth), nil
	case MSSQL:
		return fmt.Sprintf("DATEPART(year, %s) - %s", dateExpr, yearOfBirth), nil
	default:
		return "", ErrUnsupportedYearDifference{Dialect: dialect}
	}
}

// Placeholder returns the parameter placeholder syntax for the dialect.
// postgresql uses numbered placeholders ($1, $2, ...); mssql and duckdb
// use the ANSI "?" placeholder.
func Placeholder(dialect Name, position int) string {
	if dialect == Postgres {
		return fmt.Sprintf("$%d", position)
	}
	return "?"
}
