package postgresql

import (
	"strings"

	"github.com/lib/pq"
	"github.com/newsapps/foiatracker/data/sqldb"
	"github.com/pkg/errors"
)

// PostgreSQL implements the database interface for postgres
type PostgreSQL struct {
	*sqldb.SQLDatabase
}

// Dialect is the postgres flavour of the shared schema
var Dialect = sqldb.Dialect{
	Types: strings.NewReplacer(
		"{{id}}", "bigserial primary key",
		"{{time}}", "timestamptz",
		"{{decimal}}", "numeric(10, 2)",
	),
	IsUniqueViolation: isUniqueViolation,
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// GetPostgreSQLDB returns a new postgres db or panics
func GetPostgreSQLDB(dbURL string) *PostgreSQL {
	return &PostgreSQL{sqldb.New("postgres", dbURL, Dialect)}
}
