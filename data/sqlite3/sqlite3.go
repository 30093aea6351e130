package sqlite3

import (
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/newsapps/foiatracker/data/sqldb"
	"github.com/pkg/errors"
)

// SQLite3 implements the database interface for sqlite3
type SQLite3 struct {
	*sqldb.SQLDatabase
}

// Dialect is the sqlite flavour of the shared schema. Decimals are kept as text so no precision is lost.
var Dialect = sqldb.Dialect{
	Types: strings.NewReplacer(
		"{{id}}", "integer primary key autoincrement",
		"{{time}}", "timestamp",
		"{{decimal}}", "text",
	),
	IsUniqueViolation: isUniqueViolation,
	MaxOpenConns:      1,
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// GetSQLite3DB returns a new sqlite db or panics
func GetSQLite3DB(dbURL string) *SQLite3 {
	return &SQLite3{sqldb.New("sqlite3", dbURL, Dialect)}
}
