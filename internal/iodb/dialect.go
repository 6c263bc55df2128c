package iodb

import (
	"regexp"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// Rebind converts PostgreSQL placeholders ($1, $2) of a query into the
// numbered placeholders of the driver. SQLite understands ?1, ?2.
func Rebind(driver, query string) string {
	if driver != DriverSQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?$1")
}
