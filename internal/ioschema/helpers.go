package ioschema

import (
	"fmt"
	"strings"

	"github.com/gnames/gncity/pkg/schema"
)

// insertObjectClassSQL returns an insert statement of objectclass rows
// that keeps rows which are already there.
func insertObjectClassSQL() string {
	cols := []string{"id", "classname", "storage_table", "is_toplevel"}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING",
		schema.ObjectClass{}.TableName(),
		strings.Join(cols, ", "),
	)
}
