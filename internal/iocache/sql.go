package iocache

import (
	"fmt"
	"strings"
)

// maxParams keeps multi-row statements under the bind parameter limits of
// both PostgreSQL and SQLite.
const maxParams = 30_000

// insertSQL returns a multi-row INSERT with $N placeholders.
func insertSQL(table string, cols []string, rows int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ",
		table, strings.Join(cols, ", "))

	n := 1
	for i := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for j := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", n)
			n++
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// placeholders returns "$from, $from+1, ..." for n parameters.
func placeholders(from, n int) string {
	res := make([]string, n)
	for i := range n {
		res[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(res, ", ")
}

// chunks splits n rows into ranges with at most size rows each.
func chunks(n, size int) [][2]int {
	var res [][2]int
	for i := 0; i < n; i += size {
		res = append(res, [2]int{i, min(i+size, n)})
	}
	return res
}
