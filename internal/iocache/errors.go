package iocache

import (
	"fmt"

	"github.com/gnames/gn"
	"github.com/gnames/gncity/pkg/errcode"
)

// CreateError is returned when a cache table cannot be created.
func CreateError(table string, err error) error {
	msg := `Cannot create cache table <em>%s</em>

<em>Possible causes:</em>
  - Insufficient database permissions
  - Cache directory is not writable

<em>How to fix:</em>
  1. Check database user has CREATE permissions
  2. Try 'export.cache_backend: sqlite' in config.yaml`
	vars := []any{table}

	return &gn.Error{
		Code: errcode.CacheTableCreateError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to create cache table %s: %w", table, err),
	}
}

// InsertError is returned when staged rows cannot be flushed.
func InsertError(table string, rows int, err error) error {
	msg := "Cannot stage <em>%d</em> rows in cache table <em>%s</em>"
	vars := []any{rows, table}

	return &gn.Error{
		Code: errcode.CacheTableInsertError,
		Msg:  msg,
		Vars: vars,
		Err: fmt.Errorf(
			"failed to insert %d rows into %s: %w", rows, table, err,
		),
	}
}

// ReadError is returned when staged rows cannot be read back.
func ReadError(table string, err error) error {
	msg := "Cannot read cache table <em>%s</em>"
	vars := []any{table}

	return &gn.Error{
		Code: errcode.CacheTableReadError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to read cache table %s: %w", table, err),
	}
}

// DropError is returned when a cache table cannot be removed.
func DropError(table string, err error) error {
	msg := `Cannot drop cache table <em>%s</em>

<em>How to fix:</em>
  Remove leftover 'gncity_*' tables manually`
	vars := []any{table}

	return &gn.Error{
		Code: errcode.CacheTableDropError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to drop cache table %s: %w", table, err),
	}
}
