package ioexport

import (
	"fmt"

	"github.com/gnames/gn"
	"github.com/gnames/gncity/pkg/errcode"
)

// QueryError is returned when the feature query of a tile fails.
func QueryError(tile string, err error) error {
	msg := `Cannot query features of tile <em>%s</em>

<em>Possible causes:</em>
  - Database connection was lost
  - City schema is missing, run 'gncity create'`
	vars := []any{tile}

	return &gn.Error{
		Code: errcode.ExportQueryError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to query tile %s: %w", tile, err),
	}
}

// CountError is returned when the count query of a tile fails.
func CountError(tile string, err error) error {
	msg := "Cannot count features of tile <em>%s</em>"
	vars := []any{tile}

	return &gn.Error{
		Code: errcode.ExportCountError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to count tile %s: %w", tile, err),
	}
}

// FeatureError describes a feature that could not be exported.
func FeatureError(gmlID string, id int64, err error) error {
	msg := "Cannot export feature <em>%s</em> (id %d)"
	vars := []any{gmlID, id}

	return &gn.Error{
		Code: errcode.ExportFeatureError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("failed to export feature %d: %w", id, err),
	}
}

// NoWorkersError is returned when a pool cannot start any worker.
func NoWorkersError(pool string, err error) error {
	msg := `Cannot start workers of <em>%s</em> pool

<em>Possible causes:</em>
  - Database has no free connections
  - Database connection limit is lower than export.max_threads

<em>How to fix:</em>
  1. Lower export.max_threads or use '--jobs'
  2. Raise max_connections of the database`
	vars := []any{pool}

	return &gn.Error{
		Code: errcode.PoolNoWorkersError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("pool %s: %w", pool, err),
	}
}

// ConfigError is returned for export settings that cannot work together.
func ConfigError(err error) error {
	msg := "Invalid export settings: <em>%s</em>"
	vars := []any{err.Error()}

	return &gn.Error{
		Code: errcode.ExportConfigError,
		Msg:  msg,
		Vars: vars,
		Err:  fmt.Errorf("export config: %w", err),
	}
}

// InterruptedError is shown to the user when a run stops on a fatal
// event. The original cause stays reachable through errors.Is.
func InterruptedError(msg string, cause error) error {
	tmpl := `Export was interrupted

<em>In flight:</em> %s`
	vars := []any{msg}

	return &gn.Error{
		Code: errcode.ExportInterruptedError,
		Msg:  tmpl,
		Vars: vars,
		Err:  fmt.Errorf("export interrupted: %w", cause),
	}
}
