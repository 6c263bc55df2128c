package errcode

import (
	"github.com/gnames/gn"
)

const (
	UnknownError gn.ErrorCode = iota

	// File System errors
	CreateDirError
	CopyFileError
	ReadFileError
	CreateOutputError

	// Logging errors
	CreateLogFileError

	// Database errors
	DBConnectionError
	DBNotConnectedError
	DBUnsupportedDriverError
	DBTableExistsCheckError
	DBDropTablesError

	// Schema errors
	SchemaGORMConnectionError
	SchemaCreateError

	// Cache table errors
	CacheTableCreateError
	CacheTableInsertError
	CacheTableReadError
	CacheTableDropError

	// Worker pool errors
	PoolNoWorkersError

	// Export errors
	ExportQueryError
	ExportCountError
	ExportFeatureError
	ExportWriteError
	ExportInterruptedError
	ExportConfigError
)
