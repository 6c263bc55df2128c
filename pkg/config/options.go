package config

import (
	"strings"
)

// Option is a function that modifies a Config.
// Options validate inputs and reject invalid values with warnings.
type Option func(*Config)

// OptDatabaseDriver sets the database adapter.
// Valid values: "postgres", "sqlite".
func OptDatabaseDriver(s string) Option {
	s = strings.ToLower(strings.TrimSpace(s))
	return func(c *Config) {
		if isValidEnum("Database.Driver", s) {
			c.Database.Driver = s
		}
	}
}

// OptDatabaseHost sets the PostgreSQL server hostname or IP address.
func OptDatabaseHost(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if isValidString("Database Host", s) {
			c.Database.Host = s
		}
	}
}

// OptDatabasePort sets the PostgreSQL server port number.
func OptDatabasePort(i int) Option {
	return func(c *Config) {
		if isValidInt("Database Port", i) {
			c.Database.Port = i
		}
	}
}

// OptDatabaseUser sets the PostgreSQL database username.
func OptDatabaseUser(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if isValidString("Database User", s) {
			c.Database.User = s
		}
	}
}

// OptDatabasePassword sets the PostgreSQL database password.
func OptDatabasePassword(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if isValidString("Database Password", s) {
			c.Database.Password = s
		}
	}
}

// OptDatabaseDatabase sets the PostgreSQL database name to connect to.
func OptDatabaseDatabase(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if isValidString("Database Name", s) {
			c.Database.Database = s
		}
	}
}

// OptDatabaseSSLMode sets the SSL connection mode.
// Valid values: "disable", "require", "verify-ca", "verify-full".
func OptDatabaseSSLMode(s string) Option {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return func(c *Config) {
		if isValidEnum("Database.SSLMode", s) {
			c.Database.SSLMode = s
		}
	}
}

// OptDatabasePath sets the location of a SQLite city database.
func OptDatabasePath(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if isValidString("Database Path", s) {
			c.Database.Path = s
		}
	}
}

// OptDatabaseBatchSize sets the flush threshold of cache tables.
func OptDatabaseBatchSize(i int) Option {
	return func(c *Config) {
		if isValidInt("Batch Size", i) {
			c.Database.BatchSize = i
		}
	}
}

// OptExportMinThreads sets the number of pre-started export workers.
// MaxThreads is raised when it would be smaller.
func OptExportMinThreads(i int) Option {
	return func(c *Config) {
		if isValidInt("Export Min Threads", i) {
			c.Export.MinThreads = i
			c.Export.MaxThreads = max(c.Export.MaxThreads, i)
		}
	}
}

// OptExportMaxThreads sets the upper bound of live export workers.
// MinThreads is lowered when it would be larger.
func OptExportMaxThreads(i int) Option {
	return func(c *Config) {
		if isValidInt("Export Max Threads", i) {
			c.Export.MaxThreads = i
			c.Export.MinThreads = min(c.Export.MinThreads, i)
		}
	}
}

// OptExportQueueSize sets the capacity of the export queue.
func OptExportQueueSize(i int) Option {
	return func(c *Config) {
		if isValidInt("Export Queue Size", i) {
			c.Export.QueueSize = i
		}
	}
}

// OptExportStrategy sets the adaptation strategy of worker pools.
// Valid values: "fixed", "conservative", "aggressive".
func OptExportStrategy(s string) Option {
	s = strings.ToLower(strings.TrimSpace(s))
	return func(c *Config) {
		if isValidEnum("Export.Strategy", s) {
			c.Export.Strategy = s
		}
	}
}

// OptExportXlinkFraction sets the xlink pool size relative to the export
// pool. Valid values are in (0, 1].
func OptExportXlinkFraction(f float64) Option {
	return func(c *Config) {
		if isValidFraction("Export Xlink Fraction", f) {
			c.Export.XlinkFraction = f
		}
	}
}

// OptExportObjectCache sets partitions and page size of the feature id
// cache.
func OptExportObjectCache(partitions, pageSize int) Option {
	return func(c *Config) {
		if isValidInt("Object Cache Partitions", partitions) &&
			isValidInt("Object Cache Page Size", pageSize) {
			c.Export.ObjectCache = CacheConfig{
				Partitions: partitions,
				PageSize:   pageSize,
			}
		}
	}
}

// OptExportGeometryCache sets partitions and page size of the geometry id
// cache.
func OptExportGeometryCache(partitions, pageSize int) Option {
	return func(c *Config) {
		if isValidInt("Geometry Cache Partitions", partitions) &&
			isValidInt("Geometry Cache Page Size", pageSize) {
			c.Export.GeometryCache = CacheConfig{
				Partitions: partitions,
				PageSize:   pageSize,
			}
		}
	}
}

// OptExportCacheBackend sets where cache tables are created.
// Valid values: "database", "sqlite".
func OptExportCacheBackend(s string) Option {
	s = strings.ToLower(strings.TrimSpace(s))
	return func(c *Config) {
		if isValidEnum("Export.CacheBackend", s) {
			c.Export.CacheBackend = s
		}
	}
}

// OptExportXlinkPolicy sets the inline-vs-deferred reference policy.
// Valid values: "inline", "deferred".
func OptExportXlinkPolicy(s string) Option {
	s = strings.ToLower(strings.TrimSpace(s))
	return func(c *Config) {
		if isValidEnum("Export.XlinkPolicy", s) {
			c.Export.XlinkPolicy = s
		}
	}
}

// OptExportFailOnFeatureError makes a failed feature fatal for the run.
func OptExportFailOnFeatureError(b bool) Option {
	return func(c *Config) {
		c.Export.FailOnFeatureError = b
	}
}

// OptExportOutput sets the output path.
// Runtime-only field - not in ToOptions().
func OptExportOutput(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if isValidString("Export Output", s) {
			c.Export.Output = s
		}
	}
}

// OptExportFeatureTypes limits the export to the given feature types.
// Runtime-only field - not in ToOptions().
func OptExportFeatureTypes(ss []string) Option {
	var res []string
	for _, v := range ss {
		v = strings.TrimSpace(v)
		if v != "" {
			res = append(res, v)
		}
	}
	return func(c *Config) {
		if len(res) > 0 {
			c.Export.FeatureTypes = res
		}
	}
}

// OptExportBBox sets the export extent as minX, minY, maxX, maxY.
// Runtime-only field - not in ToOptions().
func OptExportBBox(bbox []float64) Option {
	return func(c *Config) {
		if isValidBBox(bbox) {
			c.Export.BBox = bbox
		}
	}
}

// OptExportTiling sets the tile grid.
// Runtime-only field - not in ToOptions().
func OptExportTiling(rows, cols int) Option {
	return func(c *Config) {
		if isValidInt("Tiling Rows", rows) && isValidInt("Tiling Columns", cols) {
			c.Export.Tiling.Rows = rows
			c.Export.Tiling.Cols = cols
		}
	}
}

// OptExportTilingSuffix sets how tile files are named.
// Runtime-only field - not in ToOptions().
func OptExportTilingSuffix(s string) Option {
	s = strings.ToLower(strings.TrimSpace(s))
	return func(c *Config) {
		if isValidEnum("Export.Tiling.Suffix", s) {
			c.Export.Tiling.Suffix = s
		}
	}
}

// OptExportCountFeatures enables the count query for progress reporting.
// Runtime-only field - not in ToOptions().
func OptExportCountFeatures(b bool) Option {
	return func(c *Config) {
		c.Export.CountFeatures = b
	}
}

// OptLogLevel sets the logging level.
// Valid values: "debug", "info", "warn", "error".
func OptLogLevel(s string) Option {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return func(c *Config) {
		if isValidEnum("Log.Level", s) {
			c.Log.Level = s
		}
	}
}

// OptLogFormat sets the log output format.
// Valid values: "json", "text", "tint".
func OptLogFormat(s string) Option {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return func(c *Config) {
		if isValidEnum("Log.Format", s) {
			c.Log.Format = s
		}
	}
}

// OptLogDestination sets where logs are written.
// Valid values: "file", "stderr", "stdout".
func OptLogDestination(s string) Option {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return func(c *Config) {
		if isValidEnum("Log.Destination", s) {
			c.Log.Destination = s
		}
	}
}

// OptHomeDir sets the home directory for config, cache, and log locations.
// Set once at startup from os.UserHomeDir().
// Runtime-only field - not in ToOptions().
func OptHomeDir(s string) Option {
	s = strings.TrimSpace(s)
	return func(c *Config) {
		if isValidString("Home Directory", s) {
			c.HomeDir = s
		}
	}
}
