// Package config provides configuration management for GNcity.
//
// This package has no I/O dependencies (no file operations, no network calls).
// Validation functions may write user-facing warnings via gn.Warn().
//
// # Configuration Sources
//
// Precedence (highest to lowest): CLI flags > env vars > config.yaml > defaults
//
// # Design Principles
//
// - Default config (from New()) is always valid - no validation needed
// - All mutations go through Option functions - the only way to modify Config
// - Invalid options are rejected with gn.Warn() - config remains in valid state
// - ToOptions() converts persistent fields (those in config.yaml)
// - Environment variables match ToOptions() fields exactly
//
// # Persistent vs Runtime Fields
//
// Persistent fields (in ToOptions, config.yaml, and env vars):
//   - Database: driver, host, port, user, password, database, ssl_mode,
//     path, batch_size
//   - Export: pool sizes, strategy, xlink fraction, id caches, cache
//     backend, xlink policy, fail_on_feature_error
//   - Log: level, format, destination
//
// Runtime-only fields (CLI flags only):
//   - Export.Output, FeatureTypes, BBox, Tiling, CountFeatures
//   - HomeDir (set once at startup)
//
// # Environment Variables
//
// Use GNCITY_ prefix with underscores for nesting:
//
//	GNCITY_DATABASE_HOST=localhost
//	GNCITY_DATABASE_DRIVER=postgres
//	GNCITY_EXPORT_MAX_THREADS=16
//	GNCITY_LOG_LEVEL=info
package config

import (
	"runtime"
)

// Config represents the complete GNcity configuration.
type Config struct {
	// Database contains connection settings of the city database.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Export contains settings of the export pipeline.
	Export ExportConfig `mapstructure:"export" yaml:"export"`

	Log LogConfig `mapstructure:"log" yaml:"log"`

	// HomeDir determines where config, cache and logs directories reside.
	// It must be set by CLI during init, there is no default value for it.
	HomeDir string `yaml:"-"`
}

// DatabaseConfig contains database connection parameters.
type DatabaseConfig struct {
	// Driver selects the database adapter.
	// Valid values: "postgres", "sqlite"
	Driver string `mapstructure:"driver" yaml:"driver"`

	// Host is the PostgreSQL server hostname or IP address.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the PostgreSQL server port number.
	Port int `mapstructure:"port" yaml:"port"`

	// User is the PostgreSQL database username.
	User string `mapstructure:"user" yaml:"user"`

	// Password is the PostgreSQL database password.
	Password string `mapstructure:"password" yaml:"password"`

	// Database is the PostgreSQL database name to connect to.
	Database string `mapstructure:"database" yaml:"database"`

	// SSLMode specifies the SSL connection mode.
	// Valid values: "disable", "require", "verify-ca", "verify-full"
	SSLMode string `mapstructure:"ssl_mode" yaml:"ssl_mode"`

	// Path is the location of the city database file when Driver is
	// "sqlite".
	Path string `mapstructure:"path" yaml:"path"`

	// BatchSize is the number of staged rows a cache table keeps in memory
	// before it flushes them to the staging storage.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// ExportConfig contains settings of the export pipeline.
type ExportConfig struct {
	// MinThreads is the number of export workers started before the first
	// feature is submitted.
	MinThreads int `mapstructure:"min_threads" yaml:"min_threads"`

	// MaxThreads is the upper bound of live export workers.
	MaxThreads int `mapstructure:"max_threads" yaml:"max_threads"`

	// QueueSize is the capacity of the export queue. The splitter blocks
	// when the queue is full.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// Strategy decides how the number of live workers follows the queue
	// depth.
	// Valid values: "fixed", "conservative", "aggressive"
	Strategy string `mapstructure:"strategy" yaml:"strategy"`

	// XlinkFraction is the size of the xlink pool relative to the export
	// pool, in (0, 1].
	XlinkFraction float64 `mapstructure:"xlink_fraction" yaml:"xlink_fraction"`

	// ObjectCache sizes the external-id cache of features.
	ObjectCache CacheConfig `mapstructure:"object_cache" yaml:"object_cache"`

	// GeometryCache sizes the external-id cache of geometries.
	GeometryCache CacheConfig `mapstructure:"geometry_cache" yaml:"geometry_cache"`

	// CacheBackend selects where cache tables live.
	// "database" creates UNLOGGED tables in the exported database,
	// "sqlite" uses an embedded file in the cache directory.
	CacheBackend string `mapstructure:"cache_backend" yaml:"cache_backend"`

	// XlinkPolicy decides what an export worker does with a reference.
	// "inline" resolves it on the spot when its target is already cached
	// and defers it otherwise, "deferred" always hands it to the resolver.
	XlinkPolicy string `mapstructure:"xlink_policy" yaml:"xlink_policy"`

	// FailOnFeatureError turns a failure of a single feature into a fatal
	// error of the whole run. When false such features are logged and
	// skipped.
	FailOnFeatureError bool `mapstructure:"fail_on_feature_error" yaml:"fail_on_feature_error"`

	// Output is the path of the exported document. With tiling every tile
	// gets its own file derived from this path.
	Output string `mapstructure:"output" yaml:"-"`

	// FeatureTypes limits the export to the given feature types.
	// Empty slice means all top-level features.
	FeatureTypes []string `mapstructure:"feature_types" yaml:"-"`

	// BBox is the export extent: minX, minY, maxX, maxY.
	// Nil means no spatial filter.
	BBox []float64 `mapstructure:"bbox" yaml:"-"`

	// Tiling splits BBox into a grid of tiles.
	Tiling TilingConfig `mapstructure:"tiling" yaml:"-"`

	// CountFeatures runs a count query before the export to drive the
	// progress bar.
	CountFeatures bool `mapstructure:"count_features" yaml:"-"`
}

// CacheConfig sizes one surrogate-id cache.
type CacheConfig struct {
	// Partitions is the number of independently locked shards.
	Partitions int `mapstructure:"partitions" yaml:"partitions"`

	// PageSize is the maximum number of in-memory entries of one shard.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// TilingConfig describes the tile grid of a spatial export.
type TilingConfig struct {
	// Rows and Cols define the grid. Tiling is active when BBox is set and
	// the grid has more than one tile.
	Rows int `mapstructure:"rows" yaml:"rows"`
	Cols int `mapstructure:"cols" yaml:"cols"`

	// Suffix selects how tile output files are named.
	// Valid values: "index", "xmin_ymin", "xmax_ymin", "xmin_ymax",
	// "xmax_ymax", "xmin_ymin_xmax_ymax"
	Suffix string `mapstructure:"suffix" yaml:"suffix"`
}

// LogConfig provides typical settings for application logs.
type LogConfig struct {
	// Format can be 'json', 'text' or 'tint' (user-facing and colored).
	Format string `mapstructure:"format"      yaml:"format"`
	// Level of logging -- 'error', 'warn', 'info', 'debug'
	Level string `mapstructure:"level"       yaml:"level"`
	// Destination can be a log file (to default place), STDERR or STDOUT
	Destination string `mapstructure:"destination" yaml:"destination"`
}

// New creates a Config with sensible default values.
// The returned config is always valid and ready to use.
// Default values can be overridden using Option functions via Update().
func New() *Config {
	cpu := runtime.NumCPU()
	res := &Config{
		Database: DatabaseConfig{
			Driver:    "postgres",
			Host:      "localhost",
			Port:      5432,
			User:      "postgres",
			Password:  "postgres",
			Database:  "citydb",
			SSLMode:   "disable",
			BatchSize: 1_000,
		},
		Export: ExportConfig{
			MinThreads:    cpu,
			MaxThreads:    cpu * 2,
			QueueSize:     1_000,
			Strategy:      "aggressive",
			XlinkFraction: 0.5,
			ObjectCache: CacheConfig{
				Partitions: 10,
				PageSize:   20_000,
			},
			GeometryCache: CacheConfig{
				Partitions: 10,
				PageSize:   50_000,
			},
			CacheBackend: "sqlite",
			XlinkPolicy:  "inline",
			Output:       "export.jsonl",
			Tiling: TilingConfig{
				Rows:   1,
				Cols:   1,
				Suffix: "index",
			},
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
			// for now file is rewritten every time the log starts
			Destination: "file",
		},
	}

	return res
}

// IsTiled returns true when the export runs over more than one tile.
func (c *Config) IsTiled() bool {
	t := c.Export.Tiling
	return len(c.Export.BBox) == 4 && t.Rows*t.Cols > 1
}

// XlinkThreads returns the number of xlink workers derived from the
// export pool size. It is never less than 1.
func (c *Config) XlinkThreads() (minThreads, maxThreads int) {
	f := c.Export.XlinkFraction
	minThreads = int(float64(c.Export.MinThreads) * f)
	maxThreads = int(float64(c.Export.MaxThreads) * f)
	minThreads = max(minThreads, 1)
	maxThreads = max(maxThreads, minThreads)
	return minThreads, maxThreads
}
