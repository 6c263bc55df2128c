package config_test

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gnames/gncity/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirs(t *testing.T) {
	tempHome := t.TempDir()

	tests := []struct {
		msg string
		fn  func(string) string
		res string
	}{
		{
			msg: "config dir",
			fn:  config.ConfigDir,
			res: filepath.Join(tempHome, ".config", "gncity"),
		},
		{
			msg: "cache dir",
			fn:  config.CacheDir,
			res: filepath.Join(tempHome, ".cache", "gncity"),
		},
		{
			msg: "log dir",
			fn:  config.LogDir,
			res: filepath.Join(tempHome, ".local", "share", "gncity", "logs"),
		},
		{
			msg: "staging dir",
			fn:  config.StagingDir,
			res: filepath.Join(tempHome, ".cache", "gncity", "staging"),
		},
	}

	for _, v := range tests {
		res := v.fn(tempHome)
		assert.Equal(t, v.res, res, v.msg)
	}
}

func TestNew(t *testing.T) {
	cfg := config.New()
	require.NotNil(t, cfg)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "citydb", cfg.Database.Database)
	assert.Equal(t, 1_000, cfg.Database.BatchSize)

	assert.Equal(t, runtime.NumCPU(), cfg.Export.MinThreads)
	assert.Equal(t, 2*runtime.NumCPU(), cfg.Export.MaxThreads)
	assert.Equal(t, "aggressive", cfg.Export.Strategy)
	assert.Equal(t, "sqlite", cfg.Export.CacheBackend)
	assert.Equal(t, "inline", cfg.Export.XlinkPolicy)
	assert.Equal(t, 10, cfg.Export.ObjectCache.Partitions)
	assert.False(t, cfg.IsTiled())

	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Log.Destination)
}

func TestOptionDatabaseHost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"sets valid host", "db.example.com", "db.example.com"},
		{"trims whitespace", "  db.example.com  ", "db.example.com"},
		{"ignores empty string", "", "localhost"},
		{"ignores whitespace-only", "   ", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Update([]config.Option{config.OptDatabaseHost(tt.input)})
			assert.Equal(t, tt.expected, cfg.Database.Host)
		})
	}
}

func TestOptionDatabaseDriver(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"sets sqlite", "sqlite", "sqlite"},
		{"normalizes to lowercase", "SQLite", "sqlite"},
		{"ignores invalid value", "oracle", "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Update([]config.Option{config.OptDatabaseDriver(tt.input)})
			assert.Equal(t, tt.expected, cfg.Database.Driver)
		})
	}
}

func TestOptionThreads(t *testing.T) {
	t.Run("min raises max", func(t *testing.T) {
		cfg := config.New()
		cfg.Update([]config.Option{
			config.OptExportMaxThreads(2),
			config.OptExportMinThreads(6),
		})
		assert.Equal(t, 6, cfg.Export.MinThreads)
		assert.Equal(t, 6, cfg.Export.MaxThreads)
	})

	t.Run("max lowers min", func(t *testing.T) {
		cfg := config.New()
		cfg.Update([]config.Option{
			config.OptExportMinThreads(8),
			config.OptExportMaxThreads(3),
		})
		assert.Equal(t, 3, cfg.Export.MinThreads)
		assert.Equal(t, 3, cfg.Export.MaxThreads)
	})

	t.Run("ignores non-positive", func(t *testing.T) {
		cfg := config.New()
		cfg.Update([]config.Option{config.OptExportMaxThreads(0)})
		assert.Equal(t, 2*runtime.NumCPU(), cfg.Export.MaxThreads)
	})
}

func TestXlinkThreads(t *testing.T) {
	tests := []struct {
		name           string
		minT, maxT     int
		fraction       float64
		expMin, expMax int
	}{
		{"half", 4, 8, 0.5, 2, 4},
		{"never zero", 1, 1, 0.5, 1, 1},
		{"whole", 3, 5, 1, 3, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Update([]config.Option{
				config.OptExportMaxThreads(tt.maxT),
				config.OptExportMinThreads(tt.minT),
				config.OptExportXlinkFraction(tt.fraction),
			})
			minT, maxT := cfg.XlinkThreads()
			assert.Equal(t, tt.expMin, minT)
			assert.Equal(t, tt.expMax, maxT)
		})
	}
}

func TestOptionBBoxAndTiling(t *testing.T) {
	tests := []struct {
		name  string
		bbox  []float64
		rows  int
		cols  int
		tiled bool
	}{
		{"grid with bbox", []float64{0, 0, 10, 10}, 2, 2, true},
		{"single tile", []float64{0, 0, 10, 10}, 1, 1, false},
		{"grid without bbox", nil, 2, 2, false},
		{"inverted bbox ignored", []float64{10, 0, 0, 10}, 2, 2, false},
		{"short bbox ignored", []float64{0, 0, 10}, 2, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New()
			cfg.Update([]config.Option{
				config.OptExportBBox(tt.bbox),
				config.OptExportTiling(tt.rows, tt.cols),
			})
			assert.Equal(t, tt.tiled, cfg.IsTiled())
		})
	}
}

func TestOptionEnums(t *testing.T) {
	cfg := config.New()
	cfg.Update([]config.Option{
		config.OptExportStrategy("Conservative"),
		config.OptExportCacheBackend("database"),
		config.OptExportXlinkPolicy("sometimes"),
		config.OptExportTilingSuffix("XMIN_YMIN"),
		config.OptLogLevel("trace"),
	})
	assert.Equal(t, "conservative", cfg.Export.Strategy)
	assert.Equal(t, "database", cfg.Export.CacheBackend)
	assert.Equal(t, "inline", cfg.Export.XlinkPolicy)
	assert.Equal(t, "xmin_ymin", cfg.Export.Tiling.Suffix)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestOptionFeatureTypes(t *testing.T) {
	cfg := config.New()
	cfg.Update([]config.Option{
		config.OptExportFeatureTypes([]string{" Building ", "", "Road"}),
	})
	assert.Equal(t, []string{"Building", "Road"}, cfg.Export.FeatureTypes)

	cfg.Update([]config.Option{config.OptExportFeatureTypes(nil)})
	assert.Equal(t, []string{"Building", "Road"}, cfg.Export.FeatureTypes)
}

func TestToOptions(t *testing.T) {
	t.Run("converts config to options correctly", func(t *testing.T) {
		original := config.New()
		original.Update([]config.Option{
			config.OptDatabaseDriver("sqlite"),
			config.OptDatabasePath("/data/city.sqlite"),
			config.OptDatabaseBatchSize(250),
			config.OptExportMaxThreads(12),
			config.OptExportMinThreads(3),
			config.OptExportQueueSize(64),
			config.OptExportStrategy("fixed"),
			config.OptExportXlinkFraction(0.25),
			config.OptExportObjectCache(4, 100),
			config.OptExportGeometryCache(8, 200),
			config.OptExportCacheBackend("database"),
			config.OptExportXlinkPolicy("deferred"),
			config.OptExportFailOnFeatureError(true),
			config.OptLogLevel("debug"),
			config.OptLogFormat("text"),
			config.OptLogDestination("stdout"),
		})

		newCfg := config.New()
		newCfg.Update(original.ToOptions())

		assert.Equal(t, original.Database, newCfg.Database)
		assert.Equal(t, original.Export, newCfg.Export)
		assert.Equal(t, original.Log, newCfg.Log)
	})

	t.Run("excludes runtime-only fields", func(t *testing.T) {
		cfg := config.New()
		cfg.Update([]config.Option{
			config.OptHomeDir("/custom/home"),
			config.OptExportOutput("/tmp/out.jsonl"),
			config.OptExportBBox([]float64{0, 0, 1, 1}),
			config.OptExportTiling(3, 3),
			config.OptExportCountFeatures(true),
		})

		newCfg := config.New()
		newCfg.Update(cfg.ToOptions())

		assert.Equal(t, "", newCfg.HomeDir)
		assert.Equal(t, "export.jsonl", newCfg.Export.Output)
		assert.Nil(t, newCfg.Export.BBox)
		assert.Equal(t, 1, newCfg.Export.Tiling.Rows)
		assert.False(t, newCfg.Export.CountFeatures)
	})
}
