package config

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gnames/gn"
)

// Update applies a slice of Option functions to the Config.
// This is the only way to modify a Config after creation.
// Invalid options are rejected with warnings - config remains in valid state.
func (c *Config) Update(opts []Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// ToOptions converts the Config to a slice of Option functions.
// Only includes persistent fields appropriate for config.yaml.
// Excludes runtime-only fields (HomeDir, Output, FeatureTypes, BBox, Tiling,
// CountFeatures).
// Used for round-tripping config.yaml ↔ Config conversions.
func (c *Config) ToOptions() []Option {
	var res []Option
	var s string
	var i int
	s = c.Database.Driver
	if s != "" {
		res = append(res, OptDatabaseDriver(s))
	}
	s = c.Database.Host
	if s != "" {
		res = append(res, OptDatabaseHost(s))
	}
	i = c.Database.Port
	if i > 0 {
		res = append(res, OptDatabasePort(i))
	}
	s = c.Database.User
	if s != "" {
		res = append(res, OptDatabaseUser(s))
	}
	s = c.Database.Password
	if s != "" {
		res = append(res, OptDatabasePassword(s))
	}
	s = c.Database.Database
	if s != "" {
		res = append(res, OptDatabaseDatabase(s))
	}
	s = c.Database.SSLMode
	if s != "" {
		res = append(res, OptDatabaseSSLMode(s))
	}
	s = c.Database.Path
	if s != "" {
		res = append(res, OptDatabasePath(s))
	}
	i = c.Database.BatchSize
	if i > 0 {
		res = append(res, OptDatabaseBatchSize(i))
	}

	ex := c.Export
	if ex.MaxThreads > 0 {
		res = append(res, OptExportMaxThreads(ex.MaxThreads))
	}
	if ex.MinThreads > 0 {
		res = append(res, OptExportMinThreads(ex.MinThreads))
	}
	if ex.QueueSize > 0 {
		res = append(res, OptExportQueueSize(ex.QueueSize))
	}
	if ex.Strategy != "" {
		res = append(res, OptExportStrategy(ex.Strategy))
	}
	if ex.XlinkFraction > 0 {
		res = append(res, OptExportXlinkFraction(ex.XlinkFraction))
	}
	if ex.ObjectCache.Partitions > 0 && ex.ObjectCache.PageSize > 0 {
		res = append(res, OptExportObjectCache(
			ex.ObjectCache.Partitions, ex.ObjectCache.PageSize,
		))
	}
	if ex.GeometryCache.Partitions > 0 && ex.GeometryCache.PageSize > 0 {
		res = append(res, OptExportGeometryCache(
			ex.GeometryCache.Partitions, ex.GeometryCache.PageSize,
		))
	}
	if ex.CacheBackend != "" {
		res = append(res, OptExportCacheBackend(ex.CacheBackend))
	}
	if ex.XlinkPolicy != "" {
		res = append(res, OptExportXlinkPolicy(ex.XlinkPolicy))
	}
	res = append(res, OptExportFailOnFeatureError(ex.FailOnFeatureError))

	s = c.Log.Format
	if s != "" {
		res = append(res, OptLogFormat(s))
	}
	s = c.Log.Level
	if s != "" {
		res = append(res, OptLogLevel(s))
	}
	s = c.Log.Destination
	if s != "" {
		res = append(res, OptLogDestination(s))
	}
	return res
}

func isValidString(name, s string) bool {
	res := s != ""
	if !res {
		gn.Warn("<em>%s</em> cannot be empty, ignoring", name)
	}
	return res
}

func isValidInt(name string, i int) bool {
	res := i > 0
	if !res {
		gn.Warn("<em>%s</em> has to be positive number, ignoring %d", name, i)
	}
	return res
}

func isValidFraction(name string, f float64) bool {
	res := f > 0 && f <= 1
	if !res {
		gn.Warn("<em>%s</em> has to be in (0, 1], ignoring %v", name, f)
	}
	return res
}

func isValidBBox(bbox []float64) bool {
	if len(bbox) != 4 {
		gn.Warn("<em>BBox</em> needs 4 coordinates, ignoring %v", bbox)
		return false
	}
	if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
		gn.Warn("<em>BBox</em> min corner must be below max corner, ignoring %v", bbox)
		return false
	}
	return true
}

func isValidEnum(name, val string) bool {
	s := struct{}{}
	data := map[string]map[string]struct{}{
		"Database.Driver": {"postgres": s, "sqlite": s},
		"Database.SSLMode": {"disable": s, "require": s,
			"verify-ca": s, "verify-full": s},
		"Export.Strategy": {"fixed": s, "conservative": s,
			"aggressive": s},
		"Export.CacheBackend": {"database": s, "sqlite": s},
		"Export.XlinkPolicy":  {"inline": s, "deferred": s},
		"Export.Tiling.Suffix": {"index": s, "xmin_ymin": s,
			"xmax_ymin": s, "xmin_ymax": s, "xmax_ymax": s,
			"xmin_ymin_xmax_ymax": s},
		"Log.Level":       {"debug": s, "info": s, "warn": s, "error": s},
		"Log.Format":      {"json": s, "text": s, "tint": s},
		"Log.Destination": {"file": s, "stderr": s, "stdout": s},
	}
	vals := slices.Sorted(maps.Keys(data[name]))
	var lines []string
	for _, v := range vals {
		line := fmt.Sprintf("  * %s", v)
		lines = append(lines, line)
	}
	if _, ok := data[name][val]; ok {
		return true
	}
	gn.Warn(
		"<em>%s</em> does not support '%s' as a value. "+
			"Valid values are: \n%s\nIgnoring...",
		name, val, strings.Join(lines, "\n"),
	)
	return false
}
