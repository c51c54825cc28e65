// Package metrics collects opencensus measurements declared as tagged struct fields.
//
// Metrics are disabled unless some component enables them. Nothing is exported
// unless an exporter is configured with Init.
package metrics

import (
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
)

// Init global settings for metrics collection, such as global tags and exporter setup.
//
// Init may be called multiple times: only the first time matters. Recording
// a measurement before Init implicitly initializes with default settings.
func Init(opts ...Option) {
	initOnce.Do(func() {
		mp = newSettings(opts...)
	})
}

func current() *settings {
	Init()
	return mp
}

// Flush all collected metrics to the exporter
func Flush() {
	current().Flush()
}

// EnsureMetrics allows for lazy registration of metrics definitions.
//
// It may safely be called several times, and only the first registration
// for a given unique location will be retained.
//
// When running several times, it ensures that all subsequent calls on the same location
// specify the same metrics type, otherwise it panics.
func EnsureMetrics(location string, m interface{}) interface{} {
	return current().EnsureMetrics(location, m)
}

// Inc increments a counter-like metric
func Inc(counter *stats.Int64Measure, tags ...map[string]string) {
	Int64(counter, 1, tags...)
}

// Int64 records a value
func Int64(measure *stats.Int64Measure, value int64, tags ...map[string]string) {
	if measure == nil {
		return
	}
	_ = stats.RecordWithTags(current().contexter(), mergeTags(tags), measure.M(value))
}

// Float64 records a value
func Float64(measure *stats.Float64Measure, value float64, tags ...map[string]string) {
	if measure == nil {
		return
	}
	_ = stats.RecordWithTags(current().contexter(), mergeTags(tags), measure.M(value))
}

// Since records a timing in milliseconds, from some start time
func Since(start time.Time, measure *stats.Float64Measure, tags ...map[string]string) {
	Float64(measure, float64(time.Since(start).Nanoseconds())/1e6, tags...)
}

func mergeTags(extras []map[string]string) []tag.Mutator {
	mutators := make([]tag.Mutator, 0, 4)
	for _, extra := range extras {
		for k, v := range extra {
			mutators = append(mutators, tag.Upsert(tag.MustNewKey(k), v))
		}
	}
	return mutators
}

// Enable equips any type with some capabilities to collect metrics in a very concise way.
//
// Sample usage:
//
//	type Cache struct{
//	  ...
//	  metrics.Enable
//	  m *CacheMetrics
//	}
//
//	func New() *Cache {
//	  c := &Cache{}
//	  c.m = c.EnsureMetrics("zipcache", &CacheMetrics{}).(*CacheMetrics)
//	  c.EnableMetrics(true)
//	  return c
//	}
//
//	func (c *Cache) load() {
//	  if c.MetricsEnabled() {
//	    c.m.Archives.Loaded()
//	  }
//	}
type Enable struct {
	metricsEnabled bool
}

// MetricsEnabled tells whether metrics are enabled or not
func (e Enable) MetricsEnabled() bool {
	return e.metricsEnabled
}

// EnableMetrics toggles metrics collection
func (e *Enable) EnableMetrics(enabled bool) {
	e.metricsEnabled = enabled
}

// EnsureMetrics registers a type describing metrics to the global metrics collection.
//
// NOTE: EnsureMetrics will panic if not called with a pointer to a struct.
func (e *Enable) EnsureMetrics(name string, m interface{}) interface{} {
	return EnsureMetrics(name, m)
}
