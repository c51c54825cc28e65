package metrics

import (
	"context"
	"path"
	"reflect"
	"sync"
	"time"

	"github.com/docker/go-units"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	// KB stands for kilo bytes (1024 bytes)
	KB = units.KiB

	// MB stands for mega bytes (1024 kilo bytes)
	MB = units.MiB

	unitCount = "count"
)

var (
	// global settings for metrics
	mp       *settings
	initOnce sync.Once
)

type settings struct {
	basePath  string
	contexter func() context.Context
	exporter  FlushExporter

	allMetrics []stats.Measure
	allViews   []*view.View

	// registered modules, by location
	modules   map[string]interface{}
	exclusive sync.Mutex

	d time.Duration
}

func newSettings(opts ...Option) *settings {
	s := &settings{
		modules:   make(map[string]interface{}),
		contexter: context.Background,
	}
	for _, apply := range opts {
		apply(s)
	}

	s.registerExporter()
	return s
}

func (s *settings) EnsureMetrics(location string, m interface{}) interface{} {
	s.exclusive.Lock()
	defer s.exclusive.Unlock()
	location = path.Join(s.basePath, location)

	if existing, ok := s.modules[location]; ok {
		if reflect.TypeOf(existing) != reflect.TypeOf(m) {
			panic("trying to re-register existing metrics module with a different type")
		}
		return existing
	}
	s.declare(location, m)
	s.modules[location] = m
	return m
}

// Flush exports the current data of all registered views
func (s *settings) Flush() {
	if s.exporter == nil {
		return
	}
	s.exclusive.Lock()
	views := append([]*view.View(nil), s.allViews...)
	s.exclusive.Unlock()

	for _, v := range views {
		rows, err := view.RetrieveData(v.Name)
		if err != nil {
			continue
		}
		now := time.Now()
		s.exporter.Flush(&view.Data{
			View:  v,
			Start: now,
			End:   now,
			Rows:  rows,
		})
	}
}

func (s *settings) registerExporter() {
	if s.exporter == nil {
		return
	}
	view.RegisterExporter(s.exporter)
	if s.d >= time.Second {
		view.SetReportingPeriod(s.d)
	}
}

// addMetric creates a measure of type kind, with some views according to its tags.
//
// Every measure is created with a default view according to its unit type:
//   - counters (unit=count or "") get a count view
//   - bytes get a bytes size distribution view
//   - timings get a duration distribution view
//
// Extra views are declared by the extraviews tag, e.g. extraviews:"sum,lastvalue,count"
func (s *settings) addMetric(kind reflect.Type, name string, tags measureTags) stats.Measure {
	description := tags.description
	if description == "" {
		description = describeFromUnit(name, tags.unit)
	}
	u, dist := unitAndDist(tags.unit)

	var measure stats.Measure
	if kind == float64MeasureType {
		measure = stats.Float64(name, description, u)
	} else {
		measure = stats.Int64(name, description, u)
	}
	s.allMetrics = append(s.allMetrics, measure)

	keys := make([]tag.Key, 0, len(tags.groupings))
	for _, g := range tags.groupings {
		keys = append(keys, tag.MustNewKey(g))
	}

	s.addView(&view.View{
		Name:        name,
		Description: describeViewFromDist(description, dist),
		Measure:     measure,
		Aggregation: dist,
		TagKeys:     keys,
	})

	for _, extra := range tags.extraViews {
		var agg *view.Aggregation
		switch extra {
		case unitCount:
			agg = view.Count()
		case "sum":
			agg = view.Sum()
		case "lastvalue":
			agg = view.LastValue()
		default:
			continue
		}
		s.addView(&view.View{
			Name:        describeViewFromDist(name, agg),
			Description: describeViewFromDist(description, agg),
			Measure:     measure,
			Aggregation: agg,
			TagKeys:     keys,
		})
	}
	return measure
}

func (s *settings) addView(v *view.View) {
	s.allViews = append(s.allViews, v)
	_ = view.Register(v)
}

func durationDistribution() *view.Aggregation {
	// buckets in milliseconds
	return view.Distribution(
		0.1, 0.5, 1, 5,
		10, 50, 100, 300, 500,
		1000, 3000, 5000, 10000,
	)
}

func bytesDistribution() *view.Aggregation {
	return view.Distribution(
		1*KB, 4*KB, 16*KB, 64*KB, 256*KB,
		1*MB, 4*MB, 16*MB, 64*MB,
	)
}

func unitAndDist(unit string) (string, *view.Aggregation) {
	switch unit {
	case "milliseconds":
		return stats.UnitMilliseconds, durationDistribution()
	case "bytes":
		return stats.UnitBytes, bytesDistribution()
	default:
		return stats.UnitDimensionless, view.Count()
	}
}

func describeFromUnit(name, unit string) string {
	switch unit {
	case "", unitCount:
		return name + " counter"
	default:
		return name + " in " + unit
	}
}

func describeViewFromDist(desc string, in *view.Aggregation) string {
	if in == nil {
		return desc
	}
	switch in.Type {
	case view.AggTypeCount:
		return desc + " [count]"
	case view.AggTypeSum:
		return desc + " [cumulated]"
	case view.AggTypeDistribution:
		return desc + " [distribution]"
	case view.AggTypeLastValue:
		return desc + " [last]"
	default:
		return desc
	}
}

// FlushExporter is a view exporter that knows how to flush metrics.
//
// Flushing may run concurrently with the background exporter of opencensus.
type FlushExporter interface {
	view.Exporter
	Flush(*view.Data)
}

func flusher(e view.Exporter) FlushExporter {
	if f, ok := e.(FlushExporter); ok {
		return f
	}
	return &simpleFlusher{e: e}
}

type simpleFlusher struct {
	e view.Exporter
	m sync.RWMutex
}

func (f *simpleFlusher) ExportView(viewData *view.Data) {
	f.m.RLock()
	f.e.ExportView(viewData)
	f.m.RUnlock()
}

func (f *simpleFlusher) Flush(viewData *view.Data) {
	f.m.Lock()
	f.e.ExportView(viewData)
	f.m.Unlock()
}
