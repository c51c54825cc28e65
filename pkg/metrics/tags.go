package metrics

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"go.opencensus.io/stats"
)

var (
	int64MeasureType   = reflect.TypeOf((*stats.Int64Measure)(nil))
	float64MeasureType = reflect.TypeOf((*stats.Float64Measure)(nil))
)

// measureTags decodes the struct tags of a measure field:
//   - metric: the measure name, appended to the path of its groups
//   - unit: bytes, milliseconds or count (the default)
//   - description: describes the measure and its views
//   - extraviews: aggregations added to the default view of the unit (count, sum or lastvalue)
//   - tags: tag keys captured by the views
//
// Nested structs carry a "group" tag, which extends the path of the measures they hold.
type measureTags struct {
	metric      string
	unit        string
	description string
	extraViews  []string
	groupings   []string
}

func parseMeasureTags(field reflect.StructField) measureTags {
	return measureTags{
		metric:      field.Tag.Get("metric"),
		unit:        field.Tag.Get("unit"),
		description: field.Tag.Get("description"),
		extraViews:  splitTag(field.Tag.Get("extraviews")),
		groupings:   splitTag(field.Tag.Get("tags")),
	}
}

func splitTag(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

// declare allocates the measures of the struct m points to, under location
func (s *settings) declare(location string, m interface{}) {
	rv := reflect.ValueOf(m)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("metrics must be declared as a pointer to a struct, got: %T", m))
	}
	s.declareGroup(location, rv.Elem())
}

func (s *settings) declareGroup(group string, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}

		switch {
		case field.Type == int64MeasureType || field.Type == float64MeasureType:
			tags := parseMeasureTags(field)
			if tags.metric == "" {
				continue
			}
			measure := s.addMetric(field.Type, path.Join(group, tags.metric), tags)
			v.Field(i).Set(reflect.ValueOf(measure))
		case field.Type.Kind() == reflect.Struct:
			s.declareGroup(path.Join(group, field.Tag.Get("group")), v.Field(i))
		}
	}
}
