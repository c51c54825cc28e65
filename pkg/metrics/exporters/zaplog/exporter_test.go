package zaplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestExportView(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := NewExporter(zap.New(core), WithLevel(zapcore.DebugLevel))

	key := tag.MustNewKey("archive")
	v := &view.View{
		Name:        "loads",
		Measure:     stats.Int64("loads", "archive loads", stats.UnitDimensionless),
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{key},
	}
	e.ExportView(&view.Data{
		View: v,
		Rows: []*view.Row{
			{Tags: []tag.Tag{{Key: key, Value: "/cache/pkg.zip"}}, Data: &view.CountData{Value: 3}},
		},
	})
	e.ExportView(nil)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
	assert.Equal(t, "metrics", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "loads", fields["view"])
	assert.Equal(t, "/cache/pkg.zip", fields["archive"])
}

func TestDefaultLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewExporter(zap.New(core))

	e.ExportView(&view.Data{
		View: &view.View{Name: "quiet"},
		Rows: []*view.Row{{Data: &view.CountData{Value: 1}}},
	})
	assert.Zero(t, logs.Len())
}
