package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oneconcern/zipmount/pkg/metrics/exporters/zaplog"
)

type exampleMetrics struct {
	Telemetry struct {
		UsageCounts []UsageMetrics      `group:"usage" description:""` // ignored
		TestCount   *stats.Int64Measure `metric:"testCount" description:"number of tests"`
	} `group:"telemetry" description:""`
	Cache struct {
		Archives ArchiveMetrics `group:"archives"`
		Inflate  InflateMetrics `group:"inflate"`
	} `group:"cache"`
	Usage UsageMetrics `group:"usage"`
}

func (e *exampleMetrics) IncTest() {
	Inc(e.Telemetry.TestCount, map[string]string{"kind": "test"})
}

func fixtureRequires(t testing.TB, m *exampleMetrics) {
	require.NotNil(t, m.Telemetry.TestCount)
	require.NotNil(t, m.Cache.Archives.Loads)
	require.NotNil(t, m.Cache.Inflate.Lookups)
	require.NotNil(t, m.Usage.Count)
}

func testExporter(t testing.TB) (*zaplog.Exporter, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zaplog.NewExporter(zap.New(core), zaplog.WithLevel(zapcore.DebugLevel)), logs
}

func TestRegister(t *testing.T) {
	exporter, _ := testExporter(t)
	Init(WithExporter(exporter))

	testMetrics := &exampleMetrics{}
	x := EnsureMetrics("registerExample", testMetrics)
	fixtureRequires(t, testMetrics)
	testMetrics.IncTest()

	// retry registration
	y := EnsureMetrics("registerExample", &exampleMetrics{})
	require.Equal(t, x, y)

	assert.Panics(t, func() {
		_ = EnsureMetrics("registerExample", &UsageMetrics{})
	})
}

func TestModules(t *testing.T) {
	exporter, logs := testExporter(t)
	s := newSettings(
		WithBasePath("root"),
		WithExporter(exporter),
	)
	testMetrics := &exampleMetrics{}
	_ = s.EnsureMetrics("moduleTesting", testMetrics)

	require.Len(t, s.modules, 1)
	assert.Len(t, s.allMetrics, 10)
	assert.Len(t, s.allViews, 12)
	fixtureRequires(t, testMetrics)

	saved := current()
	mp = s
	defer func() { mp = saved }()

	t0 := time.Now()
	testMetrics.IncTest()
	testMetrics.Cache.Archives.Loaded(t0, 12, nil)
	testMetrics.Cache.Archives.Loaded(t0, 0, fmt.Errorf("failure"))
	testMetrics.Cache.Archives.Evicted(2)
	testMetrics.Cache.Archives.Evicted(0)
	testMetrics.Cache.Inflate.Hit()
	testMetrics.Cache.Inflate.Miss(1024)
	testMetrics.Usage.Inc("Lookup")
	testMetrics.Usage.UsedAll(t0, "ReadFile")(nil)
	testMetrics.Usage.UsedAll(t0, "ReadFile")(fmt.Errorf("failure"))

	s.Flush()
	assert.NotZero(t, logs.Len())
}

func TestRecordWithoutRegistration(t *testing.T) {
	assert.NotPanics(t, func() {
		var m exampleMetrics
		m.IncTest()
		m.Cache.Archives.Loaded(time.Now(), 1, nil)
		m.Cache.Inflate.Miss(10)
	})
}

func TestEnable(t *testing.T) {
	var e Enable
	assert.False(t, e.MetricsEnabled())
	e.EnableMetrics(true)
	assert.True(t, e.MetricsEnabled())
}
