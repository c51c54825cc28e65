package cmd

import (
	"time"

	"github.com/oneconcern/zipmount/pkg/metrics"
	"github.com/oneconcern/zipmount/pkg/metrics/exporters/zaplog"
)

type metricsFlags struct {
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"` // pointer because we want to distinguish unset from false
	m       *M
}

func (m metricsFlags) IsEnabled() bool {
	return m.Enabled != nil && *m.Enabled
}

// M describes metrics for the cmd package
type M struct {
	Usage metrics.UsageMetrics `group:"telemetry" description:"usage stats for zipmount CLI"`
}

// initMetrics sets the metrics exporter up, when metrics are enabled
func initMetrics() {
	if !zipmountFlags.root.metrics.IsEnabled() || zipmountFlags.root.metrics.m != nil {
		return
	}
	logger, err := getLogger()
	if err != nil {
		wrapFatalln("metrics logger", err)
		return
	}
	metrics.Init(
		metrics.WithBasePath("zipmount"),
		metrics.WithExporter(zaplog.NewExporter(logger)),
	)
	zipmountFlags.root.metrics.m = metrics.EnsureMetrics("cmd", &M{}).(*M)
}

// cliUsage records a usage metric in the CLI context in a single go.
// This is intended to be used in some defer statement.
//
// Metrics are flushed as soon as the command is done.
func cliUsage(t0 time.Time, command string, err error) {
	if zipmountFlags.root.metrics.IsEnabled() && zipmountFlags.root.metrics.m != nil {
		zipmountFlags.root.metrics.m.Usage.UsedAll(t0, command)(err)
		metrics.Flush()
	}
}
