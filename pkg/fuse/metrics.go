package fuse

import (
	"github.com/oneconcern/zipmount/pkg/metrics"
)

// M describes metrics for the fuse package
type M struct {
	Volume struct {
		IO metrics.IOMetrics `group:"io" description:"metrics about fuse IO operations"`
	} `group:"volumetry" description:""`
	Usage metrics.UsageMetrics `group:"telemetry" description:"usage stats for the fuse package"`
}
