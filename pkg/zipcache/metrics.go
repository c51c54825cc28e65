package zipcache

import "github.com/oneconcern/zipmount/pkg/metrics"

// M describes metrics for the zipcache package
type M struct {
	Archives metrics.ArchiveMetrics `group:"archives" description:"metrics about cached archives"`
	Inflate  metrics.InflateMetrics `group:"inflate" description:"metrics about the cache of inflated entries"`
}
