package metrics

import (
	"time"

	"go.opencensus.io/stats"
)

// ArchiveMetrics reports about the life cycle of cached archives
type ArchiveMetrics struct {
	Loads     *stats.Int64Measure   `metric:"loads" description:"number of parsed archives" tags:"kind,outcome"`
	Evictions *stats.Int64Measure   `metric:"evictions" description:"number of archives evicted while idle" tags:"kind"`
	Timing    *stats.Float64Measure `metric:"parseTiming" unit:"milliseconds" description:"time to parse a central directory" tags:"kind"`
	Entries   *stats.Int64Measure   `metric:"entries" description:"number of entries in parsed archives" extraviews:"sum" tags:"kind"`
}

func (a *ArchiveMetrics) tags() map[string]string {
	return map[string]string{"kind": "archive"}
}

// Loaded records the parsing of an archive
func (a *ArchiveMetrics) Loaded(start time.Time, entries int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	Inc(a.Loads, map[string]string{"kind": "archive", "outcome": outcome})
	Since(start, a.Timing, a.tags())
	if err == nil {
		Int64(a.Entries, int64(entries), a.tags())
	}
}

// Evicted records the eviction of some archives
func (a *ArchiveMetrics) Evicted(count int) {
	if count == 0 {
		return
	}
	Int64(a.Evictions, int64(count), a.tags())
}

// InflateMetrics reports about the cache of inflated entries
type InflateMetrics struct {
	Lookups  *stats.Int64Measure `metric:"lookups" description:"lookups in the cache of inflated entries" tags:"kind,outcome"`
	Inflated *stats.Int64Measure `metric:"inflated" unit:"bytes" description:"size of inflated entries" extraviews:"sum" tags:"kind"`
}

// Hit records a lookup served from cache
func (i *InflateMetrics) Hit() {
	Inc(i.Lookups, map[string]string{"kind": "inflate", "outcome": "hit"})
}

// Miss records a lookup which required to inflate an entry
func (i *InflateMetrics) Miss(size int) {
	Inc(i.Lookups, map[string]string{"kind": "inflate", "outcome": "miss"})
	Int64(i.Inflated, int64(size), map[string]string{"kind": "inflate"})
}

// UsageMetrics is a common set of metrics reporting about usage
type UsageMetrics struct {
	Count    *stats.Int64Measure   `metric:"usageCount" description:"number of calls" tags:"kind,method"`
	Failures *stats.Int64Measure   `metric:"usageFailures" description:"number of failed calls" tags:"kind,method"`
	Timing   *stats.Float64Measure `metric:"timing" unit:"milliseconds" description:"duration of a call" tags:"kind,method"`
}

func (u *UsageMetrics) tags(method string) map[string]string {
	return map[string]string{"kind": "usage", "method": method}
}

// Inc records the usage of some method, without timings or failure reporting
func (u *UsageMetrics) Inc(method string) {
	Inc(u.Count, u.tags(method))
}

// UsedAll records usage of some instrumented entry point with failures, in one go.
//
// Example:
//
//	func (fs *readOnlyFs) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
//	  defer func(start time.Time) {
//	    fs.m.Usage.UsedAll(start, "ReadFile")(err)
//	  }(time.Now())
//	  ...
//	}
func (u *UsageMetrics) UsedAll(start time.Time, method string) func(error) {
	return func(err error) {
		Since(start, u.Timing, u.tags(method))
		Inc(u.Count, u.tags(method))
		if err != nil {
			Inc(u.Failures, u.tags(method))
		}
	}
}

// IOMetrics reports about data served or written
type IOMetrics struct {
	Size     *stats.Int64Measure `metric:"ioSize" unit:"bytes" description:"IO chunk size in bytes" extraviews:"sum" tags:"kind,operation"`
	Failures *stats.Int64Measure `metric:"ioFailures" description:"number of failed IOs" tags:"kind,operation"`
}

func (n *IOMetrics) tags(operation string) map[string]string {
	return map[string]string{"kind": "io", "operation": operation}
}

// IORecord records an IO operation. Zero sizes are not recorded.
func (n *IOMetrics) IORecord(operation string, size int, err error) {
	if err != nil {
		Inc(n.Failures, n.tags(operation))
		return
	}
	if size > 0 {
		Int64(n.Size, int64(size), n.tags(operation))
	}
}
