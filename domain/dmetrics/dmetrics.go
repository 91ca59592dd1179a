// Package dmetrics mirrors the package-level-var-of-metrics idiom used
// throughout erigon-lib/state (mxRunningMerges, mxCollateTook, ...): every
// metric is constructed once at package init and referenced directly,
// rather than threaded through a registry object at every call site.
package dmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	DomainsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "domaincore_domains_running",
		Help: "number of domain slots currently participating in STW",
	})

	StwRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domaincore_stw_requests_total",
		Help: "total calls to TryRunOnAllDomains that actually claimed leadership",
	})

	StwDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "domaincore_stw_duration_seconds",
		Help:    "wall time from claim to leadership release for a single STW section",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 12),
	})

	StwCallbackInvocations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domaincore_stw_callback_invocations_total",
		Help: "total number of per-domain callback executions across all STW sections",
	})

	MinorHeapResizeTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domaincore_minor_heap_resize_total",
		Help: "total minor-heap reservation resizes performed",
	})

	BackupThreadActivations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domaincore_backup_thread_activations_total",
		Help: "total times a backup thread serviced an STW poke on behalf of a blocked domain",
	})

	DomainsSpawnedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domaincore_domains_spawned_total",
		Help: "total successful domain_create completions",
	})

	DomainsTerminatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "domaincore_domains_terminated_total",
		Help: "total domains that completed the terminate loop",
	})
)

func init() {
	prometheus.MustRegister(
		DomainsRunning,
		StwRequestsTotal,
		StwDuration,
		StwCallbackInvocations,
		MinorHeapResizeTotal,
		BackupThreadActivations,
		DomainsSpawnedTotal,
		DomainsTerminatedTotal,
	)
}
