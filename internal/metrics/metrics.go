// Package metrics registers Herald's Prometheus instrumentation
// (SPEC_FULL.md §4.14): request latency, mirror queue depth (the
// "locked-storages" counter spec.md §4.8 calls for), mirror task
// outcomes, and Keystone token refresh counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "herald_request_duration_seconds",
		Help: "Duration of inbound requests by operation, backend protocol, and status.",
	}, []string{"operation", "backend_protocol", "status"})

	MirrorQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "herald_mirror_queue_depth",
		Help: "Number of mirror tasks not yet acknowledged by a replica, per bucket/replica.",
	}, []string{"bucket", "replica"})

	MirrorTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_mirror_tasks_total",
		Help: "Mirror tasks processed, partitioned by outcome: success, requeued, poisoned.",
	}, []string{"bucket", "replica", "outcome"})

	KeystoneTokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_keystone_token_refresh_total",
		Help: "Keystone token acquisitions/refreshes, partitioned by Swift identity.",
	}, []string{"swift_config"})
)
