// Package metrics holds the content engine's Prometheus counters. They are
// registered on the default registry, which the /metrics route serves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contentdb"

var (
	// Mutations counts committed page versions by change type.
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mutations_total",
		Help:      "Committed content mutations by change type.",
	}, []string{"change_type"})

	// VersionConflicts counts writes rejected for a stale expected version.
	VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "version_conflicts_total",
		Help:      "Mutations rejected because the expected version was stale.",
	})

	// LockConflicts counts lease requests and mutations refused because
	// another session holds the page.
	LockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_conflicts_total",
		Help:      "Lease acquisitions or mutations refused by another session's lease.",
	})

	// LockGrants counts granted leases by outcome (created, renewed, stolen).
	LockGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_grants_total",
		Help:      "Granted editing leases by outcome.",
	}, []string{"outcome"})

	LocksReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locks_reaped_total",
		Help:      "Expired leases deleted by the reaper.",
	})

	HistoryTrimmed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_trimmed_total",
		Help:      "History snapshots deleted by retention.",
	})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_failures_total",
		Help:      "Change events that could not be delivered.",
	})
)
