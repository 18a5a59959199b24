// Package metrics exposes Prometheus metrics for the renewal timer and the
// watch loop. Metrics live in a private registry so the textfile output
// carries no Go runtime series that would clash with node_exporter's own.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registry *prometheus.Registry

	storeRequestsTotal *prometheus.CounterVec
	renewalsTotal      *prometheus.CounterVec
	tokenTTLSeconds    prometheus.Gauge
	lastRenewalTime    prometheus.Gauge
	watchPollsTotal    *prometheus.CounterVec
	watchReactions     *prometheus.CounterVec
	childStartsTotal   prometheus.Counter

	metricsOnce sync.Once
)

// InitMetrics registers every metric. Safe to call repeatedly.
func InitMetrics() {
	metricsOnce.Do(func() {
		registry = prometheus.NewRegistry()
		factory := promauto.With(registry)

		storeRequestsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultctl_store_requests_total",
				Help: "Requests sent to the secret store by operation and result class",
			},
			[]string{"op", "result"},
		)

		renewalsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultctl_token_renewals_total",
				Help: "Renewal attempts by outcome",
			},
			[]string{"outcome"},
		)

		tokenTTLSeconds = factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultctl_token_ttl_seconds",
			Help: "Remaining TTL of the cached token at the last check (0 = non-expiring)",
		})

		lastRenewalTime = factory.NewGauge(prometheus.GaugeOpts{
			Name: "vaultctl_token_last_check_timestamp_seconds",
			Help: "Unix time of the last renewal check",
		})

		watchPollsTotal = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultctl_watch_polls_total",
				Help: "Watch polls by result (unchanged, changed, error)",
			},
			[]string{"scope", "result"},
		)

		watchReactions = factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultctl_watch_reactions_total",
				Help: "Reactions applied after a secret change",
			},
			[]string{"scope", "reaction"},
		)

		childStartsTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "vaultctl_child_starts_total",
			Help: "Child processes started by run or watch",
		})
	})
}

// Registry returns the private registry, initialising it if needed.
func Registry() *prometheus.Registry {
	InitMetrics()
	return registry
}

// RecordStoreRequest counts one store request.
func RecordStoreRequest(op, result string) {
	InitMetrics()
	storeRequestsTotal.WithLabelValues(op, result).Inc()
}

// RecordRenewal counts one renewal check and its outcome.
func RecordRenewal(outcome string, remaining time.Duration, at time.Time) {
	InitMetrics()
	renewalsTotal.WithLabelValues(outcome).Inc()
	tokenTTLSeconds.Set(remaining.Seconds())
	lastRenewalTime.Set(float64(at.Unix()))
}

// RecordPoll counts one watch poll.
func RecordPoll(scope, result string) {
	InitMetrics()
	watchPollsTotal.WithLabelValues(scope, result).Inc()
}

// RecordReaction counts one reaction to a change.
func RecordReaction(scope, reaction string) {
	InitMetrics()
	watchReactions.WithLabelValues(scope, reaction).Inc()
}

// RecordChildStart counts one child process start.
func RecordChildStart() {
	InitMetrics()
	childStartsTotal.Inc()
}

// GetStoreRequestsTotal returns the request counter for testing.
func GetStoreRequestsTotal() *prometheus.CounterVec {
	InitMetrics()
	return storeRequestsTotal
}

// GetRenewalsTotal returns the renewal counter for testing.
func GetRenewalsTotal() *prometheus.CounterVec {
	InitMetrics()
	return renewalsTotal
}

// GetTokenTTL returns the TTL gauge for testing.
func GetTokenTTL() prometheus.Gauge {
	InitMetrics()
	return tokenTTLSeconds
}

// GetWatchPollsTotal returns the poll counter for testing.
func GetWatchPollsTotal() *prometheus.CounterVec {
	InitMetrics()
	return watchPollsTotal
}

// GetWatchReactions returns the reaction counter for testing.
func GetWatchReactions() *prometheus.CounterVec {
	InitMetrics()
	return watchReactions
}

// GetChildStartsTotal returns the child start counter for testing.
func GetChildStartsTotal() prometheus.Counter {
	InitMetrics()
	return childStartsTotal
}
