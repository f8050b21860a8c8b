// Package metrics defines the prometheus collectors exported on the
// admin /metrics endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_queries_total",
			Help: "DNS queries answered, by response code",
		},
		[]string{"rcode"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quill_cache_hits_total",
			Help: "Queries answered from the record cache",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quill_cache_misses_total",
			Help: "Queries that required outbound resolution",
		},
	)

	AuthorityAnswers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quill_authority_answers_total",
			Help: "Queries answered from local authority zones",
		},
	)

	UpstreamExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quill_upstream_exchanges_total",
			Help: "Outbound DNS exchanges, by outcome",
		},
		[]string{"outcome"},
	)

	BlockedQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quill_blocked_queries_total",
			Help: "Queries answered NXDOMAIN because the name is blocklisted",
		},
	)
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
