package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tabletalk_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_intents_total",
			Help: "Classified chat intents by kind.",
		},
		[]string{"intent"},
	)

	repairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabletalk_sql_repairs_total",
			Help: "Synthesized SQL statements repaired, by repair pass.",
		},
		[]string{"repair"},
	)

	unsafeQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_unsafe_queries_total",
			Help: "Statements rejected by the query validator.",
		},
	)

	oracleFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_oracle_failures_total",
			Help: "Failed language-model completion calls.",
		},
	)

	disambiguationPromptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tabletalk_disambiguation_prompts_total",
			Help: "Turns answered with a dataset disambiguation prompt.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		intentsTotal,
		repairsTotal,
		unsafeQueriesTotal,
		oracleFailuresTotal,
		disambiguationPromptsTotal,
	)
}

func ObserveIntent(intent string) {
	intentsTotal.WithLabelValues(intent).Inc()
}

func ObserveRepair(repair string) {
	repairsTotal.WithLabelValues(repair).Inc()
}

func ObserveUnsafeQuery() {
	unsafeQueriesTotal.Inc()
}

func ObserveOracleFailure() {
	oracleFailuresTotal.Inc()
}

func ObserveDisambiguationPrompt() {
	disambiguationPromptsTotal.Inc()
}
