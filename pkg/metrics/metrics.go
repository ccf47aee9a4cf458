package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagesProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_messages_processed_total",
			Help: "Total number of messages handled by a processor (count)",
		},
		[]string{"processor", "status"},
	)

	ProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "connector_processing_duration_ms",
			Help:    "Processing duration per processor in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"processor", "status"},
	)

	CompensationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_compensations_total",
			Help: "Total number of compensating negative evidence runs (count)",
		},
		[]string{"processor", "evidence_type"},
	)

	NotRelevantTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_not_relevant_total",
			Help: "Total number of evidences dropped as not relevant (count)",
		},
		[]string{"reason"},
	)

	EvidenceCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_evidence_created_total",
			Help: "Total number of evidences synthesized by the connector (count)",
		},
		[]string{"evidence_type", "status"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connector_submissions_total",
			Help: "Total number of messages submitted to link partners (count)",
		},
		[]string{"link_type", "status"},
	)

	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_decisions_total",
			Help: "Total number of routing decisions (count)",
		},
		[]string{"lane", "source"},
	)

	RoutingActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routing_active_rules",
			Help: "Number of compiled routing rules (count)",
		},
	)

	RoutingInvalidRules = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "routing_invalid_rules",
			Help: "Number of enabled routing rules that failed to parse (count)",
		},
		[]string{"lane"},
	)

	DedupChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evidence_dedup_checks_total",
			Help: "Total number of duplicate evidence checks (count)",
		},
		[]string{"status"},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "evidence_dedup_cache_size",
			Help: "Approximate number of remembered evidence keys (count)",
		},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000, 5000000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterProcessorMetrics() {
	prometheus.MustRegister(MessagesProcessedTotal)
	prometheus.MustRegister(ProcessingDuration)
	prometheus.MustRegister(CompensationsTotal)
	prometheus.MustRegister(NotRelevantTotal)
	prometheus.MustRegister(EvidenceCreatedTotal)
	prometheus.MustRegister(SubmissionsTotal)
	prometheus.MustRegister(DedupChecksTotal)
	prometheus.MustRegister(DedupCacheSize)
	prometheus.MustRegister(FallbackUsageTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func RegisterRoutingMetrics() {
	prometheus.MustRegister(RoutingDecisionsTotal)
	prometheus.MustRegister(RoutingActiveRules)
	prometheus.MustRegister(RoutingInvalidRules)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterManagementMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

func ObserveProcessingDuration(processor, status string, duration time.Duration) {
	ProcessingDuration.WithLabelValues(processor, status).Observe(float64(duration.Milliseconds()))
}

func IncMessagesProcessed(processor, status string) {
	MessagesProcessedTotal.WithLabelValues(processor, status).Inc()
}

func IncCompensation(processor, evidenceType string) {
	CompensationsTotal.WithLabelValues(processor, evidenceType).Inc()
}

func IncNotRelevant(reason string) {
	NotRelevantTotal.WithLabelValues(reason).Inc()
}

func IncEvidenceCreated(evidenceType, status string) {
	EvidenceCreatedTotal.WithLabelValues(evidenceType, status).Inc()
}

func IncSubmission(linkType, status string) {
	SubmissionsTotal.WithLabelValues(linkType, status).Inc()
}

func IncRoutingDecision(lane, source string) {
	RoutingDecisionsTotal.WithLabelValues(lane, source).Inc()
}

func SetRoutingActiveRules(count int) {
	RoutingActiveRules.Set(float64(count))
}

func SetRoutingInvalidRules(lane string, count int) {
	RoutingInvalidRules.WithLabelValues(lane).Set(float64(count))
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}
