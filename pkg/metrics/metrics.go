package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	MessagingTemplatesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_templates_sent_total",
			Help: "Total number of survey templates accepted by the messaging provider (count)",
		},
		[]string{"provider"},
	)

	APIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of failed calls to external APIs (count)",
		},
		[]string{"service"},
	)

	MessagingFlowsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_flows_completed_total",
			Help: "Total number of survey flows completed and normalized (count)",
		},
		[]string{"provider", "step"},
	)

	MessagingInvalidPayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_invalid_payloads_total",
			Help: "Total number of inbound webhook payloads rejected by schema validation (count)",
		},
		[]string{"provider"},
	)

	MessagingFlowsProcessingErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_flows_processing_errors_total",
			Help: "Total number of validated flows that failed later processing (count)",
		},
		[]string{"provider"},
	)

	MessagingStatusUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_status_updates_total",
			Help: "Total number of delivery status callbacks received (count)",
		},
		[]string{"provider", "status"},
	)

	EmailNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "email_notifications_total",
			Help: "Total number of enriched email notifications attempted (count)",
		},
		[]string{"status"},
	)

	TriggersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astervoip_triggers_total",
			Help: "Total number of survey triggers received from the call center (count)",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of inbound HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "route", "code"},
	)

	ExternalAPIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "external_api_request_duration_seconds",
			Help:    "Duration of outbound requests to external APIs in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"service"},
	)

	SecurityBlockedIPsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_blocked_ips_total",
			Help: "Total number of requests rejected by the IP allowlist (count)",
		},
		[]string{"ip"},
	)

	SecurityInvalidAuthTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "security_invalid_auth_tokens_total",
			Help: "Total number of requests rejected for a missing or invalid token (count)",
		},
		[]string{"reason"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service"},
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
)

func RegisterMessagingMetrics() {
	prometheus.MustRegister(MessagingTemplatesSentTotal)
	prometheus.MustRegister(APIErrorsTotal)
	prometheus.MustRegister(MessagingFlowsCompletedTotal)
	prometheus.MustRegister(MessagingInvalidPayloadsTotal)
	prometheus.MustRegister(MessagingFlowsProcessingErrorsTotal)
	prometheus.MustRegister(MessagingStatusUpdatesTotal)
	prometheus.MustRegister(EmailNotificationsTotal)
	prometheus.MustRegister(TriggersTotal)
	prometheus.MustRegister(ExternalAPIRequestDuration)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterHTTPMetrics() {
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(SecurityBlockedIPsTotal)
	prometheus.MustRegister(SecurityInvalidAuthTokensTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func IncTemplatesSent(provider string) {
	MessagingTemplatesSentTotal.WithLabelValues(provider).Inc()
}

func IncAPIError(service string) {
	APIErrorsTotal.WithLabelValues(service).Inc()
}

func IncFlowCompleted(provider, step string) {
	MessagingFlowsCompletedTotal.WithLabelValues(provider, step).Inc()
}

func IncInvalidPayload(provider string) {
	MessagingInvalidPayloadsTotal.WithLabelValues(provider).Inc()
}

func IncFlowProcessingError(provider string) {
	MessagingFlowsProcessingErrorsTotal.WithLabelValues(provider).Inc()
}

func IncStatusUpdate(provider, status string) {
	MessagingStatusUpdatesTotal.WithLabelValues(provider, status).Inc()
}

func IncEmailNotification(status string) {
	EmailNotificationsTotal.WithLabelValues(status).Inc()
}

func IncTrigger(status string) {
	TriggersTotal.WithLabelValues(status).Inc()
}

func IncBlockedIP(ip string) {
	SecurityBlockedIPsTotal.WithLabelValues(ip).Inc()
}

func IncInvalidAuthToken(reason string) {
	SecurityInvalidAuthTokensTotal.WithLabelValues(reason).Inc()
}

func IncRetryAttempt(service string) {
	RetryAttemptsTotal.WithLabelValues(service).Inc()
}

func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(duration.Seconds())
}

func ObserveExternalAPIDuration(service string, duration time.Duration) {
	ExternalAPIRequestDuration.WithLabelValues(service).Observe(duration.Seconds())
}
