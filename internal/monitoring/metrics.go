package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// SMTP 网关指标
	SMTPSessionsTotal    prometheus.Counter
	SMTPSessionsActive   prometheus.Gauge
	SMTPSessionsRejected prometheus.Counter
	SMTPAuthFailures     prometheus.Counter

	// 入站邮件指标
	MessagesAccepted   prometheus.Counter
	MessagesRejected   *prometheus.CounterVec
	MessageStoreErrors prometheus.Counter
	MessageSizeBytes   prometheus.Histogram
	AttachmentsBlocked prometheus.Counter

	// 域名验证指标
	VerificationRuns    prometheus.Counter
	VerificationsPassed prometheus.Counter
	DomainsRegistered   prometheus.Counter

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailforge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailforge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		SMTPSessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_smtp_sessions_total",
				Help: "Total number of SMTP sessions",
			},
		),

		SMTPSessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailforge_smtp_sessions_active",
				Help: "Number of currently active SMTP sessions",
			},
		),

		SMTPSessionsRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_smtp_sessions_rejected_total",
				Help: "Total number of SMTP connections rejected by the limiter",
			},
		),

		SMTPAuthFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_smtp_auth_failures_total",
				Help: "Total number of failed SMTP AUTH attempts",
			},
		),

		MessagesAccepted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_messages_accepted_total",
				Help: "Total number of inbound messages accepted and stored",
			},
		),

		MessagesRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailforge_messages_rejected_total",
				Help: "Total number of inbound messages rejected, by reason",
			},
			[]string{"reason"},
		),

		MessageStoreErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_message_store_errors_total",
				Help: "Total number of per-recipient storage failures",
			},
		),

		MessageSizeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailforge_message_size_bytes",
				Help:    "Size of accepted inbound messages in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
			},
		),

		AttachmentsBlocked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_attachments_blocked_total",
				Help: "Total number of attachments stripped by the screener",
			},
		),

		VerificationRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_domain_verification_runs_total",
				Help: "Total number of domain verification passes",
			},
		),

		VerificationsPassed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_domain_verifications_passed_total",
				Help: "Total number of verification passes that ended verified",
			},
		),

		DomainsRegistered: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_domains_registered_total",
				Help: "Total number of registered domains",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailforge_errors_total",
				Help: "Total number of errors, by component",
			},
			[]string{"component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailforge_panics_total",
				Help: "Total number of recovered panics",
			},
		),
	}
}

// Handler 返回 Prometheus 指标的 HTTP 处理器
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
