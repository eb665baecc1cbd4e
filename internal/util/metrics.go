package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegistrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_total",
		Help: "Total number of completed registrations",
	}, []string{"kind"})

	RegistrationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "registrations_failed_total",
		Help: "Total number of failed registrations",
	}, []string{"kind", "reason"})

	PaymentOrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_orders_created_total",
		Help: "Total number of payment-gateway orders created",
	}, []string{"kind"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of gateway webhook deliveries by outcome",
	}, []string{"event", "outcome"})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "webhook_processing_latency_seconds",
		Help:    "Latency of webhook processing",
		Buckets: prometheus.DefBuckets,
	})

	VerifyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "verify_requests_total",
		Help: "Total number of payment verify polls by returned status",
	}, []string{"status"})

	SequenceAllocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_allocations_total",
		Help: "Total number of sequence numbers allocated",
	}, []string{"kind"})

	PDFRenderFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pdf_render_failures_total",
		Help: "Total number of confirmation document render failures",
	})

	EmailsSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "Total number of confirmation emails sent",
	})

	EmailsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "emails_failed_total",
		Help: "Total number of confirmation email failures",
	})

	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "submissions_total",
		Help: "Total number of competition submissions recorded",
	}, []string{"track"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
