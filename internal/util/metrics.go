package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	}, []string{"payment_method"})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order submissions",
	}, []string{"reason"})

	OrdersPaidTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_paid_total",
		Help: "Total number of orders marked paid",
	})

	DuplicateCapturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duplicate_captures_total",
		Help: "Capture confirmations skipped because the order was already paid",
	})

	OrdersDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_delivered_total",
		Help: "Total number of orders delivered",
	})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"source"})

	StockCommitsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_commits_failed_total",
		Help: "Total number of failed inventory commits",
	}, []string{"reason"})

	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_requests_total",
		Help: "Total number of payment gateway calls",
	}, []string{"phase", "outcome"})

	GatewayRequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_latency_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dispatched_total",
		Help: "Total number of notification feed entries written",
	}, []string{"channel", "type"})

	ExternalChannelFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "external_channel_failures_total",
		Help: "Swallowed failures of the best-effort external channel",
	})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autocancel_sweep_runs_total",
		Help: "Total number of auto-cancellation sweeps executed",
	})

	SweepCancelledOrders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "autocancel_swept_orders_total",
		Help: "Total number of orders cancelled by the sweep",
	})

	PaymentRemindersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_reminders_total",
		Help: "Total number of payment reminder notifications emitted",
	})

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
