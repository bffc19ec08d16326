// Package metrics exposes prometheus counters for the payment and webhook
// paths. Registration uses promauto, so importing the package is enough.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentOrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "servicehub_payment_orders_created_total",
		Help: "Payment orders created with the gateway.",
	})

	PaymentsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicehub_payments_verified_total",
		Help: "Payment verification attempts by outcome.",
	}, []string{"outcome"})

	RefundsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicehub_refunds_processed_total",
		Help: "Refunds processed by resulting payment status.",
	}, []string{"status"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "servicehub_webhook_events_total",
		Help: "Gateway webhook events by type and outcome.",
	}, []string{"event", "outcome"})
)
