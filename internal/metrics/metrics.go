// Package metrics exposes Prometheus counters for the triage pipeline,
// webhook ingress, and outbound notifications.
package metrics

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process counters. All vectors are registered on a
// private registry so tests can create independent instances.
type Metrics struct {
	registry *prometheus.Registry

	TriageOutcomes   *prometheus.CounterVec
	WebhookRequests  *prometheus.CounterVec
	Notifications    *prometheus.CounterVec
	MessagesReceived prometheus.Counter
}

// New creates and registers the counter set.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		TriageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelgate",
			Name:      "triage_outcomes_total",
			Help:      "Triage results by outcome (allowed, rejected, skipped, errored).",
		}, []string{"outcome"}),
		WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelgate",
			Name:      "webhook_requests_total",
			Help:      "Inbound webhook requests by authentication result.",
		}, []string{"result"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelgate",
			Name:      "notifications_total",
			Help:      "Outbound notifications by delivery result.",
		}, []string{"result"}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelgate",
			Name:      "messages_received_total",
			Help:      "Messages consumed from the messaging stream.",
		}),
	}
	registry.MustRegister(m.TriageOutcomes, m.WebhookRequests, m.Notifications, m.MessagesReceived)
	return m
}

// Register mounts the scrape endpoint on the web server.
func (m *Metrics) Register(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})))
}
