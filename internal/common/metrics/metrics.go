package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus collectors. One instance per
// process, registered against its own registry so tests can create many.
type Metrics struct {
	Registry *prometheus.Registry

	VisitsTotal     prometheus.Counter
	NewVisitors     prometheus.Counter
	OnlineNow       prometheus.Gauge
	ActiveSessions  prometheus.Gauge
	ExpiredBySweep  prometheus.Counter
	DegradedResults prometheus.Counter
}

// New creates and registers the engine collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		VisitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_visits_total",
			Help: "Total register-visit calls accepted.",
		}),
		NewVisitors: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_new_visitors_total",
			Help: "Visits that created a new visitor identity.",
		}),
		OnlineNow: factory.NewGauge(prometheus.GaugeOpts{
			Name: "presence_online_now",
			Help: "Visitors currently inside the online window.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "presence_active_sessions",
			Help: "Session tokens pinged within the session timeout.",
		}),
		ExpiredBySweep: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_expired_by_sweep_total",
			Help: "Online rows flipped offline by the background sweep.",
		}),
		DegradedResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "presence_degraded_results_total",
			Help: "Operations that returned a best-effort snapshot after a storage error.",
		}),
	}
}
