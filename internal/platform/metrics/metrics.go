// Package metrics provides observability for the game server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers performance and gameplay metrics.
// A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	TickCount        prometheus.Counter
	TickLatency      prometheus.Histogram
	Actions          *prometheus.CounterVec
	SessionsComplete prometheus.Counter
	SleepPerSession  prometheus.Histogram

	EventWrites      prometheus.Counter
	EventWriteErrors prometheus.Counter
	EventWriteLat    prometheus.Histogram

	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec
	WSErrors      prometheus.Counter
}

// NewCollector registers all collectors against reg. A nil reg uses a fresh
// registry so repeated construction in tests never collides.
func NewCollector(reg *prometheus.Registry) (*Collector, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		gatherer: reg,
		TickCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleep_ticks_total",
			Help: "Total simulated seconds processed.",
		}),
		TickLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleep_tick_duration_seconds",
			Help:    "Wall time spent applying one tick.",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_actions_total",
			Help: "Player actions, labeled by kind and whether they changed state.",
		}, []string{"kind", "outcome"}),
		SessionsComplete: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleep_sessions_completed_total",
			Help: "Night cycles played to the end.",
		}),
		SleepPerSession: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleep_parent_sleep_seconds",
			Help:    "Parent sleep accumulated per completed cycle.",
			Buckets: []float64{3, 6, 10, 15, 20, 25, 30},
		}),
		EventWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleep_events_written_total",
			Help: "Events written to the ledger.",
		}),
		EventWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleep_event_write_errors_total",
			Help: "Failed ledger writes.",
		}),
		EventWriteLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sleep_event_write_duration_seconds",
			Help:    "Ledger write latency.",
			Buckets: prometheus.DefBuckets,
		}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sleep_ws_connections",
			Help: "Active WebSocket connections.",
		}),
		WSMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sleep_ws_messages_total",
			Help: "WebSocket messages by direction.",
		}, []string{"direction"}),
		WSErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sleep_ws_errors_total",
			Help: "WebSocket read/write failures and dropped clients.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.TickCount, c.TickLatency, c.Actions, c.SessionsComplete, c.SleepPerSession,
		c.EventWrites, c.EventWriteErrors, c.EventWriteLat,
		c.WSConnections, c.WSMessages, c.WSErrors,
	} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration) {
	if c == nil {
		return
	}
	c.TickCount.Inc()
	c.TickLatency.Observe(latency.Seconds())
}

// RecordAction records a player action and whether it was applied.
func (c *Collector) RecordAction(kind string, applied bool) {
	if c == nil {
		return
	}
	outcome := "ignored"
	if applied {
		outcome = "applied"
	}
	c.Actions.WithLabelValues(kind, outcome).Inc()
}

// RecordSessionComplete records the end of a night cycle.
func (c *Collector) RecordSessionComplete(parentSleep int) {
	if c == nil {
		return
	}
	c.SessionsComplete.Inc()
	c.SleepPerSession.Observe(float64(parentSleep))
}

// RecordEventWrite records an event write to the database.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	if c == nil {
		return
	}
	c.EventWrites.Inc()
	c.EventWriteLat.Observe(latency.Seconds())
	if err != nil {
		c.EventWriteErrors.Inc()
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int) {
	if c == nil {
		return
	}
	c.WSConnections.Add(float64(delta))
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if c == nil {
		return
	}
	if incoming {
		c.WSMessages.WithLabelValues("in").Inc()
	} else {
		c.WSMessages.WithLabelValues("out").Inc()
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	if c == nil {
		return
	}
	c.WSErrors.Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
