// Package metrics implements C9: counters and rolling percentile streams
// for HTTP, DB, and delivery stages, rendered as JSON or Prometheus text.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// percentileObjectives is the p50/p95 rolling-window configuration shared
// by every Summary metric, per §4.8.
var percentileObjectives = map[float64]float64{0.5: 0.05, 0.95: 0.01}

const summaryMaxAge = 10 * time.Minute

// Registry holds every counter and percentile stream named in §4.8,
// registered against its own prometheus.Registry so tests can spin up
// independent instances without colliding on the default global registry.
type Registry struct {
	reg *prometheus.Registry

	HTTPPublishCount      prometheus.Counter
	HTTPVerifyCount       prometheus.Counter
	NetDelivered          prometheus.Counter
	NetAcked              prometheus.Counter
	KUsDeduplicatedTotal  prometheus.Counter
	DBKUStoredTotal       prometheus.Counter
	OutboxQueueLen        prometheus.Gauge
	WSClients             prometheus.Gauge

	HTTPPublish prometheus.Summary
	HTTPVerify  prometheus.Summary
	DBRead      prometheus.Summary
	DBWrite     prometheus.Summary
}

func newSummary(name, help string) prometheus.Summary {
	return prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       name,
		Help:       help,
		Objectives: percentileObjectives,
		MaxAge:     summaryMaxAge,
	})
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
}

// New builds a Registry with all §4.8 metrics registered.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),

		HTTPPublishCount:     newCounter("sgn_http_publish_count", "Total /publish requests"),
		HTTPVerifyCount:      newCounter("sgn_http_verify_count", "Total /verify requests"),
		NetDelivered:         newCounter("sgn_net_delivered", "Total KUs delivered to subscribers"),
		NetAcked:             newCounter("sgn_net_acked", "Total delivery acks received"),
		KUsDeduplicatedTotal: newCounter("sgn_kus_deduplicated_total", "Total duplicate KUs dropped by the seen cache or the store"),
		DBKUStoredTotal:      newCounter("sgn_db_ku_stored_total", "Total KUs persisted to the store"),
		OutboxQueueLen:       newGauge("sgn_outbox_queue_len", "Current outbox queue depth"),
		WSClients:            newGauge("sgn_ws_clients", "Current connected websocket subscribers"),

		HTTPPublish: newSummary("sgn_http_publish_seconds", "Latency of /publish handling"),
		HTTPVerify:  newSummary("sgn_http_verify_seconds", "Latency of /verify handling"),
		DBRead:      newSummary("sgn_db_read_seconds", "Latency of store read operations"),
		DBWrite:     newSummary("sgn_db_write_seconds", "Latency of store write operations"),
	}

	r.reg.MustRegister(
		r.HTTPPublishCount, r.HTTPVerifyCount, r.NetDelivered, r.NetAcked,
		r.KUsDeduplicatedTotal, r.DBKUStoredTotal, r.OutboxQueueLen, r.WSClients,
		r.HTTPPublish, r.HTTPVerify, r.DBRead, r.DBWrite,
	)
	return r
}

// Timer observes the elapsed time since it was created into the given
// Summary when stopped.
type Timer struct {
	start   time.Time
	summary prometheus.Summary
}

// NewTimer starts a timer against s.
func NewTimer(s prometheus.Summary) *Timer {
	return &Timer{start: time.Now(), summary: s}
}

// Stop records the elapsed duration and returns it.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	t.summary.Observe(d.Seconds())
	return d
}
