// Package metrics exposes moderation counters in the Prometheus text format.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/volskaya/norman/cmd/internal/member"
	"github.com/volskaya/norman/cmd/internal/platform"
)

const namespace = "norman"

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	reg *prometheus.Registry

	challengesStarted  prometheus.Counter
	challengesResolved *prometheus.CounterVec
	pending            prometheus.Gauge
	actions            *prometheus.CounterVec
	storeOps           *prometheus.HistogramVec
	httpRequests       *prometheus.CounterVec
	feedSubscribers    prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		challengesStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_started_total",
			Help:      "Key challenges that sent a key request.",
		}),
		challengesResolved: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "challenges_resolved_total",
			Help:      "Key challenges by outcome.",
		}, []string{"outcome"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "challenges_pending",
			Help:      "Members currently awaiting a key response.",
		}),
		actions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "platform_actions_total",
			Help:      "Platform actions (kick, role changes, moves) by result.",
		}, []string{"action", "result"}),
		storeOps: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_op_duration_seconds",
			Help:      "Member store operation latency.",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, 1},
		}, []string{"op", "result"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Control surface requests by route and status.",
		}, []string{"route", "status"}),
		feedSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_subscribers",
			Help:      "Connected moderation feed clients.",
		}),
	}
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) ChallengeStarted() { m.challengesStarted.Inc() }

func (m *Metrics) ChallengeResolved(outcome string) {
	m.challengesResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PendingChallenges(n int) { m.pending.Set(float64(n)) }

func (m *Metrics) ActionApplied(action string, err error) {
	m.actions.WithLabelValues(action, result(err)).Inc()
}

// ObserveStoreOp implements member.Observer.
func (m *Metrics) ObserveStoreOp(op string, took time.Duration, err error) {
	res := result(err)
	if member.IsNotFound(err) {
		res = "not_found"
	}
	m.storeOps.WithLabelValues(op, res).Observe(took.Seconds())
}

// ObserveHTTP counts one control surface response.
func (m *Metrics) ObserveHTTP(route string, status int) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// FeedSubscribers sets the number of connected feed clients.
func (m *Metrics) FeedSubscribers(n int) { m.feedSubscribers.Set(float64(n)) }

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, platform.ErrPermissionDenied):
		return "denied"
	default:
		return "error"
	}
}
