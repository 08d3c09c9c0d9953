package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the ledger's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	xpAwarded           *prometheus.CounterVec
	levelUps            prometheus.Counter
	achievementsEarned  *prometheus.CounterVec
	txConflicts         *prometheus.CounterVec
	leaderboardRequests *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpLatency         *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		xpAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teachme",
			Name:      "xp_awarded_total",
			Help:      "XP granted, by transaction source.",
		}, []string{"source"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teachme",
			Name:      "level_ups_total",
			Help:      "Awards that moved a student to a higher level.",
		}),
		achievementsEarned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teachme",
			Name:      "achievements_earned_total",
			Help:      "Achievements earned, by achievement id.",
		}, []string{"achievement"}),
		txConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teachme",
			Name:      "tx_conflicts_total",
			Help:      "Transactions abandoned after exhausting retries.",
		}, []string{"action"}),
		leaderboardRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teachme",
			Name:      "leaderboard_requests_total",
			Help:      "Leaderboard reads, by cache outcome.",
		}, []string{"cache"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teachme",
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "teachme",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.xpAwarded, m.levelUps, m.achievementsEarned, m.txConflicts,
		m.leaderboardRequests, m.httpRequests, m.httpLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveXP(source string, amount int, leveledUp bool) {
	if m == nil {
		return
	}
	m.xpAwarded.WithLabelValues(source).Add(float64(amount))
	if leveledUp {
		m.levelUps.Inc()
	}
}

func (m *Metrics) ObserveAchievement(achievementID string) {
	if m == nil {
		return
	}
	m.achievementsEarned.WithLabelValues(achievementID).Inc()
}

func (m *Metrics) ObserveTxConflict(action string) {
	if m == nil {
		return
	}
	m.txConflicts.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveLeaderboard(cacheHit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if cacheHit {
		outcome = "hit"
	}
	m.leaderboardRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}
