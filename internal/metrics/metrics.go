package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors recorded by services and middleware
type Metrics struct {
	stakes       *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	credited     *prometheus.CounterVec
	gatewayCalls *prometheus.CounterVec
	invariants   *prometheus.CounterVec
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
}

var (
	registryOnce sync.Once
	registry     *Metrics
)

// Default returns the lazily-initialised metrics registered with the default registerer
func Default() *Metrics {
	registryOnce.Do(func() {
		registry = New(prometheus.DefaultRegisterer)
	})
	return registry
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstake",
			Name:      "stakes_total",
			Help:      "Stake placement attempts segmented by outcome code.",
		}, []string{"outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstake",
			Name:      "settlements_total",
			Help:      "Completed poll settlements segmented by kind.",
		}, []string{"kind"}),
		credited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstake",
			Name:      "ledger_amount_total",
			Help:      "Amount moved through the wallet ledger in minor units, segmented by transaction type.",
		}, []string{"type"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstake",
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Payment gateway calls segmented by operation and outcome.",
		}, []string{"op", "outcome"}),
		invariants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstake",
			Name:      "invariant_violations_total",
			Help:      "Detected ledger invariant violations segmented by code.",
		}, []string{"code"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pollstake",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests segmented by route, method and status.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pollstake",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for HTTP handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg != nil {
		reg.MustRegister(m.stakes, m.settlements, m.credited, m.gatewayCalls, m.invariants, m.requests, m.latency)
	}
	return m
}

// StakePlaced records a stake placement outcome such as "ok" or a reason code
func (m *Metrics) StakePlaced(outcome string) {
	if m == nil {
		return
	}
	m.stakes.WithLabelValues(outcome).Inc()
}

// SettlementCompleted records a finished resolve or cancel
func (m *Metrics) SettlementCompleted(kind string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(kind).Inc()
}

// LedgerMovement records an amount written through the ledger
func (m *Metrics) LedgerMovement(txType string, amount int64) {
	if m == nil {
		return
	}
	m.credited.WithLabelValues(txType).Add(float64(amount))
}

// GatewayCall records the outcome of a payment gateway call
func (m *Metrics) GatewayCall(op, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(op, outcome).Inc()
}

// InvariantViolation records a detected invariant violation
func (m *Metrics) InvariantViolation(code string) {
	if m == nil {
		return
	}
	m.invariants.WithLabelValues(code).Inc()
}

// ObserveRequest records an HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}
