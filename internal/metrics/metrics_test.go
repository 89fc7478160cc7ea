package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.StakePlaced("ok")
	m.StakePlaced("ok")
	m.StakePlaced("DUPLICATE_STAKE")
	m.InvariantViolation("POOL_MISMATCH")
	m.LedgerMovement("win", 1500)
	m.ObserveRequest("/api/v1/stakes", "POST", 201, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stakes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stakes.WithLabelValues("DUPLICATE_STAKE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invariants.WithLabelValues("POOL_MISMATCH")))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.credited.WithLabelValues("win")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/stakes", "POST", "201")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.StakePlaced("ok")
		m.GatewayCall("transfer", "ok")
		m.ObserveRequest("", "GET", 200, time.Second)
	})
}
