package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type invocationMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	invocationMetricsOnce sync.Once
	invocationRegistry    *invocationMetrics

	vaultMetricsOnce sync.Once
	vaultRegistry    *VaultMetrics
)

// Invocations returns the lazily-initialised registry recording host
// invocations and RPC throttling.
func Invocations() *invocationMetrics {
	invocationMetricsOnce.Do(func() {
		invocationRegistry = &invocationMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochvault",
				Subsystem: "host",
				Name:      "invocations_total",
				Help:      "Total invocations segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochvault",
				Subsystem: "host",
				Name:      "errors_total",
				Help:      "Total failed invocations segmented by method and error name.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "epochvault",
				Subsystem: "host",
				Name:      "invocation_duration_seconds",
				Help:      "Latency distribution of invocations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochvault",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of RPC requests rejected by throttling policies.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			invocationRegistry.requests,
			invocationRegistry.errors,
			invocationRegistry.latency,
			invocationRegistry.throttles,
		)
	})
	return invocationRegistry
}

// Observe records the outcome of one invocation. code is the stable error name
// for failures and empty on success.
func (m *invocationMetrics) Observe(method, code string, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != "" {
		outcome = "error"
		m.errors.WithLabelValues(method, code).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards remain consistent.
func (m *invocationMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// VaultMetrics tracks the redemption lifecycle.
type VaultMetrics struct {
	epoch       prometheus.Gauge
	redeemPool  prometheus.Gauge
	settlements prometheus.Counter
	settledRate prometheus.Gauge
	claimsPaid  *prometheus.CounterVec
	requests    *prometheus.CounterVec
}

// Vault returns the singleton vault metrics registry.
func Vault() *VaultMetrics {
	vaultMetricsOnce.Do(func() {
		vaultRegistry = &VaultMetrics{
			epoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epochvault",
				Subsystem: "vault",
				Name:      "epoch_id",
				Help:      "Currently open epoch.",
			}),
			redeemPool: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epochvault",
				Subsystem: "vault",
				Name:      "redeem_pool",
				Help:      "Sale-token queued for redemption in the open epoch.",
			}),
			settlements: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "epochvault",
				Subsystem: "vault",
				Name:      "settlements_total",
				Help:      "Count of settled epochs.",
			}),
			settledRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "epochvault",
				Subsystem: "vault",
				Name:      "last_settled_rate",
				Help:      "Rate locked by the most recent settlement, scaled by 1e6.",
			}),
			claimsPaid: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochvault",
				Subsystem: "vault",
				Name:      "claims_paid_total",
				Help:      "Purchase-token paid out by claims, split by explicit and automatic claims.",
			}, []string{"kind"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "epochvault",
				Subsystem: "vault",
				Name:      "requests_total",
				Help:      "Redeem request lifecycle transitions.",
			}, []string{"action"}),
		}
		prometheus.MustRegister(
			vaultRegistry.epoch,
			vaultRegistry.redeemPool,
			vaultRegistry.settlements,
			vaultRegistry.settledRate,
			vaultRegistry.claimsPaid,
			vaultRegistry.requests,
		)
	})
	return vaultRegistry
}

// SetEpoch publishes the open epoch and its redeem pool.
func (m *VaultMetrics) SetEpoch(epochID uint32, pool *big.Int) {
	if m == nil {
		return
	}
	m.epoch.Set(float64(epochID))
	m.redeemPool.Set(toFloat(pool))
}

// RecordSettlement counts a settled epoch and its locked rate.
func (m *VaultMetrics) RecordSettlement(rate uint32) {
	if m == nil {
		return
	}
	m.settlements.Inc()
	m.settledRate.Set(float64(rate))
}

// RecordClaim adds a payout to the claim counter.
func (m *VaultMetrics) RecordClaim(payout *big.Int, auto bool) {
	if m == nil {
		return
	}
	kind := "explicit"
	if auto {
		kind = "auto"
	}
	m.claimsPaid.WithLabelValues(kind).Add(toFloat(payout))
}

// RecordRequest counts a request lifecycle transition such as "filed" or
// "cancelled".
func (m *VaultMetrics) RecordRequest(action string) {
	if m == nil {
		return
	}
	action = strings.TrimSpace(strings.ToLower(action))
	if action == "" {
		action = "unknown"
	}
	m.requests.WithLabelValues(action).Inc()
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
