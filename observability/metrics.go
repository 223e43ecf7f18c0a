package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	cdpMetricsOnce sync.Once
	cdpRegistry    *CDPMetrics
)

// ModuleMetrics returns the lazily-initialised registry recording HTTP API
// activity per route.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total API requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "api",
				Name:      "errors_total",
				Help:      "Total API errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdp",
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "api",
				Name:      "throttles_total",
				Help:      "Count of API requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an API request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// CDPMetrics tracks the lending engine: every state-changing operation, the
// liquidation flow and the headline system ratios.
type CDPMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidated   *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	tcr          prometheus.Gauge
	recovery     prometheus.Gauge
	poolDeposits prometheus.Gauge
	poolEpoch    prometheus.Gauge
	poolScale    prometheus.Gauge
}

// CDP returns the singleton metrics registry for the lending engine.
func CDP() *CDPMetrics {
	cdpMetricsOnce.Do(func() {
		cdpRegistry = &CDPMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of engine operations segmented by operation, outcome and error class.",
			}, []string{"operation", "outcome", "class"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "cdp",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "liquidation",
				Name:      "debt_total",
				Help:      "Liquidated debt in whole debt tokens segmented by collateral and route (offset, redistributed).",
			}, []string{"collateral", "route"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "cdp",
				Subsystem: "liquidation",
				Name:      "positions_total",
				Help:      "Count of liquidated positions segmented by collateral.",
			}, []string{"collateral"}),
			tcr: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "system",
				Name:      "tcr_ratio",
				Help:      "System-wide total collateral ratio across listed ledgers (1.0 = 100%).",
			}),
			recovery: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "system",
				Name:      "recovery_mode",
				Help:      "Indicates whether the system TCR is below CCR (1) or not (0).",
			}),
			poolDeposits: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "stability_pool",
				Name:      "deposits",
				Help:      "Total debt tokens held by the stability pool in whole tokens.",
			}),
			poolEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "stability_pool",
				Name:      "epoch",
				Help:      "Current stability pool epoch; increments when the pool is emptied by an offset.",
			}),
			poolScale: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "cdp",
				Subsystem: "stability_pool",
				Name:      "scale",
				Help:      "Current stability pool scale within the epoch.",
			}),
		}
		prometheus.MustRegister(
			cdpRegistry.operations,
			cdpRegistry.latency,
			cdpRegistry.liquidated,
			cdpRegistry.liquidations,
			cdpRegistry.tcr,
			cdpRegistry.recovery,
			cdpRegistry.poolDeposits,
			cdpRegistry.poolEpoch,
			cdpRegistry.poolScale,
		)
	})
	return cdpRegistry
}

// ObserveOperation records the outcome of one engine operation. class is the
// error taxonomy label ("validation", "invariant", ...) and ignored on success.
func (m *CDPMetrics) ObserveOperation(operation string, duration time.Duration, class string) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if class != "" {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome, class).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordLiquidation adds a committed liquidation to the counters. Amounts are
// 18-decimal debt token units.
func (m *CDPMetrics) RecordLiquidation(collateral string, positions int, offset, redistributed *big.Int) {
	if m == nil {
		return
	}
	label := labelAsset(collateral)
	m.liquidations.WithLabelValues(label).Add(float64(positions))
	m.liquidated.WithLabelValues(label, "offset").Add(tokenFloat(offset))
	m.liquidated.WithLabelValues(label, "redistributed").Add(tokenFloat(redistributed))
}

// RecordSystem updates the TCR gauges. tcr is an 18-decimal ratio.
func (m *CDPMetrics) RecordSystem(tcr *big.Int, recovery bool) {
	if m == nil {
		return
	}
	m.tcr.Set(tokenFloat(tcr))
	if recovery {
		m.recovery.Set(1)
		return
	}
	m.recovery.Set(0)
}

// RecordPool updates the stability pool gauges.
func (m *CDPMetrics) RecordPool(deposits *big.Int, epoch, scale uint64) {
	if m == nil {
		return
	}
	m.poolDeposits.Set(tokenFloat(deposits))
	m.poolEpoch.Set(float64(epoch))
	m.poolScale.Set(float64(scale))
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

var tokenUnit = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// tokenFloat converts an 18-decimal amount into whole units.
func tokenFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	scaled := new(big.Float).Quo(new(big.Float).SetInt(value), tokenUnit)
	return bigToFloat(scaled)
}

func bigToFloat(value *big.Float) float64 {
	floatVal, acc := value.Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
